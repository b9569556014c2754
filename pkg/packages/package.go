// Package packages holds the client-side view of packages, feeds and
// policies reported by the service, and a cache that folds repeated notices
// about the same package into one record.
package packages

import (
    "strings"
    "time"

    "coapp/pkg/protocol/message"
)

// Package is what the service has told this client about one package.
// Identity is the canonical name; every other field may arrive later.
type Package struct {
    CanonicalName  string `json:"canonical-name"`
    Name           string `json:"name,omitempty"`
    Version        string `json:"version,omitempty"`
    Architecture   string `json:"arch,omitempty"`
    PublicKeyToken string `json:"public-key-token,omitempty"`
    ProductCode    string `json:"product-code,omitempty"`
    LocalLocation  string `json:"local-location,omitempty"`

    Installed      bool `json:"installed"`
    Blocked        bool `json:"blocked"`
    Required       bool `json:"required"`
    ClientRequired bool `json:"client-required"`
    Active         bool `json:"active"`
    Dependent      bool `json:"dependent"`

    RemoteLocations     []string `json:"remote-locations,omitempty"`
    Dependencies        []string `json:"dependencies,omitempty"`
    SupercedentPackages []string `json:"supercedent-packages,omitempty"`

    Details *Details `json:"details,omitempty"`
}

// Details is the descriptive metadata returned by get-package-details.
type Details struct {
    Description     string            `json:"description,omitempty"`
    Summary         string            `json:"summary,omitempty"`
    DisplayName     string            `json:"display-name,omitempty"`
    Copyright       string            `json:"copyright,omitempty"`
    AuthorVersion   string            `json:"author-version,omitempty"`
    Icon            string            `json:"icon,omitempty"`
    License         string            `json:"license,omitempty"`
    LicenseURL      string            `json:"license-url,omitempty"`
    PublishDate     string            `json:"publish-date,omitempty"`
    PublisherName   string            `json:"publisher-name,omitempty"`
    PublisherURL    string            `json:"publisher-url,omitempty"`
    PublisherEmail  string            `json:"publisher-email,omitempty"`
    Tags            []string          `json:"tags,omitempty"`
    PackageItemText string            `json:"package-item-text,omitempty"`
    Roles           map[string]string `json:"roles,omitempty"`
}

// Feed is a package source known to the service.
type Feed struct {
    Location    string
    LastScanned time.Time
    Session     bool
    Suppressed  bool
    Validated   bool
}

// Policy lists the accounts allowed to perform a class of operations.
type Policy struct {
    Name        string
    Description string
    Accounts    []string
}

// applyFound copies the fields of a found-package notice onto p.
func (p *Package) applyFound(m *message.Message) {
    p.CanonicalName = m.String("canonical-name")
    p.LocalLocation = m.String("local-location")
    p.Name = m.String("name")
    p.Version = m.String("version")
    p.Architecture = m.String("arch")
    p.PublicKeyToken = m.String("public-key-token")
    p.ProductCode = m.String("product-code")
    p.Installed = m.Bool("installed", false)
    p.Blocked = m.Bool("blocked", false)
    p.Required = m.Bool("required", false)
    p.ClientRequired = m.Bool("client-required", false)
    p.Active = m.Bool("active", false)
    p.Dependent = m.Bool("dependent", false)
    p.RemoteLocations = m.List("remote-locations")
    p.Dependencies = m.List("dependencies")
    p.SupercedentPackages = m.List("supercedent-packages")
}

// applyDetails copies the fields of a package-details notice onto p.
func (p *Package) applyDetails(m *message.Message) {
    d := &Details{
        Description:     m.String("description"),
        Summary:         m.String("summary"),
        DisplayName:     m.String("display-name"),
        Copyright:       m.String("copyright"),
        AuthorVersion:   m.String("author-version"),
        Icon:            m.String("icon"),
        License:         m.String("license"),
        LicenseURL:      m.String("license-url"),
        PublishDate:     m.String("publish-date"),
        PublisherName:   m.String("publisher-name"),
        PublisherURL:    m.String("publisher-url"),
        PublisherEmail:  m.String("publisher-email"),
        Tags:            m.List("tags"),
        PackageItemText: m.String("package-item-text"),
    }
    if roles := m.Pairs("role"); len(roles) > 0 {
        d.Roles = make(map[string]string, len(roles))
        for name, kind := range roles {
            d.Roles[name] = strings.ToLower(kind)
        }
    }
    p.Details = d
}

// FoundFromMessage builds a record from a found-package notice alone.
func FoundFromMessage(m *message.Message) *Package {
    p := &Package{}
    p.applyFound(m)
    return p
}

// DetailsFromMessage builds a record carrying only the details of a
// package-details notice.
func DetailsFromMessage(m *message.Message) *Package {
    p := &Package{CanonicalName: m.String("canonical-name")}
    p.applyDetails(m)
    return p
}

// fileTimeEpoch is the offset between 1601-01-01 and 1970-01-01 in 100ns ticks.
const fileTimeEpoch = 116444736000000000

// FromFileTime converts a Windows FILETIME tick count; 0 yields the zero time.
func FromFileTime(ticks int64) time.Time {
    if ticks <= 0 { return time.Time{} }
    d := ticks - fileTimeEpoch
    return time.Unix(d/10_000_000, (d%10_000_000)*100).UTC()
}

// FeedFromMessage reads a found-feed notice.
func FeedFromMessage(m *message.Message) Feed {
    return Feed{
        Location:    m.String("location"),
        LastScanned: FromFileTime(m.Int64("last-scanned", 0)),
        Session:     m.Bool("session", false),
        Suppressed:  m.Bool("suppressed", false),
        Validated:   m.Bool("validated", false),
    }
}

// PolicyFromMessage reads a policy notice.
func PolicyFromMessage(m *message.Message) Policy {
    return Policy{Name: m.String("name"), Description: m.String("description"), Accounts: m.List("accounts")}
}
