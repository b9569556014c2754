package client

import (
    "context"
    "os"
    "sort"
    "strings"
    "sync"

    "golang.org/x/sync/errgroup"

    "coapp/pkg/dispatch"
    "coapp/pkg/handlers"
    "coapp/pkg/packages"
    "coapp/pkg/protocol/message"
)

// Outbound command names.
const (
    CmdFindPackages        = "find-packages"
    CmdGetPackageDetails   = "get-package-details"
    CmdInstallPackage      = "install-package"
    CmdRemovePackage       = "remove-package"
    CmdSetPackage          = "set-package"
    CmdFindFeeds           = "find-feeds"
    CmdAddFeed             = "add-feed"
    CmdRemoveFeed          = "remove-feed"
    CmdSuppressFeed        = "suppress-feed"
    CmdVerifyFileSignature = "verify-file-signature"
    CmdRecognizeFile       = "recognize-file"
    CmdUnableToAcquire     = "unable-to-acquire"
    CmdDownloadProgress    = "download-progress"
    CmdSetLogging          = "set-logging"
    CmdGetPolicy           = "get-policy"
    CmdAddToPolicy         = "add-to-policy"
    CmdRemoveFromPolicy    = "remove-from-policy"
)

// Bool returns a pointer to v, for the optional flags below.
func Bool(v bool) *bool { return &v }

// PackageQuery selects packages for FindPackages. Nil flags are not sent.
type PackageQuery struct {
    CanonicalName  string
    Name           string
    Version        string
    Arch           string
    PublicKeyToken string
    Dependencies   *bool
    Installed      *bool
    Active         *bool
    Required       *bool
    Blocked        *bool
    Latest         *bool
    Index          int
    MaxResults     int
    Location       string
    ForceScan      bool
}

func (q PackageQuery) message() *message.Message {
    m := message.New(CmdFindPackages).
        SetIf("canonical-name", q.CanonicalName).
        SetIf("name", q.Name).
        SetIf("version", q.Version).
        SetIf("arch", q.Arch).
        SetIf("public-key-token", q.PublicKeyToken).
        SetBoolPtr("dependencies", q.Dependencies).
        SetBoolPtr("installed", q.Installed).
        SetBoolPtr("active", q.Active).
        SetBoolPtr("required", q.Required).
        SetBoolPtr("blocked", q.Blocked).
        SetBoolPtr("latest", q.Latest).
        SetIf("location", q.Location)
    if q.Index > 0 { m.SetInt("index", int64(q.Index)) }
    if q.MaxResults > 0 { m.SetInt("max-results", int64(q.MaxResults)) }
    if q.ForceScan { m.SetBool("force-scan", true) }
    return m
}

// failures turns failure notices into the call's error.
func failures(dst **RequestError) CallOption {
    var mu sync.Mutex
    return observe(func(in *message.Message) {
        var e *RequestError
        switch in.Command {
        case dispatch.CmdFailedPackageInstall, dispatch.CmdFailedPackageRemove, dispatch.CmdUnableToRecognizeFile:
            e = &RequestError{Command: in.Command, Package: in.String("canonical-name"), Reason: in.String("reason")}
            if e.Package == "" { e.Package = in.String("filename") }
        case dispatch.CmdUnknownPackage, dispatch.CmdPackageIsBlocked:
            e = &RequestError{Command: in.Command, Package: in.String("canonical-name")}
        case dispatch.CmdFileNotFound:
            e = &RequestError{Command: in.Command, Package: in.String("filename")}
        case dispatch.CmdMessageArgumentError:
            e = &RequestError{Command: in.Command, Package: in.String("parameter"), Reason: in.String("reason")}
        case dispatch.CmdUnknownCommand:
            e = &RequestError{Command: in.Command, Reason: "service did not recognise the request"}
        default:
            return
        }
        mu.Lock()
        if *dst == nil { *dst = e }
        mu.Unlock()
    })
}

// run issues msg and folds failure notices into the result.
func (m *Manager) run(ctx context.Context, msg *message.Message, opts ...CallOption) error {
    var ferr *RequestError
    if err := m.Call(ctx, msg, append(opts, failures(&ferr))...); err != nil { return err }
    if ferr != nil { return ferr }
    return nil
}

// FindPackages lists the packages matching q in the order the service
// reported them.
func (m *Manager) FindPackages(ctx context.Context, q PackageQuery, opts ...CallOption) ([]*packages.Package, error) {
    var out []*packages.Package
    collect := tap(&handlers.Messages{FoundPackage: func(p *packages.Package) { out = append(out, p) }})
    if err := m.Call(ctx, q.message(), append(opts, collect)...); err != nil { return nil, err }
    return out, nil
}

// Filter narrows GetPackages results on the client side.
type Filter struct {
    Installed *bool
    Active    *bool
    Required  *bool
    Blocked   *bool
    Latest    *bool
    Versions  packages.VersionRange
}

func (f Filter) keep(p *packages.Package) bool {
    if f.Versions.Min != 0 || f.Versions.Max != 0 {
        v, err := packages.ParseVersion(p.Version)
        if err != nil || !f.Versions.Contains(v) { return false }
    }
    return true
}

// looksLikeLocation reports whether a parameter names a file system location
// rather than a package.
func looksLikeLocation(s string) bool {
    if strings.ContainsAny(s, `/\`) || strings.HasPrefix(s, ".") { return true }
    _, err := os.Stat(s)
    return err == nil
}

// GetPackages resolves each parameter concurrently and returns the distinct
// packages sorted by canonical name. A parameter that names a local
// directory or file is added as a session feed and then searched; anything
// else is matched against package names. No parameters lists everything.
func (m *Manager) GetPackages(ctx context.Context, params []string, f Filter, opts ...CallOption) ([]*packages.Package, error) {
    if len(params) == 0 { params = []string{""} }
    base := PackageQuery{Installed: f.Installed, Active: f.Active, Required: f.Required, Blocked: f.Blocked, Latest: f.Latest}

    g, gctx := errgroup.WithContext(ctx)
    var mu sync.Mutex
    seen := map[string]*packages.Package{}
    for _, p := range params {
        g.Go(func() error {
            q := base
            if p != "" && looksLikeLocation(p) {
                if err := m.AddFeed(gctx, p, true, opts...); err != nil { return err }
                q.Location = p
            } else if p != "" {
                q.Name = p
            }
            found, err := m.FindPackages(gctx, q, opts...)
            if err != nil { return err }
            mu.Lock()
            for _, pkg := range found {
                if f.keep(pkg) { seen[pkg.CanonicalName] = pkg }
            }
            mu.Unlock()
            return nil
        })
    }
    if err := g.Wait(); err != nil { return nil, err }
    out := make([]*packages.Package, 0, len(seen))
    for _, p := range seen { out = append(out, p) }
    sort.Slice(out, func(i, j int) bool { return out[i].CanonicalName < out[j].CanonicalName })
    return out, nil
}

// GetPackageDetails fetches the descriptive metadata of a package.
func (m *Manager) GetPackageDetails(ctx context.Context, canonicalName string, opts ...CallOption) (*packages.Package, error) {
    msg := message.New(CmdGetPackageDetails).Set("canonical-name", canonicalName)
    var got *packages.Package
    collect := tap(&handlers.Messages{PackageDetails: func(p *packages.Package) {
        if p.CanonicalName == canonicalName { got = p }
    }})
    if err := m.run(ctx, msg, append(opts, collect)...); err != nil { return nil, err }
    if got == nil { return &packages.Package{CanonicalName: canonicalName}, nil }
    return got, nil
}

// InstallOptions are the optional install-package flags.
type InstallOptions struct {
    AutoUpgrade *bool
    Force       *bool
    Download    *bool
    Pretend     *bool
}

func (m *Manager) InstallPackage(ctx context.Context, canonicalName string, io InstallOptions, opts ...CallOption) error {
    msg := message.New(CmdInstallPackage).
        Set("canonical-name", canonicalName).
        SetBoolPtr("auto-upgrade", io.AutoUpgrade).
        SetBoolPtr("force", io.Force).
        SetBoolPtr("download", io.Download).
        SetBoolPtr("pretend", io.Pretend)
    return m.run(ctx, msg, opts...)
}

func (m *Manager) RemovePackage(ctx context.Context, canonicalName string, force bool, opts ...CallOption) error {
    msg := message.New(CmdRemovePackage).Set("canonical-name", canonicalName)
    if force { msg.SetBool("force", true) }
    return m.run(ctx, msg, opts...)
}

// PackageState holds the flags set-package can change; nil leaves a flag as is.
type PackageState struct {
    Active   *bool
    Required *bool
    Blocked  *bool
}

func (m *Manager) SetPackage(ctx context.Context, canonicalName string, st PackageState, opts ...CallOption) error {
    msg := message.New(CmdSetPackage).
        Set("canonical-name", canonicalName).
        SetBoolPtr("active", st.Active).
        SetBoolPtr("required", st.Required).
        SetBoolPtr("blocked", st.Blocked)
    return m.run(ctx, msg, opts...)
}

// ListFeeds pages through the feeds the service knows; max 0 means all.
func (m *Manager) ListFeeds(ctx context.Context, index, max int, opts ...CallOption) ([]packages.Feed, error) {
    msg := message.New(CmdFindFeeds)
    if index > 0 { msg.SetInt("index", int64(index)) }
    if max > 0 { msg.SetInt("max-results", int64(max)) }
    var out []packages.Feed
    collect := observe(func(in *message.Message) {
        if in.Command == dispatch.CmdFoundFeed { out = append(out, packages.FeedFromMessage(in)) }
    })
    if err := m.run(ctx, msg, append(opts, collect)...); err != nil { return nil, err }
    return out, nil
}

// AddFeed registers a feed; a session feed lasts only as long as this session.
func (m *Manager) AddFeed(ctx context.Context, location string, session bool, opts ...CallOption) error {
    msg := message.New(CmdAddFeed).Set("location", location)
    if session { msg.SetBool("session", true) }
    return m.run(ctx, msg, opts...)
}

func (m *Manager) RemoveFeed(ctx context.Context, location string, session bool, opts ...CallOption) error {
    msg := message.New(CmdRemoveFeed).Set("location", location)
    if session { msg.SetBool("session", true) }
    return m.run(ctx, msg, opts...)
}

func (m *Manager) SuppressFeed(ctx context.Context, location string, opts ...CallOption) error {
    return m.run(ctx, message.New(CmdSuppressFeed).Set("location", location), opts...)
}

// VerifyFileSignature asks the service to check a file's signature; the
// outcome arrives through the SignatureValidation handler.
func (m *Manager) VerifyFileSignature(ctx context.Context, filename string, opts ...CallOption) error {
    return m.run(ctx, message.New(CmdVerifyFileSignature).Set("filename", filename), opts...)
}

// RecognizeFile reports a file this client fetched for a RequireRemoteFile request.
func (m *Manager) RecognizeFile(ctx context.Context, canonicalName, localLocation, remoteLocation string, opts ...CallOption) error {
    msg := message.New(CmdRecognizeFile).
        SetIf("canonical-name", canonicalName).
        Set("local-location", localLocation).
        SetIf("remote-location", remoteLocation)
    return m.run(ctx, msg, opts...)
}

// UnableToAcquire tells the service a requested file could not be fetched.
func (m *Manager) UnableToAcquire(ctx context.Context, canonicalName string, opts ...CallOption) error {
    return m.run(ctx, message.New(CmdUnableToAcquire).Set("canonical-name", canonicalName), opts...)
}

// DownloadProgress reports progress of a client-side download.
func (m *Manager) DownloadProgress(ctx context.Context, canonicalName string, percent int, opts ...CallOption) error {
    msg := message.New(CmdDownloadProgress).Set("canonical-name", canonicalName).SetInt("progress", int64(percent))
    return m.run(ctx, msg, opts...)
}

// SetLogging toggles service-side logging categories; nil leaves one as is.
func (m *Manager) SetLogging(ctx context.Context, messages, warnings, errs *bool, opts ...CallOption) error {
    msg := message.New(CmdSetLogging).
        SetBoolPtr("messages", messages).
        SetBoolPtr("warnings", warnings).
        SetBoolPtr("errors", errs)
    return m.run(ctx, msg, opts...)
}

// GetPolicy returns the named policy, or every policy when name is empty.
func (m *Manager) GetPolicy(ctx context.Context, name string, opts ...CallOption) ([]packages.Policy, error) {
    var out []packages.Policy
    collect := observe(func(in *message.Message) {
        if in.Command == dispatch.CmdPolicy { out = append(out, packages.PolicyFromMessage(in)) }
    })
    if err := m.run(ctx, message.New(CmdGetPolicy).SetIf("name", name), append(opts, collect)...); err != nil { return nil, err }
    return out, nil
}

func (m *Manager) AddToPolicy(ctx context.Context, policy, account string, opts ...CallOption) error {
    return m.run(ctx, message.New(CmdAddToPolicy).Set("name", policy).Set("account", account), opts...)
}

func (m *Manager) RemoveFromPolicy(ctx context.Context, policy, account string, opts ...CallOption) error {
    return m.run(ctx, message.New(CmdRemoveFromPolicy).Set("name", policy).Set("account", account), opts...)
}
