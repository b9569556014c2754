package dispatch

import (
    "testing"
    "time"

    "coapp/pkg/handlers"
    "coapp/pkg/packages"
    "coapp/pkg/protocol/message"
)

type fakeConn struct{ n int }

func (f *fakeConn) Disconnect() { f.n++ }

func newTable(t *testing.T) (*Table, *fakeConn) {
    t.Helper()
    c, err := packages.NewCache(packages.CacheOptions{})
    if err != nil { t.Fatalf("cache: %v", err) }
    t.Cleanup(c.Close)
    fc := &fakeConn{}
    return New(c, fc), fc
}

func TestTerminals(t *testing.T) {
    tb, fc := newTable(t)
    cases := map[string]bool{
        CmdTaskComplete:        false,
        CmdOperationCancelled:  false,
        CmdRestarting:          false,
        CmdFoundPackage:        true,
        CmdInstallingPackage:   true,
        "some-future-notice":   true,
    }
    for cmd, want := range cases {
        handled, cont := tb.Route(message.New(cmd).Set("canonical-name", "p"), nil)
        if !handled || cont != want { t.Fatalf("%s: handled=%v continue=%v", cmd, handled, cont) }
    }
    if fc.n != 1 { t.Fatalf("restarting should disconnect once, got %d", fc.n) }
}

func TestProgressDefaults(t *testing.T) {
    tb, _ := newTable(t)
    var name string
    pct, overall := -1, -1
    set := &handlers.Messages{InstallingPackage: func(n string, p, o int) { name, pct, overall = n, p, o }}
    tb.Route(message.New(CmdInstallingPackage).Set("canonical-name", "zlib"), handlers.Chain{set})
    if name != "zlib" || pct != 0 || overall != 0 { t.Fatalf("got %q %d %d", name, pct, overall) }
    tb.Route(message.New(CmdInstallingPackage).Set("percent-complete", "40").Set("overall-percent-complete", "10"), handlers.Chain{set})
    if pct != 40 || overall != 10 { t.Fatalf("got %d %d", pct, overall) }
}

func TestFoundPackageMergesIntoCache(t *testing.T) {
    tb, _ := newTable(t)
    var got []*packages.Package
    set := &handlers.Messages{
        FoundPackage:   func(p *packages.Package) { got = append(got, p) },
        PackageDetails: func(p *packages.Package) { got = append(got, p) },
    }
    tb.Route(message.New(CmdFoundPackage).Set("canonical-name", "a").Set("version", "1.0").SetBool("installed", true), handlers.Chain{set})
    tb.Route(message.New(CmdPackageDetails).Set("canonical-name", "a").Set("summary", "s"), handlers.Chain{set})
    if len(got) != 2 { t.Fatalf("handler calls: %d", len(got)) }
    last := got[1]
    if !last.Installed || last.Version != "1.0" || last.Details == nil || last.Details.Summary != "s" {
        t.Fatalf("merged record: %#v", last)
    }
}

func TestFoundFeedAndSignature(t *testing.T) {
    tb, _ := newTable(t)
    var feed packages.Feed
    var valid bool
    var subject string
    set := &handlers.Messages{
        FoundFeed:           func(f packages.Feed) { feed = f },
        SignatureValidation: func(_ string, v bool, s string) { valid, subject = v, s },
    }
    tb.Route(message.New(CmdFoundFeed).Set("location", "http://feed").SetBool("validated", true), handlers.Chain{set})
    if feed.Location != "http://feed" || !feed.Validated || !feed.LastScanned.Equal(time.Time{}) { t.Fatalf("feed: %#v", feed) }
    tb.Route(message.New(CmdSignatureValidation).Set("is-valid", "true").Set("certificate-subject-name", "CN=x"), handlers.Chain{set})
    if !valid || subject != "CN=x" { t.Fatalf("signature: %v %q", valid, subject) }
}

func TestRequireRemoteFile(t *testing.T) {
    tb, _ := newTable(t)
    var locs []string
    var force bool
    set := &handlers.Messages{RequireRemoteFile: func(_ string, l []string, _ string, f bool) { locs, force = l, f }}
    tb.Route(message.New(CmdRequireRemoteFile).SetList("remote-locations", "a", "b"), handlers.Chain{set})
    if len(locs) != 2 || force { t.Fatalf("got %v %v", locs, force) }
}

func TestUnsetSlotsAreNoOps(t *testing.T) {
    tb := New(nil, nil)
    for cmd := range routes {
        tb.Route(message.New(cmd), nil)
    }
    if !Known(CmdPolicy) || Known("nope") { t.Fatalf("Known") }
}

func TestFullCacheStillHandsOutRecord(t *testing.T) {
    c, err := packages.NewCache(packages.CacheOptions{MaxBytes: 16})
    if err != nil { t.Fatalf("cache: %v", err) }
    t.Cleanup(c.Close)
    tb := New(c, nil)
    var got *packages.Package
    h := handlers.Resolve(&handlers.Messages{FoundPackage: func(p *packages.Package) { got = p }})
    tb.Dispatch(message.New(CmdFoundPackage).Set("canonical-name", "zlib-1.2.5.0-x86").Set("version", "1.2.5.0").SetBool("installed", true), h)
    if got == nil || got.Version != "1.2.5.0" || !got.Installed { t.Fatalf("record = %#v", got) }
    if _, ok := c.Get("zlib-1.2.5.0-x86"); ok { t.Fatalf("record should not fit the cache") }
}
