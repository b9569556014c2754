package message

import (
    "errors"
    "strings"
    "testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
    m := New("Find-Packages").
        Set("name", "zlib & friends").
        SetBool("installed", true).
        SetBool("blocked", false).
        Set("empty", "").
        SetInt("rqid", 42).
        SetList("remote-locations", "http://a/b?c=d", "file:///x y", "").
        Set("unicode", "пакет=1")
    b := Encode(m)
    out, err := Decode(b)
    if err != nil { t.Fatalf("decode: %v", err) }
    if !Equal(m, out) {
        t.Fatalf("roundtrip mismatch:\n in=%s\nout=%s", m.Short(), out.Short())
    }
    if out.Command != "find-packages" { t.Fatalf("command not lower-cased: %q", out.Command) }
    if !out.Has("empty") || out.String("empty") != "" { t.Fatalf("empty value lost") }
}

func TestEncodeCommandOnly(t *testing.T) {
    if got := string(Encode(New("task-complete"))); got != "task-complete" {
        t.Fatalf("got %q", got)
    }
    m, err := Decode([]byte("TASK-COMPLETE"))
    if err != nil { t.Fatalf("decode: %v", err) }
    if m.Command != "task-complete" || m.Len() != 0 { t.Fatalf("unexpected: %s", m.Short()) }
}

func TestCollectionIndexedAndRepeated(t *testing.T) {
    m, err := Decode([]byte("found-package?dep%5B1%5D=b&dep%5B0%5D=a&loc=x&loc=y&name=n"))
    if err != nil { t.Fatalf("decode: %v", err) }
    if got := strings.Join(m.List("dep"), ","); got != "a,b" { t.Fatalf("indexed order: %q", got) }
    if got := strings.Join(m.List("loc"), ","); got != "x,y" { t.Fatalf("repeated order: %q", got) }
    if m.String("name") != "n" { t.Fatalf("scalar lost") }
}

func TestDecodeSingleElementCollection(t *testing.T) {
    in := New("x").SetList("tags", "only")
    out, err := Decode(Encode(in))
    if err != nil { t.Fatalf("decode: %v", err) }
    if !Equal(in, out) { t.Fatalf("single element collection became %s", out.Short()) }
}

func TestDecodeErrors(t *testing.T) {
    cases := []string{"", "?a=b", "cmd?novalue", "cmd?=v", "cmd?a=%zz"}
    for _, c := range cases {
        _, err := Decode([]byte(c))
        var pe *ProtocolError
        if !errors.As(err, &pe) { t.Fatalf("%q: expected ProtocolError, got %v", c, err) }
    }
}

func TestDecodeToleratesEmptySegmentsAndUnknownFields(t *testing.T) {
    m, err := Decode([]byte("task-complete?&rqid=7&&future-field=1&\x00\x00"))
    if err != nil { t.Fatalf("decode: %v", err) }
    id, ok := m.RequestID()
    if !ok || id != 7 { t.Fatalf("rqid: %d %v", id, ok) }
    if m.String("future-field") != "1" { t.Fatalf("unknown field dropped") }
}

func TestTypedAccessorsDefaults(t *testing.T) {
    m := New("installing-package").Set("percent-complete", "abc").Set("installed", "TRUE")
    if m.Int("percent-complete", 0) != 0 { t.Fatalf("malformed int should default") }
    if m.Int("overall-percent-complete", 5) != 5 { t.Fatalf("missing int should default") }
    if !m.Bool("installed", false) { t.Fatalf("bool case-insensitive") }
    if m.Bool("missing", false) { t.Fatalf("missing bool should default") }
}

func TestPairs(t *testing.T) {
    m, err := Decode([]byte("package-details?role%5Bmain%5D=app&role%5Bdev%5D=lib&roles=x"))
    if err != nil { t.Fatalf("decode: %v", err) }
    p := m.Pairs("role")
    if len(p) != 2 || p["main"] != "app" || p["dev"] != "lib" { t.Fatalf("pairs: %#v", p) }
}

func TestShortTruncates(t *testing.T) {
    m := New("x").Set("big", strings.Repeat("a", 2000))
    if len(m.Short()) > 600 { t.Fatalf("short too long: %d", len(m.Short())) }
}

func TestDelKeepsOrder(t *testing.T) {
    m := New("x").Set("a", "1").Set("b", "2").Set("c", "3")
    m.Del("b")
    m.Set("b", "4")
    fs := m.Fields()
    if fs[0].Key != "a" || fs[1].Key != "c" || fs[2].Key != "b" { t.Fatalf("order: %#v", fs) }
}
