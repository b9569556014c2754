package main

import "testing"

func TestParseFlags(t *testing.T) {
    o := ParseFlags([]string{"-config", "c.yaml", "-find", "-force", "zlib", "./repo"})
    if o.ConfigPath != "c.yaml" || !o.Find || !o.Force { t.Fatalf("opts = %+v", o) }
    if len(o.Args) != 2 || o.Args[1] != "./repo" { t.Fatalf("args = %v", o.Args) }
}
