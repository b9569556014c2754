package main

import (
    "flag"
    "time"
)

// Options holds CLI options for pmctl.
type Options struct {
    ConfigPath string
    Timeout    time.Duration

    Find       bool
    Details    string
    Install    string
    Remove     string
    Force      bool
    Feeds      bool
    AddFeed    string
    RemoveFeed string

    // Args are the package names or locations for -find.
    Args []string
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
    fs := flag.NewFlagSet("pmctl", flag.ExitOnError)
    var opts Options
    fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
    fs.DurationVar(&opts.Timeout, "timeout", 0, "Overall deadline, 0 = none")
    fs.BoolVar(&opts.Find, "find", false, "List packages matching the arguments (names or local paths)")
    fs.StringVar(&opts.Details, "details", "", "Show details of a package by canonical name")
    fs.StringVar(&opts.Install, "install", "", "Install a package by canonical name")
    fs.StringVar(&opts.Remove, "remove", "", "Remove a package by canonical name")
    fs.BoolVar(&opts.Force, "force", false, "Force -install or -remove")
    fs.BoolVar(&opts.Feeds, "feeds", false, "List configured feeds")
    fs.StringVar(&opts.AddFeed, "add-feed", "", "Add a feed location")
    fs.StringVar(&opts.RemoveFeed, "remove-feed", "", "Remove a feed location")
    _ = fs.Parse(args)
    opts.Args = fs.Args()
    return opts
}
