package main

import (
    "context"
    "errors"
    "fmt"
    "os"
    "os/signal"

    "go.uber.org/zap"

    "coapp/pkg/client"
    "coapp/pkg/config"
    "coapp/pkg/handlers"
    "coapp/pkg/observability"
    "coapp/pkg/packages"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
    cfg, err := config.Load(opts.ConfigPath)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
        return 1
    }

    logger, err := observability.SetupLogger(cfg.Log)
    if err != nil {
        _, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
        return 1
    }
    defer func() { _ = logger.Sync() }()
    zap.L().Debug("effective configuration", zap.Any("config", cfg))

    m, err := client.FromConfig(cfg, nil)
    if err != nil {
        zap.L().Error("failed to build client", zap.Error(err))
        return 1
    }
    defer func() { _ = m.Close() }()

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
    defer stop()
    if opts.Timeout > 0 {
        var cancel context.CancelFunc
        ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
        defer cancel()
    }

    // Progress and warnings go to stderr for every command.
    ctx, end := m.Scope(ctx, progress())
    defer end()

    err = dispatch(ctx, m, opts)
    st := m.CacheStats()
    zap.L().Debug("package cache", zap.Int64("records", st.Keys), zap.Uint64("bytes", st.Bytes),
        zap.Uint64("updates", st.Updates), zap.Uint64("rejects", st.Rejects), zap.Uint64("expired", st.Expired))
    if err != nil {
        var re *client.RequestError
        switch {
        case errors.As(err, &re):
            fmt.Fprintln(os.Stderr, "pmctl:", re)
        case errors.Is(err, client.ErrConnectionFailure):
            fmt.Fprintln(os.Stderr, "pmctl: package service unavailable:", err)
        default:
            fmt.Fprintln(os.Stderr, "pmctl:", err)
        }
        return 1
    }
    return 0
}

func dispatch(ctx context.Context, m *client.Manager, opts Options) error {
    switch {
    case opts.AddFeed != "":
        return m.AddFeed(ctx, opts.AddFeed, false)
    case opts.RemoveFeed != "":
        return m.RemoveFeed(ctx, opts.RemoveFeed, false)
    case opts.Feeds:
        feeds, err := m.ListFeeds(ctx, 0, 0)
        if err != nil { return err }
        for _, f := range feeds {
            fmt.Printf("%-60s session=%t suppressed=%t validated=%t\n", f.Location, f.Session, f.Suppressed, f.Validated)
        }
        return nil
    case opts.Install != "":
        return m.InstallPackage(ctx, opts.Install, client.InstallOptions{Force: forceFlag(opts.Force)})
    case opts.Remove != "":
        return m.RemovePackage(ctx, opts.Remove, opts.Force)
    case opts.Details != "":
        p, err := m.GetPackageDetails(ctx, opts.Details)
        if err != nil { return err }
        printPackage(p)
        if d := p.Details; d != nil {
            fmt.Printf("  summary:   %s\n  publisher: %s\n  license:   %s\n", d.Summary, d.PublisherName, d.License)
            for name, kind := range d.Roles { fmt.Printf("  role:      %s (%s)\n", name, kind) }
        }
        return nil
    case opts.Find:
        pkgs, err := m.GetPackages(ctx, opts.Args, client.Filter{})
        if err != nil { return err }
        for _, p := range pkgs { printPackage(p) }
        return nil
    }
    return errors.New("nothing to do; see -h")
}

func forceFlag(v bool) *bool {
    if !v { return nil }
    return client.Bool(true)
}

func printPackage(p *packages.Package) {
    state := "-"
    if p.Installed { state = "installed" }
    if p.Blocked { state += ",blocked" }
    fmt.Printf("%-50s %-16s %-6s %s\n", p.CanonicalName, p.Version, p.Architecture, state)
}

func progress() *handlers.Messages {
    return &handlers.Messages{
        InstallingPackage: func(name string, percent, overall int) {
            fmt.Fprintf(os.Stderr, "\rinstalling %s %3d%% (overall %3d%%)", name, percent, overall)
        },
        RemovingPackage: func(name string, percent int) { fmt.Fprintf(os.Stderr, "\rremoving %s %3d%%", name, percent) },
        InstalledPackage: func(name string) { fmt.Fprintf(os.Stderr, "\ninstalled %s\n", name) },
        RemovedPackage:   func(name string) { fmt.Fprintf(os.Stderr, "\nremoved %s\n", name) },
        FeedAdded:        func(loc string) { fmt.Fprintf(os.Stderr, "feed added: %s\n", loc) },
        FeedRemoved:      func(loc string) { fmt.Fprintf(os.Stderr, "feed removed: %s\n", loc) },
        NoPackagesFound:  func() { fmt.Fprintln(os.Stderr, "no packages found") },
        NoFeedsFound:     func() { fmt.Fprintln(os.Stderr, "no feeds found") },
        MessageWarning: func(message, parameter, reason string) {
            zap.L().Warn("service warning", zap.String("message", message), zap.String("parameter", parameter), zap.String("reason", reason))
        },
        OperationRequiresPermission: func(policy string) {
            fmt.Fprintf(os.Stderr, "permission required: %s\n", policy)
        },
        UnexpectedFailure: func(message string) { zap.L().Error("service failure", zap.String("message", message)) },
    }
}
