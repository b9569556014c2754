package client

import (
    "context"
    "errors"
    "sync"
    "testing"
    "time"

    "coapp/pkg/core/netstack"
    "coapp/pkg/dispatch"
    "coapp/pkg/handlers"
    "coapp/pkg/packages"
    "coapp/pkg/protocol/message"
    "coapp/pkg/transport/mem"
)

func TestHandshakeIsFirstMessage(t *testing.T) {
    svc := newFakeService(t)
    m := newManager(t, svc.net)

    var found []string
    done := async(func() error {
        return m.Call(context.Background(), message.New("find-packages").Set("name", "zlib"),
            WithHandlers(&handlers.Messages{FoundPackage: func(p *packages.Package) { found = append(found, p.CanonicalName) }}))
    })

    p := svc.next(t)
    hello := p.recv(t)
    if hello.Command != "start-session" || hello.String("client") != "test-client" || hello.String("id") == "" {
        t.Fatalf("handshake: %s", hello.Short())
    }
    if hello.Has(message.FieldRequestID) { t.Fatalf("handshake carries rqid") }
    req := p.recv(t)
    if req.Command != "find-packages" || req.String("name") != "zlib" { t.Fatalf("request: %s", req.Short()) }
    p.reply(t, req, message.New(dispatch.CmdFoundPackage).Set("canonical-name", "zlib-1.2.3-x86"))
    p.reply(t, req, message.New(dispatch.CmdTaskComplete))

    if err := wait(t, done); err != nil { t.Fatalf("call: %v", err) }
    if len(found) != 1 || found[0] != "zlib-1.2.3-x86" { t.Fatalf("found = %v", found) }
    if !m.IsConnected() || m.Session() != hello.String("id") { t.Fatalf("state %s session %q", m.State(), m.Session()) }
    if m.ActiveCalls() != 0 { t.Fatalf("active calls = %d", m.ActiveCalls()) }
}

func TestConcurrentCallsDoNotCrossTalk(t *testing.T) {
    svc := newFakeService(t)
    m := newManager(t, svc.net)
    connected := async(func() error { return m.Connect(context.Background()) })
    p := svc.accept(t)
    if err := wait(t, connected); err != nil { t.Fatalf("connect: %v", err) }

    type seen struct {
        mu    sync.Mutex
        names []string
    }
    record := func(s *seen) *handlers.Messages {
        return &handlers.Messages{InstallingPackage: func(name string, _, _ int) {
            s.mu.Lock(); s.names = append(s.names, name); s.mu.Unlock()
        }}
    }
    var a, b seen
    da := async(func() error { return m.InstallPackage(context.Background(), "a", InstallOptions{}, WithHandlers(record(&a))) })
    db := async(func() error { return m.InstallPackage(context.Background(), "b", InstallOptions{}, WithHandlers(record(&b))) })

    reqs := map[string]*message.Message{}
    for i := 0; i < 2; i++ {
        r := p.recv(t)
        reqs[r.String("canonical-name")] = r
    }
    ra, rb := reqs["a"], reqs["b"]
    if ra == nil || rb == nil { t.Fatalf("requests: %v", reqs) }
    ida, _ := ra.RequestID()
    idb, _ := rb.RequestID()
    if ida == idb { t.Fatalf("calls share request id %d", ida) }

    p.reply(t, rb, message.New(dispatch.CmdInstallingPackage).Set("canonical-name", "b").SetInt("percent-complete", 10))
    p.reply(t, ra, message.New(dispatch.CmdInstallingPackage).Set("canonical-name", "a").SetInt("percent-complete", 50))
    p.reply(t, rb, message.New(dispatch.CmdTaskComplete))
    p.reply(t, ra, message.New(dispatch.CmdInstallingPackage).Set("canonical-name", "a").SetInt("percent-complete", 90))
    p.reply(t, ra, message.New(dispatch.CmdTaskComplete))

    if err := wait(t, da); err != nil { t.Fatalf("a: %v", err) }
    if err := wait(t, db); err != nil { t.Fatalf("b: %v", err) }
    if len(a.names) != 2 || a.names[0] != "a" || a.names[1] != "a" { t.Fatalf("a saw %v", a.names) }
    if len(b.names) != 1 || b.names[0] != "b" { t.Fatalf("b saw %v", b.names) }
}

func TestConnectIsSingleFlight(t *testing.T) {
    svc := newFakeService(t)
    d := &countingDialer{Dialer: svc.net}
    m := newManager(t, d)

    var chans []<-chan error
    for i := 0; i < 5; i++ {
        chans = append(chans, async(func() error { return m.Connect(context.Background()) }))
    }
    svc.accept(t)
    for _, ch := range chans {
        if err := wait(t, ch); err != nil { t.Fatalf("connect: %v", err) }
    }
    if n := d.n.Load(); n != 1 { t.Fatalf("dials = %d, want 1", n) }
    if err := m.Connect(context.Background()); err != nil { t.Fatalf("reconnect while connected: %v", err) }
    if n := d.n.Load(); n != 1 { t.Fatalf("dials after second connect = %d", n) }
}

func TestConnectFailureSharedByAllCallers(t *testing.T) {
    boom := errors.New("pipe busy")
    d := &countingDialer{Dialer: mem.New(), err: boom}
    m := newManager(t, d)

    var chans []<-chan error
    for i := 0; i < 3; i++ {
        chans = append(chans, async(func() error {
            return m.Call(context.Background(), message.New("find-feeds"))
        }))
    }
    for _, ch := range chans {
        err := wait(t, ch)
        var ce *ConnectionError
        if !errors.As(err, &ce) || !errors.Is(err, ErrConnectionFailure) || !errors.Is(err, boom) {
            t.Fatalf("err = %v", err)
        }
    }
    if m.State() != StateDisconnected { t.Fatalf("state = %s", m.State()) }
    if m.ActiveCalls() != 0 { t.Fatalf("failed connect left %d calls", m.ActiveCalls()) }
}

func TestRestartingDisconnectsAndNextCallReconnects(t *testing.T) {
    svc := newFakeService(t)
    d := &countingDialer{Dialer: svc.net}
    m := newManager(t, d)

    restarted := false
    done := async(func() error {
        return m.Call(context.Background(), message.New("find-packages"),
            WithHandlers(&handlers.Messages{Restarting: func() { restarted = true }}))
    })
    p1 := svc.accept(t)
    req := p1.recv(t)
    p1.reply(t, req, message.New(dispatch.CmdRestarting))

    err := wait(t, done)
    var ce *CancelledError
    if !errors.As(err, &ce) || !ce.Restarting || !errors.Is(err, ErrOperationCancelled) { t.Fatalf("err = %v", err) }
    if !restarted { t.Fatalf("restarting handler not called") }
    if m.State() != StateDisconnected { t.Fatalf("state after restart = %s", m.State()) }

    done = async(func() error { return m.Call(context.Background(), message.New("find-feeds")) })
    p2 := svc.accept(t)
    req = p2.recv(t)
    if req.Command != "find-feeds" { t.Fatalf("request on new link: %s", req.Short()) }
    p2.reply(t, req, message.New(dispatch.CmdTaskComplete))
    if err := wait(t, done); err != nil { t.Fatalf("call after reconnect: %v", err) }
    if n := d.n.Load(); n != 2 { t.Fatalf("dials = %d, want 2", n) }
}

func TestCancelledCallDropsLateReplies(t *testing.T) {
    svc := newFakeService(t)
    m := newManager(t, svc.net)

    ctx, cancel := context.WithCancel(context.Background())
    var late int
    done := async(func() error {
        return m.Call(ctx, message.New("find-packages"),
            WithHandlers(&handlers.Messages{FoundPackage: func(*packages.Package) { late++ }}))
    })
    p := svc.accept(t)
    req := p.recv(t)
    cancel()

    err := wait(t, done)
    if !errors.Is(err, ErrOperationCancelled) || !errors.Is(err, context.Canceled) { t.Fatalf("err = %v", err) }
    if m.ActiveCalls() != 0 { t.Fatalf("active calls = %d", m.ActiveCalls()) }

    p.reply(t, req, message.New(dispatch.CmdFoundPackage).Set("canonical-name", "late"))
    p.reply(t, req, message.New(dispatch.CmdTaskComplete))

    // A later call on the same link proves the read loop moved past them.
    done = async(func() error { return m.Call(context.Background(), message.New("find-feeds")) })
    req2 := p.recv(t)
    p.reply(t, req2, message.New(dispatch.CmdTaskComplete))
    if err := wait(t, done); err != nil { t.Fatalf("follow-up call: %v", err) }
    if late != 0 { t.Fatalf("late reply reached a handler") }
    if !m.IsConnected() { t.Fatalf("late replies broke the link") }
}

func TestOperationCancelledByService(t *testing.T) {
    svc := newFakeService(t)
    m := newManager(t, svc.net)

    done := async(func() error { return m.RemovePackage(context.Background(), "zlib", true) })
    p := svc.accept(t)
    req := p.recv(t)
    if req.Command != CmdRemovePackage || !req.Bool("force", false) { t.Fatalf("request: %s", req.Short()) }
    p.reply(t, req, message.New(dispatch.CmdOperationCancelled).Set("message", "user aborted"))

    err := wait(t, done)
    var ce *CancelledError
    if !errors.As(err, &ce) || ce.Reason != "user aborted" || ce.Restarting { t.Fatalf("err = %v", err) }
    if !m.IsConnected() { t.Fatalf("service cancel dropped the link") }
}

func TestHandlerPanicPropagates(t *testing.T) {
    svc := newFakeService(t)
    m := newManager(t, svc.net)

    done := make(chan any, 1)
    go func() {
        defer func() { done <- recover() }()
        _ = m.Call(context.Background(), message.New("find-packages"),
            WithHandlers(&handlers.Messages{FoundPackage: func(*packages.Package) { panic("handler bug") }}))
    }()
    p := svc.accept(t)
    req := p.recv(t)
    p.reply(t, req, message.New(dispatch.CmdFoundPackage).Set("canonical-name", "x"))

    select {
    case r := <-done:
        if r != "handler bug" { t.Fatalf("recovered %v", r) }
    case <-time.After(3 * time.Second):
        t.Fatalf("panic did not reach the caller")
    }
    if m.ActiveCalls() != 0 { t.Fatalf("panicking call left %d calls", m.ActiveCalls()) }
}

func TestScopeHandlersReachNestedCalls(t *testing.T) {
    svc := newFakeService(t)
    m := newManager(t, svc.net)

    var installed []string
    ctx, end := m.Scope(context.Background(), &handlers.Messages{InstalledPackage: func(n string) { installed = append(installed, n) }})
    if m.ActiveCalls() != 1 { t.Fatalf("scope not registered") }

    done := async(func() error { return m.InstallPackage(ctx, "zlib", InstallOptions{Force: Bool(true)}) })
    p := svc.accept(t)
    req := p.recv(t)
    if req.String("force") != "true" || req.Has("pretend") { t.Fatalf("request: %s", req.Short()) }
    p.reply(t, req, message.New(dispatch.CmdInstalledPackage).Set("canonical-name", "zlib"))
    p.reply(t, req, message.New(dispatch.CmdTaskComplete))
    if err := wait(t, done); err != nil { t.Fatalf("install: %v", err) }
    if len(installed) != 1 || installed[0] != "zlib" { t.Fatalf("installed = %v", installed) }

    end()
    if m.ActiveCalls() != 0 { t.Fatalf("scope still active") }
    err := m.InstallPackage(ctx, "zlib", InstallOptions{})
    if !errors.Is(err, ErrOperationCancelled) { t.Fatalf("call in ended scope: %v", err) }
}

func TestCloseFailsLaterCalls(t *testing.T) {
    svc := newFakeService(t)
    m := newManager(t, svc.net)
    _ = m.Close()
    if err := m.Call(context.Background(), message.New("find-feeds")); !errors.Is(err, ErrClosed) {
        t.Fatalf("err = %v", err)
    }
}

func TestWithCancelSignal(t *testing.T) {
    svc := newFakeService(t)
    m := newManager(t, svc.net)

    abort := errors.New("user pressed escape")
    sig, cancel := context.WithCancelCause(context.Background())
    done := async(func() error { return m.Call(context.Background(), message.New("find-packages"), WithCancel(sig)) })
    p := svc.accept(t)
    p.recv(t)
    cancel(abort)

    err := wait(t, done)
    if !errors.Is(err, ErrOperationCancelled) || !errors.Is(err, abort) { t.Fatalf("err = %v", err) }
}

// slowFailingManager keeps retrying a dialer that never succeeds for far
// longer than any test waits.
func slowFailingManager(t *testing.T) *Manager {
    t.Helper()
    m, err := New(Options{
        Dialer:  &countingDialer{Dialer: mem.New(), err: errors.New("pipe busy")},
        Address: svcAddr,
        Retry:   netstack.RetryOptions{Attempts: 1000, Delay: 10 * time.Millisecond},
    })
    if err != nil { t.Fatalf("new manager: %v", err) }
    t.Cleanup(func() { _ = m.Close() })
    return m
}

func TestWithCancelStopsWaitingForConnect(t *testing.T) {
    m := slowFailingManager(t)
    abort := errors.New("user pressed escape")
    sig, cancel := context.WithCancelCause(context.Background())
    time.AfterFunc(30*time.Millisecond, func() { cancel(abort) })

    start := time.Now()
    err := m.Call(context.Background(), message.New("find-feeds"), WithCancel(sig))
    var ce *CancelledError
    if !errors.As(err, &ce) || !errors.Is(err, abort) { t.Fatalf("err = %v", err) }
    if d := time.Since(start); d > time.Second { t.Fatalf("cancel took %s", d) }
    if m.ActiveCalls() != 0 { t.Fatalf("active calls = %d", m.ActiveCalls()) }
}

func TestContextDeadlineDuringConnectIsCancellation(t *testing.T) {
    m := slowFailingManager(t)
    ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
    defer cancel()

    err := m.Call(ctx, message.New("find-feeds"))
    if !errors.Is(err, ErrOperationCancelled) || !errors.Is(err, context.DeadlineExceeded) { t.Fatalf("err = %v", err) }
    if errors.Is(err, ErrConnectionFailure) { t.Fatalf("cancellation reported as connection failure: %v", err) }
}
