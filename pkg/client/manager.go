// Package client is the connection manager for the package-manager service.
// A single Manager multiplexes any number of concurrent calls over one
// transport link: each call gets its own queue keyed by its request id, and
// one background read loop routes replies to those queues.
package client

import (
    "context"
    "errors"
    "sync"

    "github.com/google/uuid"
    "go.uber.org/zap"
    "golang.org/x/sync/singleflight"

    "coapp/pkg/core/netstack"
    "coapp/pkg/dispatch"
    "coapp/pkg/memkv"
    "coapp/pkg/packages"
    "coapp/pkg/protocol/message"
    "coapp/pkg/tasks"
    "coapp/pkg/transport"
)

// State of the service link.
type State int32

const (
    StateDisconnected State = iota
    StateConnecting
    StateConnected
)

func (s State) String() string {
    switch s {
    case StateConnecting:
        return "connecting"
    case StateConnected:
        return "connected"
    default:
        return "disconnected"
    }
}

// Options configure a Manager.
type Options struct {
    Dialer  transport.Dialer
    Address string
    // ClientName and SessionID are announced in the handshake. An empty
    // SessionID gets a fresh random id on every connect.
    ClientName string
    SessionID  string
    Retry      netstack.RetryOptions
    // Registry and Cache may be shared between managers; nil creates private ones.
    Registry *tasks.Registry
    Cache    *packages.Cache
}

// Manager owns the service link. It is safe for concurrent use.
type Manager struct {
    opts      Options
    reg       *tasks.Registry
    cache     *packages.Cache
    ownsCache bool
    table     *dispatch.Table
    flight    singleflight.Group

    base context.Context
    stop context.CancelFunc

    mu      sync.Mutex
    state   State
    conn    transport.Conn
    session string
    closed  bool

    writeMu sync.Mutex
}

// New builds a disconnected manager. The first call connects.
func New(opts Options) (*Manager, error) {
    if opts.Dialer == nil { return nil, errors.New("client: no dialer") }
    if opts.ClientName == "" { opts.ClientName = "pmctl" }
    m := &Manager{opts: opts, reg: opts.Registry, cache: opts.Cache}
    if m.reg == nil { m.reg = tasks.NewRegistry() }
    if m.cache == nil {
        c, err := packages.NewCache(packages.CacheOptions{})
        if err != nil { return nil, err }
        m.cache, m.ownsCache = c, true
    }
    m.table = dispatch.New(m.cache, m)
    m.base, m.stop = context.WithCancel(context.Background())
    return m, nil
}

// State reports the link state.
func (m *Manager) State() State {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.state
}

func (m *Manager) IsConnected() bool { return m.State() == StateConnected }

// Session returns the id announced on the current link.
func (m *Manager) Session() string {
    m.mu.Lock()
    defer m.mu.Unlock()
    return m.session
}

// ActiveCalls counts calls and scopes still in flight.
func (m *Manager) ActiveCalls() int { return m.reg.Len() }

// Package returns what the service has reported about a package so far.
func (m *Manager) Package(canonicalName string) (*packages.Package, bool) { return m.cache.Get(canonicalName) }

// CacheStats reports the counters of the package record cache.
func (m *Manager) CacheStats() memkv.Stats { return m.cache.Stats() }

// Connect ensures the link is up. Concurrent callers share one attempt; a
// caller whose ctx ends stops waiting but the attempt carries on for the
// others. A failed attempt returns a *ConnectionError to every waiter.
func (m *Manager) Connect(ctx context.Context) error {
    m.mu.Lock()
    state, closed := m.state, m.closed
    m.mu.Unlock()
    if closed { return ErrClosed }
    if state == StateConnected { return nil }

    ch := m.flight.DoChan("connect", func() (any, error) { return nil, m.connect() })
    select {
    case <-ctx.Done():
        return context.Cause(ctx)
    case r := <-ch:
        return r.Err
    }
}

func (m *Manager) connect() error {
    m.mu.Lock()
    if m.state == StateConnected {
        m.mu.Unlock()
        return nil
    }
    m.state = StateConnecting
    m.mu.Unlock()

    fail := func(err error) error {
        m.mu.Lock()
        m.state = StateDisconnected
        m.mu.Unlock()
        return &ConnectionError{Address: m.opts.Address, Err: err}
    }

    c, err := netstack.DialWithRetry(m.base, m.opts.Dialer, m.opts.Address, m.opts.Retry)
    if err != nil { return fail(err) }

    session := m.opts.SessionID
    if session == "" { session = uuid.NewString() }
    // The handshake goes out before the link is published, so it is always
    // the first message written.
    if err := netstack.SendHello(c, m.opts.ClientName, session); err != nil {
        _ = c.Close()
        return fail(err)
    }

    m.mu.Lock()
    if m.closed {
        m.mu.Unlock()
        _ = c.Close()
        return fail(ErrClosed)
    }
    m.conn, m.session, m.state = c, session, StateConnected
    m.mu.Unlock()

    zap.L().Info("connected to package service", zap.String("kind", m.opts.Dialer.Kind().String()), zap.String("addr", m.opts.Address), zap.String("session", session))
    go m.readLoop(c)
    return nil
}

// Disconnect drops the link. Calls waiting for replies are not woken; they
// end through their own context. It is safe to call at any time. A connect
// attempt already in flight is not stopped and may publish a fresh link
// right after Disconnect returns.
func (m *Manager) Disconnect() {
    m.mu.Lock()
    c := m.conn
    m.conn = nil
    if m.state == StateConnected { m.state = StateDisconnected }
    m.mu.Unlock()
    if c != nil {
        zap.L().Info("disconnected from package service", zap.String("addr", m.opts.Address))
        _ = c.Close()
    }
}

// drop disconnects only if c is still the current link.
func (m *Manager) drop(c transport.Conn) {
    m.mu.Lock()
    current := m.conn == c
    if current {
        m.conn = nil
        m.state = StateDisconnected
    }
    m.mu.Unlock()
    _ = c.Close()
}

// Close disconnects, stops any connect attempt and fails later calls.
func (m *Manager) Close() error {
    m.mu.Lock()
    if m.closed {
        m.mu.Unlock()
        return nil
    }
    m.closed = true
    m.mu.Unlock()
    m.stop()
    m.Disconnect()
    if m.ownsCache { m.cache.Close() }
    return nil
}

func (m *Manager) readLoop(c transport.Conn) {
    for {
        b, err := c.RecvBytes()
        if err != nil {
            m.mu.Lock()
            current := m.conn == c
            m.mu.Unlock()
            if current { zap.L().Warn("package service link lost", zap.Error(err)) }
            m.drop(c)
            return
        }
        msg, err := message.Decode(b)
        if err != nil {
            zap.L().Warn("dropping malformed message", zap.Error(err))
            continue
        }
        id, ok := msg.RequestID()
        if !ok {
            zap.L().Debug("dropping message without rqid", zap.String("msg", msg.Short()))
            continue
        }
        if !m.reg.Deliver(tasks.ID(id), msg) {
            zap.L().Debug("dropping unmatched response", zap.Int64("rqid", id), zap.String("cmd", msg.Command))
        }
    }
}

func (m *Manager) write(msg *message.Message) error {
    m.mu.Lock()
    c := m.conn
    m.mu.Unlock()
    if c == nil { return ErrNotConnected }
    m.writeMu.Lock()
    err := c.SendBytes(message.Encode(msg))
    m.writeMu.Unlock()
    if err != nil {
        zap.L().Warn("write to package service failed", zap.String("cmd", msg.Command), zap.Error(err))
        m.drop(c)
        return err
    }
    return nil
}
