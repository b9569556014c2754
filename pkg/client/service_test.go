package client

import (
    "context"
    "sync/atomic"
    "testing"
    "time"

    "coapp/pkg/core/netstack"
    "coapp/pkg/protocol/message"
    "coapp/pkg/transport"
    "coapp/pkg/transport/mem"
)

const svcAddr = "pkgsvc"

// fakeService accepts links on an in-process network and hands each one to
// the test.
type fakeService struct {
    net   *mem.Network
    ln    transport.Listener
    links chan *peer
}

func newFakeService(t *testing.T) *fakeService {
    t.Helper()
    n := mem.New()
    ln, err := n.Listen(svcAddr)
    if err != nil { t.Fatalf("listen: %v", err) }
    s := &fakeService{net: n, ln: ln, links: make(chan *peer, 8)}
    go func() {
        for {
            c, err := ln.Accept(context.Background())
            if err != nil { return }
            s.links <- &peer{c: c}
        }
    }()
    t.Cleanup(func() { _ = ln.Close() })
    return s
}

func (s *fakeService) next(t *testing.T) *peer {
    t.Helper()
    select {
    case p := <-s.links:
        t.Cleanup(func() { _ = p.c.Close() })
        return p
    case <-time.After(2 * time.Second):
        t.Fatalf("no link accepted")
    }
    return nil
}

// accept takes the next link and consumes its handshake.
func (s *fakeService) accept(t *testing.T) *peer {
    t.Helper()
    p := s.next(t)
    if hello := p.recv(t); hello.Command != netstack.CmdStartSession {
        t.Fatalf("first message = %s, want start-session", hello.Short())
    }
    return p
}

type peer struct{ c transport.Conn }

func (p *peer) recv(t *testing.T) *message.Message {
    t.Helper()
    type res struct {
        b   []byte
        err error
    }
    ch := make(chan res, 1)
    go func() { b, err := p.c.RecvBytes(); ch <- res{b, err} }()
    select {
    case r := <-ch:
        if r.err != nil { t.Fatalf("service recv: %v", r.err) }
        m, err := message.Decode(r.b)
        if err != nil { t.Fatalf("service decode: %v", err) }
        return m
    case <-time.After(2 * time.Second):
        t.Fatalf("service recv timed out")
    }
    return nil
}

// reply sends msg tagged with the request id of req.
func (p *peer) reply(t *testing.T, req, msg *message.Message) {
    t.Helper()
    id, ok := req.RequestID()
    if !ok { t.Fatalf("request without rqid: %s", req.Short()) }
    p.send(t, msg.SetInt(message.FieldRequestID, id))
}

func (p *peer) send(t *testing.T, msg *message.Message) {
    t.Helper()
    if err := p.c.SendBytes(message.Encode(msg)); err != nil { t.Fatalf("service send: %v", err) }
}

// countingDialer counts dial attempts.
type countingDialer struct {
    transport.Dialer
    n   atomic.Int32
    err error
}

func (d *countingDialer) Dial(ctx context.Context, addr string) (transport.Conn, error) {
    d.n.Add(1)
    if d.err != nil { return nil, d.err }
    return d.Dialer.Dial(ctx, addr)
}

func newManager(t *testing.T, d transport.Dialer) *Manager {
    t.Helper()
    m, err := New(Options{
        Dialer:     d,
        Address:    svcAddr,
        ClientName: "test-client",
        Retry:      netstack.RetryOptions{Attempts: 2, Delay: 5 * time.Millisecond, AttemptTimeout: time.Second},
    })
    if err != nil { t.Fatalf("new manager: %v", err) }
    t.Cleanup(func() { _ = m.Close() })
    return m
}

// async runs fn and returns a channel with its result.
func async(fn func() error) <-chan error {
    ch := make(chan error, 1)
    go func() { ch <- fn() }()
    return ch
}

func wait(t *testing.T, ch <-chan error) error {
    t.Helper()
    select {
    case err := <-ch:
        return err
    case <-time.After(3 * time.Second):
        t.Fatalf("call did not return")
    }
    return nil
}
