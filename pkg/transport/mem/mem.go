// Package mem is an in-process transport over net.Pipe. A pipe write is
// handed to a single read, so message boundaries hold as long as messages
// stay under transport.MaxMessageSize.
package mem

import (
    "context"
    "errors"
    "net"
    "sync"

    "coapp/pkg/transport"
)

var (
    ErrNoListener = errors.New("mem: no such listener")
    ErrClosed     = errors.New("mem: listener closed")
)

// Network is a namespace of in-process listeners. It also acts as the
// transport.Dialer for those listeners.
type Network struct {
    mu        sync.Mutex
    listeners map[string]*listener
}

func New() *Network { return &Network{listeners: make(map[string]*listener)} }

func (n *Network) Kind() transport.Kind { return transport.KindMem }

// Listen registers name. Only one listener may hold a name at a time.
func (n *Network) Listen(name string) (transport.Listener, error) {
    n.mu.Lock(); defer n.mu.Unlock()
    if _, ok := n.listeners[name]; ok { return nil, errors.New("mem: listener already exists: " + name) }
    l := &listener{net: n, name: name, newCh: make(chan *conn), closeCh: make(chan struct{})}
    n.listeners[name] = l
    return l, nil
}

// Dial connects to the listener registered under name. It waits for the
// listener to accept or for ctx to end.
func (n *Network) Dial(ctx context.Context, name string) (transport.Conn, error) {
    n.mu.Lock(); l := n.listeners[name]; n.mu.Unlock()
    if l == nil { return nil, ErrNoListener }
    c1, c2 := net.Pipe()
    srv, cli := newConn(c1), newConn(c2)
    select {
    case l.newCh <- srv:
        return cli, nil
    case <-l.closeCh:
        _ = c1.Close(); _ = c2.Close()
        return nil, ErrClosed
    case <-ctx.Done():
        _ = c1.Close(); _ = c2.Close()
        return nil, ctx.Err()
    }
}

type listener struct {
    net     *Network
    name    string
    newCh   chan *conn
    closeCh chan struct{}
    once    sync.Once
}

func (l *listener) Addr() string { return l.name }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
    select {
    case <-ctx.Done():
        return nil, ctx.Err()
    case <-l.closeCh:
        return nil, ErrClosed
    case c := <-l.newCh:
        return c, nil
    }
}

func (l *listener) Close() error {
    l.once.Do(func() {
        close(l.closeCh)
        l.net.mu.Lock()
        if l.net.listeners[l.name] == l { delete(l.net.listeners, l.name) }
        l.net.mu.Unlock()
    })
    return nil
}

type conn struct {
    wmu sync.Mutex
    c   net.Conn
    buf []byte
}

func newConn(c net.Conn) *conn { return &conn{c: c} }

func (c *conn) SendBytes(b []byte) error {
    if len(b) > transport.MaxMessageSize { return transport.ErrMessageTooLarge }
    c.wmu.Lock(); defer c.wmu.Unlock()
    _, err := c.c.Write(b)
    return err
}

func (c *conn) RecvBytes() ([]byte, error) {
    if c.buf == nil { c.buf = make([]byte, transport.MaxMessageSize) }
    n, err := c.c.Read(c.buf)
    if err != nil { return nil, err }
    return append([]byte(nil), c.buf[:n]...), nil
}

func (c *conn) Close() error { return c.c.Close() }
