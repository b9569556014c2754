//go:build windows

// Package winpipe connects to the service's named pipe. The pipe is created
// by the service in message mode; the client switches its handle to message
// read mode so every read returns exactly one message.
package winpipe

import (
    "context"
    "errors"
    "fmt"
    "net"
    "sync"

    "github.com/Microsoft/go-winio"
    "golang.org/x/sys/windows"

    "coapp/pkg/transport"
)

// DefaultAddress is the pipe the package-manager service listens on.
const DefaultAddress = `\\.\pipe\CoAppInstaller`

type Dialer struct{}

func New() *Dialer { return &Dialer{} }

func (d *Dialer) Kind() transport.Kind { return transport.KindWinPipe }

// Dial opens the named pipe. ctx bounds a single attempt; retries belong to
// the caller.
func (d *Dialer) Dial(ctx context.Context, pipeName string) (transport.Conn, error) {
    if pipeName == "" { pipeName = DefaultAddress }
    c, err := winio.DialPipeContext(ctx, pipeName)
    if err != nil { return nil, err }
    if err := setMessageReadMode(c); err != nil {
        _ = c.Close()
        return nil, fmt.Errorf("winpipe %s: %w", pipeName, err)
    }
    return &conn{c: c}, nil
}

func setMessageReadMode(c net.Conn) error {
    f, ok := c.(interface{ Fd() uintptr })
    if !ok { return errors.New("pipe handle not available") }
    mode := uint32(windows.PIPE_READMODE_MESSAGE)
    return windows.SetNamedPipeHandleState(windows.Handle(f.Fd()), &mode, nil, nil)
}

// Listen creates a message-mode pipe server. The client does not need it;
// tools use it to stand in for the service.
func Listen(pipeName string) (transport.Listener, error) {
    l, err := winio.ListenPipe(pipeName, &winio.PipeConfig{
        MessageMode:      true,
        InputBufferSize:  transport.MaxMessageSize,
        OutputBufferSize: transport.MaxMessageSize,
    })
    if err != nil { return nil, err }
    return &listener{l: l}, nil
}

type listener struct{ l net.Listener }

func (l *listener) Addr() string { return l.l.Addr().String() }
func (l *listener) Close() error { return l.l.Close() }

func (l *listener) Accept(ctx context.Context) (transport.Conn, error) {
    type res struct {
        c   net.Conn
        err error
    }
    ch := make(chan res, 1)
    go func() { c, err := l.l.Accept(); ch <- res{c, err} }()
    select {
    case <-ctx.Done():
        go func() { if r := <-ch; r.c != nil { _ = r.c.Close() } }()
        return nil, ctx.Err()
    case r := <-ch:
        if r.err != nil { return nil, r.err }
        return &conn{c: r.c}, nil
    }
}

type conn struct {
    wmu sync.Mutex
    c   net.Conn
    buf []byte
}

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
