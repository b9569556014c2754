// Package ws carries the service protocol over WebSocket text frames, for
// services exposed on the network instead of a local pipe.
package ws

import (
    "context"
    "fmt"
    "net/url"
    "strings"
    "sync"
    "time"

    "github.com/gorilla/websocket"
    "go.uber.org/zap"

    "coapp/pkg/transport"
)

// DefaultService is the mDNS service type looked up for "mdns:" addresses.
const DefaultService = "_coapp._tcp"

// Dialer opens WebSocket links. An address of the form "mdns:" or
// "mdns:<service>" is resolved with multicast DNS first.
type Dialer struct {
    HandshakeTimeout time.Duration
    DiscoveryTimeout time.Duration
}

func (d *Dialer) Kind() transport.Kind { return transport.KindWebSocket }

func (d *Dialer) Dial(ctx context.Context, address string) (transport.Conn, error) {
    target, err := d.resolve(ctx, address)
    if err != nil { return nil, err }
    wd := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout, ReadBufferSize: 64 << 10, WriteBufferSize: 64 << 10}
    if wd.HandshakeTimeout <= 0 { wd.HandshakeTimeout = 10 * time.Second }
    c, _, err := wd.DialContext(ctx, target, nil)
    if err != nil { return nil, fmt.Errorf("websocket dial %s: %w", target, err) }
    return Wrap(c), nil
}

func (d *Dialer) resolve(ctx context.Context, address string) (string, error) {
    if address == "" || strings.HasPrefix(address, "mdns:") {
        svc := strings.TrimPrefix(address, "mdns:")
        if svc == "" { svc = DefaultService }
        found, err := Discover(ctx, svc, d.DiscoveryTimeout)
        if err != nil { return "", err }
        address = found.URL()
    }
    if !strings.Contains(address, "://") { address = "ws://" + address }
    u, err := url.Parse(address)
    if err != nil { return "", fmt.Errorf("invalid websocket address %q: %w", address, err) }
    switch u.Scheme {
    case "ws", "wss":
    case "http":
        u.Scheme = "ws"
    case "https":
        u.Scheme = "wss"
    default:
        return "", fmt.Errorf("unsupported websocket scheme %q", u.Scheme)
    }
    if u.Path == "" { u.Path = "/" }
    return u.String(), nil
}

// Conn adapts a websocket connection to transport.Conn.
type Conn struct {
    wmu sync.Mutex
    c   *websocket.Conn
}

// Wrap adopts an established websocket connection, e.g. one accepted by an
// http handler through websocket.Upgrader.
func Wrap(c *websocket.Conn) *Conn {
    c.SetReadLimit(transport.MaxMessageSize)
    return &Conn{c: c}
}

func (c *Conn) SendBytes(b []byte) error {
    if len(b) > transport.MaxMessageSize { return transport.ErrMessageTooLarge }
    c.wmu.Lock(); defer c.wmu.Unlock()
    return c.c.WriteMessage(websocket.TextMessage, b)
}

func (c *Conn) RecvBytes() ([]byte, error) {
    for {
        kind, b, err := c.c.ReadMessage()
        if err != nil {
            if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
                zap.L().Debug("websocket closed unexpectedly", zap.Error(err))
            }
            return nil, err
        }
        if kind == websocket.TextMessage || kind == websocket.BinaryMessage { return b, nil }
    }
}

func (c *Conn) Close() error {
    c.wmu.Lock()
    _ = c.c.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
    c.wmu.Unlock()
    return c.c.Close()
}
