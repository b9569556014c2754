// Package netstack builds transport dialers from configuration and opens the
// service link with a bounded retry budget.
package netstack

import (
    "errors"
    "strings"
    "time"

    "coapp/pkg/transport"
    "coapp/pkg/transport/mem"
    "coapp/pkg/transport/ws"
)

// DialerOptions carry per-kind settings for NewByKind.
type DialerOptions struct {
    HandshakeTimeout time.Duration // websocket
    DiscoveryTimeout time.Duration // websocket mdns lookup
    Mem              *mem.Network  // required for kind "mem"
}

// NewByKind constructs a Dialer by string kind.
func NewByKind(kind string, opts DialerOptions) (transport.Dialer, error) {
    switch strings.ToLower(strings.TrimSpace(kind)) {
    case "", "winpipe", "pipe":
        return newWinPipeDialer()
    case "ws", "websocket":
        return &ws.Dialer{HandshakeTimeout: opts.HandshakeTimeout, DiscoveryTimeout: opts.DiscoveryTimeout}, nil
    case "mem", "inproc":
        if opts.Mem == nil { return nil, errors.New("mem transport requires a network") }
        return opts.Mem, nil
    default:
        return nil, ErrUnknownKind(kind)
    }
}

// ErrUnknownKind reports an unsupported transport kind.
type ErrUnknownKind string

func (e ErrUnknownKind) Error() string { return "unknown transport kind: " + string(e) }
