// Package transport defines the message-oriented duplex link between the
// client and the package-manager service, plus the dialers that open it.
//
// Every implementation preserves message boundaries: one SendBytes on one
// side is returned by exactly one RecvBytes on the other. The wire codec
// therefore adds no framing of its own.
//
// Implementations:
//   - winpipe: Windows named pipe opened in message read mode (go-winio)
//   - ws:      WebSocket text frames (gorilla/websocket), optional mDNS discovery
//   - mem:     in-process pipe, used by tests and embedders
package transport
