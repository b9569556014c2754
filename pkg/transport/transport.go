package transport

import (
    "context"
    "errors"
)

// Kind identifies a transport implementation.
type Kind int

const (
    KindUnknown Kind = iota
    KindWinPipe
    KindWebSocket
    KindMem
)

func (k Kind) String() string {
    switch k {
    case KindWinPipe:
        return "winpipe"
    case KindWebSocket:
        return "websocket"
    case KindMem:
        return "mem"
    default:
        return "unknown"
    }
}

// MaxMessageSize bounds a single message in either direction.
const MaxMessageSize = 2 << 20

// ErrMessageTooLarge is returned by SendBytes for payloads over MaxMessageSize.
var ErrMessageTooLarge = errors.New("transport: message exceeds size limit")

// Conn is an established link. SendBytes may be called from several
// goroutines; RecvBytes is expected to have a single reader.
type Conn interface {
    // SendBytes writes one message.
    SendBytes([]byte) error
    // RecvBytes blocks until the next whole message arrives.
    RecvBytes() ([]byte, error)
    Close() error
}

// Dialer opens links of one kind. The address format is transport specific.
type Dialer interface {
    Kind() Kind
    Dial(ctx context.Context, address string) (Conn, error)
}

// Listener accepts inbound links; the client only needs it to stand in for
// the service in tests and tools.
type Listener interface {
    Accept(ctx context.Context) (Conn, error)
    Addr() string
    Close() error
}
