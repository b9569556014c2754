// Package codec serializes cached records. Every payload carries a one-byte
// format prefix so a reader does not need to know how it was written.
package codec

import (
    "errors"
    "fmt"
    "strings"
)

// Codec marshals values of one encoding.
type Codec interface {
    Format() Format
    Marshal(v any) ([]byte, error)
    Unmarshal(data []byte, v any) error
}

// Format is the payload prefix byte.
type Format uint8

const (
    FormatUnknown Format = iota
    FormatJSON
    FormatCBOR
    FormatProto
)

func (f Format) String() string {
    switch f {
    case FormatJSON:
        return "json"
    case FormatCBOR:
        return "cbor"
    case FormatProto:
        return "proto"
    default:
        return "unknown"
    }
}

// ParseFormat maps a config name to a Format.
func ParseFormat(s string) (Format, error) {
    switch strings.ToLower(strings.TrimSpace(s)) {
    case "json":
        return FormatJSON, nil
    case "", "cbor":
        return FormatCBOR, nil
    case "proto", "protobuf":
        return FormatProto, nil
    }
    return FormatUnknown, fmt.Errorf("unknown codec format: %q", s)
}

var errEmpty = errors.New("codec: empty payload")

// Registry holds one codec per format.
type Registry struct { byFormat map[Format]Codec }

// NewRegistry returns a registry with JSON, CBOR and Protobuf installed.
func NewRegistry() (*Registry, error) {
    r := &Registry{byFormat: make(map[Format]Codec)}
    r.Register(JSON())
    r.Register(Proto())
    c, err := CBOR()
    if err != nil { return nil, err }
    r.Register(c)
    return r, nil
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) { r.byFormat[c.Format()] = c }

// Get returns the codec for f, or nil.
func (r *Registry) Get(f Format) Codec { return r.byFormat[f] }

// Encode marshals v with the codec for f and prefixes the format byte.
func (r *Registry) Encode(f Format, v any) ([]byte, error) {
    c := r.Get(f)
    if c == nil { return nil, fmt.Errorf("codec: format %s not registered", f) }
    b, err := c.Marshal(v)
    if err != nil { return nil, fmt.Errorf("codec %s: %w", f, err) }
    out := make([]byte, 1+len(b))
    out[0] = byte(f)
    copy(out[1:], b)
    return out, nil
}

// Decode reads a payload produced by Encode into v and reports its format.
func (r *Registry) Decode(payload []byte, v any) (Format, error) {
    if len(payload) == 0 { return FormatUnknown, errEmpty }
    f := Format(payload[0])
    c := r.Get(f)
    if c == nil { return f, fmt.Errorf("codec: format %d not registered", payload[0]) }
    if err := c.Unmarshal(payload[1:], v); err != nil { return f, fmt.Errorf("codec %s: %w", f, err) }
    return f, nil
}
