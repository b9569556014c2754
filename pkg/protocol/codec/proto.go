package codec

import (
    "encoding/json"
    "fmt"

    "google.golang.org/protobuf/proto"
    "google.golang.org/protobuf/types/known/structpb"
)

type protoCodec struct {
    mo proto.MarshalOptions
    uo proto.UnmarshalOptions
}

// Proto returns a deterministic Protocol Buffers codec. Values that are not
// proto messages are carried as a google.protobuf.Struct built from their
// JSON form.
func Proto() Codec {
    return protoCodec{
        mo: proto.MarshalOptions{Deterministic: true},
        uo: proto.UnmarshalOptions{DiscardUnknown: true},
    }
}

func (p protoCodec) Format() Format { return FormatProto }

func (p protoCodec) Marshal(v any) ([]byte, error) {
    if msg, ok := v.(proto.Message); ok { return p.mo.Marshal(msg) }
    raw, err := json.Marshal(v)
    if err != nil { return nil, err }
    var fields map[string]any
    if err := json.Unmarshal(raw, &fields); err != nil {
        return nil, fmt.Errorf("protobuf: %T is not an object: %w", v, err)
    }
    s, err := structpb.NewStruct(fields)
    if err != nil { return nil, err }
    return p.mo.Marshal(s)
}

func (p protoCodec) Unmarshal(data []byte, v any) error {
    if msg, ok := v.(proto.Message); ok { return p.uo.Unmarshal(data, msg) }
    var s structpb.Struct
    if err := p.uo.Unmarshal(data, &s); err != nil { return err }
    raw, err := json.Marshal(s.AsMap())
    if err != nil { return err }
    return json.Unmarshal(raw, v)
}
