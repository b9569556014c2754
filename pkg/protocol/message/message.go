// Package message implements the text wire format spoken between the client
// and the package-manager service.
//
// A message is a command name followed by query-string style fields:
//
//  find-packages?rqid=12&name=zlib&arch=x64
//
// Keys and values are percent-encoded. Collection fields are sent with an
// indexed key suffix (`location[0]=a&location[1]=b`); a plain key repeated
// several times is read back as a collection too.
package message

import (
    "strconv"
    "strings"
)

// Reserved field names.
const (
    FieldRequestID = "rqid"
    FieldClient    = "client"
    FieldSession   = "id"
)

// shortLimit caps values in log renderings of a message.
const shortLimit = 512

// Field is a single named value or collection of values.
type Field struct {
    Key    string
    Values []string
    // List marks a collection field; scalars carry exactly one value.
    List bool
}

// Message is a command plus ordered fields. The zero value is not usable;
// build messages with New or Decode.
type Message struct {
    Command string
    fields  []Field
    index   map[string]int
}

// New returns an empty message for command. Commands are case-insensitive on
// the wire and kept lower-cased.
func New(command string) *Message {
    return &Message{Command: strings.ToLower(strings.TrimSpace(command)), index: make(map[string]int)}
}

func (m *Message) put(f Field) {
    if i, ok := m.index[f.Key]; ok {
        m.fields[i] = f
        return
    }
    m.index[f.Key] = len(m.fields)
    m.fields = append(m.fields, f)
}

// Set stores a scalar field, replacing any previous value.
func (m *Message) Set(key, value string) *Message {
    m.put(Field{Key: key, Values: []string{value}})
    return m
}

// SetIf stores value only when it is non-empty.
func (m *Message) SetIf(key, value string) *Message {
    if value == "" { return m }
    return m.Set(key, value)
}

func (m *Message) SetBool(key string, v bool) *Message { return m.Set(key, strconv.FormatBool(v)) }

// SetBoolPtr stores an optional tri-state flag; nil leaves the field absent.
func (m *Message) SetBoolPtr(key string, v *bool) *Message {
    if v == nil { return m }
    return m.SetBool(key, *v)
}

func (m *Message) SetInt(key string, v int64) *Message { return m.Set(key, strconv.FormatInt(v, 10)) }

// SetList stores a collection field. An empty collection is omitted.
func (m *Message) SetList(key string, values ...string) *Message {
    if len(values) == 0 { return m }
    m.put(Field{Key: key, Values: append([]string(nil), values...), List: true})
    return m
}

// Del removes a field if present.
func (m *Message) Del(key string) {
    i, ok := m.index[key]
    if !ok { return }
    m.fields = append(m.fields[:i], m.fields[i+1:]...)
    delete(m.index, key)
    for j := i; j < len(m.fields); j++ {
        m.index[m.fields[j].Key] = j
    }
}

// Has reports whether key is present.
func (m *Message) Has(key string) bool { _, ok := m.index[key]; return ok }

// Get returns the first value of key.
func (m *Message) Get(key string) (string, bool) {
    i, ok := m.index[key]
    if !ok || len(m.fields[i].Values) == 0 { return "", false }
    return m.fields[i].Values[0], true
}

// String returns the value of key or "".
func (m *Message) String(key string) string { v, _ := m.Get(key); return v }

// Int returns key as an integer, or def when absent or malformed.
func (m *Message) Int(key string, def int) int {
    v, ok := m.Get(key)
    if !ok { return def }
    n, err := strconv.Atoi(strings.TrimSpace(v))
    if err != nil { return def }
    return n
}

// Int64 returns key as a 64-bit integer, or def.
func (m *Message) Int64(key string, def int64) int64 {
    v, ok := m.Get(key)
    if !ok { return def }
    n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
    if err != nil { return def }
    return n
}

// Bool returns key as a boolean, or def. Only "true" and "false" are
// recognised, case-insensitively.
func (m *Message) Bool(key string, def bool) bool {
    v, ok := m.Get(key)
    if !ok { return def }
    switch strings.ToLower(strings.TrimSpace(v)) {
    case "true":
        return true
    case "false":
        return false
    }
    return def
}

// List returns all values of key in order. Scalars yield a single element.
func (m *Message) List(key string) []string {
    i, ok := m.index[key]
    if !ok { return nil }
    return append([]string(nil), m.fields[i].Values...)
}

// Pairs collects fields of the form prefix[name]=value into a map.
func (m *Message) Pairs(prefix string) map[string]string {
    out := map[string]string{}
    lead := prefix + "["
    for _, f := range m.fields {
        if f.List || !strings.HasPrefix(f.Key, lead) || !strings.HasSuffix(f.Key, "]") { continue }
        name := f.Key[len(lead) : len(f.Key)-1]
        if name == "" || len(f.Values) == 0 { continue }
        out[name] = f.Values[0]
    }
    return out
}

// RequestID returns the correlation id and whether it is present and numeric.
func (m *Message) RequestID() (int64, bool) {
    v, ok := m.Get(FieldRequestID)
    if !ok { return 0, false }
    n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
    if err != nil { return 0, false }
    return n, true
}

// Fields returns a copy of the fields in insertion order.
func (m *Message) Fields() []Field {
    out := make([]Field, len(m.fields))
    for i, f := range m.fields {
        out[i] = Field{Key: f.Key, Values: append([]string(nil), f.Values...), List: f.List}
    }
    return out
}

// Len is the number of fields.
func (m *Message) Len() int { return len(m.fields) }

// Clone returns a deep copy.
func (m *Message) Clone() *Message {
    c := New(m.Command)
    for _, f := range m.Fields() {
        c.put(f)
    }
    return c
}

// Equal reports whether a and b carry the same command and fields in the
// same order.
func Equal(a, b *Message) bool {
    if a == nil || b == nil { return a == b }
    if a.Command != b.Command || len(a.fields) != len(b.fields) { return false }
    for i := range a.fields {
        fa, fb := a.fields[i], b.fields[i]
        if fa.Key != fb.Key || fa.List != fb.List || len(fa.Values) != len(fb.Values) { return false }
        for j := range fa.Values {
            if fa.Values[j] != fb.Values[j] { return false }
        }
    }
    return true
}

// Short renders the message for logs with long values truncated.
func (m *Message) Short() string {
    var sb strings.Builder
    sb.WriteString(m.Command)
    for i, f := range m.fields {
        if i == 0 { sb.WriteByte('?') } else { sb.WriteByte('&') }
        sb.WriteString(f.Key)
        sb.WriteByte('=')
        v := strings.Join(f.Values, ",")
        if len(v) > shortLimit { v = v[:shortLimit] + "..." }
        sb.WriteString(v)
    }
    return sb.String()
}
