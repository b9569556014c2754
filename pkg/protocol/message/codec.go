package message

import (
    "fmt"
    "net/url"
    "sort"
    "strconv"
    "strings"
)

// ProtocolError reports a message that could not be parsed.
type ProtocolError struct {
    Reason string
    Raw    string
}

func (e *ProtocolError) Error() string {
    raw := e.Raw
    if len(raw) > 64 { raw = raw[:64] + "..." }
    return fmt.Sprintf("protocol error: %s (%q)", e.Reason, raw)
}

// Encode renders m in wire form. Keys ending in an index suffix such as
// `name[3]` are reserved for collection elements.
func Encode(m *Message) []byte {
    var sb strings.Builder
    sb.WriteString(url.QueryEscape(m.Command))
    sep := byte('?')
    for _, f := range m.fields {
        if !f.List {
            if len(f.Values) == 0 { continue }
            sb.WriteByte(sep); sep = '&'
            sb.WriteString(url.QueryEscape(f.Key))
            sb.WriteByte('=')
            sb.WriteString(url.QueryEscape(f.Values[0]))
            continue
        }
        for i, v := range f.Values {
            sb.WriteByte(sep); sep = '&'
            sb.WriteString(url.QueryEscape(f.Key + "[" + strconv.Itoa(i) + "]"))
            sb.WriteByte('=')
            sb.WriteString(url.QueryEscape(v))
        }
    }
    return []byte(sb.String())
}

type pending struct {
    plain   []string
    indexed map[int]string
}

// Decode parses one wire message. Unknown fields are kept; consumers ignore
// what they do not read.
func Decode(b []byte) (*Message, error) {
    raw := strings.TrimRight(string(b), "\x00\r\n ")
    head, query := raw, ""
    if i := strings.IndexAny(raw, "?&"); i >= 0 {
        head, query = raw[:i], raw[i+1:]
    }
    cmd, err := url.QueryUnescape(head)
    if err != nil { return nil, &ProtocolError{Reason: "bad command encoding", Raw: raw} }
    cmd = strings.ToLower(strings.TrimSpace(cmd))
    if cmd == "" { return nil, &ProtocolError{Reason: "missing command", Raw: raw} }

    var order []string
    acc := map[string]*pending{}
    for _, seg := range strings.Split(query, "&") {
        if seg == "" { continue }
        eq := strings.IndexByte(seg, '=')
        if eq < 0 { return nil, &ProtocolError{Reason: "field without '='", Raw: raw} }
        key, err := url.QueryUnescape(seg[:eq])
        if err != nil || key == "" { return nil, &ProtocolError{Reason: "bad field name", Raw: raw} }
        val, err := url.QueryUnescape(seg[eq+1:])
        if err != nil { return nil, &ProtocolError{Reason: "bad value encoding for " + key, Raw: raw} }

        base, idx, isIndexed := splitIndex(key)
        p, ok := acc[base]
        if !ok {
            p = &pending{}
            acc[base] = p
            order = append(order, base)
        }
        if isIndexed {
            if p.indexed == nil { p.indexed = map[int]string{} }
            p.indexed[idx] = val
        } else {
            p.plain = append(p.plain, val)
        }
    }

    m := New(cmd)
    for _, k := range order {
        p := acc[k]
        if p.indexed == nil && len(p.plain) == 1 {
            m.Set(k, p.plain[0])
            continue
        }
        idx := make([]int, 0, len(p.indexed))
        for i := range p.indexed { idx = append(idx, i) }
        sort.Ints(idx)
        vals := make([]string, 0, len(idx)+len(p.plain))
        for _, i := range idx { vals = append(vals, p.indexed[i]) }
        vals = append(vals, p.plain...)
        m.put(Field{Key: k, Values: vals, List: true})
    }
    return m, nil
}

// splitIndex recognises `name[n]` keys.
func splitIndex(key string) (string, int, bool) {
    if !strings.HasSuffix(key, "]") { return key, 0, false }
    open := strings.LastIndexByte(key, '[')
    if open <= 0 { return key, 0, false }
    digits := key[open+1 : len(key)-1]
    if digits == "" || strings.TrimLeft(digits, "0123456789") != "" { return key, 0, false }
    n, err := strconv.Atoi(digits)
    if err != nil { return key, 0, false }
    return key[:open], n, true
}
