package packages

import (
    "errors"
    "fmt"
    "time"

    "go.uber.org/zap"

    "coapp/pkg/memkv"
    "coapp/pkg/protocol/codec"
    "coapp/pkg/protocol/message"
)

// CacheOptions configure a Cache.
type CacheOptions struct {
    Format   codec.Format  // record encoding, default CBOR
    TTL      time.Duration // 0 keeps records until Close
    MaxBytes uint64        // 0 = unlimited
}

// ErrCacheFull is returned when a record does not fit the size limit.
var ErrCacheFull = errors.New("packages: cache size limit reached")

// Cache keeps one record per canonical name. Records are stored encoded so
// callers always get their own copy.
type Cache struct {
    kv     *memkv.Store
    codecs *codec.Registry
    format codec.Format
    ttl    time.Duration
}

// NewCache builds an empty cache.
func NewCache(opts CacheOptions) (*Cache, error) {
    reg, err := codec.NewRegistry()
    if err != nil { return nil, err }
    f := opts.Format
    if f == codec.FormatUnknown { f = codec.FormatCBOR }
    if reg.Get(f) == nil { return nil, fmt.Errorf("packages: unsupported cache format %s", f) }
    return &Cache{
        kv:     memkv.New(memkv.Options{MaxBytes: opts.MaxBytes}),
        codecs: reg,
        format: f,
        ttl:    opts.TTL,
    }, nil
}

// Close releases the backing store.
func (c *Cache) Close() { c.kv.Close() }

// Get returns a copy of the record for name.
func (c *Cache) Get(name string) (*Package, bool) {
    b, ok := c.kv.Get(name)
    if !ok { return nil, false }
    var p Package
    if _, err := c.codecs.Decode(b, &p); err != nil {
        zap.L().Warn("package cache: corrupt record", zap.String("name", name), zap.Error(err))
        c.kv.Delete(name)
        return nil, false
    }
    return &p, true
}

// Put replaces the record for p.CanonicalName.
func (c *Cache) Put(p *Package) error {
    if p == nil || p.CanonicalName == "" { return errors.New("packages: record without canonical name") }
    b, err := c.codecs.Encode(c.format, p)
    if err != nil { return err }
    if !c.kv.Set(p.CanonicalName, b, c.ttl) { return ErrCacheFull }
    return nil
}

// modify applies fn to the current record for name (a fresh one if none) and
// stores the result.
func (c *Cache) modify(name string, fn func(*Package)) (*Package, error) {
    var out Package
    var ferr error
    ok := c.kv.Update(name, c.ttl, func(old []byte) []byte {
        p := Package{CanonicalName: name}
        if old != nil {
            if _, err := c.codecs.Decode(old, &p); err != nil {
                zap.L().Warn("package cache: dropping corrupt record", zap.String("name", name), zap.Error(err))
                p = Package{CanonicalName: name}
            }
        }
        fn(&p)
        p.CanonicalName = name
        b, err := c.codecs.Encode(c.format, &p)
        if err != nil {
            ferr = err
            return old
        }
        out = p
        return b
    })
    if ferr != nil { return nil, ferr }
    if !ok { return nil, ErrCacheFull }
    return &out, nil
}

// Reference returns the record for name, creating an empty one if needed.
func (c *Cache) Reference(name string) (*Package, error) {
    if p, ok := c.Get(name); ok { return p, nil }
    return c.modify(name, func(*Package) {})
}

// MergeFound folds a found-package notice into the cache.
func (c *Cache) MergeFound(m *message.Message) (*Package, error) {
    name := m.String("canonical-name")
    if name == "" { return nil, errors.New("packages: found-package without canonical-name") }
    return c.modify(name, func(p *Package) { p.applyFound(m) })
}

// MergeDetails folds a package-details notice into the cache.
func (c *Cache) MergeDetails(m *message.Message) (*Package, error) {
    name := m.String("canonical-name")
    if name == "" { return nil, errors.New("packages: package-details without canonical-name") }
    return c.modify(name, func(p *Package) { p.applyDetails(m) })
}

// Names lists cached canonical names in sorted order.
func (c *Cache) Names() []string { return c.kv.Keys() }

// Stats exposes the backing store counters.
func (c *Cache) Stats() memkv.Stats { return c.kv.Metrics() }
