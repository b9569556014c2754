// Package memkv is a sharded in-memory byte store with per-key TTL, an
// optional total size limit and lock-free counters.
package memkv

import (
    "sort"
    "sync"
    "sync/atomic"
    "time"
)

// Options tune a Store.
type Options struct {
    Shards        int           // number of shards (default 64)
    MaxBytes      uint64        // cap on total value bytes (0 = unlimited)
    SweepInterval time.Duration // how often expired keys are purged (default 1m, <0 disables)
}

func (o Options) withDefaults() Options {
    if o.Shards <= 0 { o.Shards = 64 }
    if o.SweepInterval == 0 { o.SweepInterval = time.Minute }
    return o
}

// Store is safe for concurrent use. Values are copied on the way in and out.
type Store struct {
    opts    Options
    shards  []shard
    closeCh chan struct{}
    once    sync.Once
    wg      sync.WaitGroup
    nowFn   func() time.Time

    mKeys    atomic.Int64
    mBytes   atomic.Uint64
    mSets    atomic.Uint64
    mHits    atomic.Uint64
    mMisses  atomic.Uint64
    mDels    atomic.Uint64
    mExpired atomic.Uint64
    mUpdates atomic.Uint64
    mRejects atomic.Uint64
}

type shard struct {
    mu sync.RWMutex
    m  map[string]*entry
}

type entry struct {
    val      []byte
    expireAt int64 // unix nanos, 0 = never
}

func (e *entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

// New starts a store and its sweeper goroutine. Call Close to stop it.
func New(opts Options) *Store {
    opts = opts.withDefaults()
    s := &Store{opts: opts, shards: make([]shard, opts.Shards), closeCh: make(chan struct{}), nowFn: time.Now}
    for i := range s.shards {
        s.shards[i].m = make(map[string]*entry)
    }
    if opts.SweepInterval > 0 {
        s.wg.Add(1)
        go s.sweeper(opts.SweepInterval)
    }
    return s
}

// Close stops the sweeper. It is safe to call more than once.
func (s *Store) Close() {
    s.once.Do(func() { close(s.closeCh) })
    s.wg.Wait()
}

// fnv-1a
func (s *Store) shardFor(key string) *shard {
    var h uint64 = 1469598103934665603
    for i := 0; i < len(key); i++ {
        h ^= uint64(key[i])
        h *= 1099511628211
    }
    return &s.shards[h%uint64(len(s.shards))]
}

func clone(b []byte) []byte { return append([]byte(nil), b...) }

func (s *Store) reserve(delta int) bool {
    if delta <= 0 {
        s.release(-delta)
        return true
    }
    for {
        cur := s.mBytes.Load()
        next := cur + uint64(delta)
        if s.opts.MaxBytes != 0 && next > s.opts.MaxBytes { return false }
        if s.mBytes.CompareAndSwap(cur, next) { return true }
    }
}

func (s *Store) release(n int) {
    if n <= 0 { return }
    for {
        cur := s.mBytes.Load()
        next := uint64(0)
        if uint64(n) < cur { next = cur - uint64(n) }
        if s.mBytes.CompareAndSwap(cur, next) { return }
    }
}

// removeLocked drops key from sh; the caller holds sh.mu.
func (s *Store) removeLocked(sh *shard, key string, e *entry) {
    delete(sh.m, key)
    s.mKeys.Add(-1)
    s.release(len(e.val))
}

// Set stores val under key. ttl <= 0 means no expiry. It returns false when
// the size limit would be exceeded; the previous value is then kept.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
    var exp int64
    if ttl > 0 { exp = s.nowFn().Add(ttl).UnixNano() }
    v := clone(val)
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    prev, existed := sh.m[key]
    old := 0
    if existed { old = len(prev.val) }
    if !s.reserve(len(v) - old) {
        s.mRejects.Add(1)
        return false
    }
    sh.m[key] = &entry{val: v, expireAt: exp}
    if !existed { s.mKeys.Add(1) }
    s.mSets.Add(1)
    return true
}

// Get returns a copy of the value for key.
func (s *Store) Get(key string) ([]byte, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    if ok && !e.expired(s.nowFn().UnixNano()) {
        out := clone(e.val)
        sh.mu.RUnlock()
        s.mHits.Add(1)
        return out, true
    }
    sh.mu.RUnlock()
    if ok { s.expireKey(sh, key) }
    s.mMisses.Add(1)
    return nil, false
}

func (s *Store) expireKey(sh *shard, key string) {
    sh.mu.Lock()
    if e, ok := sh.m[key]; ok && e.expired(s.nowFn().UnixNano()) {
        s.removeLocked(sh, key, e)
        s.mExpired.Add(1)
    }
    sh.mu.Unlock()
}

// Update replaces the value of key with fn(old) under the shard lock. When
// the key is missing fn receives nil and the result is stored with ttl.
// An existing key keeps its expiry. fn returning nil deletes the key.
func (s *Store) Update(key string, ttl time.Duration, fn func(old []byte) []byte) bool {
    sh := s.shardFor(key)
    now := s.nowFn()
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if ok && e.expired(now.UnixNano()) {
        s.removeLocked(sh, key, e)
        s.mExpired.Add(1)
        e, ok = nil, false
    }
    var old []byte
    if ok { old = clone(e.val) }
    next := fn(old)
    if next == nil {
        if ok {
            s.removeLocked(sh, key, e)
            s.mDels.Add(1)
        }
        return ok
    }
    if !s.reserve(len(next) - len(old)) {
        s.mRejects.Add(1)
        return false
    }
    if ok {
        e.val = clone(next)
    } else {
        var exp int64
        if ttl > 0 { exp = now.Add(ttl).UnixNano() }
        sh.m[key] = &entry{val: clone(next), expireAt: exp}
        s.mKeys.Add(1)
    }
    s.mUpdates.Add(1)
    return true
}

// Delete removes key and reports whether it was present.
func (s *Store) Delete(key string) bool {
    sh := s.shardFor(key)
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok { return false }
    s.removeLocked(sh, key, e)
    s.mDels.Add(1)
    return true
}

// Expire sets a new ttl on key; ttl <= 0 deletes it.
func (s *Store) Expire(key string, ttl time.Duration) bool {
    if ttl <= 0 { return s.Delete(key) }
    sh := s.shardFor(key)
    now := s.nowFn()
    sh.mu.Lock()
    defer sh.mu.Unlock()
    e, ok := sh.m[key]
    if !ok { return false }
    if e.expired(now.UnixNano()) {
        s.removeLocked(sh, key, e)
        s.mExpired.Add(1)
        return false
    }
    e.expireAt = now.Add(ttl).UnixNano()
    return true
}

// TTL returns the remaining lifetime of key; 0 with ok=true means no expiry.
func (s *Store) TTL(key string) (time.Duration, bool) {
    sh := s.shardFor(key)
    sh.mu.RLock()
    e, ok := sh.m[key]
    var exp int64
    if ok { exp = e.expireAt }
    sh.mu.RUnlock()
    if !ok { return 0, false }
    if exp == 0 { return 0, true }
    left := exp - s.nowFn().UnixNano()
    if left <= 0 {
        s.expireKey(sh, key)
        return 0, false
    }
    return time.Duration(left), true
}

// Keys returns the live keys in sorted order.
func (s *Store) Keys() []string {
    now := s.nowFn().UnixNano()
    var out []string
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.RLock()
        for k, e := range sh.m {
            if !e.expired(now) { out = append(out, k) }
        }
        sh.mu.RUnlock()
    }
    sort.Strings(out)
    return out
}

// Sweep purges expired keys now and returns how many were removed.
func (s *Store) Sweep() int {
    now := s.nowFn().UnixNano()
    n := 0
    for i := range s.shards {
        sh := &s.shards[i]
        sh.mu.Lock()
        for k, e := range sh.m {
            if e.expired(now) {
                s.removeLocked(sh, k, e)
                n++
            }
        }
        sh.mu.Unlock()
    }
    s.mExpired.Add(uint64(n))
    return n
}

func (s *Store) sweeper(every time.Duration) {
    defer s.wg.Done()
    t := time.NewTicker(every)
    defer t.Stop()
    for {
        select {
        case <-s.closeCh:
            return
        case <-t.C:
            s.Sweep()
        }
    }
}

// Stats is a point-in-time snapshot of the counters.
type Stats struct {
    Keys    int64
    Bytes   uint64
    Sets    uint64
    Hits    uint64
    Misses  uint64
    Dels    uint64
    Expired uint64
    Updates uint64
    Rejects uint64
}

func (s *Store) Metrics() Stats {
    return Stats{
        Keys:    s.mKeys.Load(),
        Bytes:   s.mBytes.Load(),
        Sets:    s.mSets.Load(),
        Hits:    s.mHits.Load(),
        Misses:  s.mMisses.Load(),
        Dels:    s.mDels.Load(),
        Expired: s.mExpired.Load(),
        Updates: s.mUpdates.Load(),
        Rejects: s.mRejects.Load(),
    }
}
