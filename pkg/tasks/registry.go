// Package tasks tracks the logical calls in flight: who spawned them, how
// they are cancelled, which handler sets they registered and which queue
// receives their replies.
package tasks

import (
    "context"
    "errors"
    "sync"
    "sync/atomic"

    "coapp/pkg/handlers"
    "coapp/pkg/protocol/message"
)

// ID identifies a call. IDs are unique within the process and never reused.
type ID int64

var lastID atomic.Int64

func nextID() ID { return ID(lastID.Add(1)) }

var (
    ErrUnknownTask   = errors.New("tasks: unknown task")
    ErrQueueAttached = errors.New("tasks: a queue is already attached")
    // ErrEnded is the cancellation cause of a context whose task has ended.
    ErrEnded = errors.New("tasks: task ended")
)

// Mailbox receives the replies addressed to a task.
type Mailbox interface {
    Enqueue(*message.Message)
}

// Context is the registry's record of one call.
type Context struct {
    id     ID
    parent *Context
    top    ID
    ctx    context.Context
    cancel context.CancelCauseFunc
    stop   func() bool
    sets   []*handlers.Messages
    box    Mailbox
}

func (c *Context) ID() ID { return c.id }

// Parent returns the spawning call, or 0 for a root call.
func (c *Context) Parent() ID {
    if c.parent == nil { return 0 }
    return c.parent.id
}

// Top returns the outermost ancestor, which is the call itself for a root.
func (c *Context) Top() ID { return c.top }

// Context is cancelled when the call's own signal or any ancestor's fires,
// and when the call ends.
func (c *Context) Context() context.Context { return c.ctx }

// Registry is safe for concurrent use; one mutex guards all records.
type Registry struct {
    mu sync.Mutex
    m  map[ID]*Context
}

func NewRegistry() *Registry { return &Registry{m: make(map[ID]*Context)} }

// Begin records a new call. A zero or unknown parent makes it a root. The
// call is cancelled by signal when given and by the parent's cancellation
// when there is a parent; with neither it is only cancelled by End.
func (r *Registry) Begin(parent ID, signal context.Context) ID {
    id := nextID()
    r.mu.Lock()
    defer r.mu.Unlock()
    tc := &Context{id: id, top: id}
    var base context.Context
    if p, ok := r.m[parent]; ok && parent != 0 {
        tc.parent = p
        tc.top = p.top
        base = p.ctx
    }
    switch {
    case signal == nil && base == nil:
        base = context.Background()
    case signal == nil:
    case base == nil:
        base = signal
    default:
        inherited := base
        base = signal
        tc.ctx, tc.cancel = context.WithCancelCause(base)
        tc.stop = context.AfterFunc(inherited, func() { tc.cancel(context.Cause(inherited)) })
    }
    if tc.ctx == nil { tc.ctx, tc.cancel = context.WithCancelCause(base) }
    r.m[id] = tc
    return id
}

// Lookup returns the record for id.
func (r *Registry) Lookup(id ID) (*Context, bool) {
    r.mu.Lock()
    defer r.mu.Unlock()
    tc, ok := r.m[id]
    return tc, ok
}

// End removes id. Ending an unknown or already ended id does nothing.
func (r *Registry) End(id ID) {
    r.mu.Lock()
    tc, ok := r.m[id]
    delete(r.m, id)
    r.mu.Unlock()
    if !ok { return }
    if tc.stop != nil { tc.stop() }
    tc.cancel(ErrEnded)
}

// Len reports the number of live calls.
func (r *Registry) Len() int {
    r.mu.Lock()
    defer r.mu.Unlock()
    return len(r.m)
}

// Register pushes a handler set onto the call's stack; later sets take
// precedence over earlier ones. A nil set is ignored.
func (r *Registry) Register(id ID, set *handlers.Messages) error {
    if set == nil { return nil }
    r.mu.Lock()
    defer r.mu.Unlock()
    tc, ok := r.m[id]
    if !ok { return ErrUnknownTask }
    tc.sets = append(tc.sets, set)
    return nil
}

// Chain returns the handler sets that apply to id: its own, most recent
// first, then each ancestor's in turn.
func (r *Registry) Chain(id ID) handlers.Chain {
    r.mu.Lock()
    defer r.mu.Unlock()
    var out handlers.Chain
    for tc := r.m[id]; tc != nil; tc = tc.parent {
        for i := len(tc.sets) - 1; i >= 0; i-- {
            out = append(out, tc.sets[i])
        }
    }
    return out
}

// Attach binds the queue that receives replies for id.
func (r *Registry) Attach(id ID, box Mailbox) error {
    r.mu.Lock()
    defer r.mu.Unlock()
    tc, ok := r.m[id]
    if !ok { return ErrUnknownTask }
    if tc.box != nil { return ErrQueueAttached }
    tc.box = box
    return nil
}

// Deliver hands msg to the queue attached to id. It reports false when no
// live queue is bound, in which case the message is dropped.
func (r *Registry) Deliver(id ID, msg *message.Message) bool {
    r.mu.Lock()
    tc, ok := r.m[id]
    var box Mailbox
    if ok { box = tc.box }
    r.mu.Unlock()
    if box == nil { return false }
    box.Enqueue(msg)
    return true
}

type ctxKey struct{}

// WithTask returns a context that names id as the current call, so calls
// issued with it become children of id.
func WithTask(ctx context.Context, id ID) context.Context { return context.WithValue(ctx, ctxKey{}, id) }

// FromContext returns the current call carried by ctx.
func FromContext(ctx context.Context) (ID, bool) {
    if ctx == nil { return 0, false }
    id, ok := ctx.Value(ctxKey{}).(ID)
    return id, ok
}
