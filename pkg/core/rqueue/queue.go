// Package rqueue implements the per-call mailbox that the connection's read
// loop fills and the calling goroutine drains.
package rqueue

import (
    "context"
    "sync"

    "coapp/pkg/protocol/message"
    "coapp/pkg/tasks"
)

// Queue is a FIFO of replies for one call. Enqueue never blocks; the
// dispatch loop sleeps on a one-slot wake channel.
type Queue struct {
    id  tasks.ID
    reg *tasks.Registry

    mu     sync.Mutex
    items  []*message.Message
    closed bool
    wake   chan struct{}
}

// New creates a queue for id and binds it in reg so replies carrying id are
// delivered here.
func New(reg *tasks.Registry, id tasks.ID) (*Queue, error) {
    q := &Queue{id: id, reg: reg, wake: make(chan struct{}, 1)}
    if err := reg.Attach(id, q); err != nil { return nil, err }
    return q, nil
}

// ID returns the call this queue belongs to.
func (q *Queue) ID() tasks.ID { return q.id }

// Enqueue appends msg and wakes the dispatch loop. Messages arriving after
// Close are dropped.
func (q *Queue) Enqueue(msg *message.Message) {
    q.mu.Lock()
    if q.closed {
        q.mu.Unlock()
        return
    }
    q.items = append(q.items, msg)
    q.mu.Unlock()
    select {
    case q.wake <- struct{}{}:
    default:
    }
}

// Len reports how many messages wait to be dispatched.
func (q *Queue) Len() int {
    q.mu.Lock()
    defer q.mu.Unlock()
    return len(q.items)
}

func (q *Queue) drain() []*message.Message {
    q.mu.Lock()
    defer q.mu.Unlock()
    batch := q.items
    q.items = nil
    return batch
}

// DispatchLoop hands queued messages to route in arrival order until route
// returns false. Cancellation of ctx is checked before each batch, so a
// batch already taken is always delivered in full unless route stops it.
// The queue is closed when the loop returns, including when route panics.
func (q *Queue) DispatchLoop(ctx context.Context, route func(*message.Message) bool) error {
    defer q.Close()
    for {
        if ctx.Err() != nil { return context.Cause(ctx) }
        batch := q.drain()
        if len(batch) == 0 {
            select {
            case <-ctx.Done():
                return context.Cause(ctx)
            case <-q.wake:
            }
            continue
        }
        for _, m := range batch {
            if !route(m) { return nil }
        }
    }
}

// Close unbinds the queue and ends its call. Pending messages are discarded.
// It is safe to call more than once.
func (q *Queue) Close() {
    q.mu.Lock()
    if q.closed {
        q.mu.Unlock()
        return
    }
    q.closed = true
    q.items = nil
    q.mu.Unlock()
    q.reg.End(q.id)
}
