package client

import (
    "context"
    "errors"

    "go.uber.org/zap"

    "coapp/pkg/core/rqueue"
    "coapp/pkg/dispatch"
    "coapp/pkg/handlers"
    "coapp/pkg/protocol/message"
    "coapp/pkg/tasks"
)

type callOptions struct {
    sets      []*handlers.Messages
    parent    tasks.ID
    hasParent bool
    cancel    context.Context
    observe   []func(*message.Message)
    tap       *handlers.Messages
}

// CallOption adjusts a single call.
type CallOption func(*callOptions)

// WithHandlers registers handler sets for the call. Later sets take
// precedence over earlier ones; all of them take precedence over the sets of
// the enclosing call.
func WithHandlers(sets ...*handlers.Messages) CallOption {
    return func(o *callOptions) { o.sets = append(o.sets, sets...) }
}

// WithParent makes the call a child of id instead of the call carried by ctx.
// A zero id makes it a root call.
func WithParent(id tasks.ID) CallOption {
    return func(o *callOptions) { o.parent, o.hasParent = id, true }
}

// WithCancel adds a cancellation signal on top of ctx. The call ends as soon
// as either is done.
func WithCancel(signal context.Context) CallOption {
    return func(o *callOptions) { o.cancel = signal }
}

// tap runs set's handlers after the caller's resolved ones, so an operation
// can collect what the table hands out without hiding the caller's handlers.
func tap(set *handlers.Messages) CallOption {
    return func(o *callOptions) {
        if o.tap == nil {
            o.tap = set
            return
        }
        o.tap = handlers.Tee(o.tap, set)
    }
}

// observe runs fn on every message after it has been dispatched.
func observe(fn func(*message.Message)) CallOption {
    return func(o *callOptions) { o.observe = append(o.observe, fn) }
}

// Call sends msg and dispatches the replies to the resolved handlers on the
// calling goroutine until the service ends the call. ctx is the call's
// cancellation signal; when it carries an enclosing call (see Scope), that
// call's handlers and cancellation are inherited.
//
// The result is nil on task-complete, a *CancelledError when the service
// cancels, restarts or ctx ends, a *ConnectionError when the service cannot
// be reached, or the write error. Panics raised by handlers propagate.
func (m *Manager) Call(ctx context.Context, msg *message.Message, opts ...CallOption) error {
    var o callOptions
    for _, opt := range opts { opt(&o) }

    signal := ctx
    if o.cancel != nil {
        var cancel context.CancelCauseFunc
        signal, cancel = context.WithCancelCause(ctx)
        defer cancel(nil)
        stop := context.AfterFunc(o.cancel, func() { cancel(context.Cause(o.cancel)) })
        defer stop()
    }
    if err := m.Connect(signal); err != nil {
        var ce *ConnectionError
        if signal.Err() != nil && !errors.As(err, &ce) && !errors.Is(err, ErrClosed) {
            return &CancelledError{Cause: err}
        }
        return err
    }

    parent := o.parent
    if !o.hasParent { parent, _ = tasks.FromContext(ctx) }
    id := m.reg.Begin(parent, signal)
    q, err := rqueue.New(m.reg, id)
    if err != nil {
        m.reg.End(id)
        return err
    }
    defer q.Close()
    for _, s := range o.sets {
        _ = m.reg.Register(id, s)
    }
    tc, ok := m.reg.Lookup(id)
    if !ok { return &CancelledError{Cause: tasks.ErrEnded} }
    if err := context.Cause(tc.Context()); err != nil { return &CancelledError{Cause: err} }

    out := msg.Clone().SetInt(message.FieldRequestID, int64(id))
    if err := m.write(out); err != nil { return err }
    zap.L().Debug("call issued", zap.Int64("rqid", int64(id)), zap.String("cmd", out.Command))

    var last *message.Message
    err = q.DispatchLoop(tc.Context(), func(in *message.Message) bool {
        h := m.reg.Chain(id).Resolve()
        if o.tap != nil { h = handlers.Tee(h, o.tap) }
        _, cont := m.table.Dispatch(in, h)
        for _, fn := range o.observe { fn(in) }
        if !cont { last = in }
        return cont
    })
    if err != nil {
        zap.L().Debug("call abandoned", zap.Int64("rqid", int64(id)), zap.Error(err))
        return &CancelledError{Cause: err}
    }
    switch last.Command {
    case dispatch.CmdOperationCancelled:
        return &CancelledError{Reason: last.String("message")}
    case dispatch.CmdRestarting:
        return &CancelledError{Restarting: true}
    }
    return nil
}

// Scope opens a logical call without a request of its own. Calls issued with
// the returned context inherit its handler sets and are cancelled with it.
// The returned function ends the scope.
func (m *Manager) Scope(ctx context.Context, sets ...*handlers.Messages) (context.Context, func()) {
    parent, _ := tasks.FromContext(ctx)
    id := m.reg.Begin(parent, ctx)
    for _, s := range sets {
        _ = m.reg.Register(id, s)
    }
    tc, ok := m.reg.Lookup(id)
    if !ok { return ctx, func() {} }
    return tasks.WithTask(tc.Context(), id), func() { m.reg.End(id) }
}
