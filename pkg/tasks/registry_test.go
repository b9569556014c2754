package tasks

import (
    "context"
    "errors"
    "sync"
    "testing"

    "coapp/pkg/handlers"
    "coapp/pkg/protocol/message"
)

type box struct {
    mu   sync.Mutex
    msgs []*message.Message
}

func (b *box) Enqueue(m *message.Message) { b.mu.Lock(); b.msgs = append(b.msgs, m); b.mu.Unlock() }

func TestBeginInheritsTopAndParent(t *testing.T) {
    r := NewRegistry()
    root := r.Begin(0, nil)
    child := r.Begin(root, nil)
    grand := r.Begin(child, nil)
    g, ok := r.Lookup(grand)
    if !ok { t.Fatalf("lookup failed") }
    if g.Parent() != child || g.Top() != root { t.Fatalf("parent=%d top=%d", g.Parent(), g.Top()) }
    rc, _ := r.Lookup(root)
    if rc.Top() != root || rc.Parent() != 0 { t.Fatalf("root record wrong") }
    if root == child || child == grand { t.Fatalf("ids must be unique") }
}

func TestEndIsIdempotent(t *testing.T) {
    r := NewRegistry()
    id := r.Begin(0, nil)
    tc, _ := r.Lookup(id)
    r.End(id)
    r.End(id)
    if _, ok := r.Lookup(id); ok { t.Fatalf("ended task still present") }
    if !errors.Is(context.Cause(tc.Context()), ErrEnded) { t.Fatalf("context not released: %v", context.Cause(tc.Context())) }
    if r.Len() != 0 { t.Fatalf("len: %d", r.Len()) }
}

func TestCancellationInheritance(t *testing.T) {
    r := NewRegistry()
    pctx, pcancel := context.WithCancel(context.Background())
    parent := r.Begin(0, pctx)
    inherited := r.Begin(parent, nil)
    own, ocancel := context.WithCancel(context.Background())
    defer ocancel()
    both := r.Begin(parent, own)

    pcancel()
    for _, id := range []ID{inherited, both} {
        tc, _ := r.Lookup(id)
        <-tc.Context().Done()
    }
}

func TestOverrideSignalDoesNotCancelParent(t *testing.T) {
    r := NewRegistry()
    parent := r.Begin(0, nil)
    own, cancel := context.WithCancel(context.Background())
    child := r.Begin(parent, own)
    cancel()
    cc, _ := r.Lookup(child)
    <-cc.Context().Done()
    pc, _ := r.Lookup(parent)
    if pc.Context().Err() != nil { t.Fatalf("parent cancelled by child signal") }
}

func TestHandlerResolutionThroughParent(t *testing.T) {
    r := NewRegistry()
    var got []string
    parent := r.Begin(0, nil)
    child := r.Begin(parent, nil)
    _ = r.Register(parent, &handlers.Messages{
        InstalledPackage: func(string) { got = append(got, "g") },
        RemovedPackage:   func(string) { got = append(got, "h") },
    })
    _ = r.Register(child, &handlers.Messages{InstalledPackage: func(string) { got = append(got, "f") }})

    set := r.Chain(child).Resolve()
    set.InstalledPackage("x")
    set.RemovedPackage("x")
    set.FileNotFound("x") // unset everywhere: no-op
    if len(got) != 2 || got[0] != "f" || got[1] != "h" { t.Fatalf("resolution order: %v", got) }
}

func TestRegisterMostRecentWins(t *testing.T) {
    r := NewRegistry()
    id := r.Begin(0, nil)
    var got string
    _ = r.Register(id, &handlers.Messages{UnknownPackage: func(string) { got = "first" }})
    _ = r.Register(id, &handlers.Messages{UnknownPackage: func(string) { got = "second" }})
    r.Chain(id).Resolve().UnknownPackage("p")
    if got != "second" { t.Fatalf("got %q", got) }
    if err := r.Register(ID(-1), &handlers.Messages{}); !errors.Is(err, ErrUnknownTask) { t.Fatalf("unknown task: %v", err) }
}

func TestAttachAndDeliver(t *testing.T) {
    r := NewRegistry()
    id := r.Begin(0, nil)
    b := &box{}
    if err := r.Attach(id, b); err != nil { t.Fatalf("attach: %v", err) }
    if err := r.Attach(id, &box{}); !errors.Is(err, ErrQueueAttached) { t.Fatalf("second attach: %v", err) }
    if !r.Deliver(id, message.New("task-complete")) { t.Fatalf("deliver to live queue failed") }
    r.End(id)
    if r.Deliver(id, message.New("task-complete")) { t.Fatalf("late delivery accepted") }
    if _, ok := r.Lookup(id); ok { t.Fatalf("late delivery re-created the task") }
    if len(b.msgs) != 1 { t.Fatalf("box got %d", len(b.msgs)) }
}

func TestContextCarriesTask(t *testing.T) {
    ctx := WithTask(context.Background(), 42)
    id, ok := FromContext(ctx)
    if !ok || id != 42 { t.Fatalf("from context: %d %v", id, ok) }
    if _, ok := FromContext(context.Background()); ok { t.Fatalf("empty context carries a task") }
}

func TestConcurrentBeginEnd(t *testing.T) {
    r := NewRegistry()
    root := r.Begin(0, nil)
    var wg sync.WaitGroup
    for i := 0; i < 64; i++ {
        wg.Add(1)
        go func() {
            defer wg.Done()
            id := r.Begin(root, nil)
            _ = r.Register(id, &handlers.Messages{})
            _ = r.Chain(id)
            r.End(id)
        }()
    }
    wg.Wait()
    if r.Len() != 1 { t.Fatalf("leaked contexts: %d", r.Len()) }
}
