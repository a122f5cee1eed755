package worker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	offload "github.com/wippyai/wasm-offload"
	offerrors "github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/protocol"
)

// recorder is a Handler that buffers delivered events.
type recorder struct {
	ch chan protocol.Event
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan protocol.Event, 64)}
}

func (r *recorder) handle(e protocol.Event) {
	r.ch <- e
}

func (r *recorder) next(t *testing.T) protocol.Event {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func (r *recorder) none(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case e := <-r.ch:
		t.Fatalf("unexpected event %#v", e)
	case <-time.After(d):
	}
}

// countingModule counts entry point calls.
type countingModule struct {
	initFn func(context.Context) error
	runFn  func(context.Context) (string, error)
	inits  atomic.Int32
	runs   atomic.Int32
	closed atomic.Bool
}

func (m *countingModule) Initialize(ctx context.Context) error {
	m.inits.Add(1)
	if m.initFn != nil {
		return m.initFn(ctx)
	}
	return nil
}

func (m *countingModule) Run(ctx context.Context) (string, error) {
	m.runs.Add(1)
	if m.runFn != nil {
		return m.runFn(ctx)
	}
	return "Proof verified", nil
}

func (m *countingModule) Close(context.Context) error {
	m.closed.Store(true)
	return nil
}

func startContext(t *testing.T, mod offload.Module) (*Context, *recorder) {
	t.Helper()
	c := New(mod)
	rec := newRecorder()
	if err := c.Start(rec.handle); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = c.Terminate(context.Background()) })
	return c, rec
}

func post(t *testing.T, c *Context, cmd protocol.Command) {
	t.Helper()
	if err := c.Post(cmd); err != nil {
		t.Fatalf("Post(%s): %v", cmd.Kind(), err)
	}
}

func TestContext_InitEmitsInitialized(t *testing.T) {
	mod := &countingModule{}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Init{})
	if e := rec.next(t); e.Kind() != protocol.KindInitialized {
		t.Fatalf("event = %s, want INITIALIZED", e.Kind())
	}
	if mod.inits.Load() != 1 {
		t.Errorf("inits = %d", mod.inits.Load())
	}
}

func TestContext_InitWhenReadyReacknowledges(t *testing.T) {
	mod := &countingModule{}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Init{})
	rec.next(t)
	post(t, c, protocol.Init{})
	if e := rec.next(t); e.Kind() != protocol.KindInitialized {
		t.Fatalf("event = %s, want INITIALIZED", e.Kind())
	}
	if mod.inits.Load() != 1 {
		t.Errorf("inits = %d, want 1", mod.inits.Load())
	}
}

func TestContext_ConcurrentInitSingleEvent(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	mod := &countingModule{initFn: blockingInit(entered, release, nil)}
	c, rec := startContext(t, mod)

	for i := 0; i < 3; i++ {
		post(t, c, protocol.Init{})
	}
	<-entered
	waitFor(t, "INITs to attach", func() bool { return c.gate.Waiting() == 2 })
	close(release)

	if e := rec.next(t); e.Kind() != protocol.KindInitialized {
		t.Fatalf("event = %s", e.Kind())
	}
	rec.none(t, 50*time.Millisecond)
	if mod.inits.Load() != 1 {
		t.Errorf("inits = %d, want 1", mod.inits.Load())
	}
}

func TestContext_RunBeforeReadyInitializesOnce(t *testing.T) {
	mod := &countingModule{}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Run{ID: "r1"})

	if e := rec.next(t); e.Kind() != protocol.KindInitialized {
		t.Fatalf("first event = %s, want INITIALIZED", e.Kind())
	}
	e := rec.next(t)
	res, ok := e.(protocol.Result)
	if !ok {
		t.Fatalf("second event = %#v, want Result", e)
	}
	if res.ID != "r1" || res.Payload != "Proof verified" {
		t.Errorf("result = %+v", res)
	}
	if mod.inits.Load() != 1 || mod.runs.Load() != 1 {
		t.Errorf("inits = %d, runs = %d, want 1/1", mod.inits.Load(), mod.runs.Load())
	}
}

func TestContext_RunWhenReadyDoesNotReinitialize(t *testing.T) {
	mod := &countingModule{}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Init{})
	rec.next(t)

	for i := 0; i < 3; i++ {
		post(t, c, protocol.Run{ID: fmt.Sprintf("r%d", i)})
		if e := rec.next(t); e.Kind() != protocol.KindResult {
			t.Fatalf("event = %s, want RESULT", e.Kind())
		}
	}
	if mod.inits.Load() != 1 {
		t.Errorf("inits = %d, want 1", mod.inits.Load())
	}
	if c.gate.Attempts() != 1 {
		t.Errorf("attempts = %d, want 1", c.gate.Attempts())
	}
}

func TestContext_EveryRunHasExactlyOneTerminalEvent(t *testing.T) {
	var n atomic.Int32
	mod := &countingModule{runFn: func(context.Context) (string, error) {
		if n.Add(1)%2 == 0 {
			return "", errors.New("verification failed")
		}
		return "Proof verified", nil
	}}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Init{})
	rec.next(t)

	const runs = 10
	for i := 0; i < runs; i++ {
		post(t, c, protocol.Run{ID: fmt.Sprintf("r%d", i)})
	}

	seen := make(map[string]int)
	for i := 0; i < runs; i++ {
		e := rec.next(t)
		if !protocol.IsTerminal(e) {
			t.Fatalf("unexpected non-terminal event %#v", e)
		}
		seen[protocol.RequestID(e)]++
	}
	rec.none(t, 50*time.Millisecond)

	for i := 0; i < runs; i++ {
		id := fmt.Sprintf("r%d", i)
		if seen[id] != 1 {
			t.Errorf("request %s got %d terminal events, want 1", id, seen[id])
		}
	}
}

func TestContext_RunFaultKeepsContextUsable(t *testing.T) {
	var calls atomic.Int32
	mod := &countingModule{runFn: func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			return "", errors.New("constraint not satisfied")
		}
		return "Proof verified", nil
	}}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Init{})
	rec.next(t)

	post(t, c, protocol.Run{ID: "bad"})
	e := rec.next(t)
	failed, ok := e.(protocol.RunFailed)
	if !ok {
		t.Fatalf("event = %#v, want RunFailed", e)
	}
	if failed.ID != "bad" || failed.Reason != "constraint not satisfied" {
		t.Errorf("run failed = %+v", failed)
	}

	post(t, c, protocol.Run{ID: "good"})
	if e := rec.next(t); e.Kind() != protocol.KindResult {
		t.Fatalf("event after fault = %s, want RESULT", e.Kind())
	}
}

type namedErr struct{}

func (namedErr) Error() string      { return "out of range" }
func (namedErr) FaultName() string  { return "RangeError" }
func (namedErr) FaultStack() string { return "at prove (lib.rs:97)" }

func TestContext_RunFaultCarriesNameAndStack(t *testing.T) {
	mod := &countingModule{runFn: func(context.Context) (string, error) { return "", namedErr{} }}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Run{ID: "r"})
	rec.next(t) // INITIALIZED
	failed := rec.next(t).(protocol.RunFailed)

	want := "RangeError - out of range\nStack: at prove (lib.rs:97)"
	if failed.Reason != want {
		t.Errorf("reason = %q, want %q", failed.Reason, want)
	}
}

func TestContext_RunPanicIsCaptured(t *testing.T) {
	var calls atomic.Int32
	mod := &countingModule{runFn: func(context.Context) (string, error) {
		if calls.Add(1) == 1 {
			panic("index out of bounds")
		}
		return "Proof verified", nil
	}}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Run{ID: "p"})
	rec.next(t) // INITIALIZED
	e := rec.next(t)
	failed, ok := e.(protocol.RunFailed)
	if !ok {
		t.Fatalf("event = %#v, want RunFailed", e)
	}
	if !strings.HasPrefix(failed.Reason, "panic - index out of bounds\nStack: ") {
		t.Errorf("reason = %q", failed.Reason)
	}

	post(t, c, protocol.Run{ID: "q"})
	if e := rec.next(t); e.Kind() != protocol.KindResult {
		t.Errorf("event after panic = %s, want RESULT", e.Kind())
	}
}

func TestContext_RunAfterFailedInitNeverRuns(t *testing.T) {
	mod := &countingModule{initFn: func(context.Context) error { return errors.New("resource exhausted") }}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Run{ID: "r"})

	if f, ok := rec.next(t).(protocol.InitFailed); !ok || f.Reason != "resource exhausted" {
		t.Fatalf("expected INIT_FAILED with reason, got %#v", f)
	}
	failed, ok := rec.next(t).(protocol.RunFailed)
	if !ok {
		t.Fatal("expected RUN_FAILED")
	}
	if failed.ID != "r" || !strings.Contains(failed.Reason, "resource exhausted") {
		t.Errorf("run failed = %+v", failed)
	}
	if mod.runs.Load() != 0 {
		t.Errorf("runs = %d, want 0", mod.runs.Load())
	}
}

func TestContext_InitRetryAfterFailure(t *testing.T) {
	var calls atomic.Int32
	mod := &countingModule{initFn: func(context.Context) error {
		if calls.Add(1) == 1 {
			return errors.New("resource exhausted")
		}
		return nil
	}}
	c, rec := startContext(t, mod)

	post(t, c, protocol.Init{})
	if e := rec.next(t); e.Kind() != protocol.KindInitFailed {
		t.Fatalf("event = %s, want INIT_FAILED", e.Kind())
	}
	post(t, c, protocol.Init{})
	if e := rec.next(t); e.Kind() != protocol.KindInitialized {
		t.Fatalf("retry event = %s, want INITIALIZED", e.Kind())
	}
}

func TestContext_TerminateAbandonsWork(t *testing.T) {
	running := make(chan struct{})
	mod := &countingModule{runFn: func(ctx context.Context) (string, error) {
		close(running)
		<-ctx.Done()
		return "", ctx.Err()
	}}
	c := New(mod)
	rec := newRecorder()
	if err := c.Start(rec.handle); err != nil {
		t.Fatal(err)
	}

	post(t, c, protocol.Run{ID: "hung"})
	rec.next(t) // INITIALIZED
	<-running

	if err := c.Terminate(context.Background()); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	rec.none(t, 50*time.Millisecond)

	select {
	case <-c.ctx.Done():
	default:
		t.Error("Done not closed after Terminate")
	}
	if !mod.closed.Load() {
		t.Error("module not closed")
	}

	err := c.Post(protocol.Run{ID: "late"})
	if !errors.Is(err, offerrors.ErrContextLost) {
		t.Errorf("Post after Terminate = %v, want context lost", err)
	}
	if err := c.Terminate(context.Background()); err != nil {
		t.Errorf("second Terminate = %v", err)
	}
	if err := c.Start(rec.handle); !errors.Is(err, offerrors.ErrContextLost) {
		t.Errorf("Start after Terminate = %v, want context lost", err)
	}
}

func TestContext_StartTwice(t *testing.T) {
	c, rec := startContext(t, &countingModule{})
	if err := c.Start(rec.handle); err == nil {
		t.Error("expected error on second Start")
	}
	if err := New(&countingModule{}).Start(nil); err == nil {
		t.Error("expected error for nil handler")
	}
}

func TestContext_MalformedFrameDropped(t *testing.T) {
	c, rec := startContext(t, &countingModule{})

	c.inbox.put([]byte(`{"kind":"EXPLODE"}`))
	c.inbox.put([]byte(`not json`))
	post(t, c, protocol.Init{})

	if e := rec.next(t); e.Kind() != protocol.KindInitialized {
		t.Fatalf("event = %s, want INITIALIZED", e.Kind())
	}
}

func TestContext_EventsDeliveredInOrder(t *testing.T) {
	var mu sync.Mutex
	var order []string
	mod := &countingModule{}
	c := New(mod, WithName("ordered"))
	if err := c.Start(func(e protocol.Event) {
		mu.Lock()
		order = append(order, string(e.Kind()))
		mu.Unlock()
	}); err != nil {
		t.Fatal(err)
	}
	defer c.Terminate(context.Background())

	post(t, c, protocol.Run{ID: "a"})
	waitFor(t, "two events", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(order) == 2
	})

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "INITIALIZED" || order[1] != "RESULT" {
		t.Errorf("order = %v, want INITIALIZED then RESULT", order)
	}
}
