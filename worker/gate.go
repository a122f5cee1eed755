package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/protocol"
)

// State is the module's initialization state inside one execution context.
type State int

const (
	Uninitialized State = iota
	Initializing
	Ready
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Role tells an Ensure caller how it took part in initialization.
type Role int

const (
	// RoleReady: the module was already initialized.
	RoleReady Role = iota
	// RoleAttached: the caller waited on another caller's attempt.
	RoleAttached
	// RoleInitiator: the caller performed the attempt and emitted its event.
	RoleInitiator
)

// flight is the shared handle of the one in-flight initialization.
type flight struct {
	done chan struct{}
	err  error
}

// Gate guarantees at most one concurrent initialization of the module.
// Ready is terminal; Failed may be retried by the next Ensure.
type Gate struct {
	init     func(ctx context.Context) error
	emit     func(protocol.Event)
	flight   *flight
	metrics  *Metrics
	logger   *zap.Logger
	reason   string
	mu       sync.Mutex
	state    State
	attempts int
	waiting  int
}

// NewGate creates a gate that initializes with init and reports settled
// attempts through emit.
func NewGate(init func(ctx context.Context) error, emit func(protocol.Event)) *Gate {
	return &Gate{
		init:   init,
		emit:   emit,
		logger: Logger(),
	}
}

// State returns the current state and, when Failed, the failure text.
func (g *Gate) State() (State, string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state, g.reason
}

// Attempts returns how many initialization attempts have started.
func (g *Gate) Attempts() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts
}

// Waiting returns how many callers are attached to the in-flight attempt.
func (g *Gate) Waiting() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.waiting
}

func (g *Gate) leave() {
	g.mu.Lock()
	g.waiting--
	g.mu.Unlock()
}

// Ensure initializes the module unless it already is. Concurrent callers
// share a single attempt and observe its outcome; only the initiator emits
// INITIALIZED or INIT_FAILED. If ctx ends while attached, Ensure returns a
// context-lost error and the attempt continues for the others.
func (g *Gate) Ensure(ctx context.Context) (Role, error) {
	g.mu.Lock()
	switch g.state {
	case Ready:
		g.mu.Unlock()
		return RoleReady, nil
	case Initializing:
		f := g.flight
		g.waiting++
		g.mu.Unlock()
		defer g.leave()
		select {
		case <-f.done:
			return RoleAttached, f.err
		case <-ctx.Done():
			return RoleAttached, errors.ContextLost("", "execution context terminated during initialization")
		}
	}

	f := &flight{done: make(chan struct{})}
	g.flight = f
	g.state = Initializing
	g.attempts++
	attempt := g.attempts
	g.metrics.setState(Initializing)
	g.mu.Unlock()

	g.logger.Debug("initializing module", zap.Int("attempt", attempt))
	start := time.Now()
	fault := capture(func() error { return g.init(ctx) })
	elapsed := time.Since(start)

	g.mu.Lock()
	if fault != nil {
		g.state = Failed
		g.reason = fault.Error()
		f.err = fault
		g.logger.Warn("module initialization failed",
			zap.Int("attempt", attempt),
			zap.Duration("elapsed", elapsed),
			zap.String("reason", g.reason))
		g.emit(protocol.InitFailed{Reason: g.reason})
	} else {
		g.state = Ready
		g.reason = ""
		g.logger.Info("module initialized",
			zap.Int("attempt", attempt),
			zap.Duration("elapsed", elapsed))
		g.emit(protocol.Initialized{})
	}
	g.flight = nil
	g.metrics.observeInit(elapsed, fault != nil)
	g.metrics.setState(g.state)
	g.mu.Unlock()

	close(f.done)
	return RoleInitiator, f.err
}
