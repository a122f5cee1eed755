package host

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	offload "github.com/wippyai/wasm-offload"
	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/protocol"
	"github.com/wippyai/wasm-offload/worker"
)

// Outcome describes a resolved request. It is passed to the OnComplete hook.
type Outcome struct {
	Started   time.Time
	Finished  time.Time
	Err       error
	RequestID string
	Result    string
}

// Duration returns how long the request was pending.
func (o Outcome) Duration() time.Duration {
	return o.Finished.Sub(o.Started)
}

// Controller is the host-side owner of one execution context. It tracks the
// module state from observed events, allows at most one pending run, and
// resolves each run to its RESULT or RUN_FAILED.
type Controller struct {
	ectx       *worker.Context
	pending    *Request
	changed    chan struct{}
	onState    func(State)
	onComplete func(Outcome)
	newID      func() string
	logger     *zap.Logger
	workerOpts []worker.Option
	state      State
	mu         sync.Mutex
	notifyMu   sync.Mutex
	policy     RunPolicy
	disposed   bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithRunPolicy sets whether runs are accepted before the module is ready.
func WithRunPolicy(p RunPolicy) Option {
	return func(c *Controller) {
		c.policy = p
	}
}

// WithWorkerOptions passes options through to the execution context.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(c *Controller) {
		c.workerOpts = append(c.workerOpts, opts...)
	}
}

// OnStateChange registers fn to observe state transitions. fn runs on the
// event delivery goroutine, or on the goroutine calling Retry, and must not
// call Dispose.
func OnStateChange(fn func(State)) Option {
	return func(c *Controller) {
		c.onState = fn
	}
}

// OnComplete registers fn to observe every resolved request. fn runs before
// the request's waiters are released.
func OnComplete(fn func(Outcome)) Option {
	return func(c *Controller) {
		c.onComplete = fn
	}
}

// WithIDGenerator replaces the ULID request id source.
func WithIDGenerator(fn func() string) Option {
	return func(c *Controller) {
		c.newID = fn
	}
}

// New creates the execution context for module and immediately posts INIT.
func New(module offload.Module, opts ...Option) *Controller {
	c := &Controller{
		changed: make(chan struct{}),
		logger:  Logger(),
		newID:   func() string { return ulid.Make().String() },
		state:   State{Status: StatusInitializing},
	}
	for _, opt := range opts {
		opt(c)
	}

	c.ectx = worker.New(module, c.workerOpts...)
	if err := c.ectx.Start(c.handle); err != nil {
		c.setState(State{Status: StatusError, Message: errors.Message(err)})
		return c
	}
	if err := c.ectx.Post(protocol.Init{}); err != nil {
		c.setState(State{Status: StatusError, Message: errors.Message(err)})
	}
	return c
}

// State returns the last observed module state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pending reports whether a run is awaiting its terminal event.
func (c *Controller) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Settled blocks until the state leaves initializing or ctx ends.
func (c *Controller) Settled(ctx context.Context) (State, error) {
	for {
		c.mu.Lock()
		st, ch := c.state, c.changed
		c.mu.Unlock()
		if st.Status != StatusInitializing {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// TriggerRun posts RUN with a fresh request id and returns its handle.
// It fails with a protocol misuse while another run is pending, or, under
// RunPolicyStrict, while the module is not ready.
func (c *Controller) TriggerRun() (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.disposed {
		return nil, errors.ContextLost("", "controller disposed")
	}
	if c.pending != nil {
		return nil, errors.ProtocolMisuse("a run is already pending (request " + c.pending.ID + ")")
	}
	if c.policy == RunPolicyStrict && c.state.Status != StatusReady {
		return nil, errors.ProtocolMisuse("module is " + c.state.Status.String() + ", not ready")
	}

	req := newRequest(c.newID())
	if err := c.ectx.Post(protocol.Run{ID: req.ID}); err != nil {
		return nil, err
	}
	c.pending = req
	c.logger.Debug("run triggered", zap.String("request", req.ID))
	return req, nil
}

// Retry posts INIT again after an initialization failure.
func (c *Controller) Retry() error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return errors.ContextLost("", "controller disposed")
	}
	if c.state.Status != StatusError {
		st := c.state.Status
		c.mu.Unlock()
		return errors.ProtocolMisuse("retry requires an initialization failure, module is " + st.String())
	}
	if err := c.ectx.Post(protocol.Init{}); err != nil {
		c.mu.Unlock()
		return err
	}
	c.setStateLocked(State{Status: StatusInitializing})
	c.mu.Unlock()

	c.logger.Info("initialization retried")
	c.notify()
	return nil
}

// Dispose terminates the execution context. A pending request resolves with
// a context-lost error. Calling Dispose again is a no-op.
func (c *Controller) Dispose(ctx context.Context) error {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return nil
	}
	c.disposed = true
	req := c.pending
	c.pending = nil
	c.mu.Unlock()

	if req != nil {
		c.resolve(req, "", errors.ContextLost(req.ID, "execution context terminated"))
	}
	return c.ectx.Terminate(ctx)
}

func (c *Controller) handle(ev protocol.Event) {
	var (
		req    *Request
		result string
		err    error
	)

	c.mu.Lock()
	switch e := ev.(type) {
	case protocol.Initialized:
		c.setStateLocked(State{Status: StatusReady})
	case protocol.InitFailed:
		c.setStateLocked(State{Status: StatusError, Message: e.Reason})
	case protocol.Result:
		c.setStateLocked(State{Status: StatusReady})
		result = e.Payload
	case protocol.RunFailed:
		err = errors.RunFault(e.ID, e.Reason)
	default:
		c.mu.Unlock()
		c.logger.Warn("ignoring unknown event", zap.String("kind", string(ev.Kind())))
		return
	}
	if protocol.IsTerminal(ev) {
		req = c.takePendingLocked(protocol.RequestID(ev))
	}
	c.mu.Unlock()

	c.logger.Debug("event observed", zap.String("kind", string(ev.Kind())))
	if req != nil {
		c.resolve(req, result, err)
	}
	c.notify()
}

func (c *Controller) takePendingLocked(id string) *Request {
	if c.pending == nil || c.pending.ID != id {
		c.logger.Warn("terminal event for unknown request", zap.String("request", id))
		return nil
	}
	req := c.pending
	c.pending = nil
	return req
}

// resolve completes req once. The completion hook runs before waiters are
// released.
func (c *Controller) resolve(req *Request, result string, err error) {
	if !req.claim() {
		return
	}
	if err != nil {
		c.logger.Info("run failed", zap.String("request", req.ID), zap.Error(err))
	} else {
		c.logger.Info("run succeeded", zap.String("request", req.ID))
	}
	if c.onComplete != nil {
		c.onComplete(Outcome{
			RequestID: req.ID,
			Result:    result,
			Err:       err,
			Started:   req.started,
			Finished:  time.Now(),
		})
	}
	req.finish(result, err)
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.setStateLocked(s)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) setStateLocked(s State) {
	c.state = s
	close(c.changed)
	c.changed = make(chan struct{})
}

// notify reports the current state, so hooks never observe a stale one.
func (c *Controller) notify() {
	if c.onState == nil {
		return
	}
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	c.onState(c.State())
}
