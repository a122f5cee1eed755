package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	offload "github.com/wippyai/wasm-offload"
	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/protocol"
)

// Handler receives events emitted by a context, in emission order, on the
// context's delivery goroutine. It must not call Terminate.
type Handler func(protocol.Event)

// Context is an isolated execution context owning one module. The host talks
// to it only through Post and the registered Handler; both directions carry
// encoded frames, so no memory is shared across the boundary.
type Context struct {
	module   offload.Module
	gate     *Gate
	inbox    *mailbox
	outbox   *mailbox
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	metrics  *Metrics
	name     string
	pumps    sync.WaitGroup
	runMu    sync.Mutex
	mu       sync.Mutex
	started  bool
	stopped  bool
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the context's logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Context) {
		c.logger = l
	}
}

// WithMetrics records gate and run activity into m.
func WithMetrics(m *Metrics) Option {
	return func(c *Context) {
		c.metrics = m
	}
}

// WithName labels the context in logs.
func WithName(name string) Option {
	return func(c *Context) {
		c.name = name
	}
}

// New creates a context for module. Nothing runs until Start.
func New(module offload.Module, opts ...Option) *Context {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Context{
		module: module,
		inbox:  newMailbox(),
		outbox: newMailbox(),
		ctx:    ctx,
		cancel: cancel,
		logger: Logger(),
		name:   "worker",
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("context", c.name))

	c.gate = NewGate(module.Initialize, c.emit)
	c.gate.logger = c.logger
	c.gate.metrics = c.metrics
	c.metrics.setState(Uninitialized)
	return c
}

// Start launches the dispatch and delivery goroutines. Events are passed to
// handler until the context terminates.
func (c *Context) Start(handler Handler) error {
	if handler == nil {
		return errors.InvalidInput(errors.PhaseContext, "nil event handler")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return errors.ContextLost("", "execution context terminated")
	}
	if c.started {
		return errors.InvalidInput(errors.PhaseContext, "execution context already started")
	}
	c.started = true

	c.pumps.Add(2)
	go c.dispatch()
	go c.deliver(handler)
	c.logger.Debug("execution context started")
	return nil
}

// Post encodes cmd and queues it for the context. It never blocks.
func (c *Context) Post(cmd protocol.Command) error {
	frame, err := protocol.EncodeCommand(cmd)
	if err != nil {
		return err
	}
	if !c.inbox.put(frame) {
		return errors.ContextLost(requestID(cmd), "execution context terminated")
	}
	return nil
}

// Terminate stops the context unconditionally. In-flight INIT and RUN work
// is abandoned and its events are dropped. Once Terminate returns, the
// handler is not called again. The module is closed if it holds resources.
func (c *Context) Terminate(ctx context.Context) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	c.mu.Unlock()

	c.cancel()
	c.inbox.close()
	c.outbox.close()

	done := make(chan struct{})
	go func() {
		c.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Wrap(errors.PhaseContext, errors.KindContextLost, ctx.Err(), "wait for event delivery to stop")
	}

	var err error
	if closer, ok := c.module.(offload.Closer); ok {
		err = closer.Close(ctx)
	}
	c.logger.Debug("execution context terminated")
	return err
}

func (c *Context) dispatch() {
	defer c.pumps.Done()
	for {
		frame, ok := c.inbox.take()
		if !ok {
			return
		}
		cmd, err := protocol.DecodeCommand(frame)
		if err != nil {
			c.logger.Warn("dropping malformed command", zap.Error(err))
			continue
		}
		go c.handle(cmd)
	}
}

func (c *Context) deliver(handler Handler) {
	defer c.pumps.Done()
	for {
		frame, ok := c.outbox.take()
		if !ok {
			return
		}
		ev, err := protocol.DecodeEvent(frame)
		if err != nil {
			c.logger.Error("dropping malformed event", zap.Error(err))
			continue
		}
		handler(ev)
	}
}

func (c *Context) handle(cmd protocol.Command) {
	switch v := cmd.(type) {
	case protocol.Init:
		c.handleInit()
	case protocol.Run:
		c.handleRun(v)
	default:
		c.logger.Warn("unhandled command", zap.String("kind", string(cmd.Kind())))
	}
}

func (c *Context) handleInit() {
	role, err := c.gate.Ensure(c.ctx)
	if err != nil {
		// the initiator has already reported INIT_FAILED
		c.logger.Debug("INIT settled with failure", zap.Error(err))
		return
	}
	if role == RoleReady {
		c.emit(protocol.Initialized{})
	}
}

func (c *Context) handleRun(cmd protocol.Run) {
	log := c.logger.With(zap.String("request", cmd.ID))

	if _, err := c.gate.Ensure(c.ctx); err != nil {
		log.Warn("run rejected, module failed to initialize", zap.Error(err))
		c.emit(protocol.RunFailed{
			ID:     cmd.ID,
			Reason: fmt.Sprintf("module failed to initialize before run: %s", errors.Message(err)),
		})
		return
	}

	c.runMu.Lock()
	start := time.Now()
	var out string
	fault := capture(func() error {
		var err error
		out, err = c.module.Run(c.ctx)
		return err
	})
	elapsed := time.Since(start)
	c.runMu.Unlock()

	c.metrics.observeRun(elapsed, fault != nil)
	if fault != nil {
		log.Warn("run failed", zap.Duration("elapsed", elapsed), zap.String("fault", fault.Error()))
		c.emit(protocol.RunFailed{ID: cmd.ID, Reason: fault.Error()})
		return
	}
	log.Info("run completed", zap.Duration("elapsed", elapsed))
	c.emit(protocol.Result{ID: cmd.ID, Payload: out})
}

func (c *Context) emit(e protocol.Event) {
	frame, err := protocol.EncodeEvent(e)
	if err != nil {
		c.logger.Error("encode event", zap.Error(err))
		return
	}
	if !c.outbox.put(frame) {
		c.logger.Debug("context terminated, dropping event", zap.String("kind", string(e.Kind())))
	}
}

func requestID(cmd protocol.Command) string {
	if r, ok := cmd.(protocol.Run); ok {
		return r.ID
	}
	return ""
}
