package engine

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	offload "github.com/wippyai/wasm-offload"
	"github.com/wippyai/wasm-offload/errors"
	"github.com/wippyai/wasm-offload/wasm"
)

// Module is a wazero-backed offload.Module. Each Module owns its runtime;
// nothing is shared between modules.
type Module struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	instance api.Module
	run      api.Function
	logger   *zap.Logger
	cfg      Config
	mu       sync.Mutex
	closed   bool
}

var (
	_ offload.Module = (*Module)(nil)
	_ offload.Closer = (*Module)(nil)
)

// New creates an engine module. No work happens until Initialize.
func New(cfg Config) *Module {
	cfg = cfg.withDefaults()
	return &Module{
		cfg:    cfg,
		logger: Logger().With(zap.String("export", cfg.RunExport)),
	}
}

// Initialize loads, compiles and instantiates the module. Calling it again
// after success is a no-op. A failed attempt leaves nothing behind, so it
// can be retried. Once Close has run, Initialize fails.
func (m *Module) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return errors.ContextLost("", "module closed")
	}
	if m.instance != nil {
		return nil
	}

	bin, err := m.load()
	if err != nil {
		return err
	}

	summary, err := wasm.Inspect(bin)
	if err != nil {
		return errors.Load("inspect module", err)
	}
	if !summary.HasFunc(m.cfg.RunExport) {
		return errors.NotFound(errors.PhaseLoad, "export", m.cfg.RunExport)
	}
	if pages := summary.MinPages(); pages > m.cfg.MemoryLimitPages {
		return errors.New(errors.PhaseInit, errors.KindInitFault).
			Detail("resource exhausted: module needs %d memory pages, limit is %d", pages, m.cfg.MemoryLimitPages).
			Build()
	}

	start := time.Now()
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(m.cfg.MemoryLimitPages))

	compiled, err := m.compile(ctx, rt, bin)
	if err != nil {
		_ = rt.Close(ctx)
		return err
	}
	inst, err := m.instantiate(ctx, rt, compiled)
	if err != nil {
		_ = rt.Close(ctx)
		return err
	}

	m.runtime = rt
	m.compiled = compiled
	m.instance = inst
	m.run = inst.ExportedFunction(m.cfg.RunExport)
	m.logger.Info("module initialized",
		zap.Int("bytes", summary.TotalSize),
		zap.Uint32("min_pages", summary.MinPages()),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *Module) load() ([]byte, error) {
	if len(m.cfg.Wasm) > 0 {
		return m.cfg.Wasm, nil
	}
	if m.cfg.Path == "" {
		return nil, errors.InvalidInput(errors.PhaseLoad, "no module binary or path configured")
	}
	bin, err := os.ReadFile(m.cfg.Path)
	if err != nil {
		return nil, errors.Load("read "+m.cfg.Path, err)
	}
	return bin, nil
}

func (m *Module) compile(ctx context.Context, rt wazero.Runtime, bin []byte) (wazero.CompiledModule, error) {
	_, err := rt.NewHostModuleBuilder("env").
		NewFunctionBuilder().
		WithFunc(m.guestLog).
		Export("log").
		Instantiate(ctx)
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseInit, errors.KindInvalidData, err, "compile module")
	}
	return compiled, nil
}

// instantiate creates an instance and calls the init export.
func (m *Module) instantiate(ctx context.Context, rt wazero.Runtime, compiled wazero.CompiledModule) (api.Module, error) {
	inst, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().
		WithName("").
		WithStartFunctions())
	if err != nil {
		return nil, errors.Instantiation(err)
	}

	if init := inst.ExportedFunction(m.cfg.InitExport); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = inst.Close(ctx)
			return nil, newTrap(m.cfg.InitExport, err)
		}
	}
	return inst, nil
}

// current returns the run export, replacing an instance that an interrupted
// call closed.
func (m *Module) current(ctx context.Context) (api.Function, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.instance == nil {
		return nil, errors.NotInitialized(errors.PhaseRun, "module")
	}
	if !m.instance.IsClosed() {
		return m.run, nil
	}

	inst, err := m.instantiate(ctx, m.runtime, m.compiled)
	if err != nil {
		return nil, err
	}
	m.logger.Debug("instance replaced after interruption")
	m.instance = inst
	m.run = inst.ExportedFunction(m.cfg.RunExport)
	return m.run, nil
}

func (m *Module) guestLog(_ context.Context, mod api.Module, ptr, length uint32) {
	mem := mod.Memory()
	if mem == nil {
		return
	}
	data, ok := mem.Read(ptr, length)
	if !ok {
		m.logger.Warn("guest log out of bounds", zap.Uint32("ptr", ptr), zap.Uint32("len", length))
		return
	}
	m.logger.Info(string(data), zap.String("source", "guest"))
}

// Run calls the run export and returns the result message on success.
func (m *Module) Run(ctx context.Context) (string, error) {
	run, err := m.current(ctx)
	if err != nil {
		return "", err
	}

	if m.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RunTimeout)
		defer cancel()
	}

	results, err := run.Call(ctx)
	if err != nil {
		return "", newTrap(m.cfg.RunExport, err)
	}
	if len(results) > 0 && run.Definition().ResultTypes()[0] == api.ValueTypeI32 {
		if code := api.DecodeI32(results[0]); code != 0 {
			return "", &StatusError{Export: m.cfg.RunExport, Code: code}
		}
	}
	return m.cfg.ResultMessage, nil
}

// Close releases the runtime. The module cannot be initialized again.
func (m *Module) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	if m.runtime == nil {
		return nil
	}
	err := m.runtime.Close(ctx)
	m.runtime = nil
	m.compiled = nil
	m.instance = nil
	m.run = nil
	return err
}
