package offload

import "context"

// Module is the computational unit owned by an execution context.
// Both entry points may be long-running and may fail; implementations are
// called from one goroutine at a time.
type Module interface {
	Initialize(ctx context.Context) error
	Run(ctx context.Context) (string, error)
}

// Closer is implemented by modules holding resources that must be released
// when their execution context terminates.
type Closer interface {
	Close(ctx context.Context) error
}

// ModuleFuncs adapts plain functions to Module.
// A nil InitFunc succeeds; a nil RunFunc returns an empty result.
type ModuleFuncs struct {
	InitFunc  func(ctx context.Context) error
	RunFunc   func(ctx context.Context) (string, error)
	CloseFunc func(ctx context.Context) error
}

func (m ModuleFuncs) Initialize(ctx context.Context) error {
	if m.InitFunc == nil {
		return nil
	}
	return m.InitFunc(ctx)
}

func (m ModuleFuncs) Run(ctx context.Context) (string, error) {
	if m.RunFunc == nil {
		return "", nil
	}
	return m.RunFunc(ctx)
}

func (m ModuleFuncs) Close(ctx context.Context) error {
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc(ctx)
}

var (
	_ Module = ModuleFuncs{}
	_ Closer = ModuleFuncs{}
)
