package engine

import "time"

const (
	// DefaultRunExport is the entry point called by Run.
	DefaultRunExport = "runProveAndVerify"

	// DefaultInitExport is called once after instantiation when exported.
	DefaultInitExport = "_initialize"

	// DefaultResultMessage is returned by a successful run.
	DefaultResultMessage = "Proof verified"

	// DefaultMemoryLimitPages caps guest memory at 4GiB (64KiB pages).
	DefaultMemoryLimitPages = 65536
)

// Config describes the module an engine loads.
type Config struct {
	// Path of the .wasm file, read during Initialize.
	Path string

	// Wasm holds the module binary. It takes precedence over Path.
	Wasm []byte

	// InitExport is called after instantiation if the module exports it.
	InitExport string

	// RunExport is the nullary computation entry point.
	RunExport string

	// ResultMessage is the payload of a successful run.
	ResultMessage string

	// MemoryLimitPages bounds guest memory. A module whose memory
	// requirement exceeds it fails to initialize.
	MemoryLimitPages uint32

	// RunTimeout interrupts a run that takes longer. Zero means no limit.
	RunTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.InitExport == "" {
		c.InitExport = DefaultInitExport
	}
	if c.RunExport == "" {
		c.RunExport = DefaultRunExport
	}
	if c.ResultMessage == "" {
		c.ResultMessage = DefaultResultMessage
	}
	if c.MemoryLimitPages == 0 || c.MemoryLimitPages > DefaultMemoryLimitPages {
		c.MemoryLimitPages = DefaultMemoryLimitPages
	}
	return c
}
