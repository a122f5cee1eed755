package engine

import "github.com/wippyai/wasm-offload/wasm"

// DemoBehavior selects what the run export of a demo module does.
type DemoBehavior int

const (
	DemoVerify      DemoBehavior = iota // logs and returns status 0
	DemoReject                          // returns status 1
	DemoTrap                            // executes unreachable
	DemoSpin                            // loops until interrupted
	DemoFailingInit                     // traps in the init export
)

const demoMessage = "proving circuit: 2^16 constraints"

// DemoWasm builds a small prover stand-in with an init export, a run export
// named DefaultRunExport and an env.log import. minPages sets the initial
// memory size; at least one page is always declared.
func DemoWasm(behavior DemoBehavior, minPages uint32) []byte {
	if minPages == 0 {
		minPages = 1
	}

	m := &wasm.Module{}
	log := m.ImportFunc("env", "log", wasm.FuncType{Params: []wasm.ValType{wasm.ValI32, wasm.ValI32}})
	m.ExportMemory("memory", m.AddMemory(wasm.MemoryType{Min: minPages}))
	m.Data = append(m.Data, wasm.DataSegment{Offset: 0, Init: []byte(demoMessage)})

	init := wasm.Body()
	if behavior == DemoFailingInit {
		init = wasm.Body(wasm.Unreachable())
	}
	m.ExportFunc(DefaultInitExport, m.AddFunc(wasm.FuncType{}, init))

	logCall := [][]byte{wasm.I32Const(0), wasm.I32Const(int32(len(demoMessage))), wasm.Call(log)}
	var run wasm.FuncBody
	switch behavior {
	case DemoReject:
		run = wasm.Body(append(logCall, wasm.I32Const(1))...)
	case DemoTrap:
		run = wasm.Body(append(logCall, wasm.Unreachable())...)
	case DemoSpin:
		run = wasm.Body(wasm.Forever(), wasm.I32Const(0))
	default:
		run = wasm.Body(append(logCall, wasm.I32Const(0))...)
	}
	m.ExportFunc(DefaultRunExport, m.AddFunc(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}}, run))

	return m.Encode()
}

// ParseDemoBehavior maps a behavior name used in configuration.
func ParseDemoBehavior(s string) (DemoBehavior, bool) {
	switch s {
	case "verify", "":
		return DemoVerify, true
	case "reject":
		return DemoReject, true
	case "trap":
		return DemoTrap, true
	case "spin":
		return DemoSpin, true
	case "failing-init":
		return DemoFailingInit, true
	default:
		return DemoVerify, false
	}
}
