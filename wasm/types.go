package wasm

// Module is a WebAssembly module under construction. Function indices
// count imported functions first, as in the binary format.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // type indices of declared functions
	Memories []MemoryType
	Exports  []Export
	Code     []FuncBody
	Data     []DataSegment
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// ValType is a value type encoding.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Import is an imported function or memory. TypeIdx applies to functions,
// Memory to memories.
type Import struct {
	Memory  *MemoryType
	Module  string
	Name    string
	TypeIdx uint32
	Kind    byte
}

// MemoryType describes a linear memory in 64KiB pages.
type MemoryType struct {
	Max *uint32
	Min uint32
}

// Export describes an exported item.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// FuncBody is a function's locals and bytecode, including the final end.
type FuncBody struct {
	Locals []ValType
	Code   []byte
}

// DataSegment is an active segment for memory 0.
type DataSegment struct {
	Init   []byte
	Offset int32
}

// AddType adds ft unless an equal signature exists and returns its index.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, existing := range m.Types {
		if typesEqual(existing, ft) {
			return uint32(i)
		}
	}
	m.Types = append(m.Types, ft)
	return uint32(len(m.Types) - 1)
}

// ImportFunc imports module.name with signature ft and returns its function
// index. Imports must be added before any declared function.
func (m *Module) ImportFunc(module, name string, ft FuncType) uint32 {
	m.Imports = append(m.Imports, Import{
		Module:  module,
		Name:    name,
		Kind:    KindFunc,
		TypeIdx: m.AddType(ft),
	})
	return uint32(m.NumImportedFuncs() - 1)
}

// AddFunc declares a function and returns its index.
func (m *Module) AddFunc(ft FuncType, body FuncBody) uint32 {
	m.Funcs = append(m.Funcs, m.AddType(ft))
	m.Code = append(m.Code, body)
	return uint32(m.NumImportedFuncs() + len(m.Funcs) - 1)
}

// AddMemory declares a memory and returns its index.
func (m *Module) AddMemory(mem MemoryType) uint32 {
	m.Memories = append(m.Memories, mem)
	return uint32(len(m.Memories) - 1)
}

// ExportFunc exports function idx under name.
func (m *Module) ExportFunc(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindFunc, Idx: idx})
}

// ExportMemory exports memory idx under name.
func (m *Module) ExportMemory(name string, idx uint32) {
	m.Exports = append(m.Exports, Export{Name: name, Kind: KindMemory, Idx: idx})
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	n := 0
	for _, imp := range m.Imports {
		if imp.Kind == KindFunc {
			n++
		}
	}
	return n
}

func typesEqual(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
