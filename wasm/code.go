package wasm

import "bytes"

// Body concatenates instructions and appends the closing end opcode.
func Body(instrs ...[]byte) FuncBody {
	var b bytes.Buffer
	for _, in := range instrs {
		b.Write(in)
	}
	b.WriteByte(OpEnd)
	return FuncBody{Code: b.Bytes()}
}

// I32Const pushes v.
func I32Const(v int32) []byte {
	var b bytes.Buffer
	b.WriteByte(OpI32Const)
	WriteLEB128s(&b, v)
	return b.Bytes()
}

// Call calls function idx.
func Call(idx uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(OpCall)
	WriteLEB128u(&b, idx)
	return b.Bytes()
}

// LocalGet pushes local idx.
func LocalGet(idx uint32) []byte {
	var b bytes.Buffer
	b.WriteByte(OpLocalGet)
	WriteLEB128u(&b, idx)
	return b.Bytes()
}

// MemoryGrow grows memory 0 by the page count on the stack.
func MemoryGrow() []byte { return []byte{OpMemoryGrow, 0x00} }

// Drop discards the top of the stack.
func Drop() []byte { return []byte{OpDrop} }

// Unreachable traps.
func Unreachable() []byte { return []byte{OpUnreachable} }

// Return returns from the current function.
func Return() []byte { return []byte{OpReturn} }

// Forever is an empty loop that branches to itself and never exits.
func Forever() []byte {
	return []byte{OpLoop, BlockTypeVoid, OpBr, 0x00, OpEnd}
}
