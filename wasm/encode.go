package wasm

import (
	"bytes"
	"encoding/binary"
)

// section accumulates one section payload.
type section struct {
	bytes.Buffer
}

func (s *section) u32(v uint32) { WriteLEB128u(&s.Buffer, v) }

func (s *section) name(n string) {
	s.u32(uint32(len(n)))
	s.WriteString(n)
}

func (s *section) valTypes(types []ValType) {
	s.u32(uint32(len(types)))
	for _, t := range types {
		s.WriteByte(byte(t))
	}
}

func (s *section) memory(m MemoryType) {
	if m.Max != nil {
		s.WriteByte(0x01)
		s.u32(m.Min)
		s.u32(*m.Max)
		return
	}
	s.WriteByte(0x00)
	s.u32(m.Min)
}

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	var out bytes.Buffer
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[:4], Magic)
	binary.LittleEndian.PutUint32(hdr[4:], Version)
	out.Write(hdr[:])

	if len(m.Types) > 0 {
		var s section
		s.u32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			s.WriteByte(FuncTypeByte)
			s.valTypes(ft.Params)
			s.valTypes(ft.Results)
		}
		writeSection(&out, SectionType, &s)
	}

	if len(m.Imports) > 0 {
		var s section
		s.u32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			s.name(imp.Module)
			s.name(imp.Name)
			s.WriteByte(imp.Kind)
			switch imp.Kind {
			case KindFunc:
				s.u32(imp.TypeIdx)
			case KindMemory:
				var mem MemoryType
				if imp.Memory != nil {
					mem = *imp.Memory
				}
				s.memory(mem)
			}
		}
		writeSection(&out, SectionImport, &s)
	}

	if len(m.Funcs) > 0 {
		var s section
		s.u32(uint32(len(m.Funcs)))
		for _, idx := range m.Funcs {
			s.u32(idx)
		}
		writeSection(&out, SectionFunction, &s)
	}

	if len(m.Memories) > 0 {
		var s section
		s.u32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			s.memory(mem)
		}
		writeSection(&out, SectionMemory, &s)
	}

	if len(m.Exports) > 0 {
		var s section
		s.u32(uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			s.name(exp.Name)
			s.WriteByte(exp.Kind)
			s.u32(exp.Idx)
		}
		writeSection(&out, SectionExport, &s)
	}

	if len(m.Code) > 0 {
		var s section
		s.u32(uint32(len(m.Code)))
		for _, body := range m.Code {
			var b section
			b.u32(uint32(len(body.Locals)))
			for _, l := range body.Locals {
				b.u32(1)
				b.WriteByte(byte(l))
			}
			b.Write(body.Code)
			s.u32(uint32(b.Len()))
			s.Write(b.Bytes())
		}
		writeSection(&out, SectionCode, &s)
	}

	if len(m.Data) > 0 {
		var s section
		s.u32(uint32(len(m.Data)))
		for _, d := range m.Data {
			s.u32(0) // active, memory 0
			s.Write(I32Const(d.Offset))
			s.WriteByte(OpEnd)
			s.u32(uint32(len(d.Init)))
			s.Write(d.Init)
		}
		writeSection(&out, SectionData, &s)
	}

	return out.Bytes()
}

func writeSection(out *bytes.Buffer, id byte, s *section) {
	out.WriteByte(id)
	WriteLEB128u(out, uint32(s.Len()))
	out.Write(s.Bytes())
}
