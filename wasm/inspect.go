package wasm

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// Summary is the externally visible shape of a module.
type Summary struct {
	Imports   []Import
	Exports   []Export
	Memories  []MemoryType
	NumFuncs  int // declared, excluding imports
	TotalSize int
}

// HasFunc reports whether a function is exported under name.
func (s *Summary) HasFunc(name string) bool {
	for _, e := range s.Exports {
		if e.Kind == KindFunc && e.Name == name {
			return true
		}
	}
	return false
}

// FuncExports returns the names of exported functions in export order.
func (s *Summary) FuncExports() []string {
	var names []string
	for _, e := range s.Exports {
		if e.Kind == KindFunc {
			names = append(names, e.Name)
		}
	}
	return names
}

// MinPages returns the initial page count of the first defined or imported
// memory, or zero when the module has none.
func (s *Summary) MinPages() uint32 {
	if len(s.Memories) > 0 {
		return s.Memories[0].Min
	}
	for _, imp := range s.Imports {
		if imp.Kind == KindMemory && imp.Memory != nil {
			return imp.Memory.Min
		}
	}
	return 0
}

// Inspect reads the import, function, memory and export sections of a
// binary module. Other sections are skipped without validation.
func Inspect(data []byte) (*Summary, error) {
	r := bytes.NewReader(data)

	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	if binary.LittleEndian.Uint32(hdr[:4]) != Magic {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(hdr[4:]) != Version {
		return nil, ErrInvalidVersion
	}

	s := &Summary{TotalSize: len(data)}
	for {
		id, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			return s, nil
		}
		if err != nil {
			return nil, fmt.Errorf("section header: %w", err)
		}
		size, err := ReadLEB128u(r)
		if err != nil {
			return nil, fmt.Errorf("section size: %w", err)
		}
		if int(size) > r.Len() {
			return nil, fmt.Errorf("section %d: size %d exceeds remaining %d bytes", id, size, r.Len())
		}
		payload := make([]byte, size)
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
		sr := bytes.NewReader(payload)

		switch id {
		case SectionImport:
			if err := readImports(sr, s); err != nil {
				return nil, fmt.Errorf("import section: %w", err)
			}
		case SectionFunction:
			n, err := ReadLEB128u(sr)
			if err != nil {
				return nil, fmt.Errorf("function section: %w", err)
			}
			s.NumFuncs = int(n)
		case SectionMemory:
			if err := readMemories(sr, s); err != nil {
				return nil, fmt.Errorf("memory section: %w", err)
			}
		case SectionExport:
			if err := readExports(sr, s); err != nil {
				return nil, fmt.Errorf("export section: %w", err)
			}
		}
	}
}

func readName(r *bytes.Reader) (string, error) {
	n, err := ReadLEB128u(r)
	if err != nil {
		return "", err
	}
	if int(n) > r.Len() {
		return "", fmt.Errorf("name length %d exceeds section", n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func readLimits(r *bytes.Reader) (MemoryType, error) {
	flag, err := r.ReadByte()
	if err != nil {
		return MemoryType{}, err
	}
	min, err := ReadLEB128u(r)
	if err != nil {
		return MemoryType{}, err
	}
	mem := MemoryType{Min: min}
	if flag&0x01 != 0 {
		max, err := ReadLEB128u(r)
		if err != nil {
			return MemoryType{}, err
		}
		mem.Max = &max
	}
	return mem, nil
}

func readImports(r *bytes.Reader, s *Summary) error {
	count, err := ReadLEB128u(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = readName(r); err != nil {
			return err
		}
		if imp.Name, err = readName(r); err != nil {
			return err
		}
		if imp.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		switch imp.Kind {
		case KindFunc:
			if imp.TypeIdx, err = ReadLEB128u(r); err != nil {
				return err
			}
		case KindTable:
			if _, err := r.ReadByte(); err != nil { // element type
				return err
			}
			if _, err := readLimits(r); err != nil {
				return err
			}
		case KindMemory:
			mem, err := readLimits(r)
			if err != nil {
				return err
			}
			imp.Memory = &mem
		case KindGlobal:
			if _, err := r.ReadByte(); err != nil { // value type
				return err
			}
			if _, err := r.ReadByte(); err != nil { // mutability
				return err
			}
		default:
			return fmt.Errorf("import %s.%s: unsupported kind %d", imp.Module, imp.Name, imp.Kind)
		}
		s.Imports = append(s.Imports, imp)
	}
	return nil
}

func readMemories(r *bytes.Reader, s *Summary) error {
	count, err := ReadLEB128u(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		mem, err := readLimits(r)
		if err != nil {
			return err
		}
		s.Memories = append(s.Memories, mem)
	}
	return nil
}

func readExports(r *bytes.Reader, s *Summary) error {
	count, err := ReadLEB128u(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		var exp Export
		if exp.Name, err = readName(r); err != nil {
			return err
		}
		if exp.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if exp.Idx, err = ReadLEB128u(r); err != nil {
			return err
		}
		s.Exports = append(s.Exports, exp)
	}
	return nil
}
