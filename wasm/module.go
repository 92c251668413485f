// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package wasm decodes WebAssembly binary modules into a flat representation
// in which every cross-section reference uses the unified index space of its
// kind: imports first, in import order, followed by local definitions.
package wasm

import (
	"bytes"
	"fmt"
	"io"

	"github.com/jeffasante/wasm-inspector/wasm/code"
	"github.com/jeffasante/wasm-inspector/wasm/internal/readpos"
)

const (
	Magic   uint32 = 0x6d736100
	Version uint32 = 0x1
)

// SectionHeader records the location of a section within the module binary.
type SectionHeader struct {
	ID    SectionID
	Start int64 // offset of the first payload byte
	End   int64 // offset just past the payload
	Size  uint32
}

// Function is a function defined (not imported) by a module.
type Function struct {
	Index      uint32 // index in the function index space
	Type       uint32 // index into Module.Types
	Locals     []LocalEntry
	BodySize   uint32 // bytes of code following the local declarations
	IsImported bool   // always false; present for symmetry with call graph nodes
	IsExported bool
	Name       string // empty if no name could be resolved
	Metrics    code.Metrics
}

// Table is a table defined by a module.
type Table struct {
	Index      uint32
	Type       TableType
	IsExported bool
}

// Memory describes a linear memory.
type Memory struct {
	Index      uint32
	Type       MemoryType
	IsImported bool
	IsExported bool
}

// Global is a global variable defined by a module.
type Global struct {
	Index      uint32
	Type       GlobalType
	Init       ConstExpr
	IsExported bool
}

// ElementMode describes how an element segment is applied.
type ElementMode uint8

const (
	ElementModeActive ElementMode = iota
	ElementModePassive
	ElementModeDeclarative
)

func (m ElementMode) String() string {
	switch m {
	case ElementModeActive:
		return "active"
	case ElementModePassive:
		return "passive"
	case ElementModeDeclarative:
		return "declarative"
	default:
		return fmt.Sprintf("ElementMode(%d)", uint8(m))
	}
}

// ElementSegment describes the initial contents of a range of table elements.
type ElementSegment struct {
	Index  uint32
	Mode   ElementMode
	Table  *uint32 // set for active segments
	Offset *uint32 // set for active segments whose offset is a single i32.const
	Type   ValueType
	Funcs  []uint32 // function indices referenced by the segment
	Count  uint32   // number of elements in the segment
}

// DataSegment describes a group of bytes used to initialize linear memory.
type DataSegment struct {
	Index   uint32
	Memory  uint32
	Offset  *uint32 // set for active segments whose offset is a single i32.const
	Size    uint32
	Passive bool
}

// CustomSection records the name and payload size of a custom section.
type CustomSection struct {
	Name string
	Size uint32
}

// CallFact records one direct call instruction.
type CallFact struct {
	Caller uint32
	Callee uint32
}

// Module represents a decoded WebAssembly module:
// http://webassembly.org/docs/modules/
type Module struct {
	Version  uint32
	Sections []SectionHeader

	Types     []FunctionSig
	Imports   []ImportEntry
	Exports   []ExportEntry
	Functions []Function // defined functions, in declaration order
	Memory    *Memory    // memory 0, imported or defined
	Tables    []Table    // defined tables
	Globals   []Global   // defined globals
	Data      []DataSegment
	Elements  []ElementSegment
	Start     *uint32
	Customs   []CustomSection
	Calls     []CallFact
	Names     NameMap
}

// ImportCount returns the number of imports of the given kind.
func (m *Module) ImportCount(kind External) uint32 {
	n := uint32(0)
	for _, i := range m.Imports {
		if i.Type.Kind() == kind {
			n++
		}
	}
	return n
}

// FunctionCount returns the size of the function index space.
func (m *Module) FunctionCount() uint32 {
	return m.ImportCount(ExternalFunction) + uint32(len(m.Functions))
}

// FunctionImports returns the function imports in index order.
func (m *Module) FunctionImports() []ImportEntry {
	var imports []ImportEntry
	for _, i := range m.Imports {
		if i.Type.Kind() == ExternalFunction {
			imports = append(imports, i)
		}
	}
	return imports
}

// Function returns the defined function with the given index, or nil if the
// index does not refer to a defined function.
func (m *Module) Function(index uint32) *Function {
	imported := m.ImportCount(ExternalFunction)
	if index < imported || index-imported >= uint32(len(m.Functions)) {
		return nil
	}
	return &m.Functions[index-imported]
}

// Signature returns the signature of f, or nil if f's type index is out of range.
func (m *Module) Signature(f *Function) *FunctionSig {
	if int(f.Type) >= len(m.Types) {
		return nil
	}
	return &m.Types[f.Type]
}

// Custom returns the first custom section with a specific name, if it exists.
func (m *Module) Custom(name string) *CustomSection {
	for i := range m.Customs {
		if m.Customs[i].Name == name {
			return &m.Customs[i]
		}
	}
	return nil
}

// Decode decodes a WASM module held in b.
func Decode(b []byte) (*Module, error) {
	return DecodeModule(bytes.NewReader(b))
}

// DecodeModule decodes a WASM module. Every failure is reported as a
// *DecodeError.
func DecodeModule(r io.Reader) (*Module, error) {
	reader := &readpos.ReadPos{
		R:      r,
		CurPos: 0,
	}
	magic, err := readU32(reader)
	if err != nil {
		return nil, &DecodeError{Kind: KindBadHeader, Offset: reader.CurPos, Detail: "missing magic header", Err: err}
	}
	if magic != Magic {
		return nil, &DecodeError{Kind: KindBadHeader, Detail: "magic header not detected"}
	}
	version, err := readU32(reader)
	if err != nil {
		return nil, &DecodeError{Kind: KindBadHeader, Offset: reader.CurPos, Detail: "missing version", Err: err}
	}
	if version != Version {
		return nil, &DecodeError{Kind: KindBadHeader, Offset: 4, Detail: fmt.Sprintf("unknown binary version %d", version)}
	}

	m := &Module{Version: version}
	if err = newSectionsReader(m).readSections(reader); err != nil {
		return nil, err
	}
	return m, nil
}
