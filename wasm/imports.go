// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"fmt"
	"io"

	"github.com/jeffasante/wasm-inspector/wasm/leb128"
)

// Import is an interface implemented by types that can be imported by a WebAssembly module.
type Import interface {
	Kind() External
	isImport()
}

// ImportEntry describes an import statement in a Wasm module.
type ImportEntry struct {
	Module   string // module name string
	Field    string // field name string
	Position int    // position within the import section

	// If Kind is Function, Type is a FuncImport containing the type index of the function signature
	// If Kind is Table, Type is a TableImport containing the type of the imported table
	// If Kind is Memory, Type is a MemoryImport containing the type of the imported memory
	// If the Kind is Global, Type is a GlobalVarImport
	Type Import
}

// QualifiedName returns the import's name in module.field form.
func (i ImportEntry) QualifiedName() string {
	return fmt.Sprintf("%s.%s", i.Module, i.Field)
}

type FuncImport struct {
	Type uint32
}

func (FuncImport) isImport() {}
func (FuncImport) Kind() External {
	return ExternalFunction
}

type TableImport struct {
	Type TableType
}

func (TableImport) isImport() {}
func (TableImport) Kind() External {
	return ExternalTable
}

type MemoryImport struct {
	Type MemoryType
}

func (MemoryImport) isImport() {}
func (MemoryImport) Kind() External {
	return ExternalMemory
}

type GlobalVarImport struct {
	Type GlobalType
}

func (GlobalVarImport) isImport() {}
func (GlobalVarImport) Kind() External {
	return ExternalGlobal
}

// UnmarshalWASM reads an import entry. Tag imports are consumed and leave
// i.Type nil.
func (i *ImportEntry) UnmarshalWASM(r io.Reader) error {
	var err error
	if i.Module, err = readUTF8StringUint(r); err != nil {
		return err
	}
	if i.Field, err = readUTF8StringUint(r); err != nil {
		return err
	}
	var kind External
	if err = kind.UnmarshalWASM(r); err != nil {
		return err
	}

	switch kind {
	case ExternalFunction:
		var t uint32
		if t, err = leb128.ReadVarUint32(r); err == nil {
			i.Type = FuncImport{t}
		}
	case ExternalTable:
		var table TableType
		if err = table.UnmarshalWASM(r); err == nil {
			i.Type = TableImport{table}
		}
	case ExternalMemory:
		var mem MemoryType
		if err = mem.UnmarshalWASM(r); err == nil {
			i.Type = MemoryImport{mem}
		}
	case ExternalGlobal:
		var gl GlobalType
		if err = gl.UnmarshalWASM(r); err == nil {
			i.Type = GlobalVarImport{gl}
		}
	case externalTag:
		err = skipTagType(r)
	}
	return err
}

// skipTagType consumes a tag's attribute byte and type index.
func skipTagType(r io.Reader) error {
	if _, err := readByte(r); err != nil {
		return err
	}
	_, err := leb128.ReadVarUint32(r)
	return err
}

// ExportEntry represents an exported entry by the module
type ExportEntry struct {
	Name     string
	Kind     External
	Index    uint32 // index in the index space of Kind
	Position int    // position within the export section
}

func (e *ExportEntry) UnmarshalWASM(r io.Reader) error {
	var err error
	if e.Name, err = readUTF8StringUint(r); err != nil {
		return err
	}
	if err = e.Kind.UnmarshalWASM(r); err != nil {
		return err
	}
	e.Index, err = leb128.ReadVarUint32(r)
	return err
}
