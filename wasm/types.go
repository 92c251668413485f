// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeffasante/wasm-inspector/wasm/code"
	"github.com/jeffasante/wasm-inspector/wasm/leb128"
)

// ValueType represents the type of a valid value in Wasm
type ValueType byte

const (
	ValueTypeI32       ValueType = code.ValueTypeI32
	ValueTypeI64       ValueType = code.ValueTypeI64
	ValueTypeF32       ValueType = code.ValueTypeF32
	ValueTypeF64       ValueType = code.ValueTypeF64
	ValueTypeV128      ValueType = code.ValueTypeV128
	ValueTypeFuncref   ValueType = code.ValueTypeFuncref
	ValueTypeExternref ValueType = code.ValueTypeExternref
)

var valueTypeStrMap = map[ValueType]string{
	ValueTypeI32:       "i32",
	ValueTypeI64:       "i64",
	ValueTypeF32:       "f32",
	ValueTypeF64:       "f64",
	ValueTypeV128:      "v128",
	ValueTypeFuncref:   "funcref",
	ValueTypeExternref: "externref",
}

func (t ValueType) String() string {
	str, ok := valueTypeStrMap[t]
	if !ok {
		str = fmt.Sprintf("<unknown value_type 0x%02x>", byte(t))
	}
	return str
}

func (t *ValueType) UnmarshalWASM(r io.Reader) error {
	v, err := readByte(r)
	if err != nil {
		return err
	}
	if !code.IsValueType(v) {
		return errorf(KindMalformedSection, "invalid value type 0x%02x", v)
	}
	*t = ValueType(v)
	return nil
}

// External describes the kind of the entry being imported or exported.
type External uint8

const (
	ExternalFunction External = 0
	ExternalTable    External = 1
	ExternalMemory   External = 2
	ExternalGlobal   External = 3

	// Exception-handling tags. These are decoded and then dropped.
	externalTag External = 4
)

func (e External) String() string {
	switch e {
	case ExternalFunction:
		return "function"
	case ExternalTable:
		return "table"
	case ExternalMemory:
		return "memory"
	case ExternalGlobal:
		return "global"
	case externalTag:
		return "tag"
	default:
		return "<unknown external_kind>"
	}
}

func (e *External) UnmarshalWASM(r io.Reader) error {
	v, err := readByte(r)
	if err != nil {
		return err
	}
	if v > byte(externalTag) {
		return errorf(KindMalformedSection, "invalid external_kind value %d", v)
	}
	*e = External(v)
	return nil
}

// FunctionSig describes the signature of a declared function in a WASM module
type FunctionSig struct {
	ParamTypes  []ValueType
	ReturnTypes []ValueType
}

func (f FunctionSig) String() string {
	var b strings.Builder
	writeTypes := func(types []ValueType) {
		b.WriteByte('(')
		for i, t := range types {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(t.String())
		}
		b.WriteByte(')')
	}
	writeTypes(f.ParamTypes)
	b.WriteString(" -> ")
	writeTypes(f.ReturnTypes)
	return b.String()
}

// typeFormFunc is the leading byte of every function type.
const typeFormFunc = 0x60

func (f *FunctionSig) UnmarshalWASM(r io.Reader) error {
	form, err := readByte(r)
	if err != nil {
		return err
	}
	if form != typeFormFunc {
		return errorf(KindMalformedSection, "unsupported type form 0x%02x", form)
	}

	if f.ParamTypes, err = readValueTypes(r); err != nil {
		return err
	}
	f.ReturnTypes, err = readValueTypes(r)
	return err
}

func readValueTypes(r io.Reader) ([]ValueType, error) {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	types := make([]ValueType, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var t ValueType
		if err := t.UnmarshalWASM(r); err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}

// Limits describes the size bounds of a table or memory.
type Limits struct {
	Min    uint64
	Max    *uint64 // nil when unbounded
	Shared bool
	Is64   bool
}

const (
	limitsHasMax = 1 << iota
	limitsShared
	limitsIs64
)

func (l *Limits) UnmarshalWASM(r io.Reader) error {
	flags, err := readByte(r)
	if err != nil {
		return err
	}
	if flags&^(limitsHasMax|limitsShared|limitsIs64) != 0 {
		return errorf(KindMalformedSection, "invalid limits flags 0x%02x", flags)
	}
	l.Shared = flags&limitsShared != 0
	l.Is64 = flags&limitsIs64 != 0

	if l.Min, err = l.readBound(r); err != nil {
		return err
	}
	if flags&limitsHasMax != 0 {
		hi, err := l.readBound(r)
		if err != nil {
			return err
		}
		l.Max = &hi
	}
	return nil
}

func (l *Limits) readBound(r io.Reader) (uint64, error) {
	if l.Is64 {
		return leb128.ReadVarUint64(r)
	}
	v, err := leb128.ReadVarUint32(r)
	return uint64(v), err
}

// TableType describes the element type and size of a table.
type TableType struct {
	ElementType ValueType
	Limits      Limits
}

func (t *TableType) UnmarshalWASM(r io.Reader) error {
	if err := t.ElementType.UnmarshalWASM(r); err != nil {
		return err
	}
	if t.ElementType != ValueTypeFuncref && t.ElementType != ValueTypeExternref {
		return errorf(KindMalformedSection, "invalid table element type %v", t.ElementType)
	}
	return t.Limits.UnmarshalWASM(r)
}

// MemoryType describes the size of a linear memory in pages.
type MemoryType struct {
	Limits Limits
}

func (m *MemoryType) UnmarshalWASM(r io.Reader) error {
	return m.Limits.UnmarshalWASM(r)
}

// GlobalType describes the value type and mutability of a global variable.
type GlobalType struct {
	Type    ValueType
	Mutable bool
}

func (g *GlobalType) UnmarshalWASM(r io.Reader) error {
	if err := g.Type.UnmarshalWASM(r); err != nil {
		return err
	}
	m, err := readByte(r)
	if err != nil {
		return err
	}
	if m > 1 {
		return errorf(KindMalformedSection, "invalid global mutability %d", m)
	}
	g.Mutable = m == 1
	return nil
}

// LocalEntry declares Count locals of the same type.
type LocalEntry struct {
	Count uint32    // The total number of local variables of the given Type used in the function body
	Type  ValueType // The type of value stored by the variable
}

func (l *LocalEntry) UnmarshalWASM(r io.Reader) error {
	var err error
	if l.Count, err = leb128.ReadVarUint32(r); err != nil {
		return err
	}
	return l.Type.UnmarshalWASM(r)
}
