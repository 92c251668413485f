// Package wasmtest builds small WebAssembly binaries for tests.
package wasmtest

import (
	"sort"

	"github.com/jeffasante/wasm-inspector/wasm/leb128"
)

// Value types and external kinds as encoded in the binary format.
const (
	I32       byte = 0x7f
	I64       byte = 0x7e
	F32       byte = 0x7d
	F64       byte = 0x7c
	Funcref   byte = 0x70
	Externref byte = 0x6f

	KindFunc   byte = 0x00
	KindTable  byte = 0x01
	KindMemory byte = 0x02
	KindGlobal byte = 0x03
)

// Builder accumulates the sections of a module. Sections are emitted in the
// order the binary format requires, regardless of the order of calls.
type Builder struct {
	types    [][]byte
	imports  [][]byte
	funcs    []uint32
	bodies   [][]byte
	tables   [][]byte
	memories [][]byte
	globals  [][]byte
	exports  [][]byte
	start    *uint32
	elements [][]byte
	data     [][]byte
	customs  [][]byte
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{}
}

func appendName(b []byte, s string) []byte {
	b = leb128.AppendVarUint32(b, uint32(len(s)))
	return append(b, s...)
}

func appendVec(b []byte, items [][]byte) []byte {
	b = leb128.AppendVarUint32(b, uint32(len(items)))
	for _, item := range items {
		b = append(b, item...)
	}
	return b
}

// Type adds a function type.
func (b *Builder) Type(params, results []byte) *Builder {
	entry := []byte{0x60}
	entry = leb128.AppendVarUint32(entry, uint32(len(params)))
	entry = append(entry, params...)
	entry = leb128.AppendVarUint32(entry, uint32(len(results)))
	entry = append(entry, results...)
	b.types = append(b.types, entry)
	return b
}

func (b *Builder) addImport(module, field string, kind byte, desc ...byte) *Builder {
	entry := appendName(nil, module)
	entry = appendName(entry, field)
	entry = append(entry, kind)
	entry = append(entry, desc...)
	b.imports = append(b.imports, entry)
	return b
}

// ImportFunc adds a function import.
func (b *Builder) ImportFunc(module, field string, typeIdx uint32) *Builder {
	return b.addImport(module, field, KindFunc, leb128.AppendVarUint32(nil, typeIdx)...)
}

// ImportMemory adds a memory import with no maximum.
func (b *Builder) ImportMemory(module, field string, min uint32) *Builder {
	return b.addImport(module, field, KindMemory, limits(min, nil)...)
}

// ImportTable adds a funcref table import with no maximum.
func (b *Builder) ImportTable(module, field string, min uint32) *Builder {
	return b.addImport(module, field, KindTable, append([]byte{Funcref}, limits(min, nil)...)...)
}

// ImportGlobal adds an immutable global import.
func (b *Builder) ImportGlobal(module, field string, t byte) *Builder {
	return b.addImport(module, field, KindGlobal, t, 0x00)
}

// ImportTag adds an exception-handling tag import.
func (b *Builder) ImportTag(module, field string, typeIdx uint32) *Builder {
	return b.addImport(module, field, 0x04, append([]byte{0x00}, leb128.AppendVarUint32(nil, typeIdx)...)...)
}

func limits(min uint32, max *uint32) []byte {
	if max == nil {
		return leb128.AppendVarUint32([]byte{0x00}, min)
	}
	l := leb128.AppendVarUint32([]byte{0x01}, min)
	return leb128.AppendVarUint32(l, *max)
}

// Function adds a defined function without locals. The final end is appended
// to instrs.
func (b *Builder) Function(typeIdx uint32, instrs ...byte) *Builder {
	body := []byte{0x00}
	body = append(body, instrs...)
	body = append(body, 0x0b)
	return b.RawFunction(typeIdx, body)
}

// RawFunction adds a defined function whose body (local declarations and
// instructions) is used verbatim.
func (b *Builder) RawFunction(typeIdx uint32, body []byte) *Builder {
	b.funcs = append(b.funcs, typeIdx)
	b.bodies = append(b.bodies, body)
	return b
}

// Table adds a funcref table with no maximum.
func (b *Builder) Table(min uint32) *Builder {
	b.tables = append(b.tables, append([]byte{Funcref}, limits(min, nil)...))
	return b
}

// Memory adds a linear memory. A nil max leaves the memory unbounded.
func (b *Builder) Memory(min uint32, max *uint32) *Builder {
	b.memories = append(b.memories, limits(min, max))
	return b
}

// Global adds a global initialized by init, which must not include the final end.
func (b *Builder) Global(t byte, mutable bool, init ...byte) *Builder {
	entry := []byte{t, 0x00}
	if mutable {
		entry[1] = 0x01
	}
	entry = append(entry, init...)
	entry = append(entry, 0x0b)
	b.globals = append(b.globals, entry)
	return b
}

// Export adds an export of the given kind.
func (b *Builder) Export(name string, kind byte, index uint32) *Builder {
	entry := appendName(nil, name)
	entry = append(entry, kind)
	entry = leb128.AppendVarUint32(entry, index)
	b.exports = append(b.exports, entry)
	return b
}

// ExportFunc adds a function export.
func (b *Builder) ExportFunc(name string, index uint32) *Builder {
	return b.Export(name, KindFunc, index)
}

// Start sets the start function.
func (b *Builder) Start(index uint32) *Builder {
	b.start = &index
	return b
}

// Element adds an active element segment for table 0 at the given offset.
func (b *Builder) Element(offset int32, funcs ...uint32) *Builder {
	entry := []byte{0x00}
	entry = append(entry, I32Const(offset)...)
	entry = append(entry, 0x0b)
	entry = leb128.AppendVarUint32(entry, uint32(len(funcs)))
	for _, f := range funcs {
		entry = leb128.AppendVarUint32(entry, f)
	}
	b.elements = append(b.elements, entry)
	return b
}

// RawElement adds an element segment encoded verbatim, starting with its flags.
func (b *Builder) RawElement(entry []byte) *Builder {
	b.elements = append(b.elements, entry)
	return b
}

// Data adds an active data segment for memory 0 at the given offset.
func (b *Builder) Data(offset int32, data []byte) *Builder {
	entry := []byte{0x00}
	entry = append(entry, I32Const(offset)...)
	entry = append(entry, 0x0b)
	entry = leb128.AppendVarUint32(entry, uint32(len(data)))
	entry = append(entry, data...)
	b.data = append(b.data, entry)
	return b
}

// RawData adds a data segment encoded verbatim, starting with its flags.
func (b *Builder) RawData(entry []byte) *Builder {
	b.data = append(b.data, entry)
	return b
}

// Custom adds a custom section. Custom sections are emitted last.
func (b *Builder) Custom(name string, payload []byte) *Builder {
	b.customs = append(b.customs, append(appendName(nil, name), payload...))
	return b
}

// Names adds a name section with a module name subsection (if module is not
// empty) and a function names subsection.
func (b *Builder) Names(module string, funcs map[uint32]string) *Builder {
	return b.Custom("name", NamePayload(module, funcs))
}

// NamePayload encodes the payload of a name section.
func NamePayload(module string, funcs map[uint32]string) []byte {
	var out []byte
	if module != "" {
		sub := appendName(nil, module)
		out = append(out, 0x00)
		out = leb128.AppendVarUint32(out, uint32(len(sub)))
		out = append(out, sub...)
	}
	if len(funcs) != 0 {
		indices := make([]uint32, 0, len(funcs))
		for i := range funcs {
			indices = append(indices, i)
		}
		sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })

		sub := leb128.AppendVarUint32(nil, uint32(len(indices)))
		for _, i := range indices {
			sub = leb128.AppendVarUint32(sub, i)
			sub = appendName(sub, funcs[i])
		}
		out = append(out, 0x01)
		out = leb128.AppendVarUint32(out, uint32(len(sub)))
		out = append(out, sub...)
	}
	return out
}

// Bytes encodes the module.
func (b *Builder) Bytes() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	emit := func(id byte, payload []byte) {
		out = append(out, id)
		out = leb128.AppendVarUint32(out, uint32(len(payload)))
		out = append(out, payload...)
	}
	emitVec := func(id byte, items [][]byte) {
		if len(items) != 0 {
			emit(id, appendVec(nil, items))
		}
	}

	emitVec(1, b.types)
	emitVec(2, b.imports)
	if len(b.funcs) != 0 {
		payload := leb128.AppendVarUint32(nil, uint32(len(b.funcs)))
		for _, t := range b.funcs {
			payload = leb128.AppendVarUint32(payload, t)
		}
		emit(3, payload)
	}
	emitVec(4, b.tables)
	emitVec(5, b.memories)
	emitVec(6, b.globals)
	emitVec(7, b.exports)
	if b.start != nil {
		emit(8, leb128.AppendVarUint32(nil, *b.start))
	}
	emitVec(9, b.elements)
	if len(b.bodies) != 0 {
		bodies := make([][]byte, len(b.bodies))
		for i, body := range b.bodies {
			bodies[i] = append(leb128.AppendVarUint32(nil, uint32(len(body))), body...)
		}
		emit(10, appendVec(nil, bodies))
	}
	emitVec(11, b.data)
	for _, c := range b.customs {
		emit(0, c)
	}
	return out
}

// Section encodes a single raw section record.
func Section(id byte, payload []byte) []byte {
	out := []byte{id}
	out = leb128.AppendVarUint32(out, uint32(len(payload)))
	return append(out, payload...)
}

// Call encodes a call instruction.
func Call(index uint32) []byte {
	return leb128.AppendVarUint32([]byte{0x10}, index)
}

// I32Const encodes an i32.const instruction.
func I32Const(v int32) []byte {
	return leb128.AppendVarint64([]byte{0x41}, int64(v))
}

// Concat joins instruction encodings.
func Concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
