// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/jeffasante/wasm-inspector/wasm/code"
	"github.com/jeffasante/wasm-inspector/wasm/internal/readpos"
	"github.com/jeffasante/wasm-inspector/wasm/leb128"
)

// SectionID is a 1-byte code that encodes the section code of both known and custom sections.
type SectionID uint8

const (
	SectionIDCustom    SectionID = 0
	SectionIDType      SectionID = 1
	SectionIDImport    SectionID = 2
	SectionIDFunction  SectionID = 3
	SectionIDTable     SectionID = 4
	SectionIDMemory    SectionID = 5
	SectionIDGlobal    SectionID = 6
	SectionIDExport    SectionID = 7
	SectionIDStart     SectionID = 8
	SectionIDElement   SectionID = 9
	SectionIDCode      SectionID = 10
	SectionIDData      SectionID = 11
	SectionIDDataCount SectionID = 12
	SectionIDTag       SectionID = 13
)

func (s SectionID) String() string {
	n, ok := map[SectionID]string{
		SectionIDCustom:    "custom",
		SectionIDType:      "type",
		SectionIDImport:    "import",
		SectionIDFunction:  "function",
		SectionIDTable:     "table",
		SectionIDMemory:    "memory",
		SectionIDGlobal:    "global",
		SectionIDExport:    "export",
		SectionIDStart:     "start",
		SectionIDElement:   "element",
		SectionIDCode:      "code",
		SectionIDData:      "data",
		SectionIDDataCount: "datacount",
		SectionIDTag:       "tag",
	}[s]
	if !ok {
		return "unknown"
	}
	return n
}

// decoded reports whether sections with this ID are decoded rather than skipped.
func (s SectionID) decoded() bool {
	return s <= SectionIDData
}

// sectionsReader carries the state threaded through a single decode. The
// per-kind import counts are complete before any definition is indexed,
// since the import section precedes every section that defines entities.
type sectionsReader struct {
	lastSecOrder uint8 // previous non-custom sectionid
	m            *Module

	imported  [4]uint32 // imports per External kind
	defined   [4]uint32 // definitions per External kind
	funcTypes []uint32  // type indices from the function section
	sawCode   bool
	sawNames  bool
}

func newSectionsReader(m *Module) *sectionsReader {
	return &sectionsReader{m: m}
}

// count returns the size of the index space for kind.
func (sr *sectionsReader) count(kind External) uint32 {
	return sr.imported[kind] + sr.defined[kind]
}

func (sr *sectionsReader) readSections(r *readpos.ReadPos) error {
	for {
		done, err := sr.readSection(r)
		switch {
		case err != nil:
			return err
		case done:
			return sr.finish(r.CurPos)
		}
	}
}

// reads a valid section from r. The first return value is true if and only if
// the module has been completely read.
func (sr *sectionsReader) readSection(r *readpos.ReadPos) (bool, error) {
	id, err := r.ReadByte()
	if err == io.EOF {
		return true, nil
	} else if err != nil {
		return false, sectionError(err, SectionIDCustom, r.CurPos)
	}
	sid := SectionID(id)
	if sid != SectionIDCustom && sid.decoded() {
		if id <= sr.lastSecOrder {
			return false, &DecodeError{
				Kind:    KindMalformedSection,
				Section: sid,
				Offset:  r.CurPos - 1,
				Detail:  "sections must occur at most once and in the prescribed order",
			}
		}
		sr.lastSecOrder = id
	}

	size, err := leb128.ReadVarUint32(r)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return false, sectionError(err, sid, r.CurPos)
	}

	start := r.CurPos
	payload, err := readBytes(r, size)
	if err != nil {
		return false, sectionError(err, sid, r.CurPos)
	}
	Logger().Debug("read section",
		zap.Stringer("id", sid),
		zap.Uint32("size", size),
		zap.Int64("offset", start))

	pr := bytes.NewReader(payload)
	if err = sr.readPayload(sid, pr); err == nil && sid.decoded() && pr.Len() != 0 {
		err = errorf(KindMalformedSection, "%d unconsumed bytes after section contents", pr.Len())
	}
	if err != nil {
		return false, sectionError(err, sid, start+int64(len(payload)-pr.Len()))
	}

	sr.m.Sections = append(sr.m.Sections, SectionHeader{ID: sid, Start: start, End: r.CurPos, Size: size})
	return false, nil
}

func (sr *sectionsReader) readPayload(id SectionID, r *bytes.Reader) error {
	switch id {
	case SectionIDCustom:
		return sr.readCustom(r)
	case SectionIDType:
		return sr.readTypes(r)
	case SectionIDImport:
		return sr.readImports(r)
	case SectionIDFunction:
		return sr.readFunctions(r)
	case SectionIDTable:
		return sr.readTables(r)
	case SectionIDMemory:
		return sr.readMemories(r)
	case SectionIDGlobal:
		return sr.readGlobals(r)
	case SectionIDExport:
		return sr.readExports(r)
	case SectionIDStart:
		return sr.readStart(r)
	case SectionIDElement:
		return sr.readElements(r)
	case SectionIDCode:
		return sr.readCode(r)
	case SectionIDData:
		return sr.readData(r)
	default:
		Logger().Debug("skipping section", zap.Stringer("id", id), zap.Uint8("raw_id", uint8(id)))
		return nil
	}
}

// finish checks the cross-section constraints that can only be verified once
// every section has been read, then backfills export and name metadata.
func (sr *sectionsReader) finish(offset int64) error {
	if !sr.sawCode && len(sr.funcTypes) != 0 {
		return &DecodeError{
			Kind:    KindDanglingIndex,
			Section: SectionIDFunction,
			Offset:  offset,
			Detail:  fmt.Sprintf("%d functions declared without a code section", len(sr.funcTypes)),
		}
	}
	sr.m.backfill()
	return nil
}

func (sr *sectionsReader) readCustom(r *bytes.Reader) error {
	name, err := readUTF8StringUint(r)
	if err != nil {
		return err
	}
	size := r.Len()
	sr.m.Customs = append(sr.m.Customs, CustomSection{Name: name, Size: uint32(size)})

	if name == CustomSectionName && !sr.sawNames {
		sr.sawNames = true
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return err
		}
		sr.m.Names = ResolveNames(data)
		return nil
	}
	_, err = r.Seek(0, io.SeekEnd)
	return err
}

func (sr *sectionsReader) readTypes(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	sr.m.Types = make([]FunctionSig, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		var sig FunctionSig
		if err := sig.UnmarshalWASM(r); err != nil {
			return err
		}
		sr.m.Types = append(sr.m.Types, sig)
	}
	return nil
}

func (sr *sectionsReader) checkType(index uint32) error {
	if index >= uint32(len(sr.m.Types)) {
		return errorf(KindDanglingIndex, "type index %d out of range (%d types)", index, len(sr.m.Types))
	}
	return nil
}

// checkIndex reports a dangling index when index is outside the index space
// of kind.
func (sr *sectionsReader) checkIndex(kind External, index uint32) error {
	if n := sr.count(kind); index >= n {
		return errorf(KindDanglingIndex, "%v index %d out of range (%d declared)", kind, index, n)
	}
	return nil
}

func (sr *sectionsReader) checkFunction(index uint32) error {
	return sr.checkIndex(ExternalFunction, index)
}

func (sr *sectionsReader) readImports(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	sr.m.Imports = make([]ImportEntry, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		entry := ImportEntry{Position: int(i)}
		if err := entry.UnmarshalWASM(r); err != nil {
			return err
		}

		switch t := entry.Type.(type) {
		case nil:
			Logger().Debug("dropping tag import", zap.String("module", entry.Module), zap.String("field", entry.Field))
			continue
		case FuncImport:
			if err := sr.checkType(t.Type); err != nil {
				return err
			}
		case MemoryImport:
			if sr.m.Memory == nil {
				sr.m.Memory = &Memory{Index: sr.imported[ExternalMemory], Type: t.Type, IsImported: true}
			}
		}
		sr.imported[entry.Type.Kind()]++
		sr.m.Imports = append(sr.m.Imports, entry)
	}
	return nil
}

func (sr *sectionsReader) readFunctions(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	sr.funcTypes = make([]uint32, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		t, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		if err := sr.checkType(t); err != nil {
			return err
		}
		sr.funcTypes = append(sr.funcTypes, t)
	}
	sr.defined[ExternalFunction] = uint32(len(sr.funcTypes))
	return nil
}

func (sr *sectionsReader) readTables(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	sr.m.Tables = make([]Table, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		table := Table{Index: sr.count(ExternalTable)}
		if err := table.Type.UnmarshalWASM(r); err != nil {
			return err
		}
		sr.m.Tables = append(sr.m.Tables, table)
		sr.defined[ExternalTable]++
	}
	return nil
}

func (sr *sectionsReader) readMemories(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		mem := Memory{Index: sr.count(ExternalMemory)}
		if err := mem.Type.UnmarshalWASM(r); err != nil {
			return err
		}
		if sr.m.Memory == nil {
			sr.m.Memory = &mem
		}
		sr.defined[ExternalMemory]++
	}
	return nil
}

func (sr *sectionsReader) readGlobals(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	sr.m.Globals = make([]Global, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		global := Global{Index: sr.count(ExternalGlobal)}
		if err := global.Type.UnmarshalWASM(r); err != nil {
			return err
		}
		if global.Init, err = readConstExpr(r); err != nil {
			return err
		}
		sr.m.Globals = append(sr.m.Globals, global)
		sr.defined[ExternalGlobal]++
	}
	return nil
}

func (sr *sectionsReader) readExports(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	sr.m.Exports = make([]ExportEntry, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		entry := ExportEntry{Position: int(i)}
		if err := entry.UnmarshalWASM(r); err != nil {
			return err
		}
		if entry.Kind == externalTag {
			Logger().Debug("dropping tag export", zap.String("name", entry.Name))
			continue
		}
		if n := sr.count(entry.Kind); entry.Index >= n {
			return errorf(KindDanglingIndex, "export %q refers to %v %d of %d", entry.Name, entry.Kind, entry.Index, n)
		}
		sr.m.Exports = append(sr.m.Exports, entry)
	}
	return nil
}

func (sr *sectionsReader) readStart(r io.Reader) error {
	index, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	if err := sr.checkFunction(index); err != nil {
		return err
	}
	sr.m.Start = &index
	return nil
}

func (sr *sectionsReader) readElements(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	sr.m.Elements = make([]ElementSegment, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		seg, err := sr.readElementSegment(r, i)
		if err != nil {
			return err
		}
		sr.m.Elements = append(sr.m.Elements, seg)
	}
	return nil
}

// Element segment flag bits.
const (
	elemPassive       = 1 << 0 // passive or declarative; active if clear
	elemExplicitTable = 1 << 1 // active: explicit table index; otherwise declarative
	elemExprs         = 1 << 2 // elements are constant expressions
)

func (sr *sectionsReader) readElementSegment(r io.Reader, index uint32) (ElementSegment, error) {
	seg := ElementSegment{Index: index, Type: ValueTypeFuncref}

	flags, err := leb128.ReadVarUint32(r)
	if err != nil {
		return seg, err
	}
	if flags > elemPassive|elemExplicitTable|elemExprs {
		return seg, errorf(KindMalformedSection, "invalid element segment flags %d", flags)
	}

	switch {
	case flags&elemPassive == 0:
		seg.Mode = ElementModeActive
		var table uint32
		if flags&elemExplicitTable != 0 {
			if table, err = leb128.ReadVarUint32(r); err != nil {
				return seg, err
			}
		}
		if err := sr.checkIndex(ExternalTable, table); err != nil {
			return seg, err
		}
		seg.Table = &table
		offset, err := readConstExpr(r)
		if err != nil {
			return seg, err
		}
		seg.Offset = offset.offset()
	case flags&elemExplicitTable == 0:
		seg.Mode = ElementModePassive
	default:
		seg.Mode = ElementModeDeclarative
	}

	// Every form but the two legacy active forms spells out the element type.
	if flags&(elemPassive|elemExplicitTable) != 0 {
		if flags&elemExprs == 0 {
			kind, err := readByte(r)
			if err != nil {
				return seg, err
			}
			if kind != 0x00 {
				return seg, errorf(KindMalformedSection, "invalid element kind 0x%02x", kind)
			}
		} else {
			if err := seg.Type.UnmarshalWASM(r); err != nil {
				return seg, err
			}
			if seg.Type != ValueTypeFuncref && seg.Type != ValueTypeExternref {
				return seg, errorf(KindMalformedSection, "invalid element type %v", seg.Type)
			}
		}
	}

	if seg.Count, err = leb128.ReadVarUint32(r); err != nil {
		return seg, err
	}
	seg.Funcs = make([]uint32, 0, getInitialCap(seg.Count))
	for j := uint32(0); j < seg.Count; j++ {
		var fn uint32
		if flags&elemExprs == 0 {
			if fn, err = leb128.ReadVarUint32(r); err != nil {
				return seg, err
			}
		} else {
			expr, err := readConstExpr(r)
			if err != nil {
				return seg, err
			}
			var ok bool
			if fn, ok = expr.funcRef(); !ok {
				continue
			}
		}
		if err := sr.checkFunction(fn); err != nil {
			return seg, err
		}
		seg.Funcs = append(seg.Funcs, fn)
	}
	return seg, nil
}

func (sr *sectionsReader) readCode(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	if count != uint32(len(sr.funcTypes)) {
		return errorf(KindDanglingIndex, "code section has %d bodies but %d functions are declared", count, len(sr.funcTypes))
	}
	sr.sawCode = true

	sr.m.Functions = make([]Function, 0, count)
	for i := uint32(0); i < count; i++ {
		fn := Function{
			Index: sr.imported[ExternalFunction] + i,
			Type:  sr.funcTypes[i],
		}
		if err := sr.readFunctionBody(r, &fn); err != nil {
			return fmt.Errorf("function %d: %w", fn.Index, err)
		}
		sr.m.Functions = append(sr.m.Functions, fn)
	}
	return nil
}

func (sr *sectionsReader) readFunctionBody(r io.Reader, fn *Function) error {
	body, err := readBytesUint(r)
	if err != nil {
		return err
	}
	br := bytes.NewReader(body)

	localCount, err := leb128.ReadVarUint32(br)
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	fn.Locals = make([]LocalEntry, 0, getInitialCap(localCount))
	for i := uint32(0); i < localCount; i++ {
		var local LocalEntry
		if err := local.UnmarshalWASM(br); err != nil {
			return err
		}
		fn.Locals = append(fn.Locals, local)
	}

	instrs := body[len(body)-br.Len():]
	fn.BodySize = uint32(len(instrs))

	scanned, err := code.Scan(instrs)
	if err != nil {
		return err
	}
	fn.Metrics = scanned.Metrics
	for _, callee := range scanned.Calls {
		sr.m.Calls = append(sr.m.Calls, CallFact{Caller: fn.Index, Callee: callee})
	}
	return nil
}

func (sr *sectionsReader) readData(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}

	sr.m.Data = make([]DataSegment, 0, getInitialCap(count))
	for i := uint32(0); i < count; i++ {
		seg := DataSegment{Index: i}
		flags, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		switch flags {
		case 0, 2:
			if flags == 2 {
				if seg.Memory, err = leb128.ReadVarUint32(r); err != nil {
					return err
				}
			}
			if err := sr.checkIndex(ExternalMemory, seg.Memory); err != nil {
				return err
			}
			offset, err := readConstExpr(r)
			if err != nil {
				return err
			}
			seg.Offset = offset.offset()
		case 1:
			seg.Passive = true
		default:
			return errorf(KindMalformedSection, "invalid data segment flags %d", flags)
		}

		if seg.Size, err = leb128.ReadVarUint32(r); err != nil {
			return err
		}
		if err := skipBytes(r, seg.Size); err != nil {
			return err
		}
		sr.m.Data = append(sr.m.Data, seg)
	}
	return nil
}
