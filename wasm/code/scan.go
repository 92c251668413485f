package code

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeffasante/wasm-inspector/wasm/leb128"
)

var ErrInvalidInstruction = errors.New("wasm: invalid instruction")

// InstructionError describes a malformed instruction inside a function body.
type InstructionError struct {
	Offset int  // Byte offset of the instruction within the body's code.
	Opcode byte // The instruction's leading opcode byte.
	Err    error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("wasm: malformed instruction 0x%02x at offset %d: %v", e.Opcode, e.Offset, e.Err)
}

func (e *InstructionError) Unwrap() error {
	return e.Err
}

type Metrics struct {
	InstructionCount int // The number of instructions in the function, including the final end.
	MaxNesting       int // The maximum block nesting for the function.
	IndirectCalls    int // The number of call_indirect and return_call_indirect instructions.
}

// Body summarizes the instruction stream of a single function body.
type Body struct {
	// Calls holds the callee index of every direct call instruction, in
	// instruction order. Indices are in the module's function index space.
	Calls   []uint32
	Metrics Metrics
}

// Scan walks the instructions in body, which must hold exactly one function's
// code (everything after the local declarations), and records the direct calls
// it makes. The instruction stream is checked for well-formed encodings and
// balanced blocks only; operand types are not validated.
func Scan(body []byte) (Body, error) {
	s := scanner{body: body, depth: 1}
	return s.scan()
}

type scanner struct {
	body  []byte
	pos   int
	depth int

	result Body
}

func (s *scanner) fail(at int, opcode byte, err error) error {
	return &InstructionError{Offset: at, Opcode: opcode, Err: err}
}

func (s *scanner) u32() (uint32, error) {
	v, n, err := leb128.GetVarUint32(s.body[s.pos:])
	if err != nil {
		return 0, err
	}
	s.pos += n
	return v, nil
}

func (s *scanner) u64() (uint64, error) {
	v, n, err := leb128.GetVarUint64(s.body[s.pos:])
	if err != nil {
		return 0, err
	}
	s.pos += n
	return v, nil
}

func (s *scanner) s32() error {
	_, n, err := leb128.GetVarint32(s.body[s.pos:])
	if err != nil {
		return err
	}
	s.pos += n
	return nil
}

func (s *scanner) s64() (int64, error) {
	v, n, err := leb128.GetVarint64(s.body[s.pos:])
	if err != nil {
		return 0, err
	}
	s.pos += n
	return v, nil
}

func (s *scanner) skip(n int) error {
	if len(s.body)-s.pos < n {
		return io.ErrUnexpectedEOF
	}
	s.pos += n
	return nil
}

func (s *scanner) skipU32s(n int) error {
	for i := 0; i < n; i++ {
		if _, err := s.u32(); err != nil {
			return err
		}
	}
	return nil
}

func (s *scanner) blockType() error {
	if s.pos >= len(s.body) {
		return io.ErrUnexpectedEOF
	}
	if IsValueType(s.body[s.pos]) || s.body[s.pos] == BlockTypeEmpty {
		s.pos++
		return nil
	}
	// Otherwise a type index encoded as a positive s33.
	idx, err := s.s64()
	if err != nil {
		return err
	}
	if idx < 0 || idx > 0xffffffff {
		return ErrInvalidInstruction
	}
	return nil
}

// memarg skips a memory immediate. Bit 6 of the alignment field signals an
// explicit memory index; offsets are read as u64 to cover 64-bit memories.
func (s *scanner) memarg() error {
	align, err := s.u32()
	if err != nil {
		return err
	}
	if align&0x40 != 0 {
		if _, err := s.u32(); err != nil {
			return err
		}
	}
	_, err = s.u64()
	return err
}

func (s *scanner) scan() (Body, error) {
	for s.pos < len(s.body) {
		at := s.pos
		opcode := s.body[s.pos]
		s.pos++
		s.result.Metrics.InstructionCount++

		done, err := s.instruction(opcode)
		if err != nil {
			return Body{}, s.fail(at, opcode, err)
		}
		if done {
			if s.pos != len(s.body) {
				return Body{}, s.fail(at, opcode, errors.New("unexpected bytes after final end"))
			}
			return s.result, nil
		}
	}
	return Body{}, s.fail(len(s.body), 0, fmt.Errorf("missing final end: %w", io.ErrUnexpectedEOF))
}

// instruction consumes the immediates of one instruction. It reports true when
// the instruction closes the function's outermost block.
func (s *scanner) instruction(opcode byte) (bool, error) {
	switch opcode {
	case OpBlock, OpLoop, OpIf, OpTry:
		if err := s.blockType(); err != nil {
			return false, err
		}
		s.open()
	case OpTryTable:
		if err := s.blockType(); err != nil {
			return false, err
		}
		if err := s.catchClauses(); err != nil {
			return false, err
		}
		s.open()
	case OpElse, OpCatchAll:
		if s.depth < 2 {
			return false, errors.New("clause outside of block")
		}
	case OpCatch:
		if s.depth < 2 {
			return false, errors.New("clause outside of block")
		}
		_, err := s.u32()
		return false, err
	case OpDelegate:
		// Closes the enclosing try, never the function body.
		if s.depth < 2 {
			return false, errors.New("delegate outside of try")
		}
		s.depth--
		_, err := s.u32()
		return false, err
	case OpEnd:
		s.depth--
		return s.depth == 0, nil

	case OpThrow, OpRethrow:
		_, err := s.u32()
		return false, err

	case OpBr, OpBrIf, OpLocalGet, OpLocalSet, OpLocalTee, OpGlobalGet, OpGlobalSet, OpTableGet, OpTableSet, OpRefFunc:
		_, err := s.u32()
		return false, err
	case OpBrTable:
		n, err := s.u32()
		if err != nil {
			return false, err
		}
		// Each label takes at least one byte.
		if uint64(n) >= uint64(len(s.body)-s.pos) {
			return false, io.ErrUnexpectedEOF
		}
		return false, s.skipU32s(int(n) + 1)

	case OpCall, OpReturnCall:
		callee, err := s.u32()
		if err != nil {
			return false, err
		}
		s.result.Calls = append(s.result.Calls, callee)
	case OpCallIndirect, OpReturnCallIndirect:
		s.result.Metrics.IndirectCalls++
		// Type index and table index.
		return false, s.skipU32s(2)

	case OpSelectT:
		n, err := s.u32()
		if err != nil {
			return false, err
		}
		if uint64(n) > uint64(len(s.body)-s.pos) {
			return false, io.ErrUnexpectedEOF
		}
		for i := 0; i < int(n); i++ {
			if !IsValueType(s.body[s.pos]) {
				return false, ErrInvalidInstruction
			}
			s.pos++
		}

	case OpI32Load, OpI64Load, OpF32Load, OpF64Load, OpI32Load8S, OpI32Load8U, OpI32Load16S, OpI32Load16U, OpI64Load8S, OpI64Load8U, OpI64Load16S, OpI64Load16U, OpI64Load32S, OpI64Load32U, OpI32Store, OpI64Store, OpF32Store, OpF64Store, OpI32Store8, OpI32Store16, OpI64Store8, OpI64Store16, OpI64Store32:
		return false, s.memarg()
	case OpMemorySize, OpMemoryGrow:
		_, err := s.u32()
		return false, err

	case OpI32Const:
		return false, s.s32()
	case OpI64Const:
		_, err := s.s64()
		return false, err
	case OpF32Const:
		return false, s.skip(4)
	case OpF64Const:
		return false, s.skip(8)

	case OpRefNull:
		// Heap type, encoded as an s33.
		_, err := s.s64()
		return false, err

	case OpPrefix:
		return false, s.miscInstruction()
	case OpPrefixSIMD:
		return false, s.simdInstruction()
	case OpPrefixAtomic:
		return false, s.atomicInstruction()

	default:
		if opcode == OpUnreachable || opcode == OpNop || opcode == OpReturn || opcode == OpDrop || opcode == OpSelect || opcode == OpRefIsNull || opcode == OpThrowRef {
			return false, nil
		}
		if opcode >= OpI32Eqz && opcode <= OpI64Extend32S {
			return false, nil
		}
		return false, ErrInvalidInstruction
	}
	return false, nil
}

// open enters a new block and tracks the deepest nesting seen.
func (s *scanner) open() {
	s.depth++
	if s.depth-1 > s.result.Metrics.MaxNesting {
		s.result.Metrics.MaxNesting = s.depth - 1
	}
}

// catchClauses skips the catch vector of a try_table.
func (s *scanner) catchClauses() error {
	n, err := s.u32()
	if err != nil {
		return err
	}
	// Each clause takes at least two bytes.
	if uint64(n) > uint64(len(s.body)-s.pos)/2 {
		return io.ErrUnexpectedEOF
	}
	for i := uint32(0); i < n; i++ {
		if err := s.skip(1); err != nil {
			return err
		}
		switch s.body[s.pos-1] {
		case CatchTag, CatchTagRef:
			err = s.skipU32s(2)
		case CatchAllTag, CatchAllTagRef:
			err = s.skipU32s(1)
		default:
			err = ErrInvalidInstruction
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *scanner) miscInstruction() error {
	op, err := s.u32()
	if err != nil {
		return err
	}
	switch op {
	case OpI32TruncSatF32S, OpI32TruncSatF32U, OpI32TruncSatF64S, OpI32TruncSatF64U,
		OpI64TruncSatF32S, OpI64TruncSatF32U, OpI64TruncSatF64S, OpI64TruncSatF64U:
		return nil
	case OpDataDrop, OpElemDrop, OpMemoryFill, OpTableGrow, OpTableSize, OpTableFill:
		return s.skipU32s(1)
	case OpMemoryInit, OpMemoryCopy, OpTableInit, OpTableCopy:
		return s.skipU32s(2)
	default:
		return ErrInvalidInstruction
	}
}

// SIMD sub-opcodes with immediates; everything else up to the last relaxed
// SIMD opcode has none.
const (
	simdLoadLast     = 0x0b
	simdConst        = 0x0c
	simdShuffle      = 0x0d
	simdLaneFirst    = 0x15
	simdLaneLast     = 0x22
	simdMemLaneLast  = 0x5b
	simdMemLaneFirst = 0x54
	simdLoadZeroLo   = 0x5c
	simdLoadZeroHi   = 0x5d
	simdLast         = 0x113
)

func (s *scanner) simdInstruction() error {
	op, err := s.u32()
	if err != nil {
		return err
	}
	switch {
	case op <= simdLoadLast, op == simdLoadZeroLo, op == simdLoadZeroHi:
		return s.memarg()
	case op == simdConst, op == simdShuffle:
		return s.skip(16)
	case op >= simdLaneFirst && op <= simdLaneLast:
		return s.skip(1)
	case op >= simdMemLaneFirst && op <= simdMemLaneLast:
		if err := s.memarg(); err != nil {
			return err
		}
		return s.skip(1)
	case op <= simdLast:
		return nil
	default:
		return ErrInvalidInstruction
	}
}

func (s *scanner) atomicInstruction() error {
	op, err := s.u32()
	if err != nil {
		return err
	}
	switch {
	case op == OpAtomicFence:
		if err := s.skip(1); err != nil {
			return err
		}
		if s.body[s.pos-1] != 0x00 {
			return ErrInvalidInstruction
		}
		return nil
	case op <= 0x02, op >= 0x10 && op <= 0x4e:
		return s.memarg()
	default:
		return ErrInvalidInstruction
	}
}
