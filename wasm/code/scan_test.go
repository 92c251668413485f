package code

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}

func TestScan(t *testing.T) {
	v128 := make([]byte, 16)

	cases := []struct {
		name    string
		body    []byte
		calls   []uint32
		metrics Metrics
	}{
		{
			name:    "empty",
			body:    []byte{OpEnd},
			metrics: Metrics{InstructionCount: 1},
		},
		{
			name:    "direct calls",
			body:    []byte{OpCall, 0x05, OpReturnCall, 0x80, 0x01, OpEnd},
			calls:   []uint32{5, 128},
			metrics: Metrics{InstructionCount: 3},
		},
		{
			name:    "indirect calls",
			body:    []byte{OpI32Const, 0x00, OpCallIndirect, 0x01, 0x00, OpI32Const, 0x00, OpReturnCallIndirect, 0x01, 0x00, OpEnd},
			metrics: Metrics{InstructionCount: 5, IndirectCalls: 2},
		},
		{
			name:    "nesting",
			body:    []byte{OpBlock, BlockTypeEmpty, OpLoop, ValueTypeI32, OpI32Const, 0x00, OpEnd, OpDrop, OpEnd, OpBlock, 0x00, OpEnd, OpEnd},
			metrics: Metrics{InstructionCount: 9, MaxNesting: 2},
		},
		{
			name:    "if else",
			body:    []byte{OpI32Const, 0x01, OpIf, BlockTypeEmpty, OpNop, OpElse, OpCall, 0x02, OpEnd, OpEnd},
			calls:   []uint32{2},
			metrics: Metrics{InstructionCount: 7, MaxNesting: 1},
		},
		{
			name:    "branch table",
			body:    []byte{OpBlock, BlockTypeEmpty, OpI32Const, 0x00, OpBrTable, 0x02, 0x00, 0x00, 0x00, OpEnd, OpEnd},
			metrics: Metrics{InstructionCount: 5, MaxNesting: 1},
		},
		{
			name: "memory",
			body: []byte{
				OpI32Const, 0x00, OpI32Load, 0x02, 0x10, OpDrop,
				OpI32Const, 0x00, OpI64Load, 0x43, 0x00, 0x08, OpDrop, // explicit memory index
				OpMemorySize, 0x00, OpMemoryGrow, 0x00, OpDrop,
				OpEnd,
			},
			metrics: Metrics{InstructionCount: 10},
		},
		{
			name: "constants",
			body: concat(
				[]byte{OpI64Const, 0x80, 0x80, 0x04, OpDrop},
				[]byte{OpF32Const, 0, 0, 0, 0, OpDrop},
				[]byte{OpF64Const, 0, 0, 0, 0, 0, 0, 0, 0, OpDrop},
				[]byte{OpEnd},
			),
			metrics: Metrics{InstructionCount: 7},
		},
		{
			name: "reference types",
			body: []byte{
				OpRefNull, ValueTypeFuncref, OpRefIsNull, OpDrop,
				OpRefFunc, 0x03, OpDrop,
				OpI32Const, 0x00, OpTableGet, 0x00, OpDrop,
				OpI32Const, 0x00, OpI32Const, 0x01, OpI32Const, 0x00, OpSelectT, 0x01, ValueTypeI32, OpDrop,
				OpEnd,
			},
			metrics: Metrics{InstructionCount: 14},
		},
		{
			name: "misc prefix",
			body: []byte{
				OpF32Const, 0, 0, 0, 0, OpPrefix, OpI32TruncSatF32S, OpDrop,
				OpPrefix, OpMemoryCopy, 0x00, 0x00,
				OpPrefix, OpMemoryInit, 0x01, 0x00,
				OpPrefix, OpDataDrop, 0x01,
				OpPrefix, OpTableSize, 0x00, OpDrop,
				OpEnd,
			},
			metrics: Metrics{InstructionCount: 9},
		},
		{
			name: "simd",
			body: concat(
				[]byte{OpPrefixSIMD, 0x0c}, v128, // v128.const
				[]byte{OpPrefixSIMD, 0x0d}, v128, // i8x16.shuffle
				[]byte{OpPrefixSIMD, 0x15, 0x00},             // i8x16.extract_lane_s
				[]byte{OpPrefixSIMD, 0xae, 0x01},             // i32x4.add
				[]byte{OpPrefixSIMD, 0x00, 0x04, 0x00},       // v128.load
				[]byte{OpPrefixSIMD, 0x54, 0x00, 0x00, 0x03}, // v128.load8_lane
				[]byte{OpPrefixSIMD, 0x5c, 0x02, 0x00},       // v128.load32_zero
				[]byte{OpEnd},
			),
			metrics: Metrics{InstructionCount: 8},
		},
		{
			name: "atomics",
			body: []byte{
				OpPrefixAtomic, OpAtomicFence, 0x00,
				OpI32Const, 0x00, OpPrefixAtomic, 0x10, 0x02, 0x00, OpDrop,
				OpI32Const, 0x00, OpI32Const, 0x00, OpPrefixAtomic, 0x00, 0x02, 0x00, OpDrop,
				OpEnd,
			},
			metrics: Metrics{InstructionCount: 9},
		},
		{
			name: "legacy exceptions",
			body: []byte{
				OpTry, BlockTypeEmpty,
				OpThrow, 0x00,
				OpCatch, 0x00,
				OpRethrow, 0x00,
				OpCatchAll,
				OpEnd,
				OpEnd,
			},
			metrics: Metrics{InstructionCount: 7, MaxNesting: 1},
		},
		{
			name:    "delegate",
			body:    []byte{OpTry, BlockTypeEmpty, OpCall, 0x02, OpDelegate, 0x00, OpEnd},
			calls:   []uint32{2},
			metrics: Metrics{InstructionCount: 4, MaxNesting: 1},
		},
		{
			name: "try table",
			body: []byte{
				OpBlock, BlockTypeEmpty,
				OpTryTable, BlockTypeEmpty, 0x02, CatchTag, 0x00, 0x00, CatchAllTagRef, 0x00,
				OpThrowRef,
				OpEnd,
				OpEnd,
				OpEnd,
			},
			metrics: Metrics{InstructionCount: 6, MaxNesting: 2},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b, err := Scan(c.body)
			require.NoError(t, err)
			assert.Equal(t, c.calls, b.Calls)
			assert.Equal(t, c.metrics, b.Metrics)
		})
	}
}

func TestScanErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   []byte
		offset int
		opcode byte
		err    error
	}{
		{"empty", nil, 0, 0, io.ErrUnexpectedEOF},
		{"missing end", []byte{OpNop, OpNop}, 2, 0, io.ErrUnexpectedEOF},
		{"unknown opcode", []byte{OpNop, 0xff, OpEnd}, 1, 0xff, ErrInvalidInstruction},
		{"truncated immediate", []byte{OpCall}, 0, OpCall, io.ErrUnexpectedEOF},
		{"truncated float", []byte{OpF64Const, 0x00, 0x00}, 0, OpF64Const, io.ErrUnexpectedEOF},
		{"bytes after end", []byte{OpEnd, OpNop}, 0, OpEnd, nil},
		{"else outside block", []byte{OpElse, OpEnd}, 0, OpElse, nil},
		{"fence reserved byte", []byte{OpPrefixAtomic, OpAtomicFence, 0x01, OpEnd}, 0, OpPrefixAtomic, ErrInvalidInstruction},
		{"unknown misc opcode", []byte{OpPrefix, 0x20, OpEnd}, 0, OpPrefix, ErrInvalidInstruction},
		{"unknown simd opcode", []byte{OpPrefixSIMD, 0xff, 0x7f, OpEnd}, 0, OpPrefixSIMD, ErrInvalidInstruction},
		{"invalid select type", []byte{OpSelectT, 0x01, 0x00, OpEnd}, 0, OpSelectT, ErrInvalidInstruction},
		{"branch table too long", []byte{OpBrTable, 0xff, 0xff, 0xff, 0xff, 0x0f, OpEnd}, 0, OpBrTable, io.ErrUnexpectedEOF},
		{"catch outside block", []byte{OpCatch, 0x00, OpEnd}, 0, OpCatch, nil},
		{"delegate outside try", []byte{OpDelegate, 0x00, OpEnd}, 0, OpDelegate, nil},
		{"invalid catch kind", []byte{OpTryTable, BlockTypeEmpty, 0x01, 0x04, 0x00, OpEnd, OpEnd}, 0, OpTryTable, ErrInvalidInstruction},
		{"truncated catch vector", []byte{OpTryTable, BlockTypeEmpty, 0x05, CatchAllTag, 0x00, OpEnd}, 0, OpTryTable, io.ErrUnexpectedEOF},
		{"negative block type", []byte{OpBlock, 0x50, OpEnd, OpEnd}, 0, OpBlock, ErrInvalidInstruction},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Scan(c.body)
			require.Error(t, err)

			var ie *InstructionError
			require.True(t, errors.As(err, &ie))
			assert.Equal(t, c.offset, ie.Offset)
			assert.Equal(t, c.opcode, ie.Opcode)
			if c.err != nil {
				assert.ErrorIs(t, err, c.err)
			}
		})
	}
}

func TestIsValueType(t *testing.T) {
	for _, b := range []byte{ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeV128, ValueTypeFuncref, ValueTypeExternref} {
		assert.True(t, IsValueType(b), "0x%02x", b)
	}
	for _, b := range []byte{0x00, BlockTypeEmpty, 0x60, 0x7a} {
		assert.False(t, IsValueType(b), "0x%02x", b)
	}
}
