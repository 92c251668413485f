package code

// BlockTypeEmpty is the block type of a block that takes and returns nothing.
const BlockTypeEmpty = 0x40

// Single-byte value type encodings.
const (
	ValueTypeI32       = 0x7f
	ValueTypeI64       = 0x7e
	ValueTypeF32       = 0x7d
	ValueTypeF64       = 0x7c
	ValueTypeV128      = 0x7b
	ValueTypeFuncref   = 0x70
	ValueTypeExternref = 0x6f
)

// IsValueType reports whether b encodes a value type.
func IsValueType(b byte) bool {
	switch b {
	case ValueTypeI32, ValueTypeI64, ValueTypeF32, ValueTypeF64, ValueTypeV128, ValueTypeFuncref, ValueTypeExternref:
		return true
	default:
		return false
	}
}
