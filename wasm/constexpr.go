package wasm

import (
	"io"

	"github.com/jeffasante/wasm-inspector/wasm/code"
	"github.com/jeffasante/wasm-inspector/wasm/leb128"
)

// ConstExpr holds the raw encoding of a constant expression, including its
// terminating end opcode.
type ConstExpr struct {
	Raw []byte
}

// I32 returns the value of an expression consisting of a single i32.const
// followed by end. Any other form is reported as unresolved.
func (e ConstExpr) I32() (int32, bool) {
	if len(e.Raw) < 3 || e.Raw[0] != code.OpI32Const || e.Raw[len(e.Raw)-1] != code.OpEnd {
		return 0, false
	}
	v, n, err := leb128.GetVarint32(e.Raw[1:])
	if err != nil || 1+n != len(e.Raw)-1 {
		return 0, false
	}
	return v, true
}

// offset resolves e to a segment offset.
func (e ConstExpr) offset() *uint32 {
	v, ok := e.I32()
	if !ok {
		return nil
	}
	off := uint32(v)
	return &off
}

// funcRef returns the target of an expression of the form ref.func x; end.
func (e ConstExpr) funcRef() (uint32, bool) {
	if len(e.Raw) < 3 || e.Raw[0] != code.OpRefFunc || e.Raw[len(e.Raw)-1] != code.OpEnd {
		return 0, false
	}
	v, n, err := leb128.GetVarUint32(e.Raw[1:])
	if err != nil || 1+n != len(e.Raw)-1 {
		return 0, false
	}
	return v, true
}

// exprReader records every byte read through it.
type exprReader struct {
	r   io.Reader
	raw []byte
}

func (e *exprReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	e.raw = append(e.raw, p[:n]...)
	return n, err
}

func (e *exprReader) ReadByte() (byte, error) {
	b, err := readByte(e.r)
	if err != nil {
		return 0, err
	}
	e.raw = append(e.raw, b)
	return b, nil
}

// readConstExpr reads a constant expression up to and including its end
// opcode. Immediates are skipped; nothing is evaluated.
func readConstExpr(r io.Reader) (ConstExpr, error) {
	er := &exprReader{r: r}
	for {
		op, err := er.ReadByte()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return ConstExpr{}, err
		}

		switch op {
		case code.OpEnd:
			return ConstExpr{Raw: er.raw}, nil
		case code.OpI32Const:
			_, err = leb128.ReadVarint32(er)
		case code.OpI64Const:
			_, err = leb128.ReadVarint64(er)
		case code.OpF32Const:
			_, err = io.ReadFull(er, make([]byte, 4))
		case code.OpF64Const:
			_, err = io.ReadFull(er, make([]byte, 8))
		case code.OpGlobalGet, code.OpRefFunc:
			_, err = leb128.ReadVarUint32(er)
		case code.OpRefNull:
			_, err = leb128.ReadVarint64(er)
		case code.OpI32Add, code.OpI32Sub, code.OpI32Mul, code.OpI64Add, code.OpI64Sub, code.OpI64Mul:
		default:
			return ConstExpr{}, errorf(KindMalformedConstExpr, "invalid opcode 0x%02x in constant expression", op)
		}
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return ConstExpr{}, err
		}
	}
}
