package wasm

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jeffasante/wasm-inspector/wasm/code"
	"github.com/jeffasante/wasm-inspector/wasm/leb128"
)

// ErrorKind categorizes a DecodeError.
type ErrorKind uint8

const (
	KindBadHeader            ErrorKind = iota + 1 // bad magic or version
	KindTruncated                                 // truncated section or record
	KindInvalidLength                             // invalid length or count prefix
	KindMalformedSection                          // structurally invalid section contents
	KindMalformedInstruction                      // malformed instruction stream
	KindMalformedConstExpr                        // malformed constant expression
	KindDanglingIndex                             // reference exceeding a declared count
)

func (k ErrorKind) String() string {
	switch k {
	case KindBadHeader:
		return "bad header"
	case KindTruncated:
		return "truncated"
	case KindInvalidLength:
		return "invalid length"
	case KindMalformedSection:
		return "malformed section"
	case KindMalformedInstruction:
		return "malformed instruction"
	case KindMalformedConstExpr:
		return "malformed constant expression"
	case KindDanglingIndex:
		return "dangling index"
	default:
		return fmt.Sprintf("ErrorKind(%d)", uint8(k))
	}
}

// Sentinel errors for use with errors.Is. A *DecodeError matches the sentinel
// of its kind.
var (
	ErrBadHeader            = &DecodeError{Kind: KindBadHeader}
	ErrTruncated            = &DecodeError{Kind: KindTruncated}
	ErrInvalidLength        = &DecodeError{Kind: KindInvalidLength}
	ErrMalformedSection     = &DecodeError{Kind: KindMalformedSection}
	ErrMalformedInstruction = &DecodeError{Kind: KindMalformedInstruction}
	ErrMalformedConstExpr   = &DecodeError{Kind: KindMalformedConstExpr}
	ErrDanglingIndex        = &DecodeError{Kind: KindDanglingIndex}
)

// DecodeError is returned for every failure to decode a module. A failed
// decode never yields a partial module.
type DecodeError struct {
	Kind    ErrorKind
	Section SectionID // The section being decoded. Unused for header errors.
	Offset  int64     // Absolute byte offset at which decoding stopped.
	Detail  string
	Err     error
}

func (e *DecodeError) Error() string {
	var b strings.Builder
	b.WriteString("wasm: ")
	b.WriteString(e.Kind.String())
	if e.Kind != KindBadHeader {
		fmt.Fprintf(&b, " in %v section", e.Section)
	}
	fmt.Fprintf(&b, " at offset %d", e.Offset)
	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a *DecodeError of the same kind.
func (e *DecodeError) Is(target error) bool {
	if t, ok := target.(*DecodeError); ok {
		return e.Kind == t.Kind
	}
	return false
}

func errorf(kind ErrorKind, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// classify maps an error raised while reading a section onto an ErrorKind.
func classify(err error) ErrorKind {
	var de *DecodeError
	if errors.As(err, &de) {
		return de.Kind
	}
	var ie *code.InstructionError
	if errors.As(err, &ie) {
		return KindMalformedInstruction
	}
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return KindTruncated
	case errors.Is(err, leb128.ErrOverflow):
		return KindInvalidLength
	default:
		return KindMalformedSection
	}
}

// sectionError attaches section context to err.
func sectionError(err error, id SectionID, offset int64) *DecodeError {
	var de *DecodeError
	if errors.As(err, &de) {
		c := *de
		c.Section, c.Offset = id, offset
		return &c
	}
	return &DecodeError{Kind: classify(err), Section: id, Offset: offset, Err: err}
}
