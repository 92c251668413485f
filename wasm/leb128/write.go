// Copyright 2018 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leb128

import (
	"io"
)

// AppendVarUint32 appends the LEB128 encoding of v to b.
func AppendVarUint32(b []byte, v uint32) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// AppendVarint64 appends the signed LEB128 encoding of v to b.
func AppendVarint64(b []byte, v int64) []byte {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// WriteVarUint32 writes a LEB128 encoded unsigned 32-bit integer to w, and
// returns the number of bytes written and the error (if any).
func WriteVarUint32(w io.Writer, v uint32) (int, error) {
	var buf [5]byte
	return w.Write(AppendVarUint32(buf[:0], v))
}

// WriteVarint64 writes a LEB128 encoded signed 64-bit integer to w, and
// returns the number of bytes written and the error (if any).
func WriteVarint64(w io.Writer, v int64) (int, error) {
	var buf [10]byte
	return w.Write(AppendVarint64(buf[:0], v))
}
