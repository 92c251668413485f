// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package leb128 provides functions for reading and writing integer values
// encoded in the Little Endian Base 128 (LEB128) format:
// https://en.wikipedia.org/wiki/LEB128
//
// Readers are strict: encodings longer than the maximum width of the target
// type, or whose final byte carries bits outside the target type, are
// rejected with ErrOverflow.
package leb128

import (
	"errors"
	"io"
)

// ErrOverflow is returned when an encoded integer does not fit its target type.
var ErrOverflow = errors.New("leb128: integer representation too long")

func readByte(r io.Reader, buf []byte, first bool) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err == io.EOF && !first {
			err = io.ErrUnexpectedEOF
		}
		return b, err
	}
	if _, err := io.ReadFull(r, buf[:1]); err != nil {
		if err == io.EOF && !first {
			err = io.ErrUnexpectedEOF
		}
		return 0, err
	}
	return buf[0], nil
}

// ReadVarUint32Size reads a LEB128 encoded unsigned 32-bit integer from r. It
// returns the integer value, the size of the encoded value (in bytes), and the
// error (if any). If no bytes could be read the error is io.EOF.
func ReadVarUint32Size(r io.Reader) (res uint32, size uint, err error) {
	var buf [1]byte
	var shift uint
	for {
		b, err := readByte(r, buf[:], size == 0)
		if err != nil {
			return 0, size, err
		}
		size++
		if size == 5 && b&0xf0 != 0 {
			return 0, size, ErrOverflow
		}
		res |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return res, size, nil
		}
		shift += 7
	}
}

// ReadVarUint32 reads a LEB128 encoded unsigned 32-bit integer from r, and
// returns the integer value, and the error (if any).
func ReadVarUint32(r io.Reader) (uint32, error) {
	n, _, err := ReadVarUint32Size(r)
	return n, err
}

// ReadVarint32Size reads a LEB128 encoded signed 32-bit integer from r, and
// returns the integer value, the size of the encoded value, and the error
// (if any).
func ReadVarint32Size(r io.Reader) (int32, uint, error) {
	var buf [1]byte
	var res int32
	var shift uint
	var size uint
	for {
		b, err := readByte(r, buf[:], size == 0)
		if err != nil {
			return 0, size, err
		}
		size++
		if size == 5 {
			// The unused high bits must replicate the sign bit.
			if hi := b & 0x78; b&0x80 != 0 || (hi != 0 && hi != 0x78) {
				return 0, size, ErrOverflow
			}
		}
		res |= int32(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				res |= -1 << shift
			}
			return res, size, nil
		}
	}
}

// ReadVarint32 reads a LEB128 encoded signed 32-bit integer from r, and
// returns the integer value, and the error (if any).
func ReadVarint32(r io.Reader) (int32, error) {
	n, _, err := ReadVarint32Size(r)
	return n, err
}

// ReadVarint64Size reads a LEB128 encoded signed 64-bit integer from r, and
// returns the integer value, the size of the encoded value, and the error
// (if any).
func ReadVarint64Size(r io.Reader) (int64, uint, error) {
	var buf [1]byte
	var res int64
	var shift uint
	var size uint
	for {
		b, err := readByte(r, buf[:], size == 0)
		if err != nil {
			return 0, size, err
		}
		size++
		if size == 10 {
			if hi := b & 0x7f; b&0x80 != 0 || (hi != 0 && hi != 0x7f) {
				return 0, size, ErrOverflow
			}
		}
		res |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				res |= -1 << shift
			}
			return res, size, nil
		}
	}
}

// ReadVarint64 reads a LEB128 encoded signed 64-bit integer from r, and
// returns the integer value, and the error (if any).
func ReadVarint64(r io.Reader) (int64, error) {
	n, _, err := ReadVarint64Size(r)
	return n, err
}

// ReadVarUint64 reads a LEB128 encoded unsigned 64-bit integer from r.
func ReadVarUint64(r io.Reader) (uint64, error) {
	var buf [1]byte
	var res uint64
	var shift uint
	var size uint
	for {
		b, err := readByte(r, buf[:], size == 0)
		if err != nil {
			return 0, err
		}
		size++
		if size == 10 && b&0xfe != 0 {
			return 0, ErrOverflow
		}
		res |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return res, nil
		}
		shift += 7
	}
}

// GetVarUint32 decodes a LEB128 encoded unsigned 32-bit integer from the start
// of b. It returns the value and the number of bytes consumed.
func GetVarUint32(b []byte) (uint32, int, error) {
	var res uint32
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if i == 4 && c&0xf0 != 0 {
			return 0, 0, ErrOverflow
		}
		res |= uint32(c&0x7f) << shift
		if c&0x80 == 0 {
			return res, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// GetVarint32 decodes a LEB128 encoded signed 32-bit integer from the start of
// b. It returns the value and the number of bytes consumed.
func GetVarint32(b []byte) (int32, int, error) {
	var res int32
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if i == 4 {
			if hi := c & 0x78; c&0x80 != 0 || (hi != 0 && hi != 0x78) {
				return 0, 0, ErrOverflow
			}
		}
		res |= int32(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 32 && c&0x40 != 0 {
				res |= -1 << shift
			}
			return res, i + 1, nil
		}
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// GetVarint64 decodes a LEB128 encoded signed 64-bit integer from the start of
// b. It returns the value and the number of bytes consumed.
func GetVarint64(b []byte) (int64, int, error) {
	var res int64
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if i == 9 {
			if hi := c & 0x7f; c&0x80 != 0 || (hi != 0 && hi != 0x7f) {
				return 0, 0, ErrOverflow
			}
		}
		res |= int64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			if shift < 64 && c&0x40 != 0 {
				res |= -1 << shift
			}
			return res, i + 1, nil
		}
	}
	return 0, 0, io.ErrUnexpectedEOF
}

// GetVarUint64 decodes a LEB128 encoded unsigned 64-bit integer from the start
// of b. It returns the value and the number of bytes consumed.
func GetVarUint64(b []byte) (uint64, int, error) {
	var res uint64
	var shift uint
	for i := 0; i < len(b); i++ {
		c := b[i]
		if i == 9 && c&0xfe != 0 {
			return 0, 0, ErrOverflow
		}
		res |= uint64(c&0x7f) << shift
		if c&0x80 == 0 {
			return res, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, io.ErrUnexpectedEOF
}
