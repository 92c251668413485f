// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/jeffasante/wasm-inspector/wasm/leb128"
)

// getInitialCap bounds preallocation for a vector whose length comes from the
// input. Larger vectors grow by appending as their elements are read.
func getInitialCap(count uint32) uint32 {
	if count > 10000 {
		return 10000
	}
	return count
}

func readByte(r io.Reader) (byte, error) {
	if br, ok := r.(io.ByteReader); ok {
		return br.ReadByte()
	}
	var p [1]byte
	if _, err := io.ReadFull(r, p[:]); err != nil {
		return 0, err
	}
	return p[0], nil
}

func readU32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// readBytes reads exactly n bytes from r. The buffer grows with the data
// actually present, so a bogus length cannot force a huge allocation.
func readBytes(r io.Reader, n uint32) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(int(getInitialCap(n)))
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func skipBytes(r io.Reader, n uint32) error {
	if _, err := io.CopyN(io.Discard, r, int64(n)); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	return nil
}

func readBytesUint(r io.Reader) ([]byte, error) {
	n, err := leb128.ReadVarUint32(r)
	if err != nil {
		return nil, err
	}
	return readBytes(r, n)
}

func readUTF8StringUint(r io.Reader) (string, error) {
	b, err := readBytesUint(r)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errorf(KindMalformedSection, "invalid UTF-8 name %q", b)
	}
	return string(b), nil
}
