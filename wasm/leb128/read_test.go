// Copyright 2018 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leb128

import (
	"bytes"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

var casesUint = []struct {
	v uint32
	b []byte
}{
	{v: 8, b: []byte{0x08}},
	{v: 127, b: []byte{0x7f}},
	{v: 128, b: []byte{0x80, 0x01}},
	{v: 624485, b: []byte{0xe5, 0x8e, 0x26}},
	{v: 0xffffffff, b: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}},
}

var casesInt = []struct {
	v int64
	b []byte
}{
	{v: 0, b: []byte{0x00}},
	{v: 63, b: []byte{0x3f}},
	{v: 64, b: []byte{0xc0, 0x00}},
	{v: -1, b: []byte{0x7f}},
	{v: -64, b: []byte{0x40}},
	{v: -65, b: []byte{0xbf, 0x7f}},
	{v: -123456, b: []byte{0xc0, 0xbb, 0x78}},
}

func TestReadVarUint32(t *testing.T) {
	for _, c := range casesUint {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			n, size, err := ReadVarUint32Size(bytes.NewReader(c.b))
			assert.NoError(t, err)
			assert.Equal(t, c.v, n)
			assert.Equal(t, uint(len(c.b)), size)
		})
	}
}

func TestReadVarint64(t *testing.T) {
	for _, c := range casesInt {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			n, err := ReadVarint64(bytes.NewReader(c.b))
			assert.NoError(t, err)
			assert.Equal(t, c.v, n)

			g, sz, err := GetVarint64(c.b)
			assert.NoError(t, err)
			assert.Equal(t, c.v, g)
			assert.Equal(t, len(c.b), sz)
		})
	}
}

func TestReadErrors(t *testing.T) {
	cases := []struct {
		name string
		b    []byte
		read func(r io.Reader) error
		err  error
	}{
		{"uint32 empty", nil, func(r io.Reader) error { _, err := ReadVarUint32(r); return err }, io.EOF},
		{"uint32 partial", []byte{0x80}, func(r io.Reader) error { _, err := ReadVarUint32(r); return err }, io.ErrUnexpectedEOF},
		{"uint32 too long", []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x00}, func(r io.Reader) error { _, err := ReadVarUint32(r); return err }, ErrOverflow},
		{"uint32 high bits", []byte{0xff, 0xff, 0xff, 0xff, 0x1f}, func(r io.Reader) error { _, err := ReadVarUint32(r); return err }, ErrOverflow},
		{"int32 bad sign", []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, func(r io.Reader) error { _, err := ReadVarint32(r); return err }, ErrOverflow},
		{"int64 too long", bytes.Repeat([]byte{0x80}, 11), func(r io.Reader) error { _, err := ReadVarint64(r); return err }, ErrOverflow},
		{"uint64 high bits", append(bytes.Repeat([]byte{0xff}, 9), 0x03), func(r io.Reader) error { _, err := ReadVarUint64(r); return err }, ErrOverflow},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.ErrorIs(t, c.read(bytes.NewReader(c.b)), c.err)
		})
	}
}

func TestGetVarUint32Errors(t *testing.T) {
	_, _, err := GetVarUint32([]byte{0x80, 0x80})
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	_, _, err = GetVarUint32([]byte{0x80, 0x80, 0x80, 0x80, 0x10})
	assert.ErrorIs(t, err, ErrOverflow)

	v, _, err := GetVarint32([]byte{0x80, 0x80, 0x80, 0x80, 0x78})
	assert.NoError(t, err)
	assert.Equal(t, int32(-1<<31), v)
}
