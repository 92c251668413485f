// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package readpos wraps an io.Reader and tracks the number of bytes consumed.
package readpos

import "io"

// ReadPos implements io.Reader and stores the current number of bytes read from
// the reader.
type ReadPos struct {
	R      io.Reader
	CurPos int64
}

// Read implements the io.Reader interface.
func (r *ReadPos) Read(p []byte) (int, error) {
	n, err := r.R.Read(p)
	r.CurPos += int64(n)
	return n, err
}

// ReadByte implements the io.ByteReader interface.
func (r *ReadPos) ReadByte() (byte, error) {
	if br, ok := r.R.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err == nil {
			r.CurPos++
		}
		return b, err
	}

	var p [1]byte
	if _, err := io.ReadFull(r.R, p[:]); err != nil {
		return 0, err
	}
	r.CurPos++
	return p[0], nil
}
