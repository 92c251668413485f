// Copyright 2018 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package leb128

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
)

func TestWriteVarUint32(t *testing.T) {
	for _, c := range casesUint {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			buf := new(bytes.Buffer)
			_, err := WriteVarUint32(buf, c.v)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf.Bytes(), c.b) {
				t.Fatalf("unexpected output: %x", buf.Bytes())
			}
		})
	}
}

func TestWriteVarint64(t *testing.T) {
	for _, c := range casesInt {
		t.Run(fmt.Sprint(c.v), func(t *testing.T) {
			buf := new(bytes.Buffer)
			_, err := WriteVarint64(buf, c.v)
			if err != nil {
				t.Fatal(err)
			}
			if !bytes.Equal(buf.Bytes(), c.b) {
				t.Fatalf("unexpected output: %x", buf.Bytes())
			}
		})
	}
}

func TestWriteReadInt64(t *testing.T) {
	r := rand.New(rand.NewSource(1))

	var buf bytes.Buffer
	for i := 0; i < 100000; i++ {
		n := r.Int63()
		if i%2 == 1 {
			n = -n
		}

		buf.Reset()
		_, err := WriteVarint64(&buf, n)
		if err != nil {
			t.Fatalf("WriteVarint64: %v", err)
		}

		v, err := ReadVarint64(&buf)
		if err != nil {
			t.Fatalf("ReadVarint64: %v", err)
		}

		if v != n {
			t.Fatalf("wrote %v; read %v", n, v)
		}
	}
}

func TestWriteReadInt32(t *testing.T) {
	r := rand.New(rand.NewSource(2))

	var buf bytes.Buffer
	for i := 0; i < 100000; i++ {
		n := r.Int31()
		if i%2 == 1 {
			n = -n
		}

		buf.Reset()
		_, err := WriteVarint64(&buf, int64(n))
		if err != nil {
			t.Fatalf("WriteVarint64: %v", err)
		}

		v, err := ReadVarint32(&buf)
		if err != nil {
			t.Fatalf("ReadVarint32: %v", err)
		}

		if v != n {
			t.Fatalf("wrote %v; read %v", n, v)
		}
	}
}

func TestWriteReadUint32(t *testing.T) {
	r := rand.New(rand.NewSource(3))

	var buf bytes.Buffer
	for i := 0; i < 100000; i++ {
		n := r.Uint32()

		buf.Reset()
		_, err := WriteVarUint32(&buf, n)
		if err != nil {
			t.Fatalf("WriteVarUint32: %v", err)
		}

		v, err := ReadVarUint32(&buf)
		if err != nil {
			t.Fatalf("ReadVarUint32: %v", err)
		}

		if v != n {
			t.Fatalf("wrote %v; read %v", n, v)
		}

		g, sz, err := GetVarUint32(AppendVarUint32(nil, n))
		if err != nil || g != n || sz != int(encodedLen(n)) {
			t.Fatalf("GetVarUint32(%v) = %v, %v, %v", n, g, sz, err)
		}
	}
}

func encodedLen(v uint32) uint {
	n := uint(1)
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
