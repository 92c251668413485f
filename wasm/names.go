// Copyright 2017 The go-interpreter Authors.  All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package wasm

import (
	"bytes"
	"io"

	"go.uber.org/zap"

	"github.com/jeffasante/wasm-inspector/wasm/leb128"
)

// CustomSectionName is the name of the custom section holding debug names.
const CustomSectionName = "name"

// NameType is the type of name subsection.
type NameType byte

const (
	NameModule   = NameType(0)
	NameFunction = NameType(1)
)

// NameMap holds the names recovered from a name section.
// See https://github.com/WebAssembly/design/blob/master/BinaryEncoding.md#name-section for more details.
type NameMap struct {
	Module    string
	Functions map[uint32]string // keyed by function index
}

// Function returns the name recorded for the function with the given index.
func (n NameMap) Function(index uint32) (string, bool) {
	name, ok := n.Functions[index]
	return name, ok
}

// ResolveNames decodes the payload of a name section. Decoding is best-effort:
// if the payload is malformed, the names decoded before the problem are
// returned and the rest are dropped.
func ResolveNames(data []byte) NameMap {
	names, err := resolveNames(data)
	if err != nil {
		Logger().Debug("ignoring malformed name section",
			zap.Error(err),
			zap.Int("functions", len(names.Functions)))
	}
	return names
}

func resolveNames(data []byte) (NameMap, error) {
	var names NameMap
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		typ, err := r.ReadByte()
		if err != nil {
			return names, err
		}
		size, err := leb128.ReadVarUint32(r)
		if err != nil {
			return names, err
		}
		if int64(size) > int64(r.Len()) {
			return names, io.ErrUnexpectedEOF
		}
		start := len(data) - r.Len()
		sub := bytes.NewReader(data[start : start+int(size)])
		if _, err := r.Seek(int64(size), io.SeekCurrent); err != nil {
			return names, err
		}

		switch NameType(typ) {
		case NameModule:
			if names.Module, err = readUTF8StringUint(sub); err != nil {
				return names, err
			}
		case NameFunction:
			if err := names.readFunctionNames(sub); err != nil {
				return names, err
			}
		}
	}
	return names, nil
}

func (n *NameMap) readFunctionNames(r io.Reader) error {
	count, err := leb128.ReadVarUint32(r)
	if err != nil {
		return err
	}
	if n.Functions == nil {
		n.Functions = make(map[uint32]string, getInitialCap(count))
	}
	for i := uint32(0); i < count; i++ {
		index, err := leb128.ReadVarUint32(r)
		if err != nil {
			return err
		}
		name, err := readUTF8StringUint(r)
		if err != nil {
			return err
		}
		if _, ok := n.Functions[index]; !ok {
			n.Functions[index] = name
		}
	}
	return nil
}
