package wasm_test

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jeffasante/wasm-inspector/wasm"
)

func FuzzDecode(f *testing.F) {
	f.Add([]byte{})
	f.Add(header)
	f.Add(withHeader([]byte{0xff}))
	for _, bin := range validFixtures() {
		f.Add(bin)
	}

	f.Fuzz(func(t *testing.T, b []byte) {
		m, err := wasm.Decode(b)
		if err != nil {
			var de *wasm.DecodeError
			if !errors.As(err, &de) {
				t.Fatalf("unexpected error type %T: %v", err, err)
			}
			if m != nil {
				t.Fatal("module returned alongside error")
			}
			return
		}
		for i, fn := range m.Functions {
			if fn.Index != m.ImportCount(wasm.ExternalFunction)+uint32(i) {
				t.Fatalf("function %d has index %d", i, fn.Index)
			}
		}
	})
}

func TestDecodeAdversarialInputIsBounded(t *testing.T) {
	zeros := make([]byte, 10*1024)
	inputs := map[string][]byte{
		"zeros":                    zeros,
		"header then zeros":        withHeader(zeros),
		"header then custom flood": withHeader(bytes.Repeat([]byte{0x00, 0x01, 0x00}, 3*1024), []byte{0xff}),
		"header then huge counts":  withHeader([]byte{0x01, 0x05, 0xff, 0xff, 0xff, 0xff, 0x0f}),
		"header then huge section": withHeader([]byte{0x0a, 0xff, 0xff, 0xff, 0xff, 0x0f, 0x01}),
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			start := time.Now()
			_, err := wasm.Decode(input)
			elapsed := time.Since(start)
			assert.True(t, elapsed < time.Second, "decode took %v", elapsed)

			var de *wasm.DecodeError
			assert.True(t, errors.As(err, &de), "%v", err)
		})
	}
}
