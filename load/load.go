// Package load reads WebAssembly modules from files and streams.
package load

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jeffasante/wasm-inspector/wasm"
)

// DefaultMaxSize is the size cap applied when Options.MaxSize is zero.
const DefaultMaxSize = 64 << 20

// ErrTooLarge is returned for inputs that exceed the configured size cap.
var ErrTooLarge = errors.New("load: module exceeds size limit")

// Options configures module loading.
type Options struct {
	// MaxSize is the largest module, in bytes, that will be read. Zero means
	// DefaultMaxSize; a negative value disables the cap.
	MaxSize int64
}

func (o Options) maxSize() int64 {
	if o.MaxSize == 0 {
		return DefaultMaxSize
	}
	return o.MaxSize
}

func (o Options) check(size int64) error {
	if limit := o.maxSize(); limit > 0 && size > limit {
		return fmt.Errorf("%w: %d bytes (limit %d)", ErrTooLarge, size, limit)
	}
	return nil
}

// LoadModule reads and decodes a module from r.
func LoadModule(r io.Reader, opts Options) (*wasm.Module, error) {
	if limit := opts.maxSize(); limit > 0 {
		b, err := io.ReadAll(io.LimitReader(r, limit+1))
		if err != nil {
			return nil, err
		}
		if err := opts.check(int64(len(b))); err != nil {
			return nil, err
		}
		return wasm.Decode(b)
	}
	return wasm.DecodeModule(r)
}

// LoadFile reads and decodes the module stored at path.
func LoadFile(path string, opts Options) (*wasm.Module, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return LoadModule(f, opts)
	}
	if err := opts.check(info.Size()); err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}

	m, err := decodeFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%v: %w", path, err)
	}
	return m, nil
}
