package load

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/jeffasante/wasm-inspector/wasm"
)

// ErrModuleNotFound is returned when no file matches a module name.
var ErrModuleNotFound = errors.New("load: module not found")

var extensions = []string{"", ".wasm"}

// ResolveFile loads the module named by name, trying name itself and then
// name with a .wasm extension.
func ResolveFile(name string, opts Options) (*wasm.Module, error) {
	for _, ext := range extensions {
		info, err := os.Stat(name + ext)
		if err != nil || info.IsDir() {
			continue
		}
		return LoadFile(name+ext, opts)
	}
	return nil, fmt.Errorf("%v: %w", name, ErrModuleNotFound)
}

// FSResolver loads modules by name from a file system.
type FSResolver struct {
	fs   fs.FS
	opts Options
}

// NewFSResolver returns a resolver that reads modules from fsys.
func NewFSResolver(fsys fs.FS, opts Options) *FSResolver {
	return &FSResolver{fs: fsys, opts: opts}
}

// ResolveModule loads the module with the given name, trying the same
// extensions as ResolveFile.
func (r *FSResolver) ResolveModule(name string) (*wasm.Module, error) {
	for _, ext := range extensions {
		f, err := r.fs.Open(name + ext)
		if err != nil {
			continue
		}
		info, err := f.Stat()
		if err != nil || info.IsDir() {
			f.Close()
			continue
		}
		defer f.Close()

		m, err := LoadModule(f, r.opts)
		if err != nil {
			return nil, fmt.Errorf("%v: %w", name+ext, err)
		}
		return m, nil
	}
	return nil, fmt.Errorf("%v: %w", name, ErrModuleNotFound)
}
