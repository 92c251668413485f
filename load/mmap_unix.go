//go:build unix

package load

import (
	"os"

	"github.com/jeffasante/wasm-inspector/wasm"
	"golang.org/x/sys/unix"
)

// decodeFile maps the file read-only and decodes it in place. The decoder
// copies everything it keeps, so the mapping is released before returning.
func decodeFile(f *os.File, size int64) (*wasm.Module, error) {
	if size == 0 {
		return wasm.Decode(nil)
	}

	b, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return wasm.DecodeModule(f)
	}
	defer unix.Munmap(b)

	return wasm.Decode(b)
}
