//go:build !unix

package load

import (
	"bufio"
	"os"

	"github.com/jeffasante/wasm-inspector/wasm"
)

func decodeFile(f *os.File, size int64) (*wasm.Module, error) {
	return wasm.DecodeModule(bufio.NewReader(f))
}
