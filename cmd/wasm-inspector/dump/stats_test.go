package dump

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffasante/wasm-inspector/callgraph"
	"github.com/jeffasante/wasm-inspector/load"
	"github.com/jeffasante/wasm-inspector/wasm"
	"github.com/jeffasante/wasm-inspector/wasm/wasmtest"
)

const header = "function,funcidx,typeidx,signature,in,out,locals,local count,body size,instruction count,max nesting,calls,call_indirect,exported,reachable\n"

func fixture() []byte {
	return wasmtest.New().
		Type([]byte{wasmtest.I32}, []byte{wasmtest.I32}).
		Type(nil, nil).
		ImportFunc("env", "log", 1).
		// Two i32 locals; local.get 0, call 0, end.
		RawFunction(0, []byte{0x01, 0x02, wasmtest.I32, 0x20, 0x00, 0x10, 0x00, 0x0b}).
		Function(1).
		ExportFunc("run", 1).
		Bytes()
}

func TestDumpStats(t *testing.T) {
	m, err := wasm.Decode(fixture())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, dumpStats(&buf, m, callgraph.Build(m)))

	assert.Equal(t, header+
		"run,1,0,(i32) -> (i32),1,1,2 i32,2,5,3,0,1,0,true,true\n"+
		",2,1,() -> (),0,0,,0,1,1,0,0,0,false,false\n", buf.String())
}

func TestDumpStatsNoFunctions(t *testing.T) {
	m, err := wasm.Decode(wasmtest.New().Type(nil, nil).ImportFunc("env", "f", 0).Bytes())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, dumpStats(&buf, m, callgraph.Build(m)))
	assert.Empty(t, buf.String())
}

func TestCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.wasm")
	require.NoError(t, os.WriteFile(path, fixture(), 0o600))

	t.Run("ok", func(t *testing.T) {
		var out bytes.Buffer
		cmd := Command(&load.Options{})
		cmd.SetOut(&out)
		cmd.SetArgs([]string{path})
		require.NoError(t, cmd.Execute())
		assert.Contains(t, out.String(), header)
	})
	t.Run("too large", func(t *testing.T) {
		cmd := Command(&load.Options{MaxSize: 8})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{path})
		assert.ErrorIs(t, cmd.Execute(), load.ErrTooLarge)
	})
	t.Run("no arguments", func(t *testing.T) {
		cmd := Command(&load.Options{})
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{})
		assert.Error(t, cmd.Execute())
	})
}
