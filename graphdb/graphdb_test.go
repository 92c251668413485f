package graphdb

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeffasante/wasm-inspector/callgraph"
	"github.com/jeffasante/wasm-inspector/wasm"
	"github.com/jeffasante/wasm-inspector/wasm/wasmtest"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "graph.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func fixture(t *testing.T) (*wasm.Module, *callgraph.Graph) {
	t.Helper()
	m, err := wasm.Decode(wasmtest.New().
		Type(nil, nil).
		ImportFunc("env", "log", 0).
		Function(0, wasmtest.Concat(wasmtest.Call(2), wasmtest.Call(0), wasmtest.Call(0))...).
		Function(0).
		Function(0, wasmtest.Call(2)...).
		ExportFunc("main", 1).
		Names("demo", nil).
		Bytes())
	require.NoError(t, err)
	return m, callgraph.Build(m)
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	m, g := fixture(t)

	id, err := s.Save(ctx, "demo.wasm", m, g)
	require.NoError(t, err)

	fns, err := s.Functions(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []Function{
		{Index: 0, Name: "env.log", Imported: true, Reachable: true, CallCount: 2},
		{Index: 1, Name: "main", Exported: true, Entry: true, Reachable: true},
		{Index: 2, Reachable: true, CallCount: 2},
		{Index: 3},
	}, fns)

	dead, err := s.Unreachable(ctx, id)
	require.NoError(t, err)
	require.Len(t, dead, 1)
	assert.Equal(t, uint32(3), dead[0].Index)

	callers, err := s.Callers(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint32{1, 3}, callers)

	callers, err = s.Callers(ctx, id, 1)
	require.NoError(t, err)
	assert.Empty(t, callers)

	var name string
	var functions, reachable int
	row := s.db.QueryRowContext(ctx, "SELECT module_name, functions, reachable FROM modules WHERE id = ?", id)
	require.NoError(t, row.Scan(&name, &functions, &reachable))
	assert.Equal(t, "demo", name)
	assert.Equal(t, 3, functions)
	assert.Equal(t, 3, reachable)
}

func TestSaveTwice(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	m, g := fixture(t)

	first, err := s.Save(ctx, "a.wasm", m, g)
	require.NoError(t, err)
	second, err := s.Save(ctx, "b.wasm", m, g)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	fns, err := s.Functions(ctx, second)
	require.NoError(t, err)
	assert.Len(t, fns, 4)
}

func TestSaveEmptyModule(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)

	m, err := wasm.Decode(wasmtest.New().Bytes())
	require.NoError(t, err)

	id, err := s.Save(ctx, "empty.wasm", m, callgraph.Build(m))
	require.NoError(t, err)

	fns, err := s.Functions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, fns)
}

func TestReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "graph.db")
	m, g := fixture(t)

	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Save(ctx, "demo.wasm", m, g)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	dead, err := s.Unreachable(ctx, id)
	require.NoError(t, err)
	assert.Len(t, dead, 1)
}
