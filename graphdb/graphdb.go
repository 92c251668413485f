// Package graphdb persists decoded modules and their call graphs to SQLite.
package graphdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jeffasante/wasm-inspector/callgraph"
	"github.com/jeffasante/wasm-inspector/wasm"

	_ "modernc.org/sqlite"
)

// Store handles database operations.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS modules (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		version INTEGER NOT NULL,
		module_name TEXT,
		function_imports INTEGER NOT NULL,
		functions INTEGER NOT NULL,
		reachable INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS functions (
		module_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
		idx INTEGER NOT NULL,
		name TEXT,
		imported INTEGER NOT NULL,
		exported INTEGER NOT NULL,
		entry INTEGER NOT NULL,
		reachable INTEGER NOT NULL,
		call_count INTEGER NOT NULL,
		body_size INTEGER,
		instructions INTEGER,
		PRIMARY KEY (module_id, idx)
	);
	CREATE TABLE IF NOT EXISTS edges (
		module_id INTEGER NOT NULL REFERENCES modules(id) ON DELETE CASCADE,
		caller INTEGER NOT NULL,
		callee INTEGER NOT NULL,
		call_sites INTEGER NOT NULL,
		PRIMARY KEY (module_id, caller, callee)
	);
	CREATE INDEX IF NOT EXISTS idx_edges_callee ON edges(module_id, callee);
	`
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to init schema: %w", err)
	}
	return nil
}

// Save writes m and its call graph g under name and returns the new module's
// id. Everything is written in a single transaction.
func (s *Store) Save(ctx context.Context, name string, m *wasm.Module, g *callgraph.Graph) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
	INSERT INTO modules (name, version, module_name, function_imports, functions, reachable)
	VALUES (?, ?, ?, ?, ?, ?)
	`, name, int64(m.Version), nullString(m.Names.Module), int64(m.ImportCount(wasm.ExternalFunction)), int64(len(m.Functions)), int64(g.ReachableCount()))
	if err != nil {
		return 0, fmt.Errorf("failed to insert module: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := saveFunctions(ctx, tx, id, m, g); err != nil {
		return 0, err
	}
	if err := saveEdges(ctx, tx, id, g); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}
	return id, nil
}

func saveFunctions(ctx context.Context, tx *sql.Tx, id int64, m *wasm.Module, g *callgraph.Graph) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO functions (module_id, idx, name, imported, exported, entry, reachable, call_count, body_size, instructions)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare function insert: %w", err)
	}
	defer stmt.Close()

	entries := make(map[uint32]bool, len(g.EntryPoints))
	for _, e := range g.EntryPoints {
		entries[e] = true
	}

	for _, n := range g.Nodes {
		var bodySize, instructions sql.NullInt64
		if f := m.Function(n.Index); f != nil {
			bodySize = sql.NullInt64{Int64: int64(f.BodySize), Valid: true}
			instructions = sql.NullInt64{Int64: int64(f.Metrics.InstructionCount), Valid: true}
		}
		_, err := stmt.ExecContext(ctx, id, int64(n.Index), nullString(n.Name), n.IsImported, n.IsExported,
			entries[n.Index], g.IsReachable(n.Index), int64(n.CallCount), bodySize, instructions)
		if err != nil {
			return fmt.Errorf("failed to insert function %d: %w", n.Index, err)
		}
	}
	return nil
}

func saveEdges(ctx context.Context, tx *sql.Tx, id int64, g *callgraph.Graph) error {
	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO edges (module_id, caller, callee, call_sites) VALUES (?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare edge insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range g.Edges {
		if _, err := stmt.ExecContext(ctx, id, int64(e.From), int64(e.To), int64(e.CallSites)); err != nil {
			return fmt.Errorf("failed to insert edge %d -> %d: %w", e.From, e.To, err)
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Function is a stored call graph node.
type Function struct {
	Index     uint32
	Name      string
	Imported  bool
	Exported  bool
	Entry     bool
	Reachable bool
	CallCount int
}

// Functions returns the stored functions of a module in index order.
func (s *Store) Functions(ctx context.Context, moduleID int64) ([]Function, error) {
	return s.queryFunctions(ctx, `
	SELECT idx, name, imported, exported, entry, reachable, call_count
	FROM functions WHERE module_id = ? ORDER BY idx
	`, moduleID)
}

// Unreachable returns the defined functions of a module that no entry point
// reaches, in index order.
func (s *Store) Unreachable(ctx context.Context, moduleID int64) ([]Function, error) {
	return s.queryFunctions(ctx, `
	SELECT idx, name, imported, exported, entry, reachable, call_count
	FROM functions WHERE module_id = ? AND reachable = 0 AND imported = 0 ORDER BY idx
	`, moduleID)
}

func (s *Store) queryFunctions(ctx context.Context, query string, args ...interface{}) ([]Function, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var fns []Function
	for rows.Next() {
		var f Function
		var name sql.NullString
		if err := rows.Scan(&f.Index, &name, &f.Imported, &f.Exported, &f.Entry, &f.Reachable, &f.CallCount); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		f.Name = name.String
		fns = append(fns, f)
	}
	return fns, rows.Err()
}

// Callers returns the indices of the functions that call callee, in
// ascending order.
func (s *Store) Callers(ctx context.Context, moduleID int64, callee uint32) ([]uint32, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT caller FROM edges WHERE module_id = ? AND callee = ? ORDER BY caller
	`, moduleID, int64(callee))
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var callers []uint32
	for rows.Next() {
		var c uint32
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		callers = append(callers, c)
	}
	return callers, rows.Err()
}
