// Package dbase implements the database/statement registry: a dense,
// sequentially-indexed vector of open database handles, each owning its
// own dense vector of prepared statements, plus the Engine capability
// interface the gateway drives to actually run SQL.
//
// Ids are never reused within a Registry's lifetime (a new database
// always gets len(databases) as its id, even once earlier slots are
// vacated), the same append-only discipline the teacher's sched.Manager
// uses for its named pool map, generalized from a map to a dense slice
// since ids here must be small sequential integers, not names.
package dbase

import (
	"context"
	"fmt"
	"sync"
)

// ErrNotFound is returned by Registry lookups for an id that is out of
// range or whose slot has been vacated.
var ErrNotFound = fmt.Errorf("dbase: not found")

// statement is one prepared statement owned by a database handle.
type statement struct {
	id  int
	sql string
	h   StmtHandle
}

// database is one open database handle and its owned statements.
type database struct {
	id    int
	name  string
	flags OpenFlags
	conn  DBHandle
	stmts []*statement // nil entries mark finalized slots
}

// Registry owns every open database and its prepared statements for one
// Gateway's lifetime; all Sessions of that Gateway share it.
type Registry struct {
	mu     sync.Mutex
	engine Engine
	dbs    []*database // nil entries mark closed slots
}

// NewRegistry returns a Registry driving engine for every OPEN/PREPARE/
// EXEC/QUERY/FINALIZE it services.
func NewRegistry(engine Engine) *Registry {
	return &Registry{engine: engine}
}

// Open opens name through the registry's Engine and returns the new
// database's dense id.
func (r *Registry) Open(ctx context.Context, name string, flags OpenFlags, vfs string) (int, error) {
	if err := validateOpenFlags(flags); err != nil {
		return 0, err
	}

	conn, err := r.engine.Open(ctx, name, flags, vfs)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := len(r.dbs)
	r.dbs = append(r.dbs, &database{id: id, name: name, flags: flags, conn: conn})
	return id, nil
}

// db looks up a database by id; callers must hold r.mu.
func (r *Registry) db(id int) (*database, error) {
	if id < 0 || id >= len(r.dbs) || r.dbs[id] == nil {
		return nil, fmt.Errorf("no db with id %d: %w", id, ErrNotFound)
	}
	return r.dbs[id], nil
}

// Prepare compiles sql against dbID and returns the new statement's
// dense, per-database id.
func (r *Registry) Prepare(ctx context.Context, dbID int, sql string) (int, error) {
	r.mu.Lock()
	d, err := r.db(dbID)
	r.mu.Unlock()
	if err != nil {
		return 0, err
	}

	h, err := r.engine.Prepare(ctx, d.conn, sql)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := len(d.stmts)
	d.stmts = append(d.stmts, &statement{id: id, sql: sql, h: h})
	return id, nil
}

func (r *Registry) stmt(dbID, stmtID int) (*database, *statement, error) {
	d, err := r.db(dbID)
	if err != nil {
		return nil, nil, err
	}
	if stmtID < 0 || stmtID >= len(d.stmts) || d.stmts[stmtID] == nil {
		return nil, nil, fmt.Errorf("no stmt with id %d: %w", stmtID, ErrNotFound)
	}
	return d, d.stmts[stmtID], nil
}

// Exec runs stmtID with params and returns the last insert id and rows
// affected.
func (r *Registry) Exec(ctx context.Context, dbID, stmtID int, params []Param) (ExecResult, error) {
	r.mu.Lock()
	_, s, err := r.stmt(dbID, stmtID)
	r.mu.Unlock()
	if err != nil {
		return ExecResult{}, err
	}
	return r.engine.Exec(ctx, s.h, params)
}

// Query runs stmtID with params and returns its rows.
func (r *Registry) Query(ctx context.Context, dbID, stmtID int, params []Param) (Rows, error) {
	r.mu.Lock()
	_, s, err := r.stmt(dbID, stmtID)
	r.mu.Unlock()
	if err != nil {
		return Rows{}, err
	}
	return r.engine.Query(ctx, s.h, params)
}

// Finalize destroys stmtID, vacating its slot.
func (r *Registry) Finalize(ctx context.Context, dbID, stmtID int) error {
	r.mu.Lock()
	_, s, err := r.stmt(dbID, stmtID)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	d := r.dbs[dbID]
	d.stmts[stmtID] = nil
	r.mu.Unlock()

	return r.engine.Finalize(ctx, s.h)
}

// Close destroys every statement owned by dbID, then the database itself,
// vacating its slot. Statements are finalized before their parent
// database per §4.5's lifecycle policy.
func (r *Registry) Close(ctx context.Context, dbID int) error {
	r.mu.Lock()
	d, err := r.db(dbID)
	r.mu.Unlock()
	if err != nil {
		return err
	}

	for _, s := range d.stmts {
		if s != nil {
			_ = r.engine.Finalize(ctx, s.h)
		}
	}
	err = r.engine.Close(ctx, d.conn)

	r.mu.Lock()
	r.dbs[dbID] = nil
	r.mu.Unlock()
	return err
}
