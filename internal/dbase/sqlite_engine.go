package dbase

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver with database/sql
)

// memVFSNames records names registered via RegisterMemVFS, the in-memory
// VFS capability §1/§6 require the core to expose. modernc.org/sqlite has
// no separate VFS-registration call of its own; an in-memory database is
// addressed through its DSN instead, so RegisterMemVFS simply remembers
// which names OPEN is allowed to treat as in-memory.
var (
	memVFSMu    sync.Mutex
	memVFSNames = map[string]bool{}
)

// RegisterMemVFS records name as an in-memory VFS, satisfying §6's "VFS
// registration" requirement without reimplementing SQLite's VFS struct:
// OPEN requests naming this VFS get a shared in-memory database instead
// of a file-backed one.
func RegisterMemVFS(name string) {
	memVFSMu.Lock()
	memVFSNames[name] = true
	memVFSMu.Unlock()
}

func isMemVFS(name string) bool {
	memVFSMu.Lock()
	defer memVFSMu.Unlock()
	return memVFSNames[name]
}

// SQLiteEngine is the default Engine, backed by modernc.org/sqlite (a
// pure-Go driver, grounded on the queue package's sqlite_queue.go use of
// the same driver through database/sql). Each OPEN gets its own *sql.DB
// so that distinct gateway sessions never share a connection.
type SQLiteEngine struct{}

// NewSQLiteEngine returns the default engine implementation.
func NewSQLiteEngine() *SQLiteEngine { return &SQLiteEngine{} }

type sqliteDB struct {
	db *sql.DB
}

type sqliteStmt struct {
	stmt *sql.Stmt
}

func (e *SQLiteEngine) Open(ctx context.Context, name string, flags OpenFlags, vfs string) (DBHandle, error) {
	dsn := name
	if isMemVFS(vfs) {
		// A named mode=memory database with a shared cache stays the same
		// database across the multiple connections database/sql may open;
		// a plain :memory: DSN would give each connection its own.
		dsn = fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteDB{db: db}, nil
}

func (e *SQLiteEngine) Prepare(ctx context.Context, db DBHandle, query string) (StmtHandle, error) {
	conn := db.(*sqliteDB)
	stmt, err := conn.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, err
	}
	return &sqliteStmt{stmt: stmt}, nil
}

func (e *SQLiteEngine) Exec(ctx context.Context, stmt StmtHandle, params []Param) (ExecResult, error) {
	args := toArgs(params)
	res, err := stmt.(*sqliteStmt).stmt.ExecContext(ctx, args...)
	if err != nil {
		return ExecResult{}, err
	}
	last, _ := res.LastInsertId()
	affected, _ := res.RowsAffected()
	return ExecResult{LastInsertID: last, RowsAffected: affected}, nil
}

func (e *SQLiteEngine) Query(ctx context.Context, stmt StmtHandle, params []Param) (Rows, error) {
	args := toArgs(params)
	rows, err := stmt.(*sqliteStmt).stmt.QueryContext(ctx, args...)
	if err != nil {
		return Rows{}, err
	}
	defer rows.Close()

	cols, err := rows.ColumnTypes()
	if err != nil {
		return Rows{}, err
	}

	var out Rows
	for rows.Next() {
		scanned := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range scanned {
			ptrs[i] = &scanned[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Rows{}, err
		}
		out.Rows = append(out.Rows, Row{Values: toParams(scanned)})
	}
	return out, rows.Err()
}

func (e *SQLiteEngine) Finalize(ctx context.Context, stmt StmtHandle) error {
	return stmt.(*sqliteStmt).stmt.Close()
}

func (e *SQLiteEngine) Close(ctx context.Context, db DBHandle) error {
	return db.(*sqliteDB).db.Close()
}

func toArgs(params []Param) []any {
	args := make([]any, len(params))
	for i, p := range params {
		switch p.Type {
		case TypeInteger:
			args[i] = p.Int
		case TypeFloat:
			args[i] = p.Real
		case TypeText:
			args[i] = p.Text
		case TypeBlob:
			args[i] = p.Blob
		case TypeNull:
			args[i] = nil
		}
	}
	return args
}

func toParams(values []any) []Param {
	out := make([]Param, len(values))
	for i, v := range values {
		switch t := v.(type) {
		case int64:
			out[i] = Param{Type: TypeInteger, Int: t}
		case float64:
			out[i] = Param{Type: TypeFloat, Real: t}
		case string:
			out[i] = Param{Type: TypeText, Text: t}
		case []byte:
			out[i] = Param{Type: TypeBlob, Blob: t}
		case nil:
			out[i] = Param{Type: TypeNull}
		default:
			out[i] = Param{Type: TypeText, Text: fmt.Sprint(t)}
		}
	}
	return out
}
