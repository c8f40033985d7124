package dbase

import "context"

// OpenFlags mirrors SQLite's own open-flag bitset closely enough to
// reproduce its misuse check (§4.6: "CREATE without READWRITE/READONLY").
type OpenFlags uint32

const (
	OpenReadOnly  OpenFlags = 1 << 0
	OpenReadWrite OpenFlags = 1 << 1
	OpenCreate    OpenFlags = 1 << 2
)

// ParamType is the wire-level type tag for a bound parameter or column
// value (§4.6's parameter/row encoding): SQLite's own 1..5 tagging.
type ParamType uint8

const (
	TypeInteger ParamType = 1
	TypeFloat   ParamType = 2
	TypeText    ParamType = 3
	TypeBlob    ParamType = 4
	TypeNull    ParamType = 5
)

// Param is one bound parameter or returned column value.
type Param struct {
	Type ParamType
	Int  int64
	Real float64
	Text string
	Blob []byte
}

// ExecResult is EXEC's success payload.
type ExecResult struct {
	LastInsertID int64
	RowsAffected int64
}

// Row is one ROWS row: one Param per column, each carrying its own Type.
type Row struct {
	Values []Param
}

// Rows is QUERY's success payload.
type Rows struct {
	Rows []Row
}

// DBHandle and StmtHandle are opaque engine-owned handles; the registry
// never interprets them beyond handing them back to the Engine.
type DBHandle any
type StmtHandle any

// Engine is the capability interface the registry drives to actually
// open, prepare, step and finalize SQL — the "external collaborator"
// spec.md §1 calls out. SQLiteEngine is the default, concrete
// implementation wired by cmd/dqlited; tests may substitute a fake.
type Engine interface {
	Open(ctx context.Context, name string, flags OpenFlags, vfs string) (DBHandle, error)
	Prepare(ctx context.Context, db DBHandle, sql string) (StmtHandle, error)
	Exec(ctx context.Context, stmt StmtHandle, params []Param) (ExecResult, error)
	Query(ctx context.Context, stmt StmtHandle, params []Param) (Rows, error)
	Finalize(ctx context.Context, stmt StmtHandle) error
	Close(ctx context.Context, db DBHandle) error
}

// Error is DB_ERROR's payload: a SQLite primary code, extended code, and
// a description string. Codes in the descriptions table get fixed text;
// every other engine failure carries the driver's own message (see
// AsDBError).
type Error struct {
	Code         int
	ExtendedCode int
	Description  string
}

func (e *Error) Error() string { return e.Description }

// SQLite result codes this core produces directly (not all of SQLite's
// codes — only the ones §4.6 and §8's scenarios name).
const (
	codeOK     = 0
	codeMisuse = 21
)

// descriptions mirrors test_gateway.c's literal assertion for MISUSE
// ("bad parameter or other API misuse"), plus a string for OK. Codes not
// listed here have no fixed text.
var descriptions = map[int]string{
	codeOK:     "not an error",
	codeMisuse: "bad parameter or other API misuse",
}

// codeGenericError is SQLITE_ERROR, the fallback primary code for any
// engine failure that doesn't self-report a SQLite result code. Its
// description is the driver's error text, so it can differ between
// SQLite engines.
const codeGenericError = 1

// sqliteCoder is implemented by driver errors that know their own SQLite
// result code (modernc.org/sqlite's *sqlite.Error satisfies this).
type sqliteCoder interface {
	Code() int
}

// NewMisuseError builds the DB_ERROR the registry returns when OPEN's
// flag combination is invalid (CREATE without READWRITE/READONLY).
func NewMisuseError() *Error {
	return &Error{Code: codeMisuse, ExtendedCode: codeMisuse, Description: descriptions[codeMisuse]}
}

// AsDBError converts an Engine-returned error (PREPARE/EXEC/QUERY
// failures, never ErrNotFound) into a DB_ERROR payload. Errors that
// already carry a SQLite result code keep it; anything else is reported
// as a generic SQLITE_ERROR with the driver's own message, since only
// the MISUSE text is required to be a fixed string (§12.5).
func AsDBError(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	if c, ok := err.(sqliteCoder); ok {
		return &Error{Code: c.Code(), ExtendedCode: c.Code(), Description: err.Error()}
	}
	return &Error{Code: codeGenericError, ExtendedCode: codeGenericError, Description: err.Error()}
}

// validateOpenFlags enforces the misuse rule scenario S4 exercises.
func validateOpenFlags(flags OpenFlags) error {
	if flags&OpenCreate != 0 && flags&(OpenReadOnly|OpenReadWrite) == 0 {
		return NewMisuseError()
	}
	return nil
}
