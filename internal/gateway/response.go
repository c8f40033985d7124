package gateway

import (
	"github.com/just-now/dqlite/internal/dbase"
	"github.com/just-now/dqlite/internal/wire"
)

func welcomeResponse(leader string) *Response {
	w := wire.NewWriter()
	w.Text(leader)
	w.Uint64(heartbeatTimeoutMillis)
	return &Response{Type: WELCOME, Frame: w.Frame(WELCOME)}
}

// serversResponse encodes addrs terminated by an empty string, the wire
// form of the trailing NULL spec.md §4.6 calls for.
func serversResponse(addrs []string) *Response {
	w := wire.NewWriter()
	for _, a := range addrs {
		w.Text(a)
	}
	w.Text("")
	return &Response{Type: SERVERS, Frame: w.Frame(SERVERS)}
}

func dbResponse(id int) *Response {
	w := wire.NewWriter()
	w.Uint32(uint32(id))
	return &Response{Type: DB, Frame: w.Frame(DB)}
}

func stmtResponse(dbID, stmtID int) *Response {
	w := wire.NewWriter()
	w.Uint32(uint32(dbID))
	w.Uint32(uint32(stmtID))
	return &Response{Type: STMT, Frame: w.Frame(STMT)}
}

func resultResponse(r dbase.ExecResult) *Response {
	w := wire.NewWriter()
	w.Uint64(uint64(r.LastInsertID))
	w.Uint64(uint64(r.RowsAffected))
	return &Response{Type: RESULT, Frame: w.Frame(RESULT)}
}

func rowsResponse(rows dbase.Rows) *Response {
	w := wire.NewWriter()
	encodeRows(w, rows)
	return &Response{Type: ROWS, Frame: w.Frame(ROWS)}
}

func emptyResponse() *Response {
	return &Response{Type: EMPTY, Frame: wire.NewFrame(EMPTY, nil)}
}

// dbErrorResponse encodes a DB_ERROR payload: primary code, extended
// code, then the \0-terminated description (§4.6, §12.5).
func dbErrorResponse(e *dbase.Error) *Response {
	w := wire.NewWriter()
	w.Uint64(uint64(e.Code))
	w.Uint64(uint64(e.ExtendedCode))
	w.Text(e.Description)
	return &Response{Type: DB_ERROR, Frame: w.Frame(DB_ERROR)}
}

// failureResponse encodes a connection-level FAILURE: a generic code
// plus err's message. It carries NOT_FOUND/session/protocol failures
// (Session.Handle's error return) over the wire instead of dropping the
// connection, the same shape as dbErrorResponse but without a SQLite
// extended code since nothing here comes from the engine.
func failureResponse(err error) *Response {
	w := wire.NewWriter()
	w.Uint64(1)
	w.Text(err.Error())
	return &Response{Type: FAILURE, Frame: w.Frame(FAILURE)}
}

// FailureResponse exports failureResponse for the connection-handling
// server loop, which sits outside this package.
func FailureResponse(err error) *Response { return failureResponse(err) }
