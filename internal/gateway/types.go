// Package gateway translates the wire protocol's seven request types
// into database/statement registry operations and back into response
// frames, the same dispatch-by-kind shape the teacher's router.Dispatch
// gives HTTP/1.0 paths, generalized from string routes to request-type
// numbers and from resp.Result to wire.Frame.
package gateway

import (
	"errors"

	"github.com/just-now/dqlite/internal/dbase"
	"github.com/just-now/dqlite/internal/wire"
)

// Request type tags, numbered in the order spec.md §4.6 lists them —
// the numeric assignments are fixed by interop (spec.md §6).
const (
	HELO wire.Type = iota
	HEARTBEAT
	OPEN
	PREPARE
	EXEC
	QUERY
	FINALIZE
)

// Response type tags, in spec.md §6's listed order.
const (
	WELCOME wire.Type = iota
	SERVERS
	DB
	STMT
	RESULT
	ROWS
	EMPTY
	FAILURE
	DB_ERROR
)

// Request is the decoded, already-typed form of one incoming frame —
// the Go analogue of the source's reusable struct dqlite__request, split
// into per-kind fields instead of a C union.
type Request struct {
	Type wire.Type

	ClientID  uint32 // HELO
	Timestamp uint64 // HEARTBEAT, accepted but not echoed (§12.4)

	Open struct {
		Name  string
		Flags dbase.OpenFlags
		VFS   string
	}

	Prepare struct {
		DBID uint32
		SQL  string
	}

	Exec struct {
		DBID   uint32
		StmtID uint32
		Params []dbase.Param
	}

	Query struct {
		DBID   uint32
		StmtID uint32
		Params []dbase.Param
	}

	Finalize struct {
		DBID   uint32
		StmtID uint32
	}
}

// Response is one outgoing frame, already encoded.
type Response struct {
	Type  wire.Type
	Frame *wire.Frame
}

// Errors returned by Handle. DB_ERROR is never one of these: per §10.2 it
// is encoded into the response frame, not surfaced as a Go error.
var (
	// ErrSessionBusy is returned when Handle is called while a previous
	// call on the same Session hasn't finished yet (§12.3).
	ErrSessionBusy = errors.New("gateway: session has a request in flight")
	// ErrUnknownRequestType is returned for a Type outside HELO..FINALIZE.
	ErrUnknownRequestType = errors.New("gateway: unknown request type")
)

// heartbeatTimeoutMillis is the value WELCOME reports alongside the
// leader address. The source test never asserts a specific number, so
// this is a documented default rather than a recovered constant.
const heartbeatTimeoutMillis = 15000
