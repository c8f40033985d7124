package gateway

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/just-now/dqlite/internal/wire"
)

// sessionSeq assigns each Session a unique pool-dispatch cookie so every
// request a session submits lands on the same worker (see Gateway's
// runOnPool), while distinct sessions still spread across the pool.
var sessionSeq uint32

// Session is one client connection's view of a Gateway: it enforces the
// single in-flight `handle` rule (§12.3, §4.6's "between handle and
// finish the gateway may not accept another request") and keeps the
// last error string the source's gateway.error field exposed, the same
// status-bookkeeping role internal/jobs.Job played for async task state,
// adapted here to a synchronous single-slot guard instead of a map of
// named jobs.
type Session struct {
	gw      *Gateway
	cookie  uint32
	traceID uuid.UUID
	log     zerolog.Logger

	mu        sync.Mutex
	busy      bool
	lastError string
}

// NewSession returns a Session bound to gw, tagged with a fresh trace id
// for correlating its requests in logs (§11's "session/client
// correlation ids").
func NewSession(gw *Gateway, log zerolog.Logger) *Session {
	return &Session{
		gw:      gw,
		cookie:  atomic.AddUint32(&sessionSeq, 1),
		traceID: uuid.New(),
		log:     log,
	}
}

// TraceID returns this session's correlation id.
func (s *Session) TraceID() uuid.UUID { return s.traceID }

// LastError returns the human-readable context for the most recent
// NOT_FOUND/PROTOCOL-class failure, mirroring struct dqlite__gateway's
// `error` field. It is empty after a successful Handle.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}

// Handle decodes, dispatches and encodes one request, rejecting a second
// concurrent call with ErrSessionBusy. The returned *Response must be
// released (conceptually — it carries no server-side resource) before
// the next Handle call; Go's GC retires it without an explicit Finish,
// unlike the source's dqlite__gateway_finish, since nothing here is
// arena-allocated.
func (s *Session) Handle(ctx context.Context, req *Request) (*Response, error) {
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrSessionBusy
	}
	s.busy = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}()

	resp, err := s.gw.handle(ctx, s.cookie, req)

	s.mu.Lock()
	if err != nil {
		s.lastError = err.Error()
		s.log.Debug().Err(err).Str("trace_id", s.traceID.String()).Str("request_type", requestTypeName(req.Type)).Msg("request failed")
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	return resp, err
}

func requestTypeName(t wire.Type) string {
	switch t {
	case HELO:
		return "HELO"
	case HEARTBEAT:
		return "HEARTBEAT"
	case OPEN:
		return "OPEN"
	case PREPARE:
		return "PREPARE"
	case EXEC:
		return "EXEC"
	case QUERY:
		return "QUERY"
	case FINALIZE:
		return "FINALIZE"
	default:
		return "UNKNOWN"
	}
}
