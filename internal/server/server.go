// Package server accepts connections for the two surfaces the process
// exposes: the binary request/response protocol on the main listener,
// generalized from the teacher's HandleConn/ListenAndServe (HTTP/1.0
// text framing over net.Conn) to internal/wire's framed binary protocol,
// and a small HTTP/1.0 status/metrics side listener kept in the
// teacher's original shape for operational visibility.
package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/rs/zerolog"

	"github.com/just-now/dqlite/internal/gateway"
	"github.com/just-now/dqlite/internal/http10"
	"github.com/just-now/dqlite/internal/metrics"
	"github.com/just-now/dqlite/internal/resp"
	"github.com/just-now/dqlite/internal/util"
	"github.com/just-now/dqlite/internal/wire"
)

// Server owns the collaborators a connection needs: a Gateway to
// dispatch onto and a Prometheus registry to report from. It has no
// per-connection state of its own, the same separation gateway.Gateway/
// gateway.Session draws.
type Server struct {
	gw       *gateway.Gateway
	registry *prometheus.Registry
	log      zerolog.Logger
}

// New returns a Server dispatching requests onto gw and reporting reg's
// collectors from the status surface.
func New(gw *gateway.Gateway, reg *prometheus.Registry, log zerolog.Logger) *Server {
	return &Server{gw: gw, registry: reg, log: log}
}

// HandleConn services one client connection: each connection gets its
// own gateway.Session (so its requests serialize and share a pool
// dispatch cookie), and frames are decoded, dispatched and re-encoded in
// a loop until the peer closes the connection or a framing error makes
// the stream unrecoverable. A request that fails with a NOT_FOUND or
// protocol-class error is reported back as a FAILURE frame rather than
// closing the connection; only framing/decode errors end the session.
func (s *Server) HandleConn(c net.Conn) {
	defer c.Close()
	markConnAccepted()

	sess := gateway.NewSession(s.gw, s.log)
	ctx := context.Background()

	for {
		frame, err := wire.ReadFrame(c)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug().Err(err).Msg("connection closed on framing error")
			}
			return
		}

		req, err := gateway.DecodeRequest(frame)
		if err != nil {
			s.log.Debug().Err(err).Msg("closing connection on malformed request")
			s.writeFailure(c, err)
			return
		}

		resp, err := sess.Handle(ctx, req)
		if err != nil {
			s.writeFailure(c, err)
			continue
		}

		if err := wire.WriteFrame(c, resp.Frame); err != nil {
			s.log.Debug().Err(err).Msg("closing connection on write error")
			return
		}
	}
}

func (s *Server) writeFailure(c net.Conn, err error) {
	fr := gateway.FailureResponse(err)
	if werr := wire.WriteFrame(c, fr.Frame); werr != nil {
		s.log.Debug().Err(werr).Msg("failed to write failure frame")
	}
}

// ListenAndServe accepts connections on addr and services each with
// HandleConn on its own goroutine, the teacher's accept-loop shape.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.HandleConn(conn)
	}
}

// ListenAndServeStatus accepts HTTP/1.0 connections on addr and serves
// /status (JSON process numbers: pid, uptime, start time, accepted
// connection count) and /metrics (Prometheus text exposition of the
// gateway/pool collectors), the same GET-only side surface the teacher's
// /status endpoint offered. /status itself carries no pool or gateway
// counters.
func (s *Server) ListenAndServeStatus(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleStatusConn(conn)
	}
}

func (s *Server) handleStatusConn(c net.Conn) {
	defer c.Close()
	markConnAccepted()

	trace := map[string]string{
		"X-Request-Id": util.NewReqID(),
		"X-Worker-Pid": strconv.Itoa(PID()),
		"Connection":   "close",
	}

	req, err := http10.ParseRequest(bufio.NewReader(c))
	if err != nil {
		s.writeResult(c, resp.BadReq("bad_request", err.Error()), trace)
		return
	}

	if req.Method != "GET" {
		s.writeResult(c, resp.BadReq("bad_method", "only GET is supported"), trace)
		return
	}

	path, query := http10.SplitTarget(req.Target)
	switch path {
	case "/status":
		s.writeResult(c, s.statusResult(), trace)
	case "/metrics":
		s.writeResult(c, s.metricsResult(http10.ParseQuery(query)), trace)
	default:
		s.writeResult(c, resp.NotFound("not_found", "unknown path "+path), trace)
	}
}

// writeResult attaches trace to r's headers and drives the matching
// http10 writer off r.JSON, the one place a Result's fields turn into
// bytes on the wire.
func (s *Server) writeResult(c net.Conn, r resp.Result, trace map[string]string) {
	for k, v := range trace {
		r = r.WithHeader(k, v)
	}
	if r.Err != nil {
		http10.WriteErrorJSON(c, r.Status, r.Err.Code, r.Err.Detail, r.Headers)
		return
	}
	if r.JSON {
		http10.WriteJSONH(c, r.Status, r.Body, r.Headers)
		return
	}
	http10.WritePlainH(c, r.Status, r.Body, r.Headers)
}

func (s *Server) statusResult() resp.Result {
	out := map[string]any{
		"pid":        PID(),
		"uptime_ms":  Uptime().Milliseconds(),
		"started_at": StartedAt().UTC().Format("2006-01-02T15:04:05.999999999Z07:00"),
		"conns":      ConnCount(),
	}
	b, _ := json.Marshal(out)
	return resp.JSONOK(string(b))
}

// metricsResult gathers the registered collectors and encodes them as
// Prometheus text exposition, optionally filtered to metric families
// whose name contains query's "family" value (e.g. "?family=pool_"
// to see only the thread pool's gauges).
func (s *Server) metricsResult(query map[string]string) resp.Result {
	mfs, err := s.registry.Gather()
	if err != nil {
		return resp.IntErr("gather_failed", err.Error())
	}

	filter := query["family"]
	var buf bytes.Buffer
	enc := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range mfs {
		if filter != "" && !strings.Contains(mf.GetName(), filter) {
			continue
		}
		if err := enc.Encode(mf); err != nil {
			return resp.IntErr("encode_failed", err.Error())
		}
	}
	return resp.PlainOK(buf.String())
}

// Collectors are the process-wide Prometheus collectors the pool and
// gateway increment as they run; cmd/dqlited registers them against the
// same *prometheus.Registry passed to New, and the status surface reads
// them back out through Gather.
var Collectors = metrics.NewCollectors()
