package server

import (
	"bufio"
	"encoding/json"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/just-now/dqlite/internal/cluster"
	"github.com/just-now/dqlite/internal/dbase"
	"github.com/just-now/dqlite/internal/gateway"
	"github.com/just-now/dqlite/internal/pool"
	"github.com/just-now/dqlite/internal/wire"
)

func newTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	dbase.RegisterMemVFS("server-test-volatile")
	registry := dbase.NewRegistry(dbase.NewSQLiteEngine())
	cl := cluster.NewStatic("127.0.0.1:1", []string{"127.0.0.1:1"})
	p := pool.New(pool.Config{Workers: 1, Logger: zerolog.Nop()})
	gw := gateway.New(registry, cl, p, zerolog.Nop())
	reg := prometheus.NewRegistry()
	return New(gw, reg, zerolog.Nop()), func() { p.Close() }
}

func TestHandleConnRoundTripsHeloWelcome(t *testing.T) {
	srv, closeFn := newTestServer(t)
	defer closeFn()

	s, c := net.Pipe()
	defer s.Close()
	defer c.Close()
	go srv.HandleConn(s)

	w := wire.NewWriter()
	w.Uint32(7)
	require.NoError(t, wire.WriteFrame(c, w.Frame(gateway.HELO)))

	got, err := wire.ReadFrame(c)
	require.NoError(t, err)
	require.Equal(t, gateway.WELCOME, got.Type)
}

func TestHandleConnReportsNotFoundAsFailureAndKeepsConnOpen(t *testing.T) {
	srv, closeFn := newTestServer(t)
	defer closeFn()

	s, c := net.Pipe()
	defer s.Close()
	defer c.Close()
	go srv.HandleConn(s)

	w := wire.NewWriter()
	w.Uint32(999)
	w.Text("SELECT 1")
	require.NoError(t, wire.WriteFrame(c, w.Frame(gateway.PREPARE)))

	got, err := wire.ReadFrame(c)
	require.NoError(t, err)
	require.Equal(t, gateway.FAILURE, got.Type)

	// The connection should still accept another request after a FAILURE.
	w2 := wire.NewWriter()
	w2.Uint32(1)
	require.NoError(t, wire.WriteFrame(c, w2.Frame(gateway.HELO)))
	got2, err := wire.ReadFrame(c)
	require.NoError(t, err)
	require.Equal(t, gateway.WELCOME, got2.Type)
}

func TestHandleStatusConnServesStatusAsJSON(t *testing.T) {
	srv, closeFn := newTestServer(t)
	defer closeFn()

	s, c := net.Pipe()
	defer s.Close()
	defer c.Close()
	go srv.handleStatusConn(s)

	_, _ = c.Write([]byte("GET /status HTTP/1.0\r\n\r\n"))
	br := bufio.NewReader(c)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.0 200 OK\r\n", line)

	hasReq := false
	for {
		h, _ := br.ReadString('\n')
		if h == "\r\n" {
			break
		}
		if strings.HasPrefix(strings.ToLower(h), "x-request-id:") {
			hasReq = true
		}
	}
	require.True(t, hasReq)

	body, _ := br.ReadString('\n')
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &out))
	require.Contains(t, out, "pid")
	require.Contains(t, out, "uptime_ms")
}

func TestHandleStatusConnServesMetricsAsText(t *testing.T) {
	srv, closeFn := newTestServer(t)
	defer closeFn()
	Collectors.MustRegister(srv.registry)

	s, c := net.Pipe()
	defer s.Close()
	defer c.Close()
	go srv.handleStatusConn(s)

	_, _ = c.Write([]byte("GET /metrics HTTP/1.0\r\n\r\n"))
	br := bufio.NewReader(c)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.0 200 OK\r\n", line)
}

func TestHandleStatusConnFiltersMetricsByFamilyQueryParam(t *testing.T) {
	srv, closeFn := newTestServer(t)
	defer closeFn()
	Collectors.MustRegister(srv.registry)
	Collectors.RequestsTotal.Inc()

	s, c := net.Pipe()
	defer s.Close()
	defer c.Close()
	go srv.handleStatusConn(s)

	_, _ = c.Write([]byte("GET /metrics?family=requests_total HTTP/1.0\r\n\r\n"))
	br := bufio.NewReader(c)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.0 200 OK\r\n", line)

	for {
		h, _ := br.ReadString('\n')
		if h == "\r\n" {
			break
		}
	}
	body, _ := io.ReadAll(br)
	require.Contains(t, string(body), "requests_total")
	require.NotContains(t, string(body), "in_flight")
}

func TestHandleStatusConnReturns404ForUnknownPath(t *testing.T) {
	srv, closeFn := newTestServer(t)
	defer closeFn()

	s, c := net.Pipe()
	defer s.Close()
	defer c.Close()
	go srv.handleStatusConn(s)

	_, _ = c.Write([]byte("GET /nope HTTP/1.0\r\n\r\n"))
	br := bufio.NewReader(c)
	line, err := br.ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "HTTP/1.0 404 Not Found\r\n", line)
}
