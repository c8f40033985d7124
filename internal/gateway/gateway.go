package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/just-now/dqlite/internal/cluster"
	"github.com/just-now/dqlite/internal/dbase"
	"github.com/just-now/dqlite/internal/metrics"
	"github.com/just-now/dqlite/internal/pool"
)

// Gateway holds the collaborators request handling needs: the
// database/statement registry, the cluster membership interface, and
// the thread pool every registry operation actually runs on. It has no
// per-connection state of its own — Session supplies that (§12.3).
type Gateway struct {
	registry *dbase.Registry
	cluster  cluster.Cluster
	pool     *pool.Pool
	log      zerolog.Logger

	metrics *metrics.Collectors
}

// New returns a Gateway dispatching onto pool and driving registry/
// cluster, mirroring internal/router.Dispatch's constructor-free style
// generalized into an explicit struct since this gateway now owns real
// collaborators instead of package-level globals.
func New(registry *dbase.Registry, cl cluster.Cluster, p *pool.Pool, log zerolog.Logger) *Gateway {
	return &Gateway{registry: registry, cluster: cl, pool: p, log: log}
}

// WithCollectors attaches c so every dispatched request increments
// RequestsTotal and observes RequestDuration. Returns g for chaining at
// construction time; nil c disables metrics (the default).
func (g *Gateway) WithCollectors(c *metrics.Collectors) *Gateway {
	g.metrics = c
	return g
}

// handle dispatches req to its behavior and returns the response frame,
// or an error for NOT_FOUND/PROTOCOL-class failures (§10.2). DB_ERROR is
// always returned as a *Response, never as the error return.
func (g *Gateway) handle(ctx context.Context, cookie uint32, req *Request) (*Response, error) {
	if g.metrics != nil {
		start := time.Now()
		g.metrics.RequestsTotal.Inc()
		defer func() {
			g.metrics.RequestDuration.WithLabelValues(requestTypeName(req.Type)).Observe(time.Since(start).Seconds())
		}()
	}

	switch req.Type {
	case HELO:
		return g.handleHelo(ctx, req)
	case HEARTBEAT:
		return g.handleHeartbeat(ctx, req)
	case OPEN:
		return g.handleOpen(ctx, cookie, req)
	case PREPARE:
		return g.handlePrepare(ctx, cookie, req)
	case EXEC:
		return g.handleExec(ctx, cookie, req)
	case QUERY:
		return g.handleQuery(ctx, cookie, req)
	case FINALIZE:
		return g.handleFinalize(ctx, cookie, req)
	default:
		return nil, ErrUnknownRequestType
	}
}

func (g *Gateway) handleHelo(ctx context.Context, req *Request) (*Response, error) {
	leader, err := g.cluster.Leader(ctx)
	if err != nil {
		return nil, err
	}
	return welcomeResponse(leader), nil
}

func (g *Gateway) handleHeartbeat(ctx context.Context, req *Request) (*Response, error) {
	addrs, err := g.cluster.Servers(ctx)
	if err != nil {
		return nil, err
	}
	return serversResponse(addrs), nil
}

func (g *Gateway) handleOpen(ctx context.Context, cookie uint32, req *Request) (*Response, error) {
	var (
		id  int
		err error
	)
	runErr := g.runOnPool(ctx, cookie, func(ctx context.Context) error {
		id, err = g.registry.Open(ctx, req.Open.Name, req.Open.Flags, req.Open.VFS)
		return nil
	})
	if runErr != nil {
		return nil, runErr
	}
	if err != nil {
		return dbErrorResponse(dbase.AsDBError(err)), nil
	}
	return dbResponse(id), nil
}

func (g *Gateway) handlePrepare(ctx context.Context, cookie uint32, req *Request) (*Response, error) {
	var (
		stmtID int
		err    error
	)
	runErr := g.runOnPool(ctx, cookie, func(ctx context.Context) error {
		stmtID, err = g.registry.Prepare(ctx, int(req.Prepare.DBID), req.Prepare.SQL)
		return nil
	})
	if runErr != nil {
		return nil, runErr
	}
	if err != nil {
		if resp, ok := notFoundOrNil(err); ok {
			return nil, fmt.Errorf("failed to handle prepare: %w", resp)
		}
		return dbErrorResponse(dbase.AsDBError(err)), nil
	}
	return stmtResponse(int(req.Prepare.DBID), stmtID), nil
}

func (g *Gateway) handleExec(ctx context.Context, cookie uint32, req *Request) (*Response, error) {
	var (
		result dbase.ExecResult
		err    error
	)
	runErr := g.runOnPool(ctx, cookie, func(ctx context.Context) error {
		result, err = g.registry.Exec(ctx, int(req.Exec.DBID), int(req.Exec.StmtID), req.Exec.Params)
		return nil
	})
	if runErr != nil {
		return nil, runErr
	}
	if err != nil {
		if resp, ok := notFoundOrNil(err); ok {
			return nil, fmt.Errorf("failed to handle exec: %w", resp)
		}
		return dbErrorResponse(dbase.AsDBError(err)), nil
	}
	return resultResponse(result), nil
}

func (g *Gateway) handleQuery(ctx context.Context, cookie uint32, req *Request) (*Response, error) {
	var (
		rows dbase.Rows
		err  error
	)
	runErr := g.runOnPool(ctx, cookie, func(ctx context.Context) error {
		rows, err = g.registry.Query(ctx, int(req.Query.DBID), int(req.Query.StmtID), req.Query.Params)
		return nil
	})
	if runErr != nil {
		return nil, runErr
	}
	if err != nil {
		if resp, ok := notFoundOrNil(err); ok {
			return nil, fmt.Errorf("failed to handle query: %w", resp)
		}
		return dbErrorResponse(dbase.AsDBError(err)), nil
	}
	return rowsResponse(rows), nil
}

func (g *Gateway) handleFinalize(ctx context.Context, cookie uint32, req *Request) (*Response, error) {
	var err error
	runErr := g.runOnPool(ctx, cookie, func(ctx context.Context) error {
		err = g.registry.Finalize(ctx, int(req.Finalize.DBID), int(req.Finalize.StmtID))
		return nil
	})
	if runErr != nil {
		return nil, runErr
	}
	if err != nil {
		if resp, ok := notFoundOrNil(err); ok {
			return nil, fmt.Errorf("failed to handle finalize: %w", resp)
		}
		return dbErrorResponse(dbase.AsDBError(err)), nil
	}
	return emptyResponse(), nil
}

// notFoundOrNil reports whether err wraps dbase.ErrNotFound; when it
// does, err itself (already formatted as "no db/stmt with id N") is the
// value spec.md §8's S7 scenario expects inside the wrapping message.
// Anything else (a SQL-layer failure from the engine, or OPEN's
// validateOpenFlags *dbase.Error) is DB_ERROR material, not NOT_FOUND.
func notFoundOrNil(err error) (error, bool) {
	if err != nil && errors.Is(err, dbase.ErrNotFound) {
		return err, true
	}
	return nil, false
}

// runOnPool submits fn as an ordered work item keyed on cookie (so every
// operation from the same session serializes on one worker) and blocks
// until it completes, turning the
// pool's async dispatch into Handle's synchronous call contract.
func (g *Gateway) runOnPool(ctx context.Context, cookie uint32, fn func(context.Context) error) error {
	done := make(chan error, 1)
	work := func(ctx context.Context) { done <- fn(ctx) }
	if err := g.pool.Submit(ctx, pool.Ord1, cookie, work, nil); err != nil {
		return err
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
