// Package pool is the work-dispatching thread pool: a planner goroutine
// drives ordered, unordered and barrier work items through a state
// machine onto N worker goroutines, and delivers their completions back
// to whatever submitted them. It generalizes the teacher's sched.Pool
// (three fixed-priority channels plus a goroutine-per-worker select loop,
// with a Welford stat accumulator for latency metrics) into the
// planner/ordered/unordered/barrier model, the same way sched.Manager
// generalized into internal/dbase's Registry.
package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/just-now/dqlite/internal/metrics"
	"github.com/just-now/dqlite/internal/queue"
	"github.com/just-now/dqlite/internal/sm"
)

// Kind classifies a work item. UNORDERED carries no ordering constraint;
// BARRIER is a control item; ORD1/ORD2/... are ordered classes whose
// items must run in submission order relative to same-kind siblings.
type Kind uint32

const (
	// Unordered work: no relative ordering guarantee.
	Unordered Kind = iota
	// Barrier: stalls dispatch until prior ordered items complete and the
	// unordered queue drains.
	Barrier
	// Ord1 is the first ordered kind. Callers may declare further kinds
	// starting from Ord2 (Ord1+1) for additional ordering classes.
	Ord1
	// Ord2 is the second ordered kind, kept as a named convenience since
	// spec scenario S8 exercises exactly two.
	Ord2
)

// kindUnset is the o_prev sentinel meaning "no ordered item submitted
// yet" — the source reuses WT_BAR (Barrier) for this since a barrier
// always passes the monotonicity check on either side of it.
const kindUnset = Barrier

// Errors returned by Submit and Close.
var (
	// ErrWorkCBRequired mirrors pool_queue_work's PRE(work_cb != NULL).
	ErrWorkCBRequired = errors.New("pool: work callback is required")
	// ErrOrderViolation is returned when a caller submits an ordered item
	// whose kind differs from the previous ordered submission without an
	// intervening BARRIER (see SPEC_FULL §12.2 / spec.md open question).
	ErrOrderViolation = errors.New("pool: ordered submission violates kind monotonicity")
	// ErrClosed is returned by Submit after Close has been called.
	ErrClosed = errors.New("pool: closed")
)

// WorkFunc runs a work item on a worker goroutine. It must not block
// indefinitely; the pool has no cancellation once an item starts.
type WorkFunc func(ctx context.Context)

// AfterFunc runs on the completion side once a work item's WorkFunc has
// returned, mirroring after_work_cb.
type AfterFunc func()

// workItem is one unit traveling through the ordered/unordered/per-worker
// queues — the Go analogue of pool_work_t, queued by embedding it in a
// queue.Elem.
type workItem struct {
	kind     Kind
	threadID uint32
	work     WorkFunc
	after    AfterFunc
	ctx      context.Context
}

// plannerState enumerates the planner's states. Names mirror
// original_source/src/lib/threadpool.c's planner_states exactly.
type plannerState sm.State

const (
	psNothing plannerState = iota
	psDraining
	psBarrier
	psDrainingUnord
	psExited
)

func plannerTable() sm.Table {
	s := func(p plannerState) sm.State { return sm.State(p) }
	return sm.Table{
		s(psNothing): {
			Name:    "nothing",
			Flags:   sm.Initial,
			Allowed: sm.Bit(s(psDraining)) | sm.Bit(s(psExited)),
		},
		s(psDraining): {
			Name:    "draining",
			Allowed: sm.Bit(s(psDraining)) | sm.Bit(s(psNothing)) | sm.Bit(s(psBarrier)),
		},
		s(psBarrier): {
			Name:    "barrier",
			Allowed: sm.Bit(s(psDrainingUnord)) | sm.Bit(s(psDraining)) | sm.Bit(s(psBarrier)),
		},
		s(psDrainingUnord): {
			Name:    "unord-draining",
			Allowed: sm.Bit(s(psBarrier)),
		},
		s(psExited): {
			Name:  "exited",
			Flags: sm.Final,
		},
	}
}

// worker is one pool thread: its own input queue and condition variable,
// mirroring pool_thread_t.
type worker struct {
	inq  *queue.Queue[*workItem]
	cond *sync.Cond
}

// Pool is the work-dispatching thread pool described by the request core
// spec: a planner goroutine plus N worker goroutines coordinating
// ordered, unordered and barrier work through the invariants in §3/§5.
type Pool struct {
	log zerolog.Logger

	mu      sync.Mutex
	workers []*worker

	ordered   *queue.Queue[*workItem]
	unordered *queue.Queue[*workItem]

	// orderedLen/unorderedLen mirror ordered/unordered's length for
	// metrics export; queue.Queue itself keeps no count since none of its
	// other callers need one.
	orderedLen, unorderedLen int64

	plannerCond *sync.Cond
	plannerSM   *sm.Machine

	outMu sync.Mutex
	outq  *queue.Queue[*workItem]

	inFlight uint32
	activeWS int64 // atomic; touched only under outMu or before any worker sees the item
	exiting  bool
	oPrev    Kind
	qosTick  uint32

	cpuAffinity []int

	metrics *metrics.Collectors

	wg sync.WaitGroup
}

// Config holds the pool's tunables.
type Config struct {
	// Workers is N, the number of worker goroutines. Callers should clamp
	// this to [1, 1024] themselves (see internal/config), mirroring
	// POOL_THREADPOOL_SIZE's source-side clamp.
	Workers int
	Logger  zerolog.Logger

	// CPUAffinity, if non-empty, pins worker #i to CPU
	// CPUAffinity[i%len(CPUAffinity)] via runtime.LockOSThread plus
	// unix.SchedSetaffinity. Leave nil to let the OS scheduler place
	// workers freely.
	CPUAffinity []int

	// Metrics, if non-nil, receives live queue-depth/in-flight/active
	// gauge updates as work moves through the pool. Leave nil to skip
	// metrics entirely.
	Metrics *metrics.Collectors
}

// New constructs and starts a Pool: one planner goroutine and
// cfg.Workers worker goroutines, analogous to pool_threads_init.
func New(cfg Config) *Pool {
	n := cfg.Workers
	if n <= 0 {
		n = 1
	}

	p := &Pool{
		log:         cfg.Logger,
		ordered:     queue.New[*workItem](),
		unordered:   queue.New[*workItem](),
		outq:        queue.New[*workItem](),
		oPrev:       kindUnset,
		cpuAffinity: cfg.CPUAffinity,
		metrics:     cfg.Metrics,
	}
	p.plannerCond = sync.NewCond(&p.mu)
	p.plannerSM = sm.Init(plannerTable(), p.plannerInvariant, sm.State(psNothing)).WithLogger(p.log)

	p.workers = make([]*worker, n)
	for i := range p.workers {
		p.workers[i] = &worker{inq: queue.New[*workItem]()}
		p.workers[i].cond = sync.NewCond(&p.mu)
	}

	p.log.Debug().Int("workers", n).Msg("pool starting")

	p.wg.Add(n + 1)
	go p.runPlanner()
	for i := range p.workers {
		go p.runWorker(uint32(i))
	}
	return p
}

// plannerInvariant is the Go translation of planner_invariant: it must
// hold after every sm.Machine.Move the planner performs. A violation is
// a fatal, unrecoverable condition per spec.md §7 ("SM invariant
// violations" are fatal), so a false return makes sm.Machine.Move panic
// rather than return an error — callers running the pool as a library
// should treat a pool panic as a process-ending event, same as the
// source's abort().
func (p *Pool) plannerInvariant(m *sm.Machine, prevState sm.State) bool {
	cur := plannerState(m.State())
	prev := plannerState(prevState)
	o, u := p.ordered, p.unordered

	switch cur {
	case psNothing:
		return o.Empty() && u.Empty()
	case psDraining:
		if prev == psBarrier && !(p.inFlight == 0 && u.Empty()) {
			return false
		}
		if prev == psNothing && !(!u.Empty() || !o.Empty()) {
			return false
		}
		return true
	case psExited:
		return p.exiting && o.Empty() && u.Empty()
	case psBarrier:
		if prev == psDraining && o.Head().Value.kind != Barrier {
			return false
		}
		if prev == psDrainingUnord && !u.Empty() {
			return false
		}
		return true
	case psDrainingUnord:
		return !u.Empty()
	}
	return true
}

// reportQueueDepth publishes the ordered/unordered queue lengths to the
// QueueDepth gauge vec, if metrics are configured.
func (p *Pool) reportQueueDepth() {
	if p.metrics == nil {
		return
	}
	p.metrics.QueueDepth.WithLabelValues("ordered").Set(float64(atomic.LoadInt64(&p.orderedLen)))
	p.metrics.QueueDepth.WithLabelValues("unordered").Set(float64(atomic.LoadInt64(&p.unorderedLen)))
}

// reportInFlight publishes the in_flight gauge. Callers must hold p.mu,
// since p.inFlight is otherwise unsynchronized.
func (p *Pool) reportInFlight() {
	if p.metrics == nil {
		return
	}
	p.metrics.InFlight.Set(float64(p.inFlight))
}

// reportActiveWorkItems publishes the active_work_items gauge from the
// atomic activeWS counter; safe to call without p.mu.
func (p *Pool) reportActiveWorkItems() {
	if p.metrics == nil {
		return
	}
	p.metrics.ActiveWorkItems.Set(float64(atomic.LoadInt64(&p.activeWS)))
}

func kindGE(k Kind, ref Kind) bool { return k >= ref }

// qosPop pops from whichever of a/b was requested by fair alternation
// when both are non-empty, same contract as qos_pop.
func qosPop(tick *uint32, a, b *queue.Queue[*workItem]) *queue.Elem[*workItem] {
	switch {
	case a.Empty():
		return b.PopHead()
	case b.Empty():
		return a.PopHead()
	default:
		*tick++
		if *tick%2 == 1 {
			return a.PopHead()
		}
		return b.PopHead()
	}
}

// runPlanner is the goroutine body for the planner thread, a direct
// translation of planner() in original_source/src/lib/threadpool.c.
func (p *Pool) runPlanner() {
	defer p.wg.Done()

	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		switch plannerState(p.plannerSM.State()) {
		case psNothing:
			for p.ordered.Empty() && p.unordered.Empty() && !p.exiting {
				p.plannerCond.Wait()
			}
			if p.exiting {
				p.plannerSM.Move(sm.State(psExited))
			} else {
				p.plannerSM.Move(sm.State(psDraining))
			}

		case psDraining:
			barrierHit := false
			for !(p.ordered.Empty() && p.unordered.Empty()) {
				p.plannerSM.Move(sm.State(psDraining))
				if !p.ordered.Empty() && p.ordered.Head().Value.kind == Barrier {
					p.plannerSM.Move(sm.State(psBarrier))
					barrierHit = true
					break
				}
				e := qosPop(&p.qosTick, p.ordered, p.unordered)
				w := e.Value
				if w.kind == Unordered {
					atomic.AddInt64(&p.unorderedLen, -1)
				} else {
					atomic.AddInt64(&p.orderedLen, -1)
				}
				wk := p.workers[w.threadID]
				wk.inq.InsertTail(e)
				wk.cond.Signal()
				if kindGE(w.kind, Ord1) {
					p.inFlight++
				}
				p.reportQueueDepth()
				p.reportInFlight()
			}
			if !barrierHit {
				p.plannerSM.Move(sm.State(psNothing))
			}

		case psBarrier:
			if !p.unordered.Empty() {
				p.plannerSM.Move(sm.State(psDrainingUnord))
				continue
			}
			if p.inFlight == 0 {
				e := p.ordered.PopHead()
				if e == nil || e.Value.kind != Barrier {
					p.log.Fatal().Msg("pool: expected barrier at head of ordered queue")
					panic("pool: expected barrier at head of ordered queue")
				}
				atomic.AddInt64(&p.orderedLen, -1)
				p.reportQueueDepth()
				p.plannerSM.Move(sm.State(psDraining))
				continue
			}
			p.plannerCond.Wait()
			p.plannerSM.Move(sm.State(psBarrier))

		case psDrainingUnord:
			for !p.unordered.Empty() {
				e := p.unordered.PopHead()
				atomic.AddInt64(&p.unorderedLen, -1)
				w := e.Value
				wk := p.workers[w.threadID]
				wk.inq.InsertTail(e)
				wk.cond.Signal()
			}
			p.reportQueueDepth()
			p.plannerSM.Move(sm.State(psBarrier))

		case psExited:
			return
		}
	}
}

// runWorker is the goroutine body for worker #idx, a direct translation
// of worker() in threadpool.c.
func (p *Pool) runWorker(idx uint32) {
	defer p.wg.Done()

	pinWorker(p.log, int(idx), p.cpuAffinity)

	w := p.workers[idx]

	p.mu.Lock()
	for {
		for w.inq.Empty() {
			if p.exiting {
				p.mu.Unlock()
				return
			}
			w.cond.Wait()
		}
		e := w.inq.PopHead()
		item := e.Value
		p.mu.Unlock()

		// Barriers never reach a worker's inq: the planner pops them
		// directly from the ordered queue once in_flight drops to zero
		// (see runPlanner's psBarrier case).
		ctx := item.ctx
		if ctx == nil {
			ctx = context.Background()
		}
		item.work(ctx)

		p.outMu.Lock()
		p.outq.InsertTail(e)
		p.outMu.Unlock()
		p.deliverCompletions()

		p.mu.Lock()
		if item.kind > Barrier {
			if p.inFlight == 0 {
				p.log.Fatal().Msg("pool: in_flight underflow")
				panic("pool: in_flight underflow")
			}
			p.inFlight--
			p.reportInFlight()
			if p.inFlight == 0 {
				p.plannerCond.Signal()
			}
		}
	}
}

// deliverCompletions is the Go analogue of work_done: it atomically
// moves outq into a local queue and, for each item, decrements activeWS
// and then runs its AfterFunc — the async-notification step is folded directly
// into the worker goroutine rather than a separate loop-thread callback,
// since Go has no event-loop/async-handle split to preserve.
func (p *Pool) deliverCompletions() {
	local := queue.New[*workItem]()
	p.outMu.Lock()
	queue.Move[*workItem](p.outq, local)
	p.outMu.Unlock()

	for e := local.PopHead(); e != nil; e = local.PopHead() {
		item := e.Value
		atomic.AddInt64(&p.activeWS, -1)
		p.reportActiveWorkItems()
		if item.after != nil {
			item.after()
		}
	}
}

// Submit is the Go analogue of pool_queue_work: it registers w against
// active_ws bookkeeping, assigns it to worker cookie%N, and pushes it
// into the ordered or unordered queue.
func (p *Pool) Submit(ctx context.Context, kind Kind, cookie uint32, work WorkFunc, after AfterFunc) error {
	if kind != Barrier && work == nil {
		return ErrWorkCBRequired
	}

	item := &workItem{kind: kind, work: work, after: after, ctx: ctx}

	p.mu.Lock()
	if p.exiting {
		p.mu.Unlock()
		return ErrClosed
	}
	if kind != Unordered {
		if p.oPrev != kindUnset && kind != Barrier && p.oPrev != kind {
			p.mu.Unlock()
			return ErrOrderViolation
		}
		p.oPrev = kind
	}
	item.threadID = cookie % uint32(len(p.workers))

	if kind != Barrier {
		atomic.AddInt64(&p.activeWS, 1)
	}

	e := &queue.Elem[*workItem]{Value: item}
	if kind == Unordered {
		p.unordered.InsertTail(e)
		atomic.AddInt64(&p.unorderedLen, 1)
	} else {
		p.ordered.InsertTail(e)
		atomic.AddInt64(&p.orderedLen, 1)
	}
	p.reportQueueDepth()
	p.plannerCond.Signal()
	p.mu.Unlock()
	p.reportActiveWorkItems()
	return nil
}

// SubmitBarrier submits a BARRIER control item; it carries no work
// callback of its own.
func (p *Pool) SubmitBarrier(cookie uint32) error {
	return p.Submit(context.Background(), Barrier, cookie, nil, nil)
}

// Close is the Go analogue of pool_cleanup: it sets exiting, wakes the
// planner and every worker, and waits for all goroutines to finish.
// After Close returns, all internal queues are empty and active_ws is 0,
// matching the source's post-condition.
func (p *Pool) Close() {
	p.mu.Lock()
	p.exiting = true
	p.plannerCond.Signal()
	for _, w := range p.workers {
		w.cond.Signal()
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Debug().Msg("pool closed")
}

// InFlight reports the current count of ordered items popped but not yet
// completed, for metrics export.
func (p *Pool) InFlight() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inFlight
}

// ActiveWorkItems reports active_ws, the count of submitted-but-not-yet-
// completed non-barrier items, for metrics export.
func (p *Pool) ActiveWorkItems() int64 {
	return atomic.LoadInt64(&p.activeWS)
}
