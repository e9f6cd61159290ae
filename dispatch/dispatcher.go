package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/ggoodman/hostbridge/internal/logctx"
	"github.com/google/uuid"
)

var (
	// ErrClosed is returned for work submitted to, or still queued on, a
	// closed Dispatcher.
	ErrClosed = errors.New("dispatcher closed")
)

// Work is a computation that must run on the host thread. The context is
// detached from the submitter's cancellation.
type Work func(ctx context.Context) (any, error)

// TimeoutError reports that a work item did not complete within its budget.
type TimeoutError struct {
	WorkID  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("work %s timed out after %s", e.WorkID, e.Timeout)
}

// FaultError wraps a panic raised by a work item on the host thread.
type FaultError struct {
	WorkID string
	Value  any
	Stack  string
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("work %s panicked: %v", e.WorkID, e.Value)
}

type workItem struct {
	id   string
	ctx  context.Context
	work Work
	done chan struct{}

	result any
	err    error
}

// Dispatcher marshals work onto the host's designated thread and runs it one
// item at a time in submission order.
//
// Draining is driven by the Scheduler: at most one Drain is scheduled or
// running at any moment, so no two work items ever execute concurrently.
type Dispatcher struct {
	sched Scheduler
	log   *slog.Logger

	mu           sync.Mutex
	queue        []*workItem
	drainPending bool
	closed       bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// New constructs a Dispatcher that drains through s.
func New(s Scheduler, opts ...Option) *Dispatcher {
	d := &Dispatcher{sched: s, log: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Submit enqueues work and blocks until it has run on the host thread, the
// timeout elapses, or ctx is done.
//
// A timeout is advisory: the item is removed if it has not started yet,
// otherwise it runs to completion and its result is discarded. A non-positive
// timeout waits indefinitely.
func (d *Dispatcher) Submit(ctx context.Context, timeout time.Duration, work Work) (any, error) {
	id := uuid.NewString()
	it := &workItem{
		id:   id,
		ctx:  logctx.WithWorkData(context.WithoutCancel(ctx), &logctx.WorkData{WorkID: id}),
		work: work,
		done: make(chan struct{}),
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil, ErrClosed
	}
	d.queue = append(d.queue, it)
	schedule := !d.drainPending
	d.drainPending = true
	d.mu.Unlock()

	if schedule {
		if err := d.sched.Schedule(d.Drain); err != nil {
			d.mu.Lock()
			d.drainPending = false
			d.mu.Unlock()
			d.remove(it)
			return nil, fmt.Errorf("schedule drain: %w", err)
		}
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case <-it.done:
		return it.result, it.err
	case <-expired:
		started := !d.remove(it)
		d.log.WarnContext(it.ctx, "dispatch.submit.timeout",
			slog.Int64("timeout_ms", timeout.Milliseconds()),
			slog.Bool("started", started),
		)
		return nil, &TimeoutError{WorkID: id, Timeout: timeout}
	case <-ctx.Done():
		d.remove(it)
		return nil, ctx.Err()
	}
}

// Drain runs exactly one queued item and reschedules itself if more remain.
// It must only be invoked on the host thread, normally by the Scheduler.
func (d *Dispatcher) Drain() {
	d.mu.Lock()
	if len(d.queue) == 0 {
		d.drainPending = false
		d.mu.Unlock()
		return
	}
	it := d.queue[0]
	d.queue[0] = nil
	d.queue = d.queue[1:]
	d.mu.Unlock()

	d.execute(it)

	d.mu.Lock()
	more := len(d.queue) > 0 && !d.closed
	if !more {
		d.drainPending = false
	}
	d.mu.Unlock()

	if more {
		if err := d.sched.Schedule(d.Drain); err != nil {
			d.log.Error("dispatch.drain.reschedule_fail", slog.String("err", err.Error()))
			d.mu.Lock()
			d.drainPending = false
			d.mu.Unlock()
		}
	}
}

func (d *Dispatcher) execute(it *workItem) {
	start := time.Now()
	defer close(it.done)
	defer func() {
		if rec := recover(); rec != nil {
			it.result = nil
			it.err = &FaultError{WorkID: it.id, Value: rec, Stack: string(debug.Stack())}
			d.log.ErrorContext(it.ctx, "dispatch.execute.panic", slog.Any("panic", rec))
		}
	}()

	it.result, it.err = it.work(it.ctx)
	d.log.DebugContext(it.ctx, "dispatch.execute.done", slog.Int64("dur_ms", time.Since(start).Milliseconds()))
}

// remove drops it from the queue and reports whether it was still queued.
func (d *Dispatcher) remove(it *workItem) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, q := range d.queue {
		if q == it {
			d.queue = append(d.queue[:i], d.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Pending returns the number of items waiting to run.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queue)
}

// Close rejects further submissions and fails every queued item with
// ErrClosed. An item already running finishes normally.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	queued := d.queue
	d.queue = nil
	d.mu.Unlock()

	for _, it := range queued {
		it.err = ErrClosed
		close(it.done)
	}
	d.log.Debug("dispatch.close", slog.Int("failed", len(queued)))
}
