// Package queue serializes calls to a rate-limited external provider.
//
// A single Queue is shared by every component that talks to the provider.
// Jobs run one at a time in enqueue order, and consecutive job starts are
// spaced by at least the configured minimum interval, measured start to start.
// The drain goroutine exits when the queue empties and is restarted by the
// next Enqueue.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/station-insight-service/internal/observability"
)

// DefaultMinInterval is the start-to-start spacing used when none is configured.
const DefaultMinInterval = time.Second

// Queue is a FIFO, single-consumer scheduler with a minimum start interval.
type Queue struct {
	minInterval time.Duration
	clock       clockwork.Clock
	logger      *slog.Logger
	metrics     *observability.Metrics

	mu        sync.Mutex
	pending   []task
	draining  bool
	lastStart time.Time
}

type task struct {
	run        func()
	enqueuedAt time.Time
}

// New creates an idle queue. A nil clock uses the real clock.
func New(minInterval time.Duration, clock clockwork.Clock, logger *slog.Logger, metrics *observability.Metrics) *Queue {
	if minInterval < 0 {
		minInterval = 0
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Queue{
		minInterval: minInterval,
		clock:       clock,
		logger:      logger,
		metrics:     metrics,
	}
}

// Len returns the number of jobs waiting to start.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Future is the eventual outcome of one queued job.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed once the job has completed.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the job completes or ctx ends. Abandoning the wait does
// not cancel the job; it still runs and its result is discarded.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Enqueue schedules job behind every job already queued. A panicking job
// completes with an error.
func Enqueue[T any](q *Queue, job func() (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	run := func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("queued job panicked: %v", r)
			}
		}()
		f.value, f.err = job()
	}
	q.push(task{run: run, enqueuedAt: q.clock.Now()})
	return f
}

func (q *Queue) push(t task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pending = append(q.pending, t)
	q.metrics.QueueDepth.Set(float64(len(q.pending)))
	if !q.draining {
		q.draining = true
		go q.drain()
	}
}

// drain runs jobs until the queue is empty.
func (q *Queue) drain() {
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.draining = false
			q.mu.Unlock()
			return
		}
		next := q.pending[0]
		q.pending[0] = task{}
		q.pending = q.pending[1:]
		q.metrics.QueueDepth.Set(float64(len(q.pending)))
		last := q.lastStart
		q.mu.Unlock()

		if !last.IsZero() {
			if wait := q.minInterval - q.clock.Since(last); wait > 0 {
				<-q.clock.After(wait)
			}
		}

		start := q.clock.Now()
		q.mu.Lock()
		q.lastStart = start
		q.mu.Unlock()

		q.metrics.QueueWait.Observe(start.Sub(next.enqueuedAt).Seconds())
		q.logger.Debug("inference job starting", "waited", start.Sub(next.enqueuedAt))
		next.run()
	}
}
