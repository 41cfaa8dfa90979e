package queue

import (
	"context"
	"iter"

	"github.com/couchcryptid/station-insight-service/internal/domain"
	"github.com/couchcryptid/station-insight-service/internal/observability"
)

// Throttled routes every call of a Completer through a Queue so all callers
// share one throttle.
type Throttled struct {
	inner   domain.Completer
	queue   *Queue
	metrics *observability.Metrics
}

// NewThrottled wraps inner with q.
func NewThrottled(inner domain.Completer, q *Queue, metrics *observability.Metrics) *Throttled {
	return &Throttled{inner: inner, queue: q, metrics: metrics}
}

// Complete occupies one queue slot for the duration of the provider call.
func (t *Throttled) Complete(ctx context.Context, prompt string) (string, error) {
	f := Enqueue(t.queue, func() (string, error) {
		text, err := t.inner.Complete(ctx, prompt)
		t.record("complete", err)
		return text, err
	})
	return f.Wait(ctx)
}

// CompleteStream occupies one queue slot from the start of the upstream
// stream until it ends or the consumer stops reading.
func (t *Throttled) CompleteStream(ctx context.Context, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}
		chunks := make(chan string)
		stop := make(chan struct{})

		f := Enqueue(t.queue, func() (struct{}, error) {
			defer close(chunks)
			for chunk, err := range t.inner.CompleteStream(ctx, prompt) {
				if err != nil {
					t.record("stream", err)
					return struct{}{}, err
				}
				select {
				case chunks <- chunk:
				case <-stop:
					t.record("stream", nil)
					return struct{}{}, nil
				case <-ctx.Done():
					t.record("stream", ctx.Err())
					return struct{}{}, ctx.Err()
				}
			}
			t.record("stream", nil)
			return struct{}{}, nil
		})

		for {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					if _, err := f.Wait(ctx); err != nil {
						yield("", err)
					}
					return
				}
				if !yield(chunk, nil) {
					close(stop)
					return
				}
			case <-ctx.Done():
				close(stop)
				yield("", ctx.Err())
				return
			}
		}
	}
}

func (t *Throttled) record(kind string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	t.metrics.InferenceCalls.WithLabelValues(kind, outcome).Inc()
}
