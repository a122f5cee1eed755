package host

import (
	"context"
	"sync/atomic"
	"time"
)

// Request is the pending handle of one RUN. It resolves exactly once, when
// RESULT or RUN_FAILED is observed or when the controller is disposed.
type Request struct {
	started time.Time
	err     error
	done    chan struct{}
	ID      string
	result  string
	claimed atomic.Bool
}

func newRequest(id string) *Request {
	return &Request{
		ID:      id,
		started: time.Now(),
		done:    make(chan struct{}),
	}
}

// Done is closed once the request is resolved.
func (r *Request) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the request resolves or ctx ends. Giving up on ctx does
// not cancel the run; the request stays pending in the controller.
func (r *Request) Wait(ctx context.Context) (string, error) {
	select {
	case <-r.done:
		return r.result, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Started returns when the request was issued.
func (r *Request) Started() time.Time {
	return r.started
}

// claim reserves the single resolution of r.
func (r *Request) claim() bool {
	return r.claimed.CompareAndSwap(false, true)
}

// finish publishes the outcome of a claimed request.
func (r *Request) finish(result string, err error) {
	r.result = result
	r.err = err
	close(r.done)
}

