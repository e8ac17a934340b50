package markup

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Future is a value that is not available yet. It settles exactly once, either
// with a value or with an error, and can be awaited any number of times from
// any goroutine. A nil *Future behaves as one already settled with nil.
type Future struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

var settledChan = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) settle(v any, err error) {
	f.once.Do(func() {
		f.value, f.err = v, err
		close(f.done)
	})
}

// Go runs fn on a new goroutine and returns a Future that settles with its
// result.
func Go(fn func() (any, error)) *Future {
	f := newFuture()
	go func() {
		v, err := fn()
		f.settle(v, err)
	}()
	return f
}

// Resolved returns a Future already settled with v.
func Resolved(v any) *Future {
	f := newFuture()
	f.settle(v, nil)
	return f
}

// Rejected returns a Future already settled with err.
func Rejected(err error) *Future {
	f := newFuture()
	f.settle(nil, err)
	return f
}

// Done returns a channel that is closed once f has settled.
func (f *Future) Done() <-chan struct{} {
	if f == nil {
		return settledChan
	}
	return f.done
}

// Settled reports whether f has a value or an error.
func (f *Future) Settled() bool {
	select {
	case <-f.Done():
		return true
	default:
		return false
	}
}

// Await blocks until f settles or ctx is done. A settled future returns its
// outcome even when ctx has already been cancelled.
func (f *Future) Await(ctx context.Context) (any, error) {
	if f == nil {
		return nil, nil
	}
	if f.Settled() {
		return f.value, f.err
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Promise is a Future settled by hand, for values produced by code that does
// not fit the Go helper (event handlers, channels, other callbacks).
type Promise struct {
	f *Future
}

// NewPromise returns an unsettled Promise.
func NewPromise() *Promise {
	return &Promise{f: newFuture()}
}

// Future returns the Future that observes the promise.
func (p *Promise) Future() *Future { return p.f }

// Resolve settles the promise with v. Only the first Resolve or Reject counts.
func (p *Promise) Resolve(v any) { p.f.settle(v, nil) }

// Reject settles the promise with err. Only the first Resolve or Reject counts.
func (p *Promise) Reject(err error) { p.f.settle(nil, err) }

// awaitAll waits for every future concurrently and returns their values by
// position. The first error cancels the wait for the others.
func awaitAll(ctx context.Context, futures []*Future) ([]any, error) {
	values := make([]any, len(futures))
	var waiting []int
	for i, f := range futures {
		if !f.Settled() {
			waiting = append(waiting, i)
			continue
		}
		if f == nil {
			continue
		}
		if f.err != nil {
			return nil, f.err
		}
		values[i] = f.value
	}
	if len(waiting) == 0 {
		return values, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, i := range waiting {
		i := i
		f := futures[i]
		g.Go(func() error {
			v, err := f.Await(gctx)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}
