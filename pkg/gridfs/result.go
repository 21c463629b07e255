package gridfs

import (
	"context"
	"sync"
)

// Result is the eventual outcome of a queued grid operation.
//
// A Result resolves exactly once. Callers either block on Wait, select on
// Done, or register a handler with Then. Failures are only ever delivered
// through the Result, never returned from the call that queued the work.
type Result[T any] struct {
	done chan struct{}
	once sync.Once

	mu       sync.Mutex
	value    T
	err      error
	handlers []func(T, error)
}

func newResult[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

func (r *Result[T]) resolve(value T, err error) {
	r.once.Do(func() {
		r.mu.Lock()
		r.value = value
		r.err = err
		handlers := r.handlers
		r.handlers = nil
		close(r.done)
		r.mu.Unlock()

		for _, fn := range handlers {
			fn(value, err)
		}
	})
}

// Done is closed once the result is resolved.
func (r *Result[T]) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the result resolves or ctx is done.
func (r *Result[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.value, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Err returns the resolved error, or nil while still pending.
func (r *Result[T]) Err() error {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.err
	default:
		return nil
	}
}

// Then registers fn to run on resolution. If the result is already resolved
// fn runs immediately on the calling goroutine; otherwise it runs on the
// goroutine that resolves it.
func (r *Result[T]) Then(fn func(T, error)) *Result[T] {
	r.mu.Lock()
	select {
	case <-r.done:
		value, err := r.value, r.err
		r.mu.Unlock()
		fn(value, err)
	default:
		r.handlers = append(r.handlers, fn)
		r.mu.Unlock()
	}
	return r
}
