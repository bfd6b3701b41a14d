package media

import (
	"context"
	"io"
	"sync"
)

// queue is an unbounded FIFO that can be closed. After a normal close the
// remaining items are still delivered before io.EOF. Closing with an error
// drops them and pop reports the error at once.
type queue[T any] struct {
	mu     sync.Mutex
	items  []T
	wake   chan struct{}
	done   chan struct{}
	closed bool
	err    error
}

func newQueue[T any]() *queue[T] {
	return &queue[T]{
		wake: make(chan struct{}),
		done: make(chan struct{}),
	}
}

func (q *queue[T]) push(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return q.closeErr()
	}
	q.items = append(q.items, v)
	q.signal()
	return nil
}

func (q *queue[T]) pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			v := q.items[0]
			var zero T
			q.items[0] = zero
			q.items = q.items[1:]
			q.mu.Unlock()
			return v, nil
		}
		if q.closed {
			err := q.closeErr()
			q.mu.Unlock()
			var zero T
			return zero, err
		}
		wake := q.wake
		q.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// close reports whether this call closed the queue.
func (q *queue[T]) close(err error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.closed = true
	q.err = err
	if err != nil {
		clear(q.items)
		q.items = nil
	}
	q.signal()
	close(q.done)
	return true
}

// signal must be called with mu held.
func (q *queue[T]) signal() {
	close(q.wake)
	q.wake = make(chan struct{})
}

// closeErr must be called with mu held.
func (q *queue[T]) closeErr() error {
	if q.err == nil {
		return io.EOF
	}
	return q.err
}

func (q *queue[T]) failure() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		return nil
	}
	return q.err
}
