package session

import "sync"

type outcome[T any] struct {
	value T
	err   error
}

// pending correlates request ids with their single eventual response. A
// waiter is settled at most once and removed as it is settled.
type pending[T any] struct {
	mu      sync.Mutex
	waiters map[uint64]chan outcome[T]
	closed  error
}

func newPending[T any]() *pending[T] {
	return &pending[T]{waiters: make(map[uint64]chan outcome[T])}
}

func (p *pending[T]) add(id uint64) (<-chan outcome[T], error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed != nil {
		return nil, p.closed
	}
	ch := make(chan outcome[T], 1)
	p.waiters[id] = ch
	return ch, nil
}

func (p *pending[T]) settle(id uint64, o outcome[T]) bool {
	p.mu.Lock()
	ch, ok := p.waiters[id]
	delete(p.waiters, id)
	p.mu.Unlock()

	if ok {
		ch <- o
	}
	return ok
}

func (p *pending[T]) resolve(id uint64, v T) bool {
	return p.settle(id, outcome[T]{value: v})
}

func (p *pending[T]) reject(id uint64, err error) bool {
	return p.settle(id, outcome[T]{err: err})
}

func (p *pending[T]) has(id uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.waiters[id]
	return ok
}

// remove drops a waiter that gave up.
func (p *pending[T]) remove(id uint64) {
	p.mu.Lock()
	delete(p.waiters, id)
	p.mu.Unlock()
}

func (p *pending[T]) len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.waiters)
}

// close rejects every waiter with err and refuses new ones.
func (p *pending[T]) close(err error) {
	p.mu.Lock()
	waiters := p.waiters
	p.waiters = make(map[uint64]chan outcome[T])
	if p.closed == nil {
		p.closed = err
	}
	p.mu.Unlock()

	for _, ch := range waiters {
		ch <- outcome[T]{err: err}
	}
}
