package queue

import "sync"

// Queue is an unbounded FIFO drained into a channel, so producers never block
// on a slow consumer.
type Queue[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []T
	closed bool
	out    chan T
}

func New[T any]() *Queue[T] {
	q := &Queue[T]{out: make(chan T)}
	q.cond = sync.NewCond(&q.mu)
	go q.pump()
	return q
}

// Push appends v. It is a no-op after Close.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, v)
	q.cond.Signal()
}

// Out delivers items in push order. It is closed once the queue is closed and drained.
func (q *Queue[T]) Out() <-chan T {
	return q.out
}

// Len reports items not yet handed to the consumer.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

func (q *Queue[T]) pump() {
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			close(q.out)
			return
		}
		v := q.items[0]
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
		q.mu.Unlock()
		q.out <- v
	}
}
