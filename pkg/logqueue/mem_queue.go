package logqueue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"logroute/pkg/message"
)

// Discipline selects what PushTail does when the queue is at capacity.
type Discipline int

const (
	// ParallelPush drops the incoming message and increments the
	// dropped counter rather than blocking the caller.
	ParallelPush Discipline = iota
	// FlowControl blocks PushTail until a PopHead/AckBacklog frees a slot,
	// back-pressuring the source instead of dropping.
	FlowControl
)

// MemQueue is a fixed-capacity ring buffer guarded by a mutex, with a
// separate backlog slice holding items popped but not yet acked or
// rewound (I-8).
type MemQueue struct {
	mu         sync.Mutex
	notFull    *sync.Cond
	buf        []*message.Message
	head       int
	count      int
	capacity   int
	discipline Discipline

	backlog []*message.Message
	waiters []func()

	counters Counters
	pushed   int64
}

// NewMemQueue returns an empty queue with the given capacity and
// overflow discipline.
func NewMemQueue(capacity int, discipline Discipline) *MemQueue {
	q := &MemQueue{
		buf:        make([]*message.Message, capacity),
		capacity:   capacity,
		discipline: discipline,
	}
	q.notFull = sync.NewCond(&q.mu)
	return q
}

// SetCounters couples the queue to its owning destination driver's
// stored/dropped counters (I-9). Pass nil on Deinit to decouple.
func (q *MemQueue) SetCounters(c Counters) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.counters = c
}

func (q *MemQueue) PushTail(msg *message.Message) error {
	q.mu.Lock()
	q.pushed++
	for q.count == q.capacity {
		if q.discipline == ParallelPush {
			if q.counters != nil {
				q.counters.IncDropped()
			}
			q.mu.Unlock()
			return ErrQueueFull
		}
		q.notFull.Wait()
	}

	tail := (q.head + q.count) % q.capacity
	q.buf[tail] = msg
	q.count++
	if q.counters != nil {
		q.counters.IncStored()
	}

	var waiter func()
	if len(q.waiters) > 0 {
		waiter = q.waiters[0]
		q.waiters = q.waiters[1:]
	}
	q.mu.Unlock()

	if waiter != nil {
		waiter()
	}
	return nil
}

func (q *MemQueue) PopHead() (*message.Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return nil, false
	}
	msg := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.backlog = append(q.backlog, msg)
	q.notFull.Signal()
	return msg, true
}

func (q *MemQueue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count + len(q.backlog)
}

func (q *MemQueue) AckBacklog(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.backlog) {
		return fmt.Errorf("logqueue: ack-backlog(%d) exceeds backlog size %d", n, len(q.backlog))
	}
	q.backlog = q.backlog[n:]
	return nil
}

func (q *MemQueue) RewindBacklog(n int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.backlog) {
		return fmt.Errorf("logqueue: rewind-backlog(%d) exceeds backlog size %d", n, len(q.backlog))
	}
	if q.count+n > q.capacity {
		return fmt.Errorf("logqueue: rewind-backlog(%d) exceeds free capacity", n)
	}
	items := q.backlog[:n]
	q.backlog = q.backlog[n:]
	for i := n - 1; i >= 0; i-- {
		q.head = (q.head - 1 + q.capacity) % q.capacity
		q.buf[q.head] = items[i]
		q.count++
	}
	q.notFull.Broadcast()
	return nil
}

func (q *MemQueue) CheckItems(timeout time.Duration, notify func()) (bool, error) {
	q.mu.Lock()
	if q.count > 0 {
		q.mu.Unlock()
		return true, nil
	}
	var fired int32
	fire := func() {
		if notify != nil && atomic.CompareAndSwapInt32(&fired, 0, 1) {
			notify()
		}
	}
	q.waiters = append(q.waiters, fire)
	q.mu.Unlock()

	if timeout > 0 {
		time.AfterFunc(timeout, fire)
	}
	return false, ErrThrottle{After: timeout}
}
