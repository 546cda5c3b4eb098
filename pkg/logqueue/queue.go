// Package logqueue implements the bounded FIFO queue that sits between
// the pipe graph's destination node and a threaded destination driver
// (pkg/destdriver): a memory-only ring buffer, a disk-backed variant that
// spills to a segment file under sustained pressure, and an external
// variant backed by a remote broker with the same spill-to-disk fallback
// on a failed remote write.
package logqueue

import (
	"fmt"
	"time"

	"logroute/pkg/message"
)

// Queue is the common contract both variants implement (spec.md §4.5).
type Queue interface {
	// PushTail admits msg at the tail. It never blocks under the
	// parallel-push discipline (full queue drops and increments the
	// dropped counter) and may block under flow-control.
	PushTail(msg *message.Message) error

	// PopHead removes and returns the message at the head, moving it
	// into the backlog until AckBacklog or RewindBacklog resolves it
	// (I-8). The second return is false if the queue is empty.
	PopHead() (*message.Message, bool)

	// Length reports the number of logical messages currently enqueued
	// (I-7): items waiting plus items in the unacked backlog.
	Length() int

	// AckBacklog removes the n oldest backlog entries, persisting the
	// removal for disk/external variants. Returns an error if fewer than
	// n entries are outstanding.
	AckBacklog(n int) error

	// RewindBacklog moves the n oldest backlog entries back onto the
	// head of the queue, for redelivery after a failed insert. Returns
	// an error if fewer than n entries are outstanding (I-8).
	RewindBacklog(n int) error

	// CheckItems returns (true, nil) immediately if the queue is
	// non-empty. Otherwise it arranges for notify to be called the next
	// time an item becomes available or timeout elapses, whichever
	// comes first, and returns (false, ErrThrottle) carrying the
	// driver's suggested wait before checking again.
	CheckItems(timeout time.Duration, notify func()) (bool, error)
}

// Counters is the (stored, dropped) pair a destination driver registers
// with its queue (I-9's counter coupling, spec.md §4.7). SetCounters(nil)
// on Deinit detaches the coupling so stats unregister stays clean.
type Counters interface {
	IncStored()
	IncDropped()
}

// ErrThrottle is returned by CheckItems when the queue is empty; After is
// the driver's suggested wait before the next check. It is also the
// signal a Queue.PushTail implementation may return when the backend
// (disk or external) asks the caller to slow down rather than reporting
// outright failure.
type ErrThrottle struct {
	After time.Duration
}

func (e ErrThrottle) Error() string {
	return fmt.Sprintf("logqueue: throttled for %s", e.After)
}

// ErrQueueFull is returned by PushTail under the parallel-push discipline
// when the queue is at capacity; the caller's responsibility is to drop
// and count, which PushTail has already done internally before
// returning this.
var ErrQueueFull = fmt.Errorf("logqueue: queue full")
