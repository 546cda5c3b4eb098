// Package destdriver implements the threaded destination driver state
// machine that pops from a pkg/logqueue.Queue on a dedicated goroutine
// and hands each message to a user-supplied Worker.
package destdriver

import "logroute/pkg/message"

// Worker is the contract a concrete sink implements to receive messages
// popped from the queue. Insert is the only required method; ThreadInit,
// ThreadDeinit, and Disconnect are optional lifecycle hooks checked via
// the sub-interfaces below, mirroring the teacher's nullable
// thread_init/thread_deinit/disconnect function pointers.
type Worker interface {
	// Insert delivers msg. Returning false suspends the driver: it
	// rewinds msg back onto the queue and arms the reopen timer. Insert
	// runs only on the driver's own goroutine (spec.md §5's scheduling
	// guarantee).
	Insert(msg *message.Message) bool
}

// ThreadInitializer is checked once, on the driver's goroutine, before
// the first do-work cycle.
type ThreadInitializer interface {
	ThreadInit() error
}

// ThreadDeinitializer is checked once, on the driver's goroutine, after
// the loop exits.
type ThreadDeinitializer interface {
	ThreadDeinit()
}

// Disconnecter is checked whenever the driver leaves the working state
// (a suspend, or final shutdown) so the worker can drop any held
// connection before the reopen timer retries.
type Disconnecter interface {
	Disconnect()
}
