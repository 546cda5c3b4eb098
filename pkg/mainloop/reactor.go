// Package mainloop implements a cooperative, single-goroutine reactor:
// one Reactor drains a task queue, fires timers, and watches file
// descriptors, all on the single goroutine that calls Run. It
// generalizes the teacher's pkg/task_manager (goroutine lifecycle
// bookkeeping) and pkg/workerpool (bounded dispatch) from "a pool of
// stateless job workers" into "one stateful reactor per thread driving
// a single destination or the process main loop" — the same shape
// ivykis gave logthrdestdrv.c's iv_task/iv_timer/iv_event trio, the
// framing pkg/destdriver's own loop already follows by hand.
package mainloop

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// TimerHandle identifies a timer armed via ArmTimer, for later
// cancellation.
type TimerHandle uint64

// Event wraps a callback posted across goroutines via PostEvent. It
// exists as a distinct type from the plain func() ScheduleTask takes so
// call sites read as "cross-thread wakeup" versus "continue work on
// this loop", even though both are drained through the same queue.
type Event struct {
	fn func()
}

// NewEvent wraps fn as an Event.
func NewEvent(fn func()) Event { return Event{fn: fn} }

type pendingTimer struct {
	timer *time.Timer
	fn    func()
	live  bool
}

// fdWatcher is the platform-specific backend behind WatchFD: events
// yields a callback each time a watched fd becomes readable, for Run's
// select loop to execute.
type fdWatcher interface {
	events() <-chan func()
	watch(fd int, fn func()) (func(), error)
	close()
}

// Reactor is a single-threaded event loop. All exported methods are
// safe to call from any goroutine; the callbacks they schedule always
// run on the goroutine executing Run.
type Reactor struct {
	logger *logrus.Logger

	mu          sync.Mutex
	tasks       []func()
	timers      map[TimerHandle]*pendingTimer
	nextTimerID TimerHandle
	fds         fdWatcher

	wake chan struct{} // cap 1: coalesces any number of pending wakeups into one
	stop chan struct{}
	done chan struct{}
}

// New returns a Reactor that has not yet started running; call Run (on
// the goroutine that should become its loop thread) to start draining
// tasks, timers, and fd events.
func New(logger *logrus.Logger) *Reactor {
	if logger == nil {
		logger = logrus.New()
	}
	r := &Reactor{
		logger: logger,
		timers: make(map[TimerHandle]*pendingTimer),
		wake:   make(chan struct{}, 1),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	r.fds = newFDWatcher(r)
	return r
}

// Run blocks, draining the task queue and fd-watch notifications until
// Stop is called. It is meant to be the body of the goroutine that owns
// this reactor (spec.md §5: "suspension only happens at pkg/mainloop
// primitives").
func (r *Reactor) Run() {
	defer close(r.done)
	fdEvents := r.fds.events()
	for {
		r.drainTasks()
		select {
		case <-r.stop:
			r.fds.close()
			return
		case <-r.wake:
		case fn := <-fdEvents:
			r.runSafely(fn)
		}
	}
}

// Stop signals Run to exit after its current pass over the task queue,
// and blocks until it has.
func (r *Reactor) Stop() {
	close(r.stop)
	<-r.done
	r.mu.Lock()
	for _, t := range r.timers {
		t.live = false
		t.timer.Stop()
	}
	r.mu.Unlock()
}

func (r *Reactor) wakeUp() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reactor) drainTasks() {
	for {
		r.mu.Lock()
		if len(r.tasks) == 0 {
			r.mu.Unlock()
			return
		}
		fn := r.tasks[0]
		r.tasks = r.tasks[1:]
		r.mu.Unlock()
		r.runSafely(fn)
	}
}

func (r *Reactor) runSafely(fn func()) {
	if fn == nil {
		return
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.WithField("panic", p).Error("mainloop: task panicked")
		}
	}()
	fn()
}

// ScheduleTask queues fn to run on the reactor goroutine as soon as
// it's next free, mirroring iv_task_register's "run me on the next
// pass" semantics.
func (r *Reactor) ScheduleTask(fn func()) {
	r.mu.Lock()
	r.tasks = append(r.tasks, fn)
	r.mu.Unlock()
	r.wakeUp()
}

// PostEvent is ScheduleTask's cross-thread counterpart: any number of
// posts between two drains of the loop collapse into a single pending
// wakeup (the capacity-1 wake channel), though every posted Event's
// callback still runs — coalescing applies to the wakeup signal, not to
// dropping queued work.
func (r *Reactor) PostEvent(e Event) {
	r.ScheduleTask(e.fn)
}

// ArmTimer schedules fn to run on the reactor goroutine after d elapses
// and returns a handle that CancelTimer can use to abort it first.
func (r *Reactor) ArmTimer(d time.Duration, fn func()) TimerHandle {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTimerID++
	id := r.nextTimerID
	pt := &pendingTimer{fn: fn, live: true}
	pt.timer = time.AfterFunc(d, func() { r.fireTimer(id) })
	r.timers[id] = pt
	return id
}

func (r *Reactor) fireTimer(id TimerHandle) {
	r.mu.Lock()
	pt, ok := r.timers[id]
	if ok {
		delete(r.timers, id)
	}
	r.mu.Unlock()
	if !ok || !pt.live {
		return
	}
	r.ScheduleTask(pt.fn)
}

// CancelTimer aborts a timer armed via ArmTimer if it has not already
// fired. Canceling an unknown or already-fired handle is a no-op.
func (r *Reactor) CancelTimer(h TimerHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pt, ok := r.timers[h]
	if !ok {
		return
	}
	pt.live = false
	pt.timer.Stop()
	delete(r.timers, h)
}

// WatchFD arranges for fn to run on the reactor goroutine whenever fd
// becomes readable, via epoll on Linux (golang.org/x/sys/unix, the same
// transitive dependency the teacher already pulls in through
// gopsutil). It returns a function that stops watching fd, and an error
// on platforms with no epoll backend.
func (r *Reactor) WatchFD(fd int, fn func()) (func(), error) {
	return r.fds.watch(fd, fn)
}
