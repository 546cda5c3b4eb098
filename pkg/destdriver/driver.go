package destdriver

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"logroute/pkg/logqueue"

	"github.com/sirupsen/logrus"
)

// State is one node in the idle → working → throttled → suspended →
// stopped state machine (spec.md §4.6).
type State int

const (
	StateIdle State = iota
	StateWorking
	StateThrottled
	StateSuspended
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateThrottled:
		return "throttled"
	case StateSuspended:
		return "suspended"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

type timerKind int

const (
	timerReopen timerKind = iota
	timerThrottle
	timerIdle
)

// minThrottleWait bounds the retry delay when a queue reports
// After == 0 (an immediate-retry backpressure hint), so the driver
// never busy-loops.
const minThrottleWait = 50 * time.Millisecond

// Driver runs one Worker's event loop on a dedicated goroutine, directly
// grounded on _examples/original_source/lib/logthrdestdrv.c: its
// do_work/timer_reopen/timer_throttle/wake_up_event/shutdown_event
// translate to this struct's doWork/reopen-AfterFunc/throttle-AfterFunc/
// wakeUp channel/shutdown channel. ivykis' iv_task registration (a
// registered-or-not task, idempotent to re-register) becomes doWorkCh, a
// capacity-1 channel: a pending send is dropped if one is already
// queued, the same coalescing iv_task_registered guards against.
type Driver struct {
	mu    sync.Mutex
	state State

	name       string
	queue      logqueue.Queue
	worker     Worker
	timeReopen time.Duration
	// checkInterval bounds how long CheckItems waits before forcing its
	// notify callback, acting as a safety poll independent of the
	// queue's own push-driven wake-up.
	checkInterval time.Duration
	logger        *logrus.Logger

	wakeUp   chan struct{}
	doWorkCh chan struct{}
	timerCh  chan timerKind
	shutdown chan struct{}
	stopped  chan struct{}

	reopenTimer   *time.Timer
	throttleTimer *time.Timer
	idleTimer     *time.Timer

	shutdownOnce sync.Once

	// onStateChange, if set, is invoked (off the driver's own goroutine
	// lock) on every transition — tests use it to assert the exact
	// sequence without racing State().
	onStateChange func(State)
}

// Config carries the constructor's tunables.
type Config struct {
	Name          string
	Queue         logqueue.Queue
	Worker        Worker
	TimeReopen    time.Duration
	CheckInterval time.Duration
	Logger        *logrus.Logger
}

// New returns a Driver in the idle state; call Start to spawn its
// goroutine.
func New(cfg Config) (*Driver, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("destdriver: queue is required")
	}
	if cfg.Worker == nil {
		return nil, fmt.Errorf("destdriver: worker is required")
	}
	if cfg.TimeReopen <= 0 {
		cfg.TimeReopen = 10 * time.Second
	}
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = 5 * time.Second
	}
	return &Driver{
		name:          cfg.Name,
		queue:         cfg.Queue,
		worker:        cfg.Worker,
		timeReopen:    cfg.TimeReopen,
		checkInterval: cfg.CheckInterval,
		logger:        cfg.Logger,
		wakeUp:        make(chan struct{}, 1),
		doWorkCh:      make(chan struct{}, 1),
		timerCh:       make(chan timerKind, 2),
		shutdown:      make(chan struct{}),
		stopped:       make(chan struct{}),
	}, nil
}

// State returns the driver's current state, for tests and diagnostics.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	d.state = s
	d.mu.Unlock()
	if d.onStateChange != nil {
		d.onStateChange(s)
	}
}

// Start spawns the driver's worker-thread goroutine. Only one call
// succeeds; subsequent calls return an error.
func (d *Driver) Start() error {
	d.mu.Lock()
	if d.state != StateIdle {
		d.mu.Unlock()
		return fmt.Errorf("destdriver: %q already started", d.name)
	}
	d.mu.Unlock()
	go d.run()
	return nil
}

// Shutdown posts the cross-thread shutdown event: the worker loop exits
// before its next Insert call. Safe to call more than once and from any
// goroutine.
func (d *Driver) Shutdown() {
	d.shutdownOnce.Do(func() { close(d.shutdown) })
}

// Wait blocks until the worker goroutine has fully exited (ThreadDeinit
// and Disconnect, if any, have already run).
func (d *Driver) Wait() {
	<-d.stopped
}

func (d *Driver) run() {
	defer close(d.stopped)

	if ti, ok := d.worker.(ThreadInitializer); ok {
		if err := ti.ThreadInit(); err != nil {
			if d.logger != nil {
				d.logger.WithError(err).WithField("driver", d.name).Error("destdriver: thread-init failed")
			}
		}
	}
	defer func() {
		if dc, ok := d.worker.(Disconnecter); ok {
			dc.Disconnect()
		}
		if td, ok := d.worker.(ThreadDeinitializer); ok {
			td.ThreadDeinit()
		}
	}()

	d.scheduleDoWork()

	for {
		select {
		case <-d.shutdown:
			d.stopWatches()
			d.setState(StateStopped)
			return
		case <-d.wakeUp:
			d.scheduleDoWork()
		case <-d.doWorkCh:
			d.doWork()
		case <-d.timerCh:
			d.doWork()
		}
	}
}

// scheduleDoWork is the Go analogue of iv_task_register: idempotent,
// coalesced re-scheduling of the do-work step.
func (d *Driver) scheduleDoWork() {
	select {
	case d.doWorkCh <- struct{}{}:
	default:
	}
}

// stopWatches cancels any armed timer and drops a pending do-work
// scheduling, mirroring log_threaded_dest_driver_stop_watches — every
// doWork call starts from a clean slate.
func (d *Driver) stopWatches() {
	d.mu.Lock()
	if d.reopenTimer != nil {
		d.reopenTimer.Stop()
		d.reopenTimer = nil
	}
	if d.throttleTimer != nil {
		d.throttleTimer.Stop()
		d.throttleTimer = nil
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	d.mu.Unlock()
	select {
	case <-d.doWorkCh:
	default:
	}
}

func (d *Driver) doWork() {
	d.stopWatches()

	ready, err := d.queue.CheckItems(d.checkInterval, func() {
		select {
		case d.wakeUp <- struct{}{}:
		default:
		}
	})

	if !ready {
		var throttle logqueue.ErrThrottle
		if errors.As(err, &throttle) && throttle.After > 0 {
			// The common case: nothing queued, CheckItems armed a
			// wake-up for the next push and this timer is only a
			// safety poll. Idle, not Throttled — Throttled is
			// reserved for a queue signaling "retry almost
			// immediately", a distinct backpressure hint a future
			// Queue implementation may surface via After == 0.
			d.armIdle(throttle.After)
		} else {
			d.armThrottle(minThrottleWait)
		}
		return
	}

	msg, ok := d.queue.PopHead()
	if !ok {
		// emptied between CheckItems and PopHead (another goroutine
		// drained it); re-check rather than assume suspend.
		d.scheduleDoWork()
		return
	}

	d.setState(StateWorking)
	if d.worker.Insert(msg) {
		if err := d.queue.AckBacklog(1); err != nil && d.logger != nil {
			d.logger.WithError(err).WithField("driver", d.name).Warn("destdriver: ack-backlog failed")
		}
		d.scheduleDoWork()
		return
	}

	if dc, ok := d.worker.(Disconnecter); ok {
		dc.Disconnect()
	}
	if err := d.queue.RewindBacklog(1); err != nil && d.logger != nil {
		d.logger.WithError(err).WithField("driver", d.name).Warn("destdriver: rewind-backlog failed")
	}
	d.armReopen()
}

func (d *Driver) armReopen() {
	d.setState(StateSuspended)
	t := time.AfterFunc(d.timeReopen, func() {
		select {
		case d.timerCh <- timerReopen:
		default:
		}
	})
	d.mu.Lock()
	d.reopenTimer = t
	d.mu.Unlock()
}

func (d *Driver) armThrottle(wait time.Duration) {
	d.setState(StateThrottled)
	t := time.AfterFunc(wait, func() {
		select {
		case d.timerCh <- timerThrottle:
		default:
		}
	})
	d.mu.Lock()
	d.throttleTimer = t
	d.mu.Unlock()
}

// armIdle arms the safety-poll timer used while the queue is empty: the
// primary wake-up is the notify callback CheckItems registered, this is
// only a backstop against a missed or coalesced notification.
func (d *Driver) armIdle(wait time.Duration) {
	d.setState(StateIdle)
	t := time.AfterFunc(wait, func() {
		select {
		case d.timerCh <- timerIdle:
		default:
		}
	})
	d.mu.Lock()
	d.idleTimer = t
	d.mu.Unlock()
}
