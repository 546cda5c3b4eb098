//go:build linux

package mainloop

import (
	"sync"

	"golang.org/x/sys/unix"
)

// epollFDWatcher backs Reactor.WatchFD with a single shared epoll
// instance, polled on its own goroutine with a short timeout so it can
// notice Close without needing a dedicated wakeup pipe.
type epollFDWatcher struct {
	epfd int

	mu      sync.Mutex
	fns     map[int]func()
	closed  bool
	eventCh chan func()
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newFDWatcher(_ *Reactor) fdWatcher {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	w := &epollFDWatcher{
		fns:     make(map[int]func()),
		eventCh: make(chan func(), 16),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
	if err != nil {
		w.epfd = -1
		close(w.doneCh)
		return w
	}
	w.epfd = epfd
	go w.loop()
	return w
}

func (w *epollFDWatcher) events() <-chan func() { return w.eventCh }

func (w *epollFDWatcher) watch(fd int, fn func()) (func(), error) {
	if w.epfd < 0 {
		return nil, unix.ENOSYS
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(w.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return nil, err
	}
	w.mu.Lock()
	w.fns[fd] = fn
	w.mu.Unlock()
	return func() {
		w.mu.Lock()
		delete(w.fns, fd)
		w.mu.Unlock()
		var ev unix.EpollEvent
		unix.EpollCtl(w.epfd, unix.EPOLL_CTL_DEL, fd, &ev) //nolint:errcheck // fd may already be closed
	}, nil
}

func (w *epollFDWatcher) loop() {
	defer close(w.doneCh)
	if w.epfd < 0 {
		return
	}
	events := make([]unix.EpollEvent, 16)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}
		n, err := unix.EpollWait(w.epfd, events, 250)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			w.mu.Lock()
			fn := w.fns[fd]
			w.mu.Unlock()
			if fn != nil {
				select {
				case w.eventCh <- fn:
				case <-w.stopCh:
					return
				}
			}
		}
	}
}

func (w *epollFDWatcher) close() {
	if w.closed {
		return
	}
	w.closed = true
	close(w.stopCh)
	<-w.doneCh
	if w.epfd >= 0 {
		unix.Close(w.epfd)
	}
}
