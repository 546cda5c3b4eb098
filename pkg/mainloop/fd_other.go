//go:build !linux

package mainloop

import "errors"

// ErrWatchFDUnsupported is returned by WatchFD on platforms with no
// epoll-style backend wired up.
var ErrWatchFDUnsupported = errors.New("mainloop: WatchFD requires linux")

type noopFDWatcher struct{}

func newFDWatcher(_ *Reactor) fdWatcher { return noopFDWatcher{} }

func (noopFDWatcher) events() <-chan func() { return nil }

func (noopFDWatcher) watch(int, func()) (func(), error) { return nil, ErrWatchFDUnsupported }

func (noopFDWatcher) close() {}
