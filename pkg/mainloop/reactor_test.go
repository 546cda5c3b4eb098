package mainloop

import (
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startedReactor(t *testing.T) *Reactor {
	t.Helper()
	r := New(nil)
	go r.Run()
	t.Cleanup(r.Stop)
	return r
}

func TestScheduleTaskRunsOnTheLoop(t *testing.T) {
	r := startedReactor(t)
	done := make(chan struct{})
	r.ScheduleTask(func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduled task never ran")
	}
}

func TestPostEventCoalescesWakeupsButRunsEveryCallback(t *testing.T) {
	r := startedReactor(t)
	var mu sync.Mutex
	var seen []int

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.PostEvent(NewEvent(func() {
				mu.Lock()
				seen = append(seen, i)
				mu.Unlock()
			}))
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, time.Second, 5*time.Millisecond)
}

func TestArmTimerFiresAfterDuration(t *testing.T) {
	r := startedReactor(t)
	fired := make(chan struct{})
	start := time.Now()
	r.ArmTimer(20*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	case <-time.After(time.Second):
		t.Fatal("timer never fired")
	}
}

func TestCancelTimerPreventsFiring(t *testing.T) {
	r := startedReactor(t)
	fired := make(chan struct{})
	h := r.ArmTimer(30*time.Millisecond, func() { close(fired) })
	r.CancelTimer(h)

	select {
	case <-fired:
		t.Fatal("canceled timer fired anyway")
	case <-time.After(80 * time.Millisecond):
	}
}

func TestStopWaitsForRunToExit(t *testing.T) {
	r := New(nil)
	go r.Run()
	r.ScheduleTask(func() {})
	r.Stop()

	select {
	case <-r.done:
	default:
		t.Fatal("Stop returned before Run exited")
	}
}

func TestWatchFDOnLinuxReportsReadability(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("epoll backend is linux-only")
	}

	r := startedReactor(t)
	fds := make([]int, 2)
	require.NoError(t, pipeFDs(fds))
	readFD, writeFD := fds[0], fds[1]

	ready := make(chan struct{})
	unwatch, err := r.WatchFD(readFD, func() { close(ready) })
	require.NoError(t, err)
	defer unwatch()

	writeByte(t, writeFD)

	select {
	case <-ready:
	case <-time.After(time.Second):
		t.Fatal("WatchFD never reported the pipe as readable")
	}
}
