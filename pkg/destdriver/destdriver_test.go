package destdriver

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"logroute/pkg/logqueue"
	"logroute/pkg/message"
)

// stubWorker records every Insert call and can be configured to fail a
// fixed number of times before succeeding, exercising the
// suspend/reopen path.
type stubWorker struct {
	mu         sync.Mutex
	failTimes  int
	inserted   []string
	disconnect int
	threadInit int
	threadDone int
	insertedCh chan string
}

func newStubWorker() *stubWorker {
	return &stubWorker{insertedCh: make(chan string, 16)}
}

func (w *stubWorker) Insert(msg *message.Message) bool {
	v, _ := msg.GetValue(message.KeyMessage)
	w.mu.Lock()
	if w.failTimes > 0 {
		w.failTimes--
		w.mu.Unlock()
		return false
	}
	w.inserted = append(w.inserted, v)
	w.mu.Unlock()
	w.insertedCh <- v
	return true
}

func (w *stubWorker) Disconnect() {
	w.mu.Lock()
	w.disconnect++
	w.mu.Unlock()
}

func (w *stubWorker) ThreadInit() error {
	w.mu.Lock()
	w.threadInit++
	w.mu.Unlock()
	return nil
}

func (w *stubWorker) ThreadDeinit() {
	w.mu.Lock()
	w.threadDone++
	w.mu.Unlock()
}

func payload(v string) *message.Message {
	m := message.NewEmpty()
	m.SetValue(message.KeyMessage, []byte(v))
	return m
}

func waitForState(t *testing.T, d *Driver, want State, within time.Duration) {
	t.Helper()
	deadline := time.Now().Add(within)
	for time.Now().Before(deadline) {
		if d.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("state never reached %s, last seen %s", want, d.State())
}

func TestDriverDeliversQueuedMessageAndRunsLifecycleHooks(t *testing.T) {
	q := logqueue.NewMemQueue(4, logqueue.ParallelPush)
	w := newStubWorker()
	d, err := New(Config{Name: "t1", Queue: q, Worker: w, CheckInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	require.NoError(t, q.PushTail(payload("hello")))

	select {
	case v := <-w.insertedCh:
		assert.Equal(t, "hello", v)
	case <-time.After(time.Second):
		t.Fatal("message never delivered")
	}

	assert.Equal(t, 0, q.Length())

	d.Shutdown()
	d.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, 1, w.threadInit)
	assert.Equal(t, 1, w.threadDone)
}

func TestDriverIdlesWhenQueueEmpty(t *testing.T) {
	q := logqueue.NewMemQueue(4, logqueue.ParallelPush)
	w := newStubWorker()
	d, err := New(Config{Name: "t2", Queue: q, Worker: w, CheckInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	waitForState(t, d, StateIdle, time.Second)

	d.Shutdown()
	d.Wait()
}

func TestDriverSuspendsOnInsertFailureAndRetriesAfterReopen(t *testing.T) {
	q := logqueue.NewMemQueue(4, logqueue.ParallelPush)
	w := newStubWorker()
	w.failTimes = 1

	d, err := New(Config{
		Name:          "t3",
		Queue:         q,
		Worker:        w,
		TimeReopen:    30 * time.Millisecond,
		CheckInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	require.NoError(t, q.PushTail(payload("retry-me")))

	waitForState(t, d, StateSuspended, time.Second)

	select {
	case v := <-w.insertedCh:
		assert.Equal(t, "retry-me", v)
	case <-time.After(time.Second):
		t.Fatal("message never redelivered after reopen")
	}

	d.Shutdown()
	d.Wait()

	w.mu.Lock()
	defer w.mu.Unlock()
	assert.Equal(t, 1, w.disconnect)
}

func TestDriverShutdownDoesNotDeliverFurtherMessages(t *testing.T) {
	q := logqueue.NewMemQueue(4, logqueue.ParallelPush)
	w := newStubWorker()
	d, err := New(Config{Name: "t4", Queue: q, Worker: w, CheckInterval: 20 * time.Millisecond})
	require.NoError(t, err)
	require.NoError(t, d.Start())

	waitForState(t, d, StateIdle, time.Second)

	d.Shutdown()
	d.Wait()

	assert.Equal(t, StateStopped, d.State())
}

func TestNewRejectsMissingQueueOrWorker(t *testing.T) {
	_, err := New(Config{Worker: newStubWorker()})
	assert.Error(t, err)

	_, err = New(Config{Queue: logqueue.NewMemQueue(1, logqueue.ParallelPush)})
	assert.Error(t, err)
}
