package destdriver

import (
	"context"

	"logroute/pkg/message"
	"logroute/pkg/tracing"

	oteltrace "go.opentelemetry.io/otel/trace"
)

// TracedWorker wraps a Worker with an otel span per Insert call, named
// after the destination so every delivery attempt shows up against the
// path it belongs to. Lifecycle hooks (ThreadInit/ThreadDeinit/Disconnect)
// pass straight through to the wrapped Worker when it implements them, so
// wrapping never changes which optional interfaces a Driver sees — it
// only re-checks them against the inner worker via the accessors below.
type TracedWorker struct {
	inner       Worker
	destination string
	tracer      oteltrace.Tracer
}

// NewTracedWorker returns a Worker that traces every Insert against
// inner, tagging spans with the destination name.
func NewTracedWorker(inner Worker, destination string, tracer oteltrace.Tracer) *TracedWorker {
	return &TracedWorker{inner: inner, destination: destination, tracer: tracer}
}

// Insert implements Worker.
func (w *TracedWorker) Insert(msg *message.Message) bool {
	tc := tracing.NewTraceableContext(context.Background(), w.tracer, "destdriver.insert")
	defer tc.End()
	tc.SetAttribute("destination", w.destination)
	tc.SetAttribute("source_addr", msg.SourceAddr)

	ok := w.inner.Insert(msg)
	if !ok {
		tc.AddEvent("insert_failed")
	}
	return ok
}

// ThreadInit implements ThreadInitializer when the wrapped worker does.
func (w *TracedWorker) ThreadInit() error {
	if ti, ok := w.inner.(ThreadInitializer); ok {
		return ti.ThreadInit()
	}
	return nil
}

// ThreadDeinit implements ThreadDeinitializer when the wrapped worker does.
func (w *TracedWorker) ThreadDeinit() {
	if td, ok := w.inner.(ThreadDeinitializer); ok {
		td.ThreadDeinit()
	}
}

// Disconnect implements Disconnecter when the wrapped worker does.
func (w *TracedWorker) Disconnect() {
	if d, ok := w.inner.(Disconnecter); ok {
		d.Disconnect()
	}
}

var (
	_ Worker              = (*TracedWorker)(nil)
	_ ThreadInitializer   = (*TracedWorker)(nil)
	_ ThreadDeinitializer = (*TracedWorker)(nil)
	_ Disconnecter        = (*TracedWorker)(nil)
)
