package stats

import "logroute/pkg/logqueue"

// QueueCounters adapts a pair of registry counters to
// logqueue.Counters, wiring I-9's stored/dropped coupling: a queue
// calls IncStored/IncDropped without knowing the registry exists.
type QueueCounters struct {
	StoredCounter  *Counter
	DroppedCounter *Counter
}

func (q *QueueCounters) IncStored() { q.StoredCounter.Inc() }

func (q *QueueCounters) IncDropped() { q.DroppedCounter.Inc() }

var _ logqueue.Counters = (*QueueCounters)(nil)

// NewQueueCounters registers the stored/dropped pair for a single
// destination under (component, id, instance) and returns the coupling
// ready to hand to a Queue's SetCounters.
func NewQueueCounters(r *Registry, component, id, instance string) *QueueCounters {
	return &QueueCounters{
		StoredCounter:  r.Register(CounterKey{Component: component, ID: id, Instance: instance, Type: Stored}),
		DroppedCounter: r.Register(CounterKey{Component: component, ID: id, Instance: instance, Type: Dropped}),
	}
}
