package pipeline

import "logroute/pkg/message"

// Enqueuer is satisfied by pkg/logqueue.Queue implementations. Declared
// locally (rather than importing pkg/logqueue) so the pipeline package
// has no dependency on a specific queue backend.
type Enqueuer interface {
	PushTail(msg *message.Message) error
}

// DestinationNode is a path's leaf: it hands the message to a queue
// backend for eventual delivery by a threaded destination driver
// (pkg/destdriver), acking AckProcessed once the backend has accepted
// it onto its queue, or AckDropped if PushTail itself fails — by the
// time PushTail returns an error here, the backend has already
// exhausted its own backlog/retry recovery path (spec.md §4.5).
type DestinationNode struct {
	base

	Target Enqueuer
}

func NewDestinationNode(target Enqueuer) *DestinationNode {
	return &DestinationNode{Target: target}
}

func (d *DestinationNode) Init(cfg NodeConfig) error { return d.markInit() }

func (d *DestinationNode) Deinit() error { return d.markDeinit() }

func (d *DestinationNode) Queue(msg *message.Message, opts *PathOptions) {
	if d.Target == nil {
		if msg.Ack != nil {
			msg.Ack.Ack(message.AckDropped)
		}
		return
	}
	outcome := message.AckProcessed
	if err := d.Target.PushTail(msg); err != nil {
		outcome = message.AckDropped
	}
	if msg.Ack != nil {
		msg.Ack.Ack(outcome)
	}
}

func (d *DestinationNode) Notify(code NotifyCode) { d.propagateNotify(code) }

func (d *DestinationNode) Free() {}
