package pipeline

import "logroute/pkg/message"

// FilterNode drops a message that fails Predicate, acking it
// AckDropped; messages that pass continue down the path unchanged.
type FilterNode struct {
	base

	Predicate func(*message.Message) bool
}

func NewFilterNode(predicate func(*message.Message) bool) *FilterNode {
	return &FilterNode{Predicate: predicate}
}

func (f *FilterNode) Init(cfg NodeConfig) error { return f.markInit() }

func (f *FilterNode) Deinit() error { return f.markDeinit() }

func (f *FilterNode) Queue(msg *message.Message, opts *PathOptions) {
	if f.Predicate == nil || f.Predicate(msg) {
		f.forwardQueue(msg, opts)
		return
	}
	if msg.Ack != nil {
		msg.Ack.Ack(message.AckDropped)
	}
}

func (f *FilterNode) Notify(code NotifyCode) { f.propagateNotify(code) }

func (f *FilterNode) Free() {}
