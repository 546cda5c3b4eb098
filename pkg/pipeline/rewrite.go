package pipeline

import "logroute/pkg/message"

// RewriteNode mutates a message in place before forwarding it. Mutation
// is safe to share with any fan-out sibling that already holds a
// reference, because NVTable and TagSet fork themselves copy-on-write
// on first mutation (pkg/message/nvtable.go, pkg/message/tagset.go) —
// RewriteNode does not need to clone the message itself.
type RewriteNode struct {
	base

	Rewrite func(*message.Message)
}

func NewRewriteNode(rewrite func(*message.Message)) *RewriteNode {
	return &RewriteNode{Rewrite: rewrite}
}

func (rw *RewriteNode) Init(cfg NodeConfig) error { return rw.markInit() }

func (rw *RewriteNode) Deinit() error { return rw.markDeinit() }

func (rw *RewriteNode) Queue(msg *message.Message, opts *PathOptions) {
	if rw.Rewrite != nil {
		rw.Rewrite(msg)
	}
	rw.forwardQueue(msg, opts)
}

func (rw *RewriteNode) Notify(code NotifyCode) { rw.propagateNotify(code) }

func (rw *RewriteNode) Free() {}
