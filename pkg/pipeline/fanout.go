package pipeline

import "logroute/pkg/message"

// FanOutNode forwards a message to every configured branch, cloning
// copy-on-write for every branch but the last (the last branch reuses
// the incoming message directly, avoiding one needless clone on the
// common single-branch-after-fanout case). Each clone forks its own ack
// chain via CloneCOW/AckRecord.Break, so delivery outcomes from
// different branches are tracked and merged independently.
type FanOutNode struct {
	base
}

func NewFanOutNode(branches ...Node) *FanOutNode {
	f := &FanOutNode{}
	f.fanout = branches
	return f
}

// AddBranch appends another downstream branch.
func (f *FanOutNode) AddBranch(n Node) { f.fanout = append(f.fanout, n) }

func (f *FanOutNode) Init(cfg NodeConfig) error {
	if err := f.markInit(); err != nil {
		return err
	}
	for i, branch := range f.fanout {
		if err := branch.Init(NodeConfig{Name: cfg.Name}); err != nil {
			for j := i - 1; j >= 0; j-- {
				f.fanout[j].Deinit()
			}
			f.markDeinit()
			return err
		}
	}
	return nil
}

func (f *FanOutNode) Deinit() error {
	if err := f.markDeinit(); err != nil {
		return err
	}
	var firstErr error
	for _, branch := range f.fanout {
		if err := branch.Deinit(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (f *FanOutNode) Queue(msg *message.Message, opts *PathOptions) {
	n := len(f.fanout)
	if n == 0 {
		if msg.Ack != nil {
			msg.Ack.Ack(message.AckDropped)
		}
		return
	}
	for i, branch := range f.fanout {
		if i == n-1 {
			branch.Queue(msg, opts)
			return
		}
		branch.Queue(msg.CloneCOW(), opts)
	}
}

func (f *FanOutNode) Notify(code NotifyCode) { f.propagateNotify(code) }

func (f *FanOutNode) Free() {
	for _, branch := range f.fanout {
		branch.Free()
	}
}
