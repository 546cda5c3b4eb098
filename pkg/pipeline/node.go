// Package pipeline implements the pipe graph: a tree of Nodes a Message
// is pushed down synchronously from a source to one or more
// destinations, with filters, rewrites, and fan-out points along the
// way. It generalizes the teacher's Monitor/Sink/Dispatcher trio
// (pkg/types/interfaces.go, internal/dispatcher/dispatcher.go) into a
// single Node contract so any stage can be composed with any other.
package pipeline

import (
	"errors"
	"sync"

	"logroute/pkg/message"
)

// ErrAlreadyInitialized is returned by Init when called a second time on
// the same node without an intervening Deinit.
var ErrAlreadyInitialized = errors.New("pipeline: node already initialized")

// ErrNotInitialized is returned by Deinit/Queue/Notify on a node that
// was never successfully initialized.
var ErrNotInitialized = errors.New("pipeline: node not initialized")

// NotifyCode identifies an upstream notification raised by a node
// (typically a source) about a condition the rest of the path should
// react to. Notifications propagate toward sources via notifyUp, never
// downstream toward destinations.
type NotifyCode int

const (
	// NCFileMoved signals the underlying file was rotated/renamed.
	NCFileMoved NotifyCode = iota
	// NCReadError signals a read failure on the source transport.
	NCReadError
	// NCReopenRequired asks the source to close and reopen its handle.
	NCReopenRequired
	// NCClose signals the path is shutting down.
	NCClose
)

// PathOptions carries per-message routing state down the path: flow
// control mode, and the ack record the path's destinations must credit
// before the message is considered delivered.
type PathOptions struct {
	// FlowControl, when true, means Queue may block the calling
	// goroutine until downstream credit is available rather than
	// dropping the message (mirrors spec.md's MemQueue disciplines).
	FlowControl bool
}

// NodeConfig is the generic configuration bag passed to Init. Concrete
// node kinds type-assert the fields they need out of Settings.
type NodeConfig struct {
	Name     string
	Settings map[string]any
}

// Node is one stage of a pipe graph.
type Node interface {
	// Init prepares the node to receive Queue/Notify calls. Calling Init
	// twice without an intervening Deinit returns ErrAlreadyInitialized.
	Init(cfg NodeConfig) error
	// Deinit releases resources acquired by Init.
	Deinit() error
	// Queue hands a message to this node for processing and forwarding.
	// It runs synchronously on the calling goroutine to completion,
	// matching spec.md §4.4/§5: suspension only happens inside
	// pkg/mainloop primitives, never mid-path.
	Queue(msg *message.Message, opts *PathOptions)
	// Notify delivers an upstream condition, propagated from a
	// downstream node toward the path's source.
	Notify(code NotifyCode)
	// Free releases any resources Deinit does not (e.g. static config),
	// called once the node is permanently removed from the graph.
	Free()
}

// base provides the idempotent-Init bookkeeping every concrete node
// embeds, mirroring the teacher's running/runningMux discipline in
// FileMonitor.Start/Stop.
type base struct {
	mu          sync.Mutex
	initialized bool

	forward  Node   // next node down the path, nil at a leaf destination
	notifyUp Node   // node to propagate Notify to; nil at the source
	fanout   []Node // additional branches, for FanOutNode
}

func (b *base) markInit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.initialized {
		return ErrAlreadyInitialized
	}
	b.initialized = true
	return nil
}

func (b *base) markDeinit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return ErrNotInitialized
	}
	b.initialized = false
	return nil
}

func (b *base) isInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// SetForward wires this node's single downstream successor.
func (b *base) SetForward(n Node) { b.forward = n }

// SetNotifyUp wires the node that receives this node's Notify calls.
func (b *base) SetNotifyUp(n Node) { b.notifyUp = n }

// forwardQueue passes msg to the wired forward node, if any.
func (b *base) forwardQueue(msg *message.Message, opts *PathOptions) {
	if b.forward != nil {
		b.forward.Queue(msg, opts)
	}
}

// propagateNotify passes a notification toward the source.
func (b *base) propagateNotify(code NotifyCode) {
	if b.notifyUp != nil {
		b.notifyUp.Notify(code)
	}
}
