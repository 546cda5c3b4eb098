package message

import "sync"

// AckOutcome is the result a consumer reports when it finishes with a
// Message. Outcomes are ordered processed < dropped < suspended: the
// worst outcome observed across an ack chain is the one reported upward
// (P-3).
type AckOutcome int

const (
	AckProcessed AckOutcome = iota
	AckDropped
	AckSuspended
)

func worst(a, b AckOutcome) AckOutcome {
	if b > a {
		return b
	}
	return a
}

// AckRecord is a per-Message completion tracker. Every enqueue or fan-out
// branch adds one credit via Add; Ack(outcome) removes one. When the
// count reaches zero the completion callback (if any) fires exactly once,
// and a chained parent record is acked with the worst outcome observed
// (invariant I-6, property P-3).
type AckRecord struct {
	mu       sync.Mutex
	pending  int
	worst    AckOutcome
	done     bool
	complete func(AckOutcome)
	parent   *AckRecord
}

// NewAckRecord returns a record with one outstanding credit (the initial
// owner) and an optional completion callback invoked when the chain
// resolves.
func NewAckRecord(complete func(AckOutcome)) *AckRecord {
	return &AckRecord{pending: 1, complete: complete}
}

// Add adds one outstanding ack credit, for a new enqueue or fan-out branch.
func (a *AckRecord) Add() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.pending++
}

// Ack resolves one outstanding credit with outcome. Panics if called more
// times than credits were outstanding (invariant violation, per spec.md
// §7 kind 5 — a programming error, not a recoverable condition).
func (a *AckRecord) Ack(outcome AckOutcome) {
	a.mu.Lock()
	if a.pending <= 0 {
		a.mu.Unlock()
		panic("message: Ack called with no outstanding credit")
	}
	a.pending--
	a.worst = worst(a.worst, outcome)
	if a.pending > 0 {
		a.mu.Unlock()
		return
	}
	done := a.done
	a.done = true
	finalOutcome := a.worst
	complete := a.complete
	parent := a.parent
	a.mu.Unlock()

	if done {
		return
	}
	if complete != nil {
		complete(finalOutcome)
	}
	if parent != nil {
		parent.Ack(finalOutcome)
	}
}

// Break forks a new AckRecord chained to a, for a fan-out branch that needs
// its own independent credit count feeding back into a's resolution — the
// equivalent of syslog-ng's log_msg_break_ack.
func (a *AckRecord) Break() *AckRecord {
	a.Add()
	child := NewAckRecord(nil)
	child.parent = a
	return child
}

// Pending returns the number of outstanding ack credits, for tests.
func (a *AckRecord) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}
