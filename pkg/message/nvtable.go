package message

import "sync"

type slotKind uint8

const (
	slotInline slotKind = iota
	slotIndirect
)

// nvSlot is a tagged union over an inline byte value or an indirect view
// into another slot's inline bytes. Indirect slots let the syslog parser
// carve structured-data fragments out of the original payload without
// copying; they resolve to bytes lazily, on read.
type nvSlot struct {
	kind   slotKind
	inline []byte

	indSource NVHandle
	indOffset int
	indLen    int
}

// NVTable is a per-Message, copy-on-write attribute table keyed by interned
// NVHandle. Several Messages (produced by fan-out) may share the same
// NVTable until one of them mutates it; the first mutation while shared
// forks a private copy, mirroring the teacher's LabelsCOW discipline.
type NVTable struct {
	mu       sync.RWMutex
	slots    map[NVHandle]*nvSlot
	readonly bool
}

// NewNVTable returns an empty, privately-owned table.
func NewNVTable() *NVTable {
	return &NVTable{slots: make(map[NVHandle]*nvSlot, 8)}
}

// Get returns the resolved bytes for handle and whether it is present.
// Reading an absent key returns a zero-length string per invariant I-3.
func (t *NVTable) Get(h NVHandle) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.resolveLocked(h)
}

func (t *NVTable) resolveLocked(h NVHandle) (string, bool) {
	s, ok := t.slots[h]
	if !ok {
		return "", false
	}
	if s.kind == slotInline {
		return string(s.inline), true
	}
	src, ok := t.slots[s.indSource]
	if !ok || src.kind != slotInline {
		return "", false
	}
	if s.indOffset < 0 || s.indOffset+s.indLen > len(src.inline) {
		return "", false
	}
	return string(src.inline[s.indOffset : s.indOffset+s.indLen]), true
}

// Set stores a copy of value under handle, forking the table first if it
// is currently shared (copy-on-write).
func (t *NVTable) Set(h NVHandle, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forkIfSharedLocked()
	cp := make([]byte, len(value))
	copy(cp, value)
	t.slots[h] = &nvSlot{kind: slotInline, inline: cp}
}

// SetIndirect stores a zero-copy view into another slot's inline bytes.
// The source slot must already hold an inline value (typically the raw
// payload stashed under a pseudo-handle by the parser).
func (t *NVTable) SetIndirect(h, source NVHandle, offset, length int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forkIfSharedLocked()
	t.slots[h] = &nvSlot{kind: slotIndirect, indSource: source, indOffset: offset, indLen: length}
}

// Delete removes handle from the table, forking first if shared.
func (t *NVTable) Delete(h NVHandle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.forkIfSharedLocked()
	delete(t.slots, h)
}

// Range calls f for every present handle with its resolved value. f is
// called while holding the read lock; it must not re-enter the table.
func (t *NVTable) Range(f func(h NVHandle, value string) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for h := range t.slots {
		v, ok := t.resolveLocked(h)
		if !ok {
			continue
		}
		if !f(h, v) {
			return
		}
	}
}

// Snapshot returns the table's resolved contents keyed by interned name,
// for serialisation (disk-backed queue segments). Indirect slots are
// resolved to their own copy, independent of the source slot.
func (t *NVTable) Snapshot() map[string]string {
	out := make(map[string]string)
	t.Range(func(h NVHandle, value string) bool {
		out[NameOf(h)] = value
		return true
	})
	return out
}

// ShallowCopy returns a new NVTable sharing the same underlying slots as t.
// Both t and the returned table are marked readonly so the next mutation on
// either side forks independently.
func (t *NVTable) ShallowCopy() *NVTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readonly = true
	return &NVTable{slots: t.slots, readonly: true}
}

// forkIfSharedLocked must be called while holding the write lock. It
// deep-copies the slot map when the table is marked readonly, clearing the
// flag on the private copy.
func (t *NVTable) forkIfSharedLocked() {
	if !t.readonly {
		return
	}
	cp := make(map[NVHandle]*nvSlot, len(t.slots))
	for h, s := range t.slots {
		sc := *s
		if s.kind == slotInline {
			sc.inline = append([]byte(nil), s.inline...)
		}
		cp[h] = &sc
	}
	t.slots = cp
	t.readonly = false
}
