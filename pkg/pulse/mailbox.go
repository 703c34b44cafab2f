// Package pulse implements the segment loader and DDA pulse engine: the
// highest-priority periodic interrupt context that turns the executor's
// fixed-duration segments into phase-continuous per-axis step pulses.
package pulse

import (
	"sync/atomic"

	"cncmotion/pkg/axis"
)

// Segment is one fixed-duration slice of motion handed from EXEC to DDA:
// an integer DDA tick budget and a signed per-axis step count to spread
// evenly across those ticks.
type Segment struct {
	Ticks         int
	Steps         axis.Vector
	BlockComplete bool
}

// Mailbox is the two-state handshake between EXEC (producer) and DDA
// (consumer) spec.md §4.5 calls owned-by-exec / owned-by-loader: a
// single atomic pointer swap, so no lock is needed on either side.
type Mailbox struct {
	slot atomic.Pointer[Segment]
	idle atomic.Bool
}

// NewMailbox returns an empty mailbox, idle until the first Publish.
func NewMailbox() *Mailbox {
	m := &Mailbox{}
	m.idle.Store(true)
	return m
}

// Publish hands a freshly-prepared segment to the loader, replacing
// whatever was there (EXEC never publishes faster than DDA can drain a
// single slot in steady state, but a stale unread segment is simply
// overwritten rather than queued). Publish reports whether the engine
// was idle, the "if the engine is idle when main enqueues work, poke
// the executor directly" case from spec.md §4.5.
func (m *Mailbox) Publish(seg *Segment) (wasIdle bool) {
	wasIdle = m.idle.Swap(false)
	m.slot.Store(seg)
	return wasIdle
}

// Take atomically removes and returns the pending segment, or nil if
// none is ready. Taking nil marks the mailbox idle again.
func (m *Mailbox) Take() *Segment {
	seg := m.slot.Swap(nil)
	if seg == nil {
		m.idle.Store(true)
	}
	return seg
}

// Idle reports whether the last Take found the slot empty (or nothing has
// been published yet). A Take that returns a segment leaves it false.
func (m *Mailbox) Idle() bool {
	return m.idle.Load()
}
