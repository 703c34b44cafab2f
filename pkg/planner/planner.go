// Package planner implements the look-ahead line planner: a fixed-size
// ring of motion blocks plus the back-planning pass that assigns each
// block the fastest entry/cruise/exit velocity triple consistent with its
// own kinematic limits, its neighbors' cornering limits, and the
// requirement that the queue can always be brought to a stop.
//
// The planner does not itself run the jerk-limited head/body/tail solve;
// that is pkg/trapezoid's job, invoked by the executor once a block is
// pulled off the ring to run. The planner only decides the three boundary
// velocities a block must hit.
package planner

import (
	"math"
	"sync"

	"cncmotion/pkg/axis"
	"cncmotion/pkg/errors"
	"cncmotion/pkg/trapezoid"
)

// Planner owns the ring and the back-planning state. A single Planner is
// shared between MAIN (QueueCommand/Aline/Dwell/FlushPlanner/EndHold) and
// EXEC (via the Ring's RunNext/Finalize/Release), serialized only where the
// two contexts actually touch shared bookkeeping.
type Planner struct {
	mu sync.Mutex

	ring      *Ring
	constants trapezoid.Constants

	holdActive bool

	lastUnit axis.Vector
	lastJerk float64
	hasPrev  bool
}

// New builds an empty planner with its own ring.
func New(constants trapezoid.Constants) *Planner {
	return &Planner{
		ring:      NewRing(),
		constants: constants,
	}
}

// Ring exposes the underlying ring to the executor package.
func (p *Planner) Ring() *Ring {
	return p.ring
}

// Aline enqueues a coordinated straight-line move. unit is the block's unit
// direction vector, length is its distance, cruiseVmax is the requested
// feed rate clamped to this block's per-axis velocity limits, and jerk is
// the combined jerk limit for the block (the weakest active axis, scaled by
// that axis's fraction of the unit vector).
//
// A zero-length move is rejected rather than enqueued: spec.md has no
// degenerate-move semantics for the planner layer, only for the trapezoid
// solver, so filtering here keeps every committed block non-degenerate.
func (p *Planner) Aline(unit, target, workOffset axis.Vector, length, cruiseVmax, jerk float64) (*Block, error) {
	if length <= 0 {
		return nil, errors.PlannerBadBlockError("zero or negative length move")
	}
	if jerk <= 0 {
		return nil, errors.PlannerBadBlockError("non-positive jerk")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	b, err := p.ring.Allocate()
	if err != nil {
		return nil, err
	}

	b.MoveType = MoveLine
	b.Unit = unit
	b.Target = target
	b.WorkOffset = workOffset
	b.Length = length
	b.CruiseVmax = cruiseVmax
	b.Jerk = jerk
	b.RecipJerk = 1 / jerk
	b.CbrtJerk = math.Cbrt(jerk)
	b.DeltaVmax = trapezoid.TargetVelocity(0, length, b.CbrtJerk, b.Jerk, p.constants.MaxIterNewton)

	entryVmax := cruiseVmax
	if p.hasPrev && !p.holdActive {
		combinedJerk := math.Min(p.lastJerk, jerk)
		jv := junctionVelocity(p.lastUnit, unit, combinedJerk)
		if jv < entryVmax {
			entryVmax = jv
		}
	} else {
		entryVmax = 0
	}
	b.EntryVmax = entryVmax
	b.ExitVmax = cruiseVmax
	b.Replannable = true

	p.lastUnit = unit
	p.lastJerk = jerk
	p.hasPrev = true

	p.ring.Commit(b)
	p.replanLocked()
	return b, nil
}

// Dwell enqueues a pause of the given duration between the surrounding
// motion blocks, taking no distance.
func (p *Planner) Dwell(seconds float64) (*Block, error) {
	if seconds < 0 {
		return nil, errors.PlannerBadBlockError("negative dwell duration")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	b, err := p.ring.Allocate()
	if err != nil {
		return nil, err
	}
	b.MoveType = MoveDwell
	b.DwellSeconds = seconds
	p.ring.Commit(b)
	return b, nil
}

// QueueCommand enqueues an out-of-band callback to run in sequence with
// motion blocks (e.g. a deferred spindle-speed or coolant write), rather
// than being applied immediately at parse time.
func (p *Planner) QueueCommand(fn CommandFunc, id uint8, arg0, arg1 float32) (*Block, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, err := p.ring.Allocate()
	if err != nil {
		return nil, err
	}
	b.MoveType = MoveCommand
	b.Cmd = fn
	b.CmdID = id
	b.CmdArg0 = arg0
	b.CmdArg1 = arg1
	p.ring.Commit(b)
	return b, nil
}

// FlushPlanner discards every queued block that has not yet started
// running, used when a hold is followed by a queue flush rather than a
// resume.
func (p *Planner) FlushPlanner() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ring.Flush()
	p.hasPrev = false
}

// EndHold clears the hold flag so newly queued blocks may again plan a
// nonzero entry velocity against their predecessor.
func (p *Planner) EndHold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdActive = false
}

// BeginHold marks the planner as held: the next Aline call will plan as if
// it is the first block in the queue, since the executor is decelerating
// whatever is currently running to a full stop.
func (p *Planner) BeginHold() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holdActive = true
	p.hasPrev = false
}

// replanLocked is the back-planning pass. It walks backward from the
// newest committed block, assigning each block the fastest entry velocity
// consistent with decelerating to the next block's entry within its own
// length, capped by its junction-limited EntryVmax, and setting each
// block's exit velocity to its successor's entry. The walk stops after the
// first older block whose entry comes out unchanged, since blocks further
// back then see the same exit velocity as before this insertion.
func (p *Planner) replanLocked() {
	newest := p.ring.Newest()
	if newest == nil {
		return
	}

	nextEntry := 0.0
	for b := newest; b != nil; b = p.ring.Prev(b) {
		if b.State() != StateQueued || b.MoveType != MoveLine {
			break
		}

		reachable := trapezoid.TargetVelocity(nextEntry, b.Length, b.CbrtJerk, b.Jerk, p.constants.MaxIterNewton)
		entry := math.Min(b.EntryVmax, reachable)
		converged := b != newest && math.Abs(entry-b.EntryVelocity) <= 1e-9

		b.EntryVelocity = entry
		b.ExitVelocity = nextEntry
		// CruiseVelocity is intentionally left at the requested CruiseVmax
		// here: per spec.md §4.2, resolving it against entry/exit is the
		// trapezoid solver's job when the block is promoted to RUN, not
		// the back-planner's.
		b.CruiseVelocity = b.CruiseVmax

		b.Replannable = entry < b.EntryVmax-1e-9
		nextEntry = entry

		if converged {
			break
		}
	}
}
