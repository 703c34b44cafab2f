// Package feedhold implements the two-phase cooperative feed hold / cycle
// start / queue flush protocol of spec.md §5. MAIN requests a hold and the
// protocol immediately goes SYNC while EXEC decelerates whatever is
// running to zero; EXEC's report that velocity actually reached zero is
// what promotes SYNC to HOLD. Cycle start is ignored while running,
// deferred while still decelerating, and honored once HOLD is reached.
// Queue flush is only valid from HOLD, and atomically drains the planner's
// ring while resyncing the canonical machine's modal position to wherever
// the runtime actually stopped.
//
// It is grounded on the teacher's hosth4 pause/resume manager's general
// shape (a mutex-guarded controller with named Request*/cmd* methods), but
// the SYNC/HOLD state split and the deferred-cycle-start behavior follow
// spec.md §5 directly: this simplified runtime has no separate sequencing
// thread to observe feedhold_requested asynchronously, so the OFF->SYNC
// transition happens synchronously inside RequestFeedhold itself rather
// than through a polled flag.
package feedhold

import (
	"sync"

	"cncmotion/pkg/axis"
	"cncmotion/pkg/errors"
)

// HoldState is the feed hold phase.
type HoldState int

const (
	HoldOff  HoldState = iota // no hold in effect
	HoldSync                  // hold requested, EXEC still decelerating
	HoldHold                  // EXEC reached zero velocity; safe to flush or resume
)

func (s HoldState) String() string {
	switch s {
	case HoldSync:
		return "sync"
	case HoldHold:
		return "hold"
	default:
		return "off"
	}
}

// CycleState mirrors spec.md §5's motion_state/cycle_state: whether the
// machine is actively running queued motion.
type CycleState int

const (
	CycleRun CycleState = iota
	CycleStop
)

// PlannerControl is the slice of pkg/planner.Planner this package needs,
// kept as an interface so feedhold never imports pkg/planner directly.
type PlannerControl interface {
	BeginHold()
	EndHold()
	FlushPlanner()
}

// ExecutorControl is the slice of pkg/executor.Executor this package
// needs.
type ExecutorControl interface {
	RequestHold()
	RequestResume()
	Position() axis.Vector
}

// PositionSync is the slice of pkg/canonical.Machine this package needs to
// resync gm.position after a queue flush.
type PositionSync interface {
	SyncPosition(pos axis.Vector)
}

// Orchestrator owns the hold/cycle state machine and drives the three
// collaborators it's wired to. One Orchestrator is shared between MAIN
// (RequestFeedhold/RequestCycleStart/RequestQueueFlush) and EXEC
// (HoldCompleted, fired from the executor's OnHoldComplete callback).
type Orchestrator struct {
	mu sync.Mutex

	holdState  HoldState
	cycleState CycleState

	cycleStartPending bool

	planner  PlannerControl
	executor ExecutorControl
	position PositionSync
}

// New wires an Orchestrator to its three collaborators.
func New(planner PlannerControl, executor ExecutorControl, position PositionSync) *Orchestrator {
	return &Orchestrator{
		planner:    planner,
		executor:   executor,
		position:   position,
		cycleState: CycleRun,
	}
}

// HoldState returns the current hold phase.
func (o *Orchestrator) HoldState() HoldState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.holdState
}

// CycleState returns whether the machine is currently running.
func (o *Orchestrator) CycleState() CycleState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cycleState
}

// RequestFeedhold implements the feed hold command: MAIN sets
// feedhold_requested and the hold transitions OFF->SYNC immediately,
// beginning a linear decel to zero in EXEC and freezing the planner's
// junction-velocity assumptions for whatever is enqueued next. A second
// request while a hold is already in effect is a no-op.
func (o *Orchestrator) RequestFeedhold() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.holdState != HoldOff {
		return
	}
	o.holdState = HoldSync
	o.cycleState = CycleStop
	o.planner.BeginHold()
	o.executor.RequestHold()
}

// HoldCompleted is EXEC's report (via the executor's OnHoldComplete
// callback) that the decel actually reached zero velocity. This is the
// only thing that promotes SYNC to HOLD; a cycle start requested while
// still in SYNC is replayed here once HOLD is reached.
func (o *Orchestrator) HoldCompleted() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.holdState != HoldSync {
		return
	}
	o.holdState = HoldHold
	if o.cycleStartPending {
		o.cycleStartPending = false
		o.doResume()
	}
}

// RequestCycleStart implements cycle start: ignored while RUN (nothing to
// resume), deferred while SYNC (replayed once HOLD is reached), and
// honored immediately from HOLD.
func (o *Orchestrator) RequestCycleStart() {
	o.mu.Lock()
	defer o.mu.Unlock()
	switch o.holdState {
	case HoldOff:
		return
	case HoldSync:
		o.cycleStartPending = true
	case HoldHold:
		o.doResume()
	}
}

// doResume ends the hold: EXEC re-plans a jerk-limited accel back toward
// the block's original profile, and the planner stops forcing a
// zero-entry assumption on newly enqueued blocks. Caller must hold o.mu.
func (o *Orchestrator) doResume() {
	o.holdState = HoldOff
	o.cycleState = CycleRun
	o.planner.EndHold()
	o.executor.RequestResume()
}

// RequestQueueFlush drains every not-yet-running block from the planner
// and resyncs the canonical machine's modal position to wherever the
// runtime actually stopped. Valid only from HOLD, per spec.md §5: flushing
// mid-decel would discard motion EXEC hasn't finished unwinding yet.
func (o *Orchestrator) RequestQueueFlush() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.holdState != HoldHold {
		return errors.RuntimeErrorQueue("flush", "feed hold has not reached hold state")
	}
	o.planner.FlushPlanner()
	o.position.SyncPosition(o.executor.Position())
	o.cycleStartPending = false
	return nil
}

// ForceAlarm jumps straight to HOLD/STOP, bypassing the gentle SYNC decel:
// the alarm broadcast (pkg/alarm) has already cut motor power through its
// own path by the time this runs, so feedhold only needs its own
// bookkeeping to agree that a subsequent queue flush is valid. Per
// spec.md §7, alarms supersede holds.
func (o *Orchestrator) ForceAlarm() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.holdState = HoldHold
	o.cycleState = CycleStop
	o.cycleStartPending = false
	o.planner.BeginHold()
}
