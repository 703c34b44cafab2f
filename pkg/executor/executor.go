// Package executor implements the move executor (mr): the EXEC-context
// state machine that pulls the planner's active block, runs the
// trapezoid solver on it once, and slices it into fixed-duration
// segments for the pulse engine.
package executor

import (
	"math"

	"cncmotion/pkg/axis"
	"cncmotion/pkg/errors"
	"cncmotion/pkg/planner"
	"cncmotion/pkg/trapezoid"
)

// Section identifies which part of a block's trapezoid the runtime is
// currently consuming.
type Section int

const (
	SectionNone Section = iota
	SectionHead
	SectionBody
	SectionTail
)

// Segment is one fixed-duration slice handed off to the pulse engine.
type Segment struct {
	DurationSeconds float64
	Ticks           int
	Steps           axis.Vector // signed fractional steps for this segment
	BlockComplete   bool        // true if this segment finishes the active block
}

// Constants bundles the timing the executor needs beyond what
// pkg/trapezoid already configures.
type Constants struct {
	Trapezoid    trapezoid.Constants
	FrequencyDDA float64 // ticks/second
}

// DefaultConstants mirrors a 100 kHz DDA core with 5 ms nominal segments.
func DefaultConstants() Constants {
	return Constants{
		Trapezoid:    trapezoid.DefaultConstants(),
		FrequencyDDA: 100_000,
	}
}

// Executor owns the runtime (mr) scratch state for the single block
// currently running, plus the steps-per-unit conversion needed to turn
// velocity into pulses.
type Executor struct {
	ring         *planner.Ring
	constants    Constants
	stepsPerUnit axis.Vector

	block *planner.Block

	section          Section
	sectionElapsed   float64 // seconds consumed of the current section
	sectionDuration  float64 // seconds, total duration of the current section
	sectionEntryV    float64
	sectionExitV     float64

	position axis.Vector // mm/degrees, current runtime position

	distanceConsumed float64 // length of the active block already travelled

	holding   bool
	paused    bool // holding drove velocity to zero; block retained, awaiting resume
	resuming  bool
	lastExitV float64 // actual velocity (post-hold, if holding) at the end of the last segment

	onBlockStart    func(*planner.Block)
	onBlockComplete func(*planner.Block)
	onHoldComplete  func()
}

// New builds an Executor over the given ring, with stepsPerUnit giving
// each axis's steps-per-mm (or steps-per-degree for ABC).
func New(ring *planner.Ring, constants Constants, stepsPerUnit axis.Vector) *Executor {
	return &Executor{
		ring:         ring,
		constants:    constants,
		stepsPerUnit: stepsPerUnit,
	}
}

// OnBlockStart registers a callback invoked when a new block is promoted
// off the ring and begins running — pkg/motorpower's cue to mark the
// block's axes RUNNING.
func (ex *Executor) OnBlockStart(fn func(*planner.Block)) {
	ex.onBlockStart = fn
}

// OnBlockComplete registers a callback invoked (from EXEC context) when a
// block's last segment has been produced, after the block is marked
// FINAL — the planner's unblock-next hook.
func (ex *Executor) OnBlockComplete(fn func(*planner.Block)) {
	ex.onBlockComplete = fn
}

// OnHoldComplete registers a callback fired once a feed hold has
// actually driven the runtime velocity to zero — pkg/feedhold's signal
// to promote hold_state from SYNC to HOLD.
func (ex *Executor) OnHoldComplete(fn func()) {
	ex.onHoldComplete = fn
}

// RequestHold begins a feed hold: the remaining profile is replaced with
// a decel to zero regardless of which section is active. The decel is
// linear (see applyHold), not jerk-limited. The
// block in progress is retained (not finalized) once velocity reaches
// zero, so RequestResume can continue it.
func (ex *Executor) RequestHold() {
	ex.holding = true
}

// RequestResume ends a feed hold: the next PrepareSegment call re-plans a
// jerk-limited accel from zero back toward the block's original profile,
// covering whatever length of the held block is still unfinished.
func (ex *Executor) RequestResume() {
	ex.holding = false
	ex.resuming = true
}

// Position returns the runtime's current position, used by queue flush to
// resync gm.position.
func (ex *Executor) Position() axis.Vector { return ex.position }

// Idle reports whether the executor currently has no active block.
func (ex *Executor) Idle() bool { return ex.block == nil }

// PrepareSegment produces the next fixed-duration segment, resuming a
// held block, promoting a new block from the ring if none is active, or
// returning (nil, nil) when there is nothing to run (including while
// paused on a held block awaiting resume).
func (ex *Executor) PrepareSegment() (*Segment, error) {
	if ex.resuming {
		if err := ex.resumeHeldBlock(); err != nil {
			return nil, err
		}
	}

	if ex.block == nil {
		if err := ex.promoteNextBlock(); err != nil {
			return nil, err
		}
		if ex.block == nil {
			return nil, nil // idle
		}
	}
	if ex.paused {
		return nil, nil
	}

	return ex.produceSegment()
}

func (ex *Executor) promoteNextBlock() error {
	b := ex.ring.RunNext()
	if b == nil {
		return nil
	}
	res, err := trapezoid.Solve(ex.blockInput(b), ex.constants.Trapezoid)
	if err != nil {
		return errors.TrapezoidDegenerateError(err.Error())
	}
	b.HeadLength, b.BodyLength, b.TailLength = res.Head, res.Body, res.Tail
	b.CruiseVelocity, b.ExitVelocity = res.Cruise, res.Exit

	ex.block = b
	ex.distanceConsumed = 0
	ex.enterSection(firstNonZeroSection(res))
	if ex.onBlockStart != nil {
		ex.onBlockStart(b)
	}
	return nil
}

// resumeHeldBlock re-solves the trapezoid for whatever length of the held
// block is still unfinished, with entry velocity zero, and re-enters its
// first section — the jerk-limited accel back toward the block's original
// cruise/exit velocities that RequestResume promises. If the block had
// already finished when the hold caught up to it, it is finalized instead.
func (ex *Executor) resumeHeldBlock() error {
	ex.resuming = false
	ex.paused = false
	b := ex.block
	if b == nil {
		return nil
	}

	remaining := b.Length - ex.distanceConsumed
	if remaining <= 0 {
		ex.finalizeBlock(&Segment{})
		return nil
	}

	res, err := trapezoid.Solve(trapezoid.Input{
		Length:     remaining,
		Entry:      0,
		Cruise:     b.CruiseVelocity,
		Exit:       b.ExitVelocity,
		CruiseVmax: b.CruiseVmax,
		DeltaVmax:  b.DeltaVmax,
		Jerk:       b.Jerk,
		RecipJerk:  b.RecipJerk,
		CbrtJerk:   b.CbrtJerk,
	}, ex.constants.Trapezoid)
	if err != nil {
		return errors.TrapezoidDegenerateError(err.Error())
	}
	b.HeadLength, b.BodyLength, b.TailLength = res.Head, res.Body, res.Tail
	b.EntryVelocity, b.CruiseVelocity, b.ExitVelocity = 0, res.Cruise, res.Exit

	ex.enterSection(firstNonZeroSection(res))
	return nil
}

func (ex *Executor) blockInput(b *planner.Block) trapezoid.Input {
	return trapezoid.Input{
		Length:     b.Length,
		Entry:      b.EntryVelocity,
		Cruise:     b.CruiseVelocity,
		Exit:       b.ExitVelocity,
		CruiseVmax: b.CruiseVmax,
		DeltaVmax:  b.DeltaVmax,
		Jerk:       b.Jerk,
		RecipJerk:  b.RecipJerk,
		CbrtJerk:   b.CbrtJerk,
	}
}

func firstNonZeroSection(res trapezoid.Result) Section {
	switch {
	case res.Head > 0:
		return SectionHead
	case res.Body > 0:
		return SectionBody
	case res.Tail > 0:
		return SectionTail
	default:
		return SectionNone
	}
}

// enterSection sets up runtime state for the given section of the active
// block, computing the section's entry/exit velocity and time duration
// from its length via target_length/target_velocity's inverse.
func (ex *Executor) enterSection(s Section) {
	b := ex.block
	ex.section = s
	ex.sectionElapsed = 0

	var length, v1, v2 float64
	switch s {
	case SectionHead:
		length, v1, v2 = b.HeadLength, b.EntryVelocity, b.CruiseVelocity
	case SectionBody:
		length, v1, v2 = b.BodyLength, b.CruiseVelocity, b.CruiseVelocity
	case SectionTail:
		length, v1, v2 = b.TailLength, b.CruiseVelocity, b.ExitVelocity
	default:
		length, v1, v2 = 0, 0, 0
	}
	ex.sectionEntryV, ex.sectionExitV = v1, v2
	avg := (v1 + v2) / 2
	if avg <= 0 {
		ex.sectionDuration = 0
		return
	}
	ex.sectionDuration = (length / avg) * 60.0 // velocities are mm/min, length mm -> minutes -> seconds
}

// nextSection returns the section after s within the active block, or
// SectionNone once the tail is exhausted.
func nextSection(s Section, b *planner.Block) Section {
	switch s {
	case SectionHead:
		if b.BodyLength > 0 {
			return SectionBody
		}
		fallthrough
	case SectionBody:
		if b.TailLength > 0 {
			return SectionTail
		}
		fallthrough
	default:
		return SectionNone
	}
}

// produceSegment advances time within the active block by one nominal
// segment duration (or less, if the current section ends first),
// integrating the section's velocity ramp to get distance, and converts
// that to signed fractional steps per axis.
func (ex *Executor) produceSegment() (*Segment, error) {
	nominal := ex.constants.Trapezoid.TNom * 60.0 // TNom is minutes, segment timing here is seconds
	remaining := ex.sectionDuration - ex.sectionElapsed
	dt := nominal
	sectionEnds := false
	if ex.sectionDuration == 0 || remaining <= nominal {
		dt = math.Max(remaining, 0)
		sectionEnds = true
	}

	v0 := ex.velocityAt(ex.sectionElapsed)
	v1 := ex.velocityAt(ex.sectionElapsed + dt)
	if ex.holding {
		v0, v1, dt, sectionEnds = ex.applyHold(ex.lastExitV, nominal)
	}

	distance := (v0 + v1) / 2 * dt / 60.0 // mm/min * seconds -> /60 for minutes
	unit := ex.block.Unit
	var steps axis.Vector
	for i := axis.Index(0); i < axis.AXES; i++ {
		steps[i] = distance * unit[i] * ex.stepsPerUnit[i]
		ex.position[i] += distance * unit[i]
	}

	ticks := int(dt * ex.constants.FrequencyDDA)
	seg := &Segment{DurationSeconds: dt, Ticks: ticks, Steps: steps}

	ex.sectionElapsed += dt
	ex.distanceConsumed += distance
	ex.lastExitV = v1
	if sectionEnds {
		ex.advanceSection(seg)
	}
	return seg, nil
}

// velocityAt linearly interpolates the section's entry/exit velocity at
// elapsed seconds t into the section. This approximates the true
// jerk-limited S-curve within a single ~5ms segment by its secant, which
// is accurate enough at segment granularity for the pulse counts it
// feeds; the trapezoid solver, not this interpolation, is what enforces
// the jerk limit at the section-boundary level.
func (ex *Executor) velocityAt(t float64) float64 {
	if ex.sectionDuration <= 0 {
		return ex.sectionEntryV
	}
	frac := t / ex.sectionDuration
	if frac > 1 {
		frac = 1
	}
	return ex.sectionEntryV + (ex.sectionExitV-ex.sectionEntryV)*frac
}

// applyHold overrides the section's natural velocity with a linear decel
// to zero using the block's jerk-derived delta_vmax as the per-second
// rate, starting from v0 (the previous segment's exit velocity) and
// clipped so the segment never runs past zero velocity.
func (ex *Executor) applyHold(v0, dt float64) (newV0, newV1, newDt float64, sectionEnds bool) {
	decelPerSecond := ex.block.DeltaVmax // mm/min change supportable per block; used as a per-second cap here
	if decelPerSecond <= 0 {
		decelPerSecond = v0
	}
	v1 := v0 - decelPerSecond*dt
	if v1 <= 0 {
		if v0 <= 0 {
			return 0, 0, 0, true
		}
		stopDt := v0 / decelPerSecond
		return v0, 0, stopDt, true
	}
	return v0, v1, dt, false
}

// advanceSection moves to the next section, finalizes the block if the
// tail is exhausted, or — if the hold drove velocity to zero first — pauses
// the block in place (retaining it for RequestResume) and signals
// onHoldComplete.
func (ex *Executor) advanceSection(seg *Segment) {
	if ex.holding && ex.lastExitV <= 0 {
		ex.paused = true
		if ex.onHoldComplete != nil {
			ex.onHoldComplete()
		}
		return
	}
	next := nextSection(ex.section, ex.block)
	if next == SectionNone {
		ex.finalizeBlock(seg)
		return
	}
	ex.enterSection(next)
}

func (ex *Executor) finalizeBlock(seg *Segment) {
	seg.BlockComplete = true
	b := ex.block
	ex.ring.Finalize(b)
	ex.block = nil
	ex.section = SectionNone
	ex.distanceConsumed = 0
	if ex.onBlockComplete != nil {
		ex.onBlockComplete(b)
	}
}
