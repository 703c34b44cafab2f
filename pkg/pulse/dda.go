package pulse

import (
	"math"

	"cncmotion/pkg/axis"
)

// DDASubsteps is the accumulator overflow threshold: one whole step
// corresponds to this many substep units.
const DDASubsteps = 100_000

// DefaultAccumulatorResetFactor is the default ratio beyond which a
// segment-load resets an axis's accumulator rather than carrying its
// phase remainder forward.
const DefaultAccumulatorResetFactor = 8.0

// Constants bundles the engine's tick rate and reset threshold.
type Constants struct {
	FrequencyDDA          float64 // ticks/second
	AccumulatorResetFactor float64
}

// DefaultConstants mirrors a 100 kHz DDA core.
func DefaultConstants() Constants {
	return Constants{
		FrequencyDDA:           100_000,
		AccumulatorResetFactor: DefaultAccumulatorResetFactor,
	}
}

type axisChannel struct {
	accumulator int64 // substeps, kept in [0, DDASubsteps)
	increment   int64 // substeps added per tick for the current segment
	direction   bool  // true = positive travel
}

// Engine is the DDA pulse generator. A single Engine drives every axis
// from one loaded segment at a time; Tick is called once per DDA period
// and is the only method the periodic interrupt context invokes in
// steady state.
type Engine struct {
	mailbox   *Mailbox
	constants Constants

	axes [axis.AXES]axisChannel

	ticksRemaining  int
	running         bool
	pendingComplete bool

	onStep            func(i axis.Index, positive bool)
	onSegmentConsumed func()
	onBlockComplete   func()
}

// NewEngine builds a DDA engine reading from mailbox. onStep fires once
// per emitted pulse (the step_pulse/set_direction hardware call);
// onSegmentConsumed fires once a loaded segment's tick budget is spent,
// the "exec request" signal that asks EXEC to prepare the next one.
func NewEngine(mailbox *Mailbox, constants Constants, onStep func(axis.Index, bool), onSegmentConsumed func()) *Engine {
	return &Engine{
		mailbox:           mailbox,
		constants:         constants,
		onStep:            onStep,
		onSegmentConsumed: onSegmentConsumed,
	}
}

// OnBlockComplete registers a callback fired once the segment marked
// BlockComplete finishes its last tick.
func (e *Engine) OnBlockComplete(fn func()) {
	e.onBlockComplete = fn
}

// Idle reports whether the engine has no segment loaded right now.
func (e *Engine) Idle() bool {
	return !e.running
}

// Tick advances every axis's accumulator by one DDA period, emitting a
// step wherever an axis's accumulator overflows DDASubsteps, then
// retires and reloads the segment once its tick budget is exhausted.
func (e *Engine) Tick() {
	if !e.running {
		e.loadNext()
		if !e.running {
			return
		}
	}

	for i := axis.Index(0); i < axis.AXES; i++ {
		ch := &e.axes[i]
		if ch.increment == 0 {
			continue
		}
		ch.accumulator += ch.increment
		if ch.accumulator >= DDASubsteps {
			ch.accumulator -= DDASubsteps
			if e.onStep != nil {
				e.onStep(i, ch.direction)
			}
		}
	}

	e.ticksRemaining--
	if e.ticksRemaining > 0 {
		return
	}

	complete := e.pendingComplete
	e.running = false
	if e.onSegmentConsumed != nil {
		e.onSegmentConsumed()
	}
	if complete && e.onBlockComplete != nil {
		e.onBlockComplete()
	}
	e.loadNext()
}

// loadNext atomically swaps in the prep segment, copies direction bits,
// and reloads per-axis step counts. Per spec.md §4.5 the previous
// segment's accumulator remainder is preserved by default so pulses
// stay phase-continuous; an axis whose increment changes by more than
// AccumulatorResetFactor has its accumulator reset instead, to avoid a
// stall from an extreme under- or over-shoot.
func (e *Engine) loadNext() {
	seg := e.mailbox.Take()
	if seg == nil {
		return
	}
	if seg.Ticks <= 0 {
		e.running = false
		return
	}

	for i := axis.Index(0); i < axis.AXES; i++ {
		ch := &e.axes[i]
		mag := int64(math.Round(math.Abs(seg.Steps[i])))
		var newIncrement int64
		if mag > 0 {
			newIncrement = mag * DDASubsteps / int64(seg.Ticks)
		}
		if shouldResetAccumulator(ch.increment, newIncrement, e.constants.AccumulatorResetFactor) {
			ch.accumulator = 0
		}
		ch.increment = newIncrement
		if mag > 0 {
			ch.direction = seg.Steps[i] > 0
		}
	}

	e.ticksRemaining = seg.Ticks
	e.pendingComplete = seg.BlockComplete
	e.running = true
}

// shouldResetAccumulator reports whether the increment swing from old to
// new exceeds factor, in either direction. A transition to or from zero
// always resets, since there is no meaningful phase to preserve across
// a fully-stopped axis.
func shouldResetAccumulator(old, updated int64, factor float64) bool {
	if old == 0 || updated == 0 {
		return old != updated
	}
	ratio := float64(updated) / float64(old)
	if ratio < 1 {
		ratio = 1 / ratio
	}
	return ratio > factor
}
