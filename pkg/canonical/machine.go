package canonical

import (
	"math"

	"cncmotion/pkg/axis"
	"cncmotion/pkg/errors"
	"cncmotion/pkg/planner"
)

// MachineState is the coarse program-level state.
type MachineState int

const (
	MachineRun MachineState = iota
	MachineProgramStop
	MachineProgramEnd
	MachineAlarm
)

// Machine (CM) is the canonical machine: modal state, configuration, and
// the bridge into the planner. It is the only MAIN-context owner of gm.
type Machine struct {
	gm  *GCodeModel
	cfg *Configuration
	mp  *planner.Planner

	state MachineState

	onStateChange func(MachineState)
}

// New builds a Machine over an already-configured Configuration and a
// planner to enqueue into.
func New(cfg *Configuration, mp *planner.Planner) *Machine {
	return &Machine{
		gm:    NewGCodeModel(),
		cfg:   cfg,
		mp:    mp,
		state: MachineRun,
	}
}

// Model exposes the modal state for read-only status queries.
func (cm *Machine) Model() *GCodeModel { return cm.gm }

// State returns the coarse program-level state.
func (cm *Machine) State() MachineState { return cm.state }

// OnStateChange registers a callback fired whenever machine_state changes,
// the "machine_state change" case of spec.md §6's status-reporter upcall.
func (cm *Machine) OnStateChange(fn func(MachineState)) {
	cm.onStateChange = fn
}

// setState is the single place machine_state is written, so the
// status-reporter upcall fires on every transition regardless of which
// command caused it.
func (cm *Machine) setState(s MachineState) {
	if cm.state == s {
		return
	}
	cm.state = s
	if cm.onStateChange != nil {
		cm.onStateChange(s)
	}
}

// blockJerk implements DESIGN.md decision 6: the combined jerk limit for
// a block is the weakest active axis's jerk_max divided by how much of
// the unit vector that axis carries.
func (cm *Machine) blockJerk(unit axis.Vector) float64 {
	jerk := math.Inf(1)
	for i := axis.Index(0); i < axis.AXES; i++ {
		u := math.Abs(unit[i])
		if u == 0 {
			continue
		}
		axJerk := cm.cfg.Axis[i].JerkMax
		if axJerk <= 0 {
			continue
		}
		lim := axJerk / u
		if lim < jerk {
			jerk = lim
		}
	}
	if math.IsInf(jerk, 1) {
		return 0
	}
	return jerk
}

// enqueueMove is the shared straight_feed/straight_traverse tail: compute
// length/unit/jerk/cruise_vmax, enqueue an aline, and promote
// position only on success (the short-line-interpolation invariant).
func (cm *Machine) enqueueMove(isFeed bool, overrideFactor float64) error {
	gm := cm.gm
	unit, length := axis.Unit3(gm.Target.Sub(gm.Position))
	if length == 0 {
		// Zero-length move: OK without enqueueing, per spec.md §8.
		return nil
	}

	minTime, optimalTime := cm.MoveTimes(isFeed)
	if optimalTime <= 0 {
		return errors.CanonicalFeedError("move has zero optimal time")
	}
	cruiseVmax := (length / optimalTime) * overrideFactor
	if minTime > 0 {
		// A feed override above 100% must never ask an axis to move faster
		// than its own per-axis limit permits.
		if ceiling := length / minTime; cruiseVmax > ceiling {
			cruiseVmax = ceiling
		}
	}

	jerk := cm.blockJerk(unit)
	if jerk <= 0 {
		return errors.CanonicalTargetError("", "no axis in this move has a positive jerk limit")
	}

	workOffset := axis.Vector{}
	for i := axis.Index(0); i < axis.AXES; i++ {
		workOffset[i] = cm.CoordOffset(i)
	}

	if _, err := cm.mp.Aline(unit, gm.Target, workOffset, length, cruiseVmax, jerk); err != nil {
		return err
	}
	gm.Position = gm.Target
	return nil
}

// StraightFeed implements G1: straight_feed(target, flag).
func (cm *Machine) StraightFeed(input axis.Vector, flag [axis.AXES]bool) error {
	defer cm.clearAbsoluteOverride()
	if err := cm.SetTarget(input, flag); err != nil {
		return err
	}
	if cm.gm.FeedRate <= 0 && !cm.gm.InverseFeedRateMode {
		return errors.CanonicalFeedError("feed rate not set")
	}
	cm.gm.MotionMode = MotionFeed
	return cm.enqueueMove(true, cm.feedOverrideFactor())
}

// StraightTraverse implements G0: straight_traverse(target, flag).
func (cm *Machine) StraightTraverse(input axis.Vector, flag [axis.AXES]bool) error {
	defer cm.clearAbsoluteOverride()
	if err := cm.SetTarget(input, flag); err != nil {
		return err
	}
	cm.gm.MotionMode = MotionTraverse
	return cm.enqueueMove(false, cm.traverseOverrideFactor())
}

// ArcFeed implements G2/G3. Arc tessellation is upstream of the core
// (spec.md §9): this just forwards each tessellated chord as a
// StraightFeed call, preserving F/feed-mode state across the whole arc.
func (cm *Machine) ArcFeed(chords []axis.Vector, flag [axis.AXES]bool) error {
	for _, chord := range chords {
		if err := cm.StraightFeed(chord, flag); err != nil {
			return err
		}
	}
	return nil
}

func (cm *Machine) clearAbsoluteOverride() {
	cm.gm.AbsoluteOverride = false
}

// Dwell implements G4.
func (cm *Machine) Dwell(seconds float64) error {
	_, err := cm.mp.Dwell(seconds)
	return err
}

// SelectTool implements T/M6. Deferred to a command block so it runs in
// FIFO order with surrounding motion.
func (cm *Machine) SelectTool(tool int) error {
	_, err := cm.mp.QueueCommand(func(id uint8, arg0, arg1 float32) {
		cm.gm.Tool = int(arg0)
	}, cmdSelectTool, float32(tool), 0)
	return err
}

// SetCoolant implements M7 (mist) / M8 (flood) / M9 (off).
func (cm *Machine) SetCoolant(mist, flood bool) error {
	_, err := cm.mp.QueueCommand(func(id uint8, arg0, arg1 float32) {
		cm.gm.MistCoolant = arg0 != 0
		cm.gm.FloodCoolant = arg1 != 0
	}, cmdCoolant, boolToF32(mist), boolToF32(flood))
	return err
}

// SetSpindle implements M3/M4/M5 plus the S word. cm_exec_spindle_speed
// is treated as a deferred modal write (DESIGN.md decision 3).
func (cm *Machine) SetSpindle(mode SpindleMode, speed float64) error {
	_, err := cm.mp.QueueCommand(func(id uint8, arg0, arg1 float32) {
		cm.gm.SpindleMode = SpindleMode(arg0)
		cm.gm.SpindleSpeed = float64(arg1) * cm.gm.Overrides.SpindleFactor
	}, cmdSpindle, float32(mode), float32(speed))
	return err
}

// SelectCoordinateSystemQueued implements G54-G59 as a planner-queued
// operation, per spec.md §4.1's operation classification.
func (cm *Machine) SelectCoordinateSystemQueued(cs CoordSystem) error {
	_, err := cm.mp.QueueCommand(func(id uint8, arg0, arg1 float32) {
		cm.SelectCoordinateSystem(CoordSystem(arg0))
	}, cmdCoordSystem, float32(cs), 0)
	return err
}

// ProgramStop implements M0/M1/M60: enqueue a command that transitions
// machine_state to PROGRAM_STOP and halts the cycle when it runs.
func (cm *Machine) ProgramStop() error {
	_, err := cm.mp.QueueCommand(func(id uint8, arg0, arg1 float32) {
		cm.setState(MachineProgramStop)
	}, cmdProgramStop, 0, 0)
	return err
}

// ProgramEnd implements M2/M30: program stop plus the NIST 3.6.1 modal
// reset.
func (cm *Machine) ProgramEnd() error {
	_, err := cm.mp.QueueCommand(func(id uint8, arg0, arg1 float32) {
		cm.setState(MachineProgramEnd)
		cm.gm.ResetModal()
	}, cmdProgramEnd, 0, 0)
	return err
}

// SetAlarm forces machine_state to ALARM immediately, bypassing the
// command queue: the runtime alarm broadcast (pkg/alarm) calls this the
// instant a limit switch trips or a firmware-internal invariant breaks,
// regardless of what command is mid-flight.
func (cm *Machine) SetAlarm() {
	cm.setState(MachineAlarm)
}

// ClearAlarm implements the explicit un-ALARM command: valid only from
// MachineAlarm, per spec.md §7's "resetting out of ALARM requires an
// explicit un-ALARM command".
func (cm *Machine) ClearAlarm() error {
	if cm.state != MachineAlarm {
		return errors.CanonicalStateError("not in alarm state")
	}
	cm.setState(MachineRun)
	return nil
}

// CancelSpindle immediately clears spindle state without going through
// the command queue. The alarm broadcast needs this: it cannot wait for
// FIFO ordering behind whatever motion is already queued.
func (cm *Machine) CancelSpindle() {
	cm.gm.SpindleMode = SpindleOff
	cm.gm.SpindleSpeed = 0
}

// SyncPosition resyncs gm.position and gm.target to the runtime's actual
// position, bypassing the command queue. A queue flush (pkg/feedhold)
// calls this after draining the ring: whatever partial block the
// executor had in flight is gone, so MAIN's modal position must catch
// up to wherever motion actually stopped.
func (cm *Machine) SyncPosition(pos axis.Vector) {
	cm.gm.Position = pos
	cm.gm.Target = pos
}

// Resume clears a PROGRAM_STOP state so the next command may run.
// PROGRAM_END requires a fresh Machine (reset at boot), matching NIST's
// treatment of M2/M30 as terminal within a single program.
func (cm *Machine) Resume() {
	if cm.state == MachineProgramStop {
		cm.setState(MachineRun)
	}
}

// GoHome implements G28: a traverse straight to the stored G28 position
// (flag selects which axes participate), which becomes the new target.
// There is no intermediate point.
func (cm *Machine) GoHome(flag [axis.AXES]bool) error {
	target := cm.gm.Target
	for i := axis.Index(0); i < axis.AXES; i++ {
		if flag[i] {
			target[i] = cm.gm.G28Position[i]
		}
	}
	cm.gm.Target = target
	cm.gm.MotionMode = MotionTraverse
	return cm.enqueueMove(false, cm.traverseOverrideFactor())
}

// SetHome implements G28.1: store the current position as the G28
// reference point.
func (cm *Machine) SetHome() {
	cm.gm.G28Position = cm.gm.Position
}

// GoSecondary implements G30, symmetric with GoHome/SetHome for the
// second stored position.
func (cm *Machine) GoSecondary(flag [axis.AXES]bool) error {
	target := cm.gm.Target
	for i := axis.Index(0); i < axis.AXES; i++ {
		if flag[i] {
			target[i] = cm.gm.G30Position[i]
		}
	}
	cm.gm.Target = target
	cm.gm.MotionMode = MotionTraverse
	return cm.enqueueMove(false, cm.traverseOverrideFactor())
}

// SetSecondary implements G30.1.
func (cm *Machine) SetSecondary() {
	cm.gm.G30Position = cm.gm.Position
}

func boolToF32(b bool) float32 {
	if b {
		return 1
	}
	return 0
}

const (
	cmdSelectTool uint8 = iota
	cmdCoolant
	cmdSpindle
	cmdCoordSystem
	cmdProgramStop
	cmdProgramEnd
)
