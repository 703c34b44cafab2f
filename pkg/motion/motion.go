// Package motion is the composition root: it wires the canonical machine,
// planner, executor, DDA pulse engine, motor power state machine, feed
// hold orchestrator, alarm broadcast, and limit switches into one running
// pipeline, exposing spec.md §6's External Interfaces as a single Go API.
// It is grounded on the teacher's hosth4 runtime struct (a flat field-per-
// subsystem composition with one constructor that wires collaborators
// together), scoped down from the teacher's chelper/MCU-transport
// concerns to this core's trapezoid/DDA pipeline.
package motion

import (
	"context"
	"time"

	"cncmotion/pkg/alarm"
	"cncmotion/pkg/axis"
	"cncmotion/pkg/canonical"
	"cncmotion/pkg/executor"
	"cncmotion/pkg/feedhold"
	"cncmotion/pkg/limitswitch"
	"cncmotion/pkg/log"
	"cncmotion/pkg/motorpower"
	"cncmotion/pkg/planner"
	"cncmotion/pkg/pulse"
)

// HardwareLayer is the abstract per-motor hardware surface spec.md §6
// asks the core to drive: step_pulse/set_direction/set_enable. Polarity
// and microsteps-per-step live in cncmotion/pkg/canonical.MotorConfig and
// are folded in by whatever implements this interface, not by the core.
type HardwareLayer interface {
	StepPulse(motor axis.Index)
	SetDirection(motor axis.Index, positive bool)
	SetEnable(motor axis.Index, on bool)
}

// EventKind identifies a status-reporter upcall's transition, per
// spec.md §6: "on significant transitions ... the core invokes a
// reporter callback with an event kind and scalar payload".
type EventKind int

const (
	EventMachineState EventKind = iota
	EventBlockStart
	EventBlockEnd
	EventAlarmRaised
	EventAlarmCleared
)

func (k EventKind) String() string {
	switch k {
	case EventMachineState:
		return "machine_state"
	case EventBlockStart:
		return "block_start"
	case EventBlockEnd:
		return "block_end"
	case EventAlarmRaised:
		return "alarm_raised"
	case EventAlarmCleared:
		return "alarm_cleared"
	default:
		return "unknown"
	}
}

// Event is one status-reporter upcall payload. Message formatting is out
// of scope for the core (spec.md §6); Reporter implementations decide how
// to render Kind/Value/Message for whatever transport they front.
type Event struct {
	Kind    EventKind
	Value   float64
	Message string
}

// Reporter receives status-reporter upcalls.
type Reporter func(Event)

// Constants bundles every subsystem's tunables into one configuration
// surface for New.
type Constants struct {
	Executor               executor.Constants
	AccumulatorResetFactor float64
	IdleTick               time.Duration // motor power idle-timer callback period
}

// DefaultConstants mirrors a 100 kHz DDA core with a 1 second idle-timer
// resolution.
func DefaultConstants() Constants {
	return Constants{
		Executor:               executor.DefaultConstants(),
		AccumulatorResetFactor: pulse.DefaultAccumulatorResetFactor,
		IdleTick:               time.Second,
	}
}

// Runtime owns one fully wired motion pipeline: one canonical machine,
// one planner ring, one executor, one DDA engine, one motor power
// manager, one alarm broadcast, one limit switch group, one feed hold
// orchestrator.
type Runtime struct {
	cfg *canonical.Configuration
	mp  *planner.Planner
	cm  *canonical.Machine

	exec *executor.Executor

	mailbox *pulse.Mailbox
	engine  *pulse.Engine

	power *motorpower.Manager
	alarm *alarm.Manager
	limit *limitswitch.Group
	hold  *feedhold.Orchestrator

	hw       HardwareLayer
	reporter Reporter

	motorAxis map[string]axis.Index // motor name -> axis, under the default 1:1 mapping

	log *log.Logger
}

// New wires a full Runtime over cfg, driving hw and emitting upcalls to
// report. Either may be nil (report is then a no-op; hw calls are
// skipped).
func New(cfg *canonical.Configuration, hw HardwareLayer, report Reporter, constants Constants) *Runtime {
	if report == nil {
		report = func(Event) {}
	}

	mp := planner.New(constants.Executor.Trapezoid)
	cm := canonical.New(cfg, mp)

	var stepsPerUnit axis.Vector
	for i := axis.Index(0); i < axis.AXES; i++ {
		stepsPerUnit[i] = cfg.Axis[i].StepsPerUnit
	}
	exec := executor.New(mp.Ring(), constants.Executor, stepsPerUnit)

	mailbox := pulse.NewMailbox()

	power := motorpower.NewManager(constants.IdleTick)
	motorAxis := make(map[string]axis.Index, axis.AXES)
	for i := axis.Index(0); i < axis.AXES; i++ {
		mc := cfg.Motor[i]
		policy := motorpower.Policy(mc.PowerMode)
		if policy == "" {
			policy = motorpower.PolicyIdleWhenStopped
		}
		power.AddMotor(i.String(), policy, mc.IdleTimeout)
		motorAxis[i.String()] = i
	}

	alarmMgr := alarm.New()
	alarmMgr.RegisterMotors(power)
	alarmMgr.RegisterSpindle(cm)

	limit := limitswitch.NewGroup(alarmMgr)
	hold := feedhold.New(mp, exec, cm)

	rt := &Runtime{
		cfg:       cfg,
		mp:        mp,
		cm:        cm,
		exec:      exec,
		mailbox:   mailbox,
		power:     power,
		alarm:     alarmMgr,
		limit:     limit,
		hold:      hold,
		hw:        hw,
		reporter:  report,
		motorAxis: motorAxis,
		log:       log.New("motion"),
	}
	rt.engine = pulse.NewEngine(mailbox, pulse.Constants{
		FrequencyDDA:           constants.Executor.FrequencyDDA,
		AccumulatorResetFactor: constants.AccumulatorResetFactor,
	}, rt.handleStep, rt.produceNext)
	rt.wire()
	return rt
}

// handleStep is the DDA engine's onStep callback: one emitted pulse on
// the given axis, forwarded as the set_direction + step_pulse hardware
// calls spec.md §6 asks for.
func (rt *Runtime) handleStep(i axis.Index, positive bool) {
	if rt.hw == nil {
		return
	}
	rt.hw.SetDirection(i, positive)
	rt.hw.StepPulse(i)
}

// wire connects every cross-package callback: EXEC's onBlockStart/
// onBlockComplete/onHoldComplete into motor power and feed hold, DDA's
// onStep/onSegmentConsumed/onBlockComplete into the hardware layer and
// back into EXEC, the alarm broadcast into machine_state and the motor
// power DisableAll it already registered, and every transition into the
// status reporter.
func (rt *Runtime) wire() {
	rt.exec.OnBlockStart(func(b *planner.Block) {
		rt.power.OnCycleStart(activeMotorNames(b.Unit)...)
		rt.reporter(Event{Kind: EventBlockStart, Value: b.Length})
	})
	rt.exec.OnBlockComplete(func(b *planner.Block) {
		rt.power.OnCycleEnd(activeMotorNames(b.Unit)...)
	})
	rt.exec.OnHoldComplete(rt.hold.HoldCompleted)

	// DDA's own OnBlockComplete fires once the last pulse of a block's
	// final segment has actually been emitted -- the true physical
	// completion, a tick or two later than EXEC's bookkeeping completion
	// above -- so that's what the block_end report is timed against.
	rt.engine.OnBlockComplete(func() {
		rt.reporter(Event{Kind: EventBlockEnd})
	})

	rt.power.OnTransition(func(name string, from, to motorpower.State) {
		if rt.hw == nil {
			return
		}
		if i, ok := rt.motorAxis[name]; ok {
			rt.hw.SetEnable(i, to != motorpower.StateOff)
		}
	})

	rt.cm.OnStateChange(func(s canonical.MachineState) {
		rt.reporter(Event{Kind: EventMachineState, Value: float64(s)})
	})

	rt.alarm.OnAlarm(func(reason alarm.Reason, msg string) {
		rt.cm.SetAlarm()
		rt.hold.ForceAlarm()
		rt.reporter(Event{Kind: EventAlarmRaised, Message: msg})
	})
	rt.alarm.OnClear(func() {
		rt.limit.Reset()
		rt.reporter(Event{Kind: EventAlarmCleared})
	})
}

// activeMotorNames returns the axis names with a nonzero component in
// unit, the motors a running block actually drives under this core's
// default one-motor-per-axis mapping (spec.md §6 allows a configurable
// motor->axis mapping; a richer mapping table is a HardwareLayer
// implementation concern, not this core's).
func activeMotorNames(unit axis.Vector) []string {
	var names []string
	for i := axis.Index(0); i < axis.AXES; i++ {
		if unit[i] != 0 {
			names = append(names, i.String())
		}
	}
	return names
}

// Run starts the DDA engine's periodic tick loop and the motor power
// idle-timer callback, blocking until ctx is cancelled. Callers driving
// the DDA tick from a real hardware interrupt should call rt.Tick()
// directly instead and skip Run.
func (rt *Runtime) Run(ctx context.Context) {
	rt.power.Start()
	defer rt.power.Stop()
	rt.engine.Run(ctx)
}

// Tick advances the DDA engine by one period; for callers driving it from
// a real periodic interrupt rather than Run's ticker loop.
func (rt *Runtime) Tick() {
	rt.engine.Tick()
}

// produceNext asks EXEC to prepare the next segment and publishes it to
// the mailbox, the "exec request" signal DDA fires once a loaded
// segment's tick budget is exhausted, and the direct poke MAIN performs
// when it enqueues work into an idle pipeline.
func (rt *Runtime) produceNext() {
	seg, err := rt.exec.PrepareSegment()
	if err != nil {
		rt.log.WithError(err).Error("segment preparation failed, raising alarm")
		_ = rt.alarm.TriggerInvariant(err.Error())
		return
	}
	if seg == nil {
		return
	}
	rt.mailbox.Publish(&pulse.Segment{
		Ticks:         seg.Ticks,
		Steps:         seg.Steps,
		BlockComplete: seg.BlockComplete,
	})
}

// pokeIfIdle is called after every MAIN-context enqueue: if the pipeline
// was sitting idle, there is nobody else to prepare the first segment.
func (rt *Runtime) pokeIfIdle() {
	if rt.mailbox.Idle() {
		rt.produceNext()
	}
}

// --- External Interfaces: G-code front end (MAIN-context calls) ---

func (rt *Runtime) StraightFeed(target axis.Vector, flag [axis.AXES]bool) error {
	err := rt.cm.StraightFeed(target, flag)
	rt.pokeIfIdle()
	return err
}

func (rt *Runtime) StraightTraverse(target axis.Vector, flag [axis.AXES]bool) error {
	err := rt.cm.StraightTraverse(target, flag)
	rt.pokeIfIdle()
	return err
}

func (rt *Runtime) ArcFeed(chords []axis.Vector, flag [axis.AXES]bool) error {
	err := rt.cm.ArcFeed(chords, flag)
	rt.pokeIfIdle()
	return err
}

func (rt *Runtime) Dwell(seconds float64) error {
	err := rt.cm.Dwell(seconds)
	rt.pokeIfIdle()
	return err
}

func (rt *Runtime) SelectTool(tool int) error        { return rt.cm.SelectTool(tool) }
func (rt *Runtime) SetCoolant(mist, flood bool) error { return rt.cm.SetCoolant(mist, flood) }
func (rt *Runtime) SetSpindle(mode canonical.SpindleMode, speed float64) error {
	return rt.cm.SetSpindle(mode, speed)
}
func (rt *Runtime) SelectCoordinateSystem(cs canonical.CoordSystem) error {
	return rt.cm.SelectCoordinateSystemQueued(cs)
}
func (rt *Runtime) ProgramStop() error { return rt.cm.ProgramStop() }
func (rt *Runtime) ProgramEnd() error  { return rt.cm.ProgramEnd() }
func (rt *Runtime) Resume()            { rt.cm.Resume() }

func (rt *Runtime) GoHome(flag [axis.AXES]bool) error {
	err := rt.cm.GoHome(flag)
	rt.pokeIfIdle()
	return err
}
func (rt *Runtime) SetHome() { rt.cm.SetHome() }

func (rt *Runtime) GoSecondary(flag [axis.AXES]bool) error {
	err := rt.cm.GoSecondary(flag)
	rt.pokeIfIdle()
	return err
}
func (rt *Runtime) SetSecondary() { rt.cm.SetSecondary() }

// RequestFeedhold implements request_feedhold.
func (rt *Runtime) RequestFeedhold() { rt.hold.RequestFeedhold() }

// RequestCycleStart implements cycle_start.
func (rt *Runtime) RequestCycleStart() { rt.hold.RequestCycleStart() }

// RequestQueueFlush implements queue_flush.
func (rt *Runtime) RequestQueueFlush() error { return rt.hold.RequestQueueFlush() }

// ClearAlarm implements the explicit un-ALARM command required to leave
// ALARM (spec.md §7).
func (rt *Runtime) ClearAlarm() error {
	if err := rt.alarm.Clear(); err != nil {
		return err
	}
	return rt.cm.ClearAlarm()
}

// Model exposes the modal state for read-only status queries.
func (rt *Runtime) Model() *canonical.GCodeModel { return rt.cm.Model() }

// MachineState returns the coarse program-level state.
func (rt *Runtime) MachineState() canonical.MachineState { return rt.cm.State() }

// MotorState returns the named motor's current power state.
func (rt *Runtime) MotorState(name string) motorpower.State { return rt.power.State(name) }

// --- External Interfaces: timer/hardware layer (DDA/limit-switch calls) ---

// HandleLimitSwitch forwards a hardware limit-switch edge for the given
// axis into the debounce-and-alarm path.
func (rt *Runtime) HandleLimitSwitch(i axis.Index, triggered bool) error {
	return rt.limit.HandleTrigger(i, triggered)
}

// RegisterLimitSwitch configures a debounced limit switch for the given
// axis.
func (rt *Runtime) RegisterLimitSwitch(i axis.Index, debounce time.Duration) {
	rt.limit.Register(i, debounce)
}
