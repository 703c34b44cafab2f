package motion

import (
	"testing"

	"cncmotion/pkg/axis"
	"cncmotion/pkg/canonical"
	"cncmotion/pkg/feedhold"
)

type fakeHardware struct {
	steps     map[axis.Index]int
	direction map[axis.Index]bool
	enabled   map[axis.Index]bool
}

func newFakeHardware() *fakeHardware {
	return &fakeHardware{
		steps:     make(map[axis.Index]int),
		direction: make(map[axis.Index]bool),
		enabled:   make(map[axis.Index]bool),
	}
}

func (f *fakeHardware) StepPulse(motor axis.Index)              { f.steps[motor]++ }
func (f *fakeHardware) SetDirection(motor axis.Index, positive bool) { f.direction[motor] = positive }
func (f *fakeHardware) SetEnable(motor axis.Index, on bool)      { f.enabled[motor] = on }

func testConfig() *canonical.Configuration {
	cfg := canonical.NewConfiguration()
	cfg.Axis[axis.X].StepsPerUnit = 80
	cfg.Axis[axis.X].FeedrateMax = 1000
	cfg.Axis[axis.X].VelocityMax = 1000
	cfg.Axis[axis.X].JerkMax = 5e7
	cfg.Motor[axis.X] = canonical.MotorConfig{PowerMode: "energized-during-cycle", IdleTimeout: 1}
	return cfg
}

func runUntilIdle(t *testing.T, rt *Runtime, maxTicks int) {
	for i := 0; i < maxTicks; i++ {
		rt.Tick()
		if rt.exec.Idle() && rt.mailbox.Idle() && rt.engine.Idle() {
			return
		}
	}
	t.Fatal("runtime never went idle")
}

func TestStraightFeedDrivesStepPulses(t *testing.T) {
	cfg := testConfig()
	hw := newFakeHardware()
	rt := New(cfg, hw, nil, DefaultConstants())
	rt.Model().FeedRate = 600

	var flag [axis.AXES]bool
	flag[axis.X] = true
	target := axis.Vector{}
	target[axis.X] = 20

	if err := rt.StraightFeed(target, flag); err != nil {
		t.Fatal(err)
	}

	runUntilIdle(t, rt, 1_000_000)

	want := int(20 * cfg.Axis[axis.X].StepsPerUnit)
	got := hw.steps[axis.X]
	if diff := got - want; diff > 2 || diff < -2 {
		t.Fatalf("steps on X = %d, want ~%d", got, want)
	}
	if !hw.direction[axis.X] {
		t.Fatal("expected positive direction on X")
	}
}

func TestStraightFeedRejectedWithoutFeedRate(t *testing.T) {
	cfg := testConfig()
	rt := New(cfg, nil, nil, DefaultConstants())

	var flag [axis.AXES]bool
	flag[axis.X] = true
	target := axis.Vector{}
	target[axis.X] = 10

	if err := rt.StraightFeed(target, flag); err == nil {
		t.Fatal("expected error: no feed rate set")
	}
}

func TestReporterSeesBlockAndMachineStateEvents(t *testing.T) {
	cfg := testConfig()
	var events []Event
	rt := New(cfg, nil, func(e Event) { events = append(events, e) }, DefaultConstants())

	var flag [axis.AXES]bool
	flag[axis.X] = true
	rt.Model().FeedRate = 600
	target := axis.Vector{}
	target[axis.X] = 20
	if err := rt.StraightFeed(target, flag); err != nil {
		t.Fatal(err)
	}

	runUntilIdle(t, rt, 1_000_000)

	var sawStart, sawEnd bool
	for _, e := range events {
		if e.Kind == EventBlockStart {
			sawStart = true
		}
		if e.Kind == EventBlockEnd {
			sawEnd = true
		}
	}
	if !sawStart || !sawEnd {
		t.Fatalf("events = %+v, want both block_start and block_end", events)
	}
}

func TestLimitSwitchTriggersAlarmAndDisablesMotors(t *testing.T) {
	cfg := testConfig()
	hw := newFakeHardware()
	rt := New(cfg, hw, nil, DefaultConstants())
	rt.RegisterLimitSwitch(axis.X, 0)
	rt.Model().FeedRate = 600

	var flag [axis.AXES]bool
	flag[axis.X] = true
	target := axis.Vector{}
	target[axis.X] = 20
	if err := rt.StraightFeed(target, flag); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		rt.Tick()
	}
	if !hw.enabled[axis.X] {
		t.Fatal("expected motor enabled once the block started running")
	}

	if err := rt.HandleLimitSwitch(axis.X, true); err != nil {
		t.Fatal(err)
	}
	if rt.MachineState() != canonical.MachineAlarm {
		t.Fatalf("machine state = %v, want ALARM", rt.MachineState())
	}
	if hw.enabled[axis.X] {
		t.Fatal("expected motor disabled after alarm trip")
	}
}

func TestClearAlarmRequiresPriorTrigger(t *testing.T) {
	cfg := testConfig()
	rt := New(cfg, nil, nil, DefaultConstants())

	if err := rt.ClearAlarm(); err == nil {
		t.Fatal("expected error clearing an alarm that was never tripped")
	}
}

func TestClearAlarmAfterTripReturnsToRun(t *testing.T) {
	cfg := testConfig()
	rt := New(cfg, nil, nil, DefaultConstants())
	rt.RegisterLimitSwitch(axis.Y, 0)

	if err := rt.HandleLimitSwitch(axis.Y, true); err != nil {
		t.Fatal(err)
	}
	if err := rt.ClearAlarm(); err != nil {
		t.Fatal(err)
	}
	if rt.MachineState() != canonical.MachineRun {
		t.Fatalf("machine state = %v, want RUN", rt.MachineState())
	}
}

func TestFeedholdThenQueueFlushResyncsPosition(t *testing.T) {
	cfg := testConfig()
	rt := New(cfg, nil, nil, DefaultConstants())
	rt.Model().FeedRate = 600

	var flag [axis.AXES]bool
	flag[axis.X] = true
	target := axis.Vector{}
	target[axis.X] = 40
	if err := rt.StraightFeed(target, flag); err != nil {
		t.Fatal(err)
	}

	// Advance a few ticks, then request a feed hold.
	for i := 0; i < 10; i++ {
		rt.Tick()
	}
	rt.RequestFeedhold()

	// Drive ticks until the hold actually completes (EXEC reports zero
	// velocity and promotes SYNC->HOLD).
	for i := 0; i < 1_000_000 && rt.hold.HoldState() != feedhold.HoldHold; i++ {
		rt.Tick()
	}

	if err := rt.RequestQueueFlush(); err != nil {
		t.Fatal(err)
	}

	pos := rt.Model().Position[axis.X]
	if pos <= 0 || pos >= 40 {
		t.Fatalf("position after flush = %v, want strictly between 0 and 40 (partial move)", pos)
	}
}
