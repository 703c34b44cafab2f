package feedhold

import (
	"cncmotion/pkg/axis"
	"testing"
)

type fakePlanner struct {
	holdBegun bool
	holdEnded bool
	flushed   bool
}

func (f *fakePlanner) BeginHold()    { f.holdBegun = true }
func (f *fakePlanner) EndHold()      { f.holdEnded = true }
func (f *fakePlanner) FlushPlanner() { f.flushed = true }

type fakeExecutor struct {
	held     bool
	resumed  bool
	position axis.Vector
}

func (f *fakeExecutor) RequestHold()          { f.held = true }
func (f *fakeExecutor) RequestResume()        { f.resumed = true }
func (f *fakeExecutor) Position() axis.Vector { return f.position }

type fakePositionSync struct {
	synced axis.Vector
	called bool
}

func (f *fakePositionSync) SyncPosition(pos axis.Vector) {
	f.synced = pos
	f.called = true
}

func TestRequestFeedholdEntersSyncAndDecelerates(t *testing.T) {
	p, e, s := &fakePlanner{}, &fakeExecutor{}, &fakePositionSync{}
	o := New(p, e, s)

	o.RequestFeedhold()

	if o.HoldState() != HoldSync {
		t.Fatalf("holdState = %v, want sync", o.HoldState())
	}
	if o.CycleState() != CycleStop {
		t.Fatalf("cycleState = %v, want stop", o.CycleState())
	}
	if !p.holdBegun {
		t.Fatal("expected planner.BeginHold called")
	}
	if !e.held {
		t.Fatal("expected executor.RequestHold called")
	}
}

func TestHoldCompletedPromotesSyncToHold(t *testing.T) {
	p, e, s := &fakePlanner{}, &fakeExecutor{}, &fakePositionSync{}
	o := New(p, e, s)
	o.RequestFeedhold()

	o.HoldCompleted()

	if o.HoldState() != HoldHold {
		t.Fatalf("holdState = %v, want hold", o.HoldState())
	}
}

func TestHoldCompletedIsNoOpWithoutPriorHoldRequest(t *testing.T) {
	p, e, s := &fakePlanner{}, &fakeExecutor{}, &fakePositionSync{}
	o := New(p, e, s)

	o.HoldCompleted()

	if o.HoldState() != HoldOff {
		t.Fatalf("holdState = %v, want off", o.HoldState())
	}
}

func TestCycleStartIgnoredWhileRunning(t *testing.T) {
	p, e, s := &fakePlanner{}, &fakeExecutor{}, &fakePositionSync{}
	o := New(p, e, s)

	o.RequestCycleStart()

	if e.resumed {
		t.Fatal("expected no resume call while never held")
	}
}

func TestCycleStartDeferredDuringSyncThenHonoredOnHoldReached(t *testing.T) {
	p, e, s := &fakePlanner{}, &fakeExecutor{}, &fakePositionSync{}
	o := New(p, e, s)
	o.RequestFeedhold()

	o.RequestCycleStart()
	if e.resumed {
		t.Fatal("cycle start should be deferred while still in sync")
	}

	o.HoldCompleted()
	if !e.resumed {
		t.Fatal("expected deferred cycle start to fire once hold reached")
	}
	if o.HoldState() != HoldOff {
		t.Fatalf("holdState = %v, want off after replayed resume", o.HoldState())
	}
	if o.CycleState() != CycleRun {
		t.Fatalf("cycleState = %v, want run", o.CycleState())
	}
}

func TestCycleStartHonoredImmediatelyFromHold(t *testing.T) {
	p, e, s := &fakePlanner{}, &fakeExecutor{}, &fakePositionSync{}
	o := New(p, e, s)
	o.RequestFeedhold()
	o.HoldCompleted()

	o.RequestCycleStart()

	if !p.holdEnded {
		t.Fatal("expected planner.EndHold called")
	}
	if !e.resumed {
		t.Fatal("expected executor.RequestResume called")
	}
	if o.HoldState() != HoldOff {
		t.Fatalf("holdState = %v, want off", o.HoldState())
	}
}

func TestQueueFlushRejectedBeforeHoldReached(t *testing.T) {
	p, e, s := &fakePlanner{}, &fakeExecutor{}, &fakePositionSync{}
	o := New(p, e, s)
	o.RequestFeedhold()

	if err := o.RequestQueueFlush(); err == nil {
		t.Fatal("expected error flushing before hold state is reached")
	}
	if p.flushed {
		t.Fatal("planner should not have been flushed")
	}
}

func TestQueueFlushDrainsRingAndResyncsPosition(t *testing.T) {
	p, e, s := &fakePlanner{}, &fakeExecutor{position: axis.Vector{0: 12.5, 1: -3}}, &fakePositionSync{}
	o := New(p, e, s)
	o.RequestFeedhold()
	o.HoldCompleted()

	if err := o.RequestQueueFlush(); err != nil {
		t.Fatal(err)
	}
	if !p.flushed {
		t.Fatal("expected planner.FlushPlanner called")
	}
	if !s.called || s.synced != e.position {
		t.Fatalf("synced = %v, want %v", s.synced, e.position)
	}
}

func TestForceAlarmThenQueueFlushIsHonored(t *testing.T) {
	p, e, s := &fakePlanner{}, &fakeExecutor{}, &fakePositionSync{}
	o := New(p, e, s)

	o.ForceAlarm()

	if o.HoldState() != HoldHold {
		t.Fatalf("holdState = %v, want hold", o.HoldState())
	}
	if o.CycleState() != CycleStop {
		t.Fatalf("cycleState = %v, want stop", o.CycleState())
	}
	if err := o.RequestQueueFlush(); err != nil {
		t.Fatalf("expected queue flush to succeed after ForceAlarm, got %v", err)
	}
}
