package planner

import (
	"math"
	"testing"

	"cncmotion/pkg/axis"
	"cncmotion/pkg/trapezoid"
)

func testPlanner() *Planner {
	return New(trapezoid.DefaultConstants())
}

func TestAlineRejectsZeroLength(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	if _, err := p.Aline(unit, axis.Vector{}, axis.Vector{}, 0, 100, 5e7); err == nil {
		t.Fatal("expected error for zero-length move")
	}
}

func TestAlineRejectsNonPositiveJerk(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	if _, err := p.Aline(unit, axis.Vector{}, axis.Vector{}, 10, 100, 0); err == nil {
		t.Fatal("expected error for non-positive jerk")
	}
}

func TestFirstBlockEntersFromRest(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	b, err := p.Aline(unit, axis.Vector{100, 0, 0, 0, 0, 0}, axis.Vector{}, 100, 50, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	if b.EntryVmax != 0 {
		t.Fatalf("first block EntryVmax = %v, want 0", b.EntryVmax)
	}
	if b.EntryVelocity != 0 {
		t.Fatalf("first block EntryVelocity = %v, want 0", b.EntryVelocity)
	}
}

func TestColinearMovesGetFullJunctionVelocity(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	_, err := p.Aline(unit, axis.Vector{100, 0, 0, 0, 0, 0}, axis.Vector{}, 100, 50, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := p.Aline(unit, axis.Vector{200, 0, 0, 0, 0, 0}, axis.Vector{}, 100, 50, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	if b2.EntryVmax != 50 {
		t.Fatalf("second block EntryVmax = %v, want clamped to cruiseVmax 50", b2.EntryVmax)
	}
}

func TestReversalForcesZeroJunctionVelocity(t *testing.T) {
	p := testPlanner()
	unitFwd := axis.Vector{1, 0, 0, 0, 0, 0}
	unitRev := axis.Vector{-1, 0, 0, 0, 0, 0}
	_, err := p.Aline(unitFwd, axis.Vector{100, 0, 0, 0, 0, 0}, axis.Vector{}, 100, 50, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := p.Aline(unitRev, axis.Vector{0, 0, 0, 0, 0, 0}, axis.Vector{}, 100, 50, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	if b2.EntryVmax != 0 {
		t.Fatalf("reversal EntryVmax = %v, want 0", b2.EntryVmax)
	}
}

func TestBackPlanningKeepsEntryAtOrBelowCruise(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	var blocks []*Block
	for i := 0; i < 5; i++ {
		b, err := p.Aline(unit, axis.Vector{float64(i+1) * 10, 0, 0, 0, 0, 0}, axis.Vector{}, 10, 50, 5e7)
		if err != nil {
			t.Fatal(err)
		}
		blocks = append(blocks, b)
	}
	for i, b := range blocks {
		if b.EntryVelocity > b.CruiseVmax+1e-6 {
			t.Fatalf("block %d EntryVelocity %v exceeds CruiseVmax %v", i, b.EntryVelocity, b.CruiseVmax)
		}
		if b.EntryVelocity < 0 {
			t.Fatalf("block %d EntryVelocity negative: %v", i, b.EntryVelocity)
		}
	}
}

func TestAdjacentExitMatchesNextEntryAfterReplan(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	b1, err := p.Aline(unit, axis.Vector{10, 0, 0, 0, 0, 0}, axis.Vector{}, 10, 50, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := p.Aline(unit, axis.Vector{20, 0, 0, 0, 0, 0}, axis.Vector{}, 10, 50, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(b1.ExitVelocity-b2.EntryVelocity) > 1e-9 {
		t.Fatalf("b1.ExitVelocity=%v, b2.EntryVelocity=%v, want equal", b1.ExitVelocity, b2.EntryVelocity)
	}
}

func TestShortFirstBlockEntersFromRest(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	b, err := p.Aline(unit, axis.Vector{0.01, 0, 0, 0, 0, 0}, axis.Vector{}, 0.01, 5000, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	if b.EntryVelocity != 0 {
		t.Fatalf("first (and only) short block should still enter from rest, got %v", b.EntryVelocity)
	}
	if b.DeltaVmax <= 0 {
		t.Fatalf("DeltaVmax should be positive, got %v", b.DeltaVmax)
	}
}

func TestFlushPlannerResetsQueueAndPrevState(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	if _, err := p.Aline(unit, axis.Vector{10, 0, 0, 0, 0, 0}, axis.Vector{}, 10, 50, 5e7); err != nil {
		t.Fatal(err)
	}
	p.FlushPlanner()
	if p.hasPrev {
		t.Fatal("expected hasPrev reset after flush")
	}
	b, err := p.Aline(unit, axis.Vector{20, 0, 0, 0, 0, 0}, axis.Vector{}, 10, 50, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	if b.EntryVmax != 0 {
		t.Fatalf("block after flush should enter from rest, got EntryVmax=%v", b.EntryVmax)
	}
}

func TestHoldForcesNextBlockToEnterFromRest(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	if _, err := p.Aline(unit, axis.Vector{10, 0, 0, 0, 0, 0}, axis.Vector{}, 10, 50, 5e7); err != nil {
		t.Fatal(err)
	}
	p.BeginHold()
	b, err := p.Aline(unit, axis.Vector{20, 0, 0, 0, 0, 0}, axis.Vector{}, 10, 50, 5e7)
	if err != nil {
		t.Fatal(err)
	}
	if b.EntryVmax != 0 {
		t.Fatalf("block queued during hold should enter from rest, got EntryVmax=%v", b.EntryVmax)
	}
	p.EndHold()
}

func TestQueueCommandAndDwellDoNotConsumeMotionFields(t *testing.T) {
	p := testPlanner()
	called := false
	fn := func(id uint8, arg0, arg1 float32) { called = true }
	cb, err := p.QueueCommand(fn, 7, 1.5, 2.5)
	if err != nil {
		t.Fatal(err)
	}
	if cb.MoveType != MoveCommand || cb.CmdID != 7 {
		t.Fatalf("unexpected command block: %+v", cb)
	}
	cb.Cmd(cb.CmdID, cb.CmdArg0, cb.CmdArg1)
	if !called {
		t.Fatal("expected command callback to run")
	}

	db, err := p.Dwell(1.25)
	if err != nil {
		t.Fatal(err)
	}
	if db.MoveType != MoveDwell || db.DwellSeconds != 1.25 {
		t.Fatalf("unexpected dwell block: %+v", db)
	}
}

func TestDwellRejectsNegativeDuration(t *testing.T) {
	p := testPlanner()
	if _, err := p.Dwell(-1); err == nil {
		t.Fatal("expected error for negative dwell")
	}
}

func TestRingAllocateFailsWhenFull(t *testing.T) {
	p := testPlanner()
	unit := axis.Vector{1, 0, 0, 0, 0, 0}
	var lastErr error
	for i := 0; i < RingSize+1; i++ {
		_, err := p.Aline(unit, axis.Vector{float64(i), 0, 0, 0, 0, 0}, axis.Vector{}, 1, 50, 5e7)
		if err != nil {
			lastErr = err
			break
		}
	}
	if lastErr == nil {
		t.Fatal("expected ring to report full before exceeding RingSize live blocks")
	}
}
