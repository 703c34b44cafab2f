package pulse

import (
	"testing"

	"cncmotion/pkg/axis"
)

func TestEngineIdleWithoutSegment(t *testing.T) {
	mb := NewMailbox()
	e := NewEngine(mb, DefaultConstants(), nil, nil)
	if !e.Idle() {
		t.Fatal("expected engine idle before any segment is published")
	}
	e.Tick()
	if !e.Idle() {
		t.Fatal("expected engine to remain idle with an empty mailbox")
	}
}

func TestEngineEmitsExpectedStepCount(t *testing.T) {
	mb := NewMailbox()
	steps := axis.Vector{100, 0, 0, 0, 0, 0}
	mb.Publish(&Segment{Ticks: 500, Steps: steps})

	count := 0
	e := NewEngine(mb, DefaultConstants(), func(i axis.Index, positive bool) {
		if i != axis.X || !positive {
			t.Fatalf("unexpected pulse on axis %v positive=%v", i, positive)
		}
		count++
	}, nil)

	for i := 0; i < 500; i++ {
		e.Tick()
	}
	if count != 100 {
		t.Fatalf("emitted %d pulses, want 100", count)
	}
}

func TestEngineNegativeDirection(t *testing.T) {
	mb := NewMailbox()
	mb.Publish(&Segment{Ticks: 200, Steps: axis.Vector{-40, 0, 0, 0, 0, 0}})

	sawNegative := false
	e := NewEngine(mb, DefaultConstants(), func(i axis.Index, positive bool) {
		if !positive {
			sawNegative = true
		}
	}, nil)
	for i := 0; i < 200; i++ {
		e.Tick()
	}
	if !sawNegative {
		t.Fatal("expected at least one negative-direction pulse")
	}
}

func TestSegmentConsumedSignalFiresOnceAtTickBudgetEnd(t *testing.T) {
	mb := NewMailbox()
	mb.Publish(&Segment{Ticks: 10, Steps: axis.Vector{5, 0, 0, 0, 0, 0}})

	fired := 0
	e := NewEngine(mb, DefaultConstants(), nil, func() { fired++ })
	for i := 0; i < 10; i++ {
		e.Tick()
	}
	if fired != 1 {
		t.Fatalf("onSegmentConsumed fired %d times, want 1", fired)
	}
	if !e.Idle() {
		t.Fatal("expected engine idle after its one segment is consumed with nothing queued behind it")
	}
}

func TestBlockCompleteFiresAfterFinalSegment(t *testing.T) {
	mb := NewMailbox()
	mb.Publish(&Segment{Ticks: 5, Steps: axis.Vector{2, 0, 0, 0, 0, 0}, BlockComplete: true})

	called := false
	e := NewEngine(mb, DefaultConstants(), nil, nil)
	e.OnBlockComplete(func() { called = true })
	for i := 0; i < 5; i++ {
		e.Tick()
	}
	if !called {
		t.Fatal("expected OnBlockComplete to fire once the BlockComplete segment's ticks are spent")
	}
}

func TestSegmentLoadIsPhaseContinuousAcrossBoundary(t *testing.T) {
	mb := NewMailbox()
	mb.Publish(&Segment{Ticks: 300, Steps: axis.Vector{30, 0, 0, 0, 0, 0}})

	total := 0
	e := NewEngine(mb, DefaultConstants(), func(i axis.Index, positive bool) { total++ }, nil)
	for i := 0; i < 300; i++ {
		e.Tick()
	}
	// No second segment published: accumulator remainder carries, but the
	// engine goes idle rather than inventing steps from nothing.
	if total != 30 {
		t.Fatalf("first segment emitted %d pulses, want 30", total)
	}

	mb.Publish(&Segment{Ticks: 300, Steps: axis.Vector{30, 0, 0, 0, 0, 0}})
	for i := 0; i < 300; i++ {
		e.Tick()
	}
	if total != 60 {
		t.Fatalf("after second identical segment, total = %d, want 60", total)
	}
}

func TestPublishReportsWhetherEngineWasIdle(t *testing.T) {
	mb := NewMailbox()
	if wasIdle := mb.Publish(&Segment{Ticks: 10, Steps: axis.Vector{1, 0, 0, 0, 0, 0}}); !wasIdle {
		t.Fatal("expected first publish to report the mailbox was idle")
	}
	if wasIdle := mb.Publish(&Segment{Ticks: 10, Steps: axis.Vector{1, 0, 0, 0, 0, 0}}); wasIdle {
		t.Fatal("expected second publish (before any Take) to report not idle")
	}
}

func TestAccumulatorResetsOnLargeIncrementSwing(t *testing.T) {
	mb := NewMailbox()
	// First segment: a tiny step count (small increment).
	mb.Publish(&Segment{Ticks: 500, Steps: axis.Vector{1, 0, 0, 0, 0, 0}})
	e := NewEngine(mb, DefaultConstants(), nil, nil)
	for i := 0; i < 500; i++ {
		e.Tick()
	}
	// Second segment: a huge step count relative to the first (large
	// increment swing) — should reset rather than carry a stale remainder.
	mb.Publish(&Segment{Ticks: 500, Steps: axis.Vector{400, 0, 0, 0, 0, 0}})
	count := 0
	e.onStep = func(i axis.Index, positive bool) { count++ }
	for i := 0; i < 500; i++ {
		e.Tick()
	}
	if count != 400 {
		t.Fatalf("emitted %d pulses after reset, want 400", count)
	}
}
