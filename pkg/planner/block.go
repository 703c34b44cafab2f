package planner

import (
	"sync/atomic"

	"cncmotion/pkg/axis"
)

// BufferState is the ownership discriminator for a ring block. A write to
// this field is the commit fence: writers must publish the rest of the
// block before flipping state, and readers must acquire-load it before
// trusting the rest of the block's fields.
type BufferState int32

const (
	StateFree BufferState = iota
	StateWrite
	StateQueued
	StateRun
	StateFinal
)

func (s BufferState) String() string {
	switch s {
	case StateFree:
		return "free"
	case StateWrite:
		return "write"
	case StateQueued:
		return "queued"
	case StateRun:
		return "run"
	case StateFinal:
		return "final"
	default:
		return "unknown"
	}
}

// MoveType tags what kind of block this is.
type MoveType int

const (
	MoveNull MoveType = iota
	MoveLine
	MoveDwell
	MoveCommand
)

// CommandFunc is invoked by the executor (EXEC context) when a command
// block is run. It carries a tagged id and two scalar args rather than a
// raw function pointer, per the re-architecture note in spec.md §9.
type CommandFunc func(id uint8, arg0, arg1 float32)

// Block is one node of the planner's fixed-size ring.
type Block struct {
	index int

	state atomic.Int32 // BufferState

	MoveType    MoveType
	Replannable bool

	Target     axis.Vector
	Unit       axis.Vector
	WorkOffset axis.Vector
	Length     float64

	EntryVmax  float64
	CruiseVmax float64
	ExitVmax   float64
	DeltaVmax  float64

	EntryVelocity  float64
	CruiseVelocity float64
	ExitVelocity   float64

	HeadLength float64
	BodyLength float64
	TailLength float64

	Jerk      float64
	RecipJerk float64
	CbrtJerk  float64

	MinTime float64

	// Command-block payload.
	CmdID   uint8
	CmdArg0 float32
	CmdArg1 float32
	Cmd     CommandFunc

	// Dwell-block payload.
	DwellSeconds float64

	prev, next int
}

// State returns the block's current ownership state with acquire ordering.
func (b *Block) State() BufferState {
	return BufferState(b.state.Load())
}

// setState performs the release-store that publishes the block to the next
// context.
func (b *Block) setState(s BufferState) {
	b.state.Store(int32(s))
}

// reset clears a block's payload before it is reused. Called only while the
// block is FREE (owned exclusively by the allocator).
func (b *Block) reset() {
	b.MoveType = MoveNull
	b.Replannable = false
	b.Target = axis.Vector{}
	b.Unit = axis.Vector{}
	b.WorkOffset = axis.Vector{}
	b.Length = 0
	b.EntryVmax, b.CruiseVmax, b.ExitVmax, b.DeltaVmax = 0, 0, 0, 0
	b.EntryVelocity, b.CruiseVelocity, b.ExitVelocity = 0, 0, 0
	b.HeadLength, b.BodyLength, b.TailLength = 0, 0, 0
	b.Jerk, b.RecipJerk, b.CbrtJerk = 0, 0, 0
	b.MinTime = 0
	b.CmdID, b.CmdArg0, b.CmdArg1, b.Cmd = 0, 0, 0, nil
	b.DwellSeconds = 0
}
