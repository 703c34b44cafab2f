package planner

import (
	"sync"

	"cncmotion/pkg/errors"
)

// RingSize is the number of blocks in the planner's fixed ring buffer.
// A real firmware port would size this from configured RAM; here it is a
// fixed depth deep enough to back-plan a meaningful look-ahead window.
const RingSize = 48

// Ring is the fixed-size circular buffer of blocks shared between MAIN
// (which allocates and writes new blocks) and EXEC (which consumes them).
// Ownership transfers happen only through Block.state, never through the
// ring's own index fields, so MAIN and EXEC never need to take the same
// lock to touch a block they don't own.
type Ring struct {
	mu sync.Mutex // guards writeIdx/runIdx bookkeeping only, not block payloads

	blocks [RingSize]Block

	writeIdx int // next slot MAIN will try to allocate
	runIdx   int // next slot EXEC will try to run
}

// NewRing builds an empty ring with every block FREE.
func NewRing() *Ring {
	r := &Ring{}
	for i := range r.blocks {
		r.blocks[i].index = i
		r.blocks[i].prev = (i - 1 + RingSize) % RingSize
		r.blocks[i].next = (i + 1) % RingSize
		r.blocks[i].setState(StateFree)
	}
	return r
}

// Allocate claims the next FREE block for writing and returns it. Callers
// on MAIN must finish populating the block and call Commit before any
// other Allocate call is made, since the ring only tracks one write
// cursor.
func (r *Ring) Allocate() (*Block, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := &r.blocks[r.writeIdx]
	if b.State() != StateFree {
		return nil, errors.PlannerFullError()
	}
	b.reset()
	b.setState(StateWrite)
	return b, nil
}

// Commit publishes a WRITE block as QUEUED, making it visible to the
// back-planner and, once planning settles, to EXEC. Advances the write
// cursor.
func (r *Ring) Commit(b *Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.setState(StateQueued)
	r.writeIdx = b.next
}

// Abort returns a WRITE block to FREE without publishing it, e.g. when a
// zero-length move is discarded before it ever entered the queue.
func (r *Ring) Abort(b *Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.setState(StateFree)
}

// Newest returns the most recently committed block (QUEUED or RUN), or nil
// if the ring is empty. Used by the back-planner to find the tail of the
// chain it should walk backwards from.
func (r *Ring) Newest() *Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx := r.blocks[r.writeIdx].prev
	b := &r.blocks[idx]
	if b.State() == StateFree {
		return nil
	}
	return b
}

// Prev returns the block immediately before b in ring order, or nil if that
// slot is FREE (meaning b is the oldest live block).
func (r *Ring) Prev(b *Block) *Block {
	p := &r.blocks[b.prev]
	if p.State() == StateFree {
		return nil
	}
	return p
}

// Next returns the block immediately after b in ring order, or nil if b is
// the newest live block.
func (r *Ring) Next(b *Block) *Block {
	if b.index == r.blocks[r.writeIdx].prev {
		return nil
	}
	return &r.blocks[b.next]
}

// RunNext returns the oldest QUEUED block and transitions it to RUN, or nil
// if nothing is ready. Called from EXEC only.
func (r *Ring) RunNext() *Block {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := &r.blocks[r.runIdx]
	if b.State() != StateQueued {
		return nil
	}
	b.setState(StateRun)
	return b
}

// Finalize marks a RUN block FINAL, meaning the executor has consumed it
// but MAIN has not yet observed completion (e.g. for status reporting).
func (r *Ring) Finalize(b *Block) {
	b.setState(StateFinal)
}

// Release returns a FINAL block to FREE and advances the run cursor. Safe
// to call from either context since it only runs after EXEC is done with
// the block.
func (r *Ring) Release(b *Block) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b.setState(StateFree)
	r.runIdx = b.next
}

// Flush forcibly returns every non-FREE, non-RUN block to FREE. Used when a
// queue flush is requested during a feed hold: the block currently RUN
// under the executor is left alone (it decelerates to a stop under
// executor control), everything queued behind it is discarded.
func (r *Ring) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.blocks {
		b := &r.blocks[i]
		if b.State() == StateQueued || b.State() == StateFinal {
			b.setState(StateFree)
		}
	}
	r.writeIdx = r.runIdx
}
