// Package clock provides a monotonic sequence-number generator shared
// by the engine to stamp mutations for diagnostics (see
// types.SequenceNumber).
package clock

import (
	"sync/atomic"

	"lsmkv/pkg/types"
)

// AtomicClock hands out strictly increasing types.SequenceNumber values
// without locking.
type AtomicClock struct {
	n atomic.Uint64
}

// NewAtomic returns a clock whose next Next() call returns init+1.
func NewAtomic(init types.SequenceNumber) *AtomicClock {
	ac := &AtomicClock{}
	ac.Set(init)
	return ac
}

// Val returns the most recently issued sequence number.
func (ac *AtomicClock) Val() types.SequenceNumber {
	return types.SequenceNumber(ac.n.Load())
}

// Next atomically issues and returns the next sequence number.
func (ac *AtomicClock) Next() types.SequenceNumber {
	return types.SequenceNumber(ac.n.Add(1))
}

// Set forces the clock to a specific value. Used by NewAtomic to seed
// its initial value; WAL replay instead advances the clock one step
// per entry via Next.
func (ac *AtomicClock) Set(t types.SequenceNumber) {
	ac.n.Store(uint64(t))
}
