package engine

import "sync/atomic"

// Sequencer numbers propagation passes. Implemented by Clock and by
// testutil.DeterministicClock.
type Sequencer interface {
	Next() int64
}

// Clock numbers propagation passes within one engine. Outcomes and log
// lines carry the pass number, so passes of a session can be ordered
// without wall-clock time.
type Clock struct {
	seq atomic.Int64
}

// NewClock returns a clock whose first pass is 1.
func NewClock() *Clock {
	return &Clock{}
}

// Next advances the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current is the last number handed out, 0 before the first pass.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
