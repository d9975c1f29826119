package executor

import (
	"sync/atomic"
	"time"
)

// IterationGate is the shared stopping condition for a constant-VUs
// scenario: an optional wall-clock deadline and/or an optional iteration
// cap, both shared across every worker so iterations are distributed
// opportunistically rather than by per-worker quota.
type IterationGate struct {
	deadline   atomic.Int64 // UnixNano; 0 means "no deadline"
	iterations uint64       // cap; 0 means "no cap"
	count      atomic.Uint64
}

// NewIterationGate returns a gate capped at iterations total invocations
// (0 means unlimited); the deadline is set separately by StartAt.
func NewIterationGate(iterations uint64) *IterationGate {
	return &IterationGate{iterations: iterations}
}

// StartAt arms the gate's deadline, duration from now, if duration > 0.
func (g *IterationGate) StartAt(now time.Time, duration time.Duration) {
	if duration > 0 {
		g.deadline.Store(now.Add(duration).UnixNano())
	}
}

// Next reports whether another iteration should run. The deadline is
// checked first; then, if no iteration cap is configured, every call
// succeeds; otherwise the shared counter is atomically incremented and the
// call succeeds iff its pre-increment value was below the cap.
func (g *IterationGate) Next(now time.Time) bool {
	if deadline := g.deadline.Load(); deadline != 0 && now.UnixNano() >= deadline {
		return false
	}
	if g.iterations == 0 {
		return true
	}
	prev := g.count.Add(1) - 1
	return prev < g.iterations
}

// Count returns the number of iterations granted so far.
func (g *IterationGate) Count() uint64 {
	return g.count.Load()
}
