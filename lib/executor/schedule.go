// Package executor implements the scriptable load-generation engine's
// worker scheduling: ramping target schedules, the constant-VU gate and
// arrival-rate pacer, and the run loop that drives them.
package executor

import (
	"math/big"
	"time"
)

// Stage is one segment of a ramping schedule: over Duration, the target
// linearly interpolates from the previous stage's Target (or the
// schedule's Start, for the first stage) to this stage's Target.
type Stage struct {
	Duration time.Duration
	Target   uint64
}

// StageSnapshot identifies the stage active at some elapsed time, alongside
// its progress.
type StageSnapshot struct {
	Index          int
	Count          int
	StageElapsed   time.Duration
	StageRemaining time.Duration
	StartTarget    uint64
	EndTarget      uint64
	CurrentTarget  uint64
}

// defaultRecheckCap bounds every NextRecheck wait, so a worker whose stage
// math predicts a long sleep still notices a configuration change or a
// premature stop within one bounded interval.
const defaultRecheckCap = 50 * time.Millisecond

// RampingSchedule maps elapsed run time to an integer target, per §3/§4.C:
// start at Start, then ramp linearly through each Stage in order.
type RampingSchedule struct {
	start          uint64
	stages         []Stage
	cumulativeEnds []time.Duration
}

// NewRampingSchedule builds a schedule beginning at start and ramping
// through stages in order.
func NewRampingSchedule(start uint64, stages []Stage) *RampingSchedule {
	ends := make([]time.Duration, len(stages))
	var acc time.Duration
	for i, s := range stages {
		acc = saturatingAddDuration(acc, s.Duration)
		ends[i] = acc
	}
	return &RampingSchedule{start: start, stages: stages, cumulativeEnds: ends}
}

// Stages returns the schedule's stages in order. The caller must not
// mutate the returned slice.
func (s *RampingSchedule) Stages() []Stage { return s.stages }

// TotalDuration is the sum of every stage's duration.
func (s *RampingSchedule) TotalDuration() time.Duration {
	if len(s.cumulativeEnds) == 0 {
		return 0
	}
	return s.cumulativeEnds[len(s.cumulativeEnds)-1]
}

// IsDone reports whether elapsed has reached or passed the schedule's total
// duration.
func (s *RampingSchedule) IsDone(elapsed time.Duration) bool {
	return elapsed >= s.TotalDuration()
}

// stageIndexAt returns the index of the stage containing elapsed, via
// binary search over the cumulative stage end times (the first stage whose
// cumulative end is >= elapsed).
func (s *RampingSchedule) stageIndexAt(elapsed time.Duration) int {
	lo, hi := 0, len(s.cumulativeEnds)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.cumulativeEnds[mid] >= elapsed {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo
}

func (s *RampingSchedule) stageBounds(idx int) (stageStart, stageEnd time.Duration, startTarget, endTarget uint64) {
	stageEnd = s.cumulativeEnds[idx]
	if idx == 0 {
		stageStart = 0
		startTarget = s.start
	} else {
		stageStart = s.cumulativeEnds[idx-1]
		startTarget = s.stages[idx-1].Target
	}
	endTarget = s.stages[idx].Target
	return
}

// TargetAt returns the schedule's target at elapsed, per §3's linear
// interpolation: within the active stage, target(t) = start +
// (end-start)*stage_elapsed/stage_duration, computed in arbitrary-precision
// integer arithmetic so long durations and large target deltas never
// overflow, truncating toward zero and clamped to [0, MaxUint64].
func (s *RampingSchedule) TargetAt(elapsed time.Duration) uint64 {
	if len(s.stages) == 0 || elapsed == 0 {
		return s.start
	}

	total := s.TotalDuration()
	if elapsed >= total {
		return s.stages[len(s.stages)-1].Target
	}

	idx := s.stageIndexAt(elapsed)
	stageStart, stageEnd, startTarget, endTarget := s.stageBounds(idx)
	stageDuration := stageEnd - stageStart
	stageElapsed := elapsed - stageStart

	if stageDuration <= 0 {
		return endTarget
	}

	return interpolate(startTarget, endTarget, stageElapsed, stageDuration)
}

// StageSnapshotAt identifies the stage active at elapsed, or nil if the
// schedule has no stages. For elapsed >= TotalDuration, it returns the last
// stage with StageRemaining == 0.
func (s *RampingSchedule) StageSnapshotAt(elapsed time.Duration) *StageSnapshot {
	if len(s.stages) == 0 {
		return nil
	}

	total := s.TotalDuration()
	clamped := elapsed
	if clamped > total {
		clamped = total
	}

	var idx int
	if clamped >= total {
		idx = len(s.stages) - 1
	} else {
		idx = s.stageIndexAt(clamped)
	}

	stageStart, stageEnd, startTarget, endTarget := s.stageBounds(idx)
	stageDuration := stageEnd - stageStart
	stageElapsed := clamped - stageStart
	stageRemaining := stageDuration - stageElapsed
	if stageRemaining < 0 {
		stageRemaining = 0
	}

	return &StageSnapshot{
		Index:          idx,
		Count:          len(s.stages),
		StageElapsed:   stageElapsed,
		StageRemaining: stageRemaining,
		StartTarget:    startTarget,
		EndTarget:      endTarget,
		CurrentTarget:  s.TargetAt(clamped),
	}
}

// NextRecheck returns when the worker at ordinal vuIndex (1-based within
// its scenario) should re-evaluate whether it is permitted to run, per
// §4.C's contract.
func (s *RampingSchedule) NextRecheck(elapsed time.Duration, vuIndex uint64) time.Duration {
	if len(s.stages) == 0 {
		return defaultRecheckCap
	}

	total := s.TotalDuration()
	if elapsed >= total {
		return 0
	}

	idx := s.stageIndexAt(elapsed)
	stageStart, stageEnd, startTarget, endTarget := s.stageBounds(idx)
	stageDuration := stageEnd - stageStart
	stageElapsed := elapsed - stageStart

	if vuIndex <= s.TargetAt(elapsed) {
		return time.Millisecond
	}

	if endTarget <= startTarget {
		return capDuration(stageEnd-elapsed, defaultRecheckCap)
	}

	delta := big.NewInt(0).Sub(big.NewInt(int64(endTarget)), big.NewInt(int64(startTarget)))
	want := big.NewInt(int64(vuIndex))
	start := big.NewInt(int64(startTarget))
	end := big.NewInt(int64(endTarget))

	if want.Cmp(start) <= 0 {
		return 0
	}
	if want.Cmp(end) > 0 {
		return capDuration(stageEnd-elapsed, defaultRecheckCap)
	}

	stageNs := big.NewInt(int64(stageDuration))
	elapsedNs := big.NewInt(int64(stageElapsed))

	needed := big.NewInt(0).Sub(want, start)
	needed.Mul(needed, stageNs)
	needed.Div(needed, delta)

	wait := big.NewInt(0).Sub(needed, elapsedNs)
	if wait.Sign() < 0 {
		wait.SetInt64(0)
	}

	waitDur := time.Duration(clampToInt64(wait))
	return capDuration(waitDur, defaultRecheckCap)
}

// interpolate computes start + (end-start)*elapsed/total in 128-bit-class
// integer arithmetic (via math/big), truncating toward zero and clamping
// the result to [0, MaxUint64].
func interpolate(start, end uint64, elapsed, total time.Duration) uint64 {
	startI := big.NewInt(0).SetUint64(start)
	endI := big.NewInt(0).SetUint64(end)
	delta := big.NewInt(0).Sub(endI, startI)

	num := big.NewInt(int64(elapsed))
	den := big.NewInt(int64(total))
	if den.Sign() == 0 {
		den.SetInt64(1)
	}

	delta.Mul(delta, num)
	delta.Quo(delta, den) // Quo truncates toward zero, matching Rust's integer division.

	cur := big.NewInt(0).Add(startI, delta)
	return clampToUint64(cur)
}

func clampToUint64(v *big.Int) uint64 {
	if v.Sign() < 0 {
		return 0
	}
	maxU64 := big.NewInt(0).SetUint64(^uint64(0))
	if v.Cmp(maxU64) > 0 {
		return ^uint64(0)
	}
	return v.Uint64()
}

func clampToInt64(v *big.Int) int64 {
	maxI64 := big.NewInt(int64(^uint64(0) >> 1))
	if v.Cmp(maxI64) > 0 {
		return maxI64.Int64()
	}
	if v.Sign() < 0 {
		return 0
	}
	return v.Int64()
}

func capDuration(d, cap time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	if d > cap {
		return cap
	}
	return d
}

func saturatingAddDuration(a, b time.Duration) time.Duration {
	sum := a + b
	if sum < a { // overflowed
		return time.Duration(^uint64(0) >> 1)
	}
	return sum
}
