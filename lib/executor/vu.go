package executor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/nogcio/wrkr-go/metrics"
)

// StartSignal lets every worker block until the scheduler has stamped the
// run's start time, after every worker has cleared the init barrier.
type StartSignal struct {
	started atomic.Bool
	mu      sync.Mutex
	cond    *sync.Cond
}

// NewStartSignal returns an untripped signal.
func NewStartSignal() *StartSignal {
	s := &StartSignal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start trips the signal and wakes every waiter. Idempotent.
func (s *StartSignal) Start() {
	if s.started.CompareAndSwap(false, true) {
		s.mu.Lock()
		s.cond.Broadcast()
		s.mu.Unlock()
	}
}

// Wait blocks until Start has been called.
func (s *StartSignal) Wait() {
	if s.started.Load() {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.started.Load() {
		s.cond.Wait()
	}
}

// VuWork is the executor-specific state a worker drives its loop from. Only
// the pointers belonging to the scenario's Kind are non-nil: Gate for
// constant VUs, Schedule for ramping VUs, RateSchedule and Pacer for
// arrival rate.
type VuWork struct {
	Kind Kind

	Gate *IterationGate // KindConstantVUs

	Schedule *RampingSchedule // KindRampingVUs

	RateSchedule *RampingSchedule // KindRampingArrivalRate
	TimeUnit     time.Duration
	Pacer        *ArrivalPacer
}

// VuContext is everything a single worker needs to run its share of a
// scenario: identity, the work it's driven by, and the shared metrics
// registry every worker writes into.
type VuContext struct {
	VUId        uint64
	ScenarioVU  uint64
	Scenario    string
	Exec        string
	Work        VuWork
	Registry    *metrics.Registry
	StartSignal *StartSignal
}

// vuMetricIds are the per-run iteration/activity metrics, registered once
// and shared by every worker regardless of scenario.
type vuMetricIds struct {
	iterationsTotal     metrics.MetricId
	iterationDurationMs metrics.MetricId
	vuActive            metrics.MetricId
}

func registerVuMetrics(reg *metrics.Registry) vuMetricIds {
	return vuMetricIds{
		iterationsTotal:     reg.Register("iterations_total", metrics.Counter),
		iterationDurationMs: reg.Register("iteration_duration_ms", metrics.Histogram),
		vuActive:            reg.Register("vu_active", metrics.Gauge),
	}
}

// activeVUGuard decrements the vu_active gauge for scenario when released;
// callers obtain one via enterActiveVU before an iteration and release it
// once the iteration returns.
type activeVUGuard struct {
	reg      *metrics.Registry
	ids      vuMetricIds
	scenario string
}

func (ids vuMetricIds) enterActiveVU(reg *metrics.Registry, scenario string) *activeVUGuard {
	tags := reg.ResolveTags(map[string]string{"scenario": scenario})
	reg.Handle(ids.vuActive, tags).(*metrics.GaugeSink).Add(1)
	return &activeVUGuard{reg: reg, ids: ids, scenario: scenario}
}

func (g *activeVUGuard) release() {
	tags := g.reg.ResolveTags(map[string]string{"scenario": g.scenario})
	g.reg.Handle(g.ids.vuActive, tags).(*metrics.GaugeSink).Add(-1)
}

// recordIteration folds one completed iteration into iterations_total and
// iteration_duration_ms, tagged by scenario and outcome.
func (ids vuMetricIds) recordIteration(reg *metrics.Registry, scenario string, duration time.Duration, success bool) {
	status := "ok"
	if !success {
		status = "error"
	}
	tags := reg.ResolveTags(map[string]string{"scenario": scenario, "status": status})
	reg.Handle(ids.iterationsTotal, tags).(*metrics.CounterSink).Increment(1)

	durationMs := float64(duration.Milliseconds())
	if durationMs < 1 {
		durationMs = 1
	}
	reg.Handle(ids.iterationDurationMs, tags).(*metrics.HistogramSink).Observe(durationMs)
}
