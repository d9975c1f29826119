// Package engine turns a run's metrics registry into the two shapes a
// caller actually wants out of it: a 1 Hz LiveMetrics snapshot per scenario
// while the run is in flight, and a final RunSummary once it finishes.
package engine

import (
	"sync"
	"time"

	"github.com/nogcio/wrkr-go/aggregate"
	"github.com/nogcio/wrkr-go/lib/executor"
	"github.com/nogcio/wrkr-go/lib/tagset"
	"github.com/nogcio/wrkr-go/metrics"
)

// LiveMetrics is one scenario's snapshot at a single progress tick: current
// totals, an instantaneous now-rate, and a running average/stdev/max of that
// rate across every tick seen so far this run.
type LiveMetrics struct {
	Scenario string
	Elapsed  time.Duration

	VUsActive int64

	IterationsTotal     uint64
	IterationsPerSecNow float64

	RequestsTotal          uint64
	RequestsPerSecNow      float64
	RequestsPerSecAvg      float64
	RequestsPerSecStdev    float64
	RequestsPerSecMax      float64
	RequestsPerSecStdevPct float64

	BytesReceivedTotal     uint64
	BytesReceivedPerSecNow float64
	BytesSentTotal         uint64
	BytesSentPerSecNow     float64

	ErrorsTotal uint64

	Latency metrics.Summary
}

// scenarioSampler holds the per-scenario state a Sampler needs to turn raw
// counter reads into deltas and running rate statistics across ticks.
type scenarioSampler struct {
	prevAt            time.Time
	prevRequests      aggregate.CounterSnapshot
	prevBytesReceived aggregate.CounterSnapshot
	prevBytesSent     aggregate.CounterSnapshot
	prevIterations    aggregate.CounterSnapshot
	requestsPerSec    aggregate.RunningStats
}

// Sampler adapts a metrics.Registry into executor.ProgressFn-shaped
// LiveMetrics snapshots. One Sampler is built per run and reused across
// every tick of every scenario; it is safe for concurrent use since
// RunScenarios may call its ProgressFn from its own goroutine while other
// code reads the registry concurrently.
type Sampler struct {
	reg    *metrics.Registry
	reqIds metrics.RequestMetricIds

	iterationsTotalID metrics.MetricId
	vuActiveID        metrics.MetricId

	mu        sync.Mutex
	scenarios map[string]*scenarioSampler
}

// NewSampler builds a Sampler over reg, re-registering (idempotently) the
// same iterations_total/vu_active metrics the executor package registers,
// so both packages resolve to the same MetricId without either importing
// the other's unexported registration helpers.
func NewSampler(reg *metrics.Registry, reqIds metrics.RequestMetricIds) *Sampler {
	return &Sampler{
		reg:               reg,
		reqIds:            reqIds,
		iterationsTotalID: reg.Register("iterations_total", metrics.Counter),
		vuActiveID:        reg.Register("vu_active", metrics.Gauge),
		scenarios:         make(map[string]*scenarioSampler),
	}
}

// ProgressFn adapts s into an executor.ProgressFn: every tick is turned into
// a LiveMetrics snapshot and handed to onSample.
func (s *Sampler) ProgressFn(onSample func(LiveMetrics)) executor.ProgressFn {
	return func(update executor.ProgressUpdate) {
		onSample(s.sample(update))
	}
}

func (s *Sampler) sample(update executor.ProgressUpdate) LiveMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.scenarios[update.Scenario]
	if !ok {
		st = &scenarioSampler{}
		s.scenarios[update.Scenario] = st
	}

	now := time.Now()
	dtSecs := 1.0
	if !st.prevAt.IsZero() {
		dtSecs = now.Sub(st.prevAt).Seconds()
	}
	st.prevAt = now

	requests := aggregate.CounterSnapshot{Total: s.reg.Query(s.reqIds.RequestsTotal).WhereEq("scenario", update.Scenario).SumCounter()}
	bytesRecv := aggregate.CounterSnapshot{Total: s.reg.Query(s.reqIds.BytesReceivedTotal).WhereEq("scenario", update.Scenario).SumCounter()}
	bytesSent := aggregate.CounterSnapshot{Total: s.reg.Query(s.reqIds.BytesSentTotal).WhereEq("scenario", update.Scenario).SumCounter()}
	iterations := aggregate.CounterSnapshot{Total: s.reg.Query(s.iterationsTotalID).WhereEq("scenario", update.Scenario).SumCounter()}

	reqPerSecNow := requests.PerSecSince(&st.prevRequests, dtSecs)
	st.requestsPerSec.Push(reqPerSecNow)

	latency, _ := s.reg.Query(s.reqIds.LatencyMs).WhereEq("scenario", update.Scenario).WhereMissing("protocol").MergeHistogram()

	lm := LiveMetrics{
		Scenario: update.Scenario,
		Elapsed:  update.Elapsed,

		VUsActive: s.sumGauge(s.vuActiveID, update.Scenario),

		IterationsTotal:     iterations.Total,
		IterationsPerSecNow: iterations.PerSecSince(&st.prevIterations, dtSecs),

		RequestsTotal:          requests.Total,
		RequestsPerSecNow:      reqPerSecNow,
		RequestsPerSecAvg:      st.requestsPerSec.Mean(),
		RequestsPerSecStdev:    st.requestsPerSec.Stdev(),
		RequestsPerSecMax:      st.requestsPerSec.Max(),
		RequestsPerSecStdevPct: st.requestsPerSec.StdevPct(),

		BytesReceivedTotal:     bytesRecv.Total,
		BytesReceivedPerSecNow: bytesRecv.PerSecSince(&st.prevBytesReceived, dtSecs),
		BytesSentTotal:         bytesSent.Total,
		BytesSentPerSecNow:     bytesSent.PerSecSince(&st.prevBytesSent, dtSecs),

		ErrorsTotal: s.reg.Query(s.reqIds.ErrorsTotal).WhereEq("scenario", update.Scenario).SumCounter(),

		Latency: latency,
	}

	st.prevRequests = requests
	st.prevBytesReceived = bytesRecv
	st.prevBytesSent = bytesSent
	st.prevIterations = iterations

	return lm
}

// sumGauge sums every vuActiveID series tagged exactly {"scenario": scenario}.
// Query has no gauge reducer (only counters, rates, and histograms carry a
// meaningful "sum across series" semantic); vu_active is tagged by scenario
// alone, so an exact TagSet match stands in for a filtered query here.
func (s *Sampler) sumGauge(id metrics.MetricId, scenario string) int64 {
	target := s.reg.ResolveTags(map[string]string{"scenario": scenario})
	var total int64
	s.reg.Visit(id, func(ts tagset.TagSet, sink metrics.Sink) {
		if ts.Hash() != target.Hash() {
			return
		}
		if gs, ok := sink.(*metrics.GaugeSink); ok {
			total += gs.Value()
		}
	})
	return total
}

// ScenarioSummary is one scenario's final aggregate, read once after the run
// has finished.
type ScenarioSummary struct {
	Scenario string

	IterationsTotal    uint64
	RequestsTotal      uint64
	BytesReceivedTotal uint64
	BytesSentTotal     uint64
	ErrorsTotal        uint64

	Latency           metrics.Summary
	IterationDuration metrics.Summary
}

// RunSummary is the final report for a whole run: its wall-clock duration
// and one ScenarioSummary per scenario that ran.
type RunSummary struct {
	Duration  time.Duration
	Scenarios []ScenarioSummary
}

// Summarize reads reg's final state into a RunSummary covering scenarios.
func Summarize(reg *metrics.Registry, reqIds metrics.RequestMetricIds, scenarios []string, duration time.Duration) RunSummary {
	iterationsID := reg.Register("iterations_total", metrics.Counter)
	iterationDurationID := reg.Register("iteration_duration_ms", metrics.Histogram)

	out := RunSummary{Duration: duration, Scenarios: make([]ScenarioSummary, 0, len(scenarios))}
	for _, name := range scenarios {
		latency, _ := reg.Query(reqIds.LatencyMs).WhereEq("scenario", name).WhereMissing("protocol").MergeHistogram()
		iterDuration, _ := reg.Query(iterationDurationID).WhereEq("scenario", name).MergeHistogram()

		out.Scenarios = append(out.Scenarios, ScenarioSummary{
			Scenario: name,

			IterationsTotal:    reg.Query(iterationsID).WhereEq("scenario", name).SumCounter(),
			RequestsTotal:      reg.Query(reqIds.RequestsTotal).WhereEq("scenario", name).SumCounter(),
			BytesReceivedTotal: reg.Query(reqIds.BytesReceivedTotal).WhereEq("scenario", name).SumCounter(),
			BytesSentTotal:     reg.Query(reqIds.BytesSentTotal).WhereEq("scenario", name).SumCounter(),
			ErrorsTotal:        reg.Query(reqIds.ErrorsTotal).WhereEq("scenario", name).SumCounter(),

			Latency:           latency,
			IterationDuration: iterDuration,
		})
	}
	return out
}
