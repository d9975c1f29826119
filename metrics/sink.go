package metrics

import (
	"math"
	"sync"
	"sync/atomic"

	hdr "github.com/HdrHistogram/hdrhistogram-go"
)

// Sink is per-series storage for one of the four metric kinds. The concrete
// type always matches the owning Metric's Type for the life of the run.
type Sink interface {
	Type() MetricType
}

// NewSink constructs the storage appropriate for mt. It panics for an
// unknown MetricType, since that indicates a caller bug rather than a
// recoverable condition.
func NewSink(mt MetricType) Sink {
	switch mt {
	case Counter:
		return &CounterSink{}
	case Gauge:
		return &GaugeSink{}
	case Rate:
		return &RateSink{}
	case Histogram:
		return NewHistogramSink()
	default:
		panic("metrics: unknown MetricType")
	}
}

// CounterSink is a monotonically increasing unsigned 64-bit total.
type CounterSink struct {
	value atomic.Uint64
}

// Type implements Sink.
func (*CounterSink) Type() MetricType { return Counter }

// Increment adds delta to the counter. A counter value never decreases, so
// Increment is the sink's only mutator.
func (s *CounterSink) Increment(delta uint64) {
	s.value.Add(delta)
}

// Value returns the counter's current total.
func (s *CounterSink) Value() uint64 {
	return s.value.Load()
}

// GaugeSink is a signed 64-bit current value that may be set, added to, or
// subtracted from. Unlike a counter, a gauge may go negative.
type GaugeSink struct {
	value atomic.Int64
}

// Type implements Sink.
func (*GaugeSink) Type() MetricType { return Gauge }

// Set replaces the gauge's current value.
func (s *GaugeSink) Set(v int64) { s.value.Store(v) }

// Add adds delta to the gauge's current value.
func (s *GaugeSink) Add(delta int64) { s.value.Add(delta) }

// Sub subtracts delta from the gauge's current value.
func (s *GaugeSink) Sub(delta int64) { s.value.Add(-delta) }

// Value returns the gauge's current value.
func (s *GaugeSink) Value() int64 { return s.value.Load() }

// RateSink tracks two monotonic counters, hits and total; Trues ≤ Total
// always, and the observed rate is Trues/Total once Total > 0.
type RateSink struct {
	trues atomic.Int64
	total atomic.Int64
}

// Type implements Sink.
func (*RateSink) Type() MetricType { return Rate }

// Add records hits successes out of total new observations.
func (s *RateSink) Add(hits, total int64) {
	s.trues.Add(hits)
	s.total.Add(total)
}

// Values returns the current (trues, total) pair.
func (s *RateSink) Values() (trues, total int64) {
	return s.trues.Load(), s.total.Load()
}

// Rate returns trues/total, or 0 if total is 0.
func (s *RateSink) Rate() float64 {
	trues, total := s.Values()
	if total == 0 {
		return 0
	}
	return float64(trues) / float64(total)
}

// histogramMin, histogramMax and histogramSigFigs are the canonical bounds
// for every Histogram series in this module: milliseconds, covering
// [1, 3_600_000] (one hour), at 3 significant figures of precision. Every
// Histogram registration in the codebase is expected to observe values in
// this unit; mixing units across series of the same metric family is a
// caller bug this sink does not try to detect.
const (
	histogramMin     = 1
	histogramMax     = 60 * 60 * 1000
	histogramSigFigs = 3
)

// HistogramSink is a high-dynamic-range histogram. Writes are serialized
// per series; reads take the same mutex, so a caller always observes a
// self-consistent snapshot of one series (never across series).
type HistogramSink struct {
	mu   sync.Mutex
	hist *hdr.Histogram
}

// NewHistogramSink constructs an empty histogram over the canonical bounds.
func NewHistogramSink() *HistogramSink {
	return &HistogramSink{hist: hdr.New(histogramMin, histogramMax, histogramSigFigs)}
}

// Type implements Sink.
func (*HistogramSink) Type() MetricType { return Histogram }

// Observe records value. Values below the representable domain (zero,
// negative, or under 1) and non-finite values are silently ignored, and
// values above it are clamped to its maximum — this is a deliberate
// choice: user scripts may compute degenerate latencies, and a single bad
// observation should not fail the run.
func (s *HistogramSink) Observe(value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < histogramMin {
		return
	}
	v := int64(value)
	if v > histogramMax {
		v = histogramMax
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.hist.RecordValue(v)
}

// Summary is a point-in-time read of a histogram's distribution.
type Summary struct {
	Count int64
	Min   int64
	Max   int64
	Mean  float64
	P50   float64
	P75   float64
	P90   float64
	P95   float64
	P99   float64
}

// Summary snapshots the histogram's current distribution. The zero Summary
// (Count==0) is returned for an empty histogram.
func (s *HistogramSink) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hist.TotalCount() == 0 {
		return Summary{}
	}
	return Summary{
		Count: s.hist.TotalCount(),
		Min:   s.hist.Min(),
		Max:   s.hist.Max(),
		Mean:  s.hist.Mean(),
		P50:   s.hist.ValueAtQuantile(50),
		P75:   s.hist.ValueAtQuantile(75),
		P90:   s.hist.ValueAtQuantile(90),
		P95:   s.hist.ValueAtQuantile(95),
		P99:   s.hist.ValueAtQuantile(99),
	}
}

// mergeInto additively merges every recorded value of s into the
// destination histogram dst, used by the registry's histogram-merge query.
func (s *HistogramSink) mergeInto(dst *hdr.Histogram) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dst.Merge(s.hist)
}
