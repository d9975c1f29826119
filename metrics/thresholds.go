package metrics

import (
	"fmt"

	"github.com/nogcio/wrkr-go/lib/tagset"
)

// ThresholdSet is one metric's collection of pass/fail expressions, scoped
// to series whose tags match Tags (empty Tags matches every series of the
// metric).
type ThresholdSet struct {
	Metric      string
	Tags        map[string]string
	Expressions []string
}

// ThresholdViolation records one expression that did not pass, alongside
// the observed value it was compared against (nil if no matching series
// existed to compute one).
type ThresholdViolation struct {
	Metric     string
	Tags       map[string]string
	Expression string
	Observed   *float64
}

// EvaluateThresholds checks every expression of every set against reg's
// current series and returns the violations, in set-then-expression order.
// A metric name unknown to reg fails every expression of its set with a nil
// Observed value, since there is nothing to compute an aggregate from.
func EvaluateThresholds(reg *Registry, sets []ThresholdSet) ([]ThresholdViolation, error) {
	var out []ThresholdViolation

	for _, set := range sets {
		id, kind, ok := reg.lookupMetric(set.Metric)
		if !ok {
			for _, expr := range set.Expressions {
				out = append(out, ThresholdViolation{
					Metric:     set.Metric,
					Tags:       set.Tags,
					Expression: expr,
					Observed:   nil,
				})
			}
			continue
		}

		selector := newTagSelector(reg, set.Tags)
		anySeries := selector.anySeries(reg, id)

		for _, raw := range set.Expressions {
			parsed, err := parseThresholdExpression(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid threshold expression for metric %q: %w", set.Metric, err)
			}

			var observed *float64
			if anySeries {
				observed = observedValue(reg, id, kind, parsed, selector)
			}

			passed := observed != nil && compareThreshold(*observed, parsed.Operator, parsed.Value)
			if !passed {
				out = append(out, ThresholdViolation{
					Metric:     set.Metric,
					Tags:       set.Tags,
					Expression: raw,
					Observed:   observed,
				})
			}
		}
	}

	return out, nil
}

// lookupMetric returns the id and kind registered under name, if any.
func (r *Registry) lookupMetric(name string) (MetricId, MetricType, bool) {
	r.mu.RLock()
	id, ok := r.byName[name]
	r.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return id, r.metrics[id].metric.Type, true
}

// tagSelector narrows a threshold's scope to series whose tags, projected
// onto the selector's keys, equal the selector's own tags. An empty
// selector (no tags named in the ThresholdSet) matches everything.
type tagSelector struct {
	keys []tagset.KeyId
	want tagset.TagSet
	all  bool
}

func newTagSelector(reg *Registry, tags map[string]string) *tagSelector {
	if len(tags) == 0 {
		return &tagSelector{all: true}
	}
	keys := make([]tagset.KeyId, 0, len(tags))
	for k := range tags {
		keys = append(keys, reg.interner.Intern(k))
	}
	return &tagSelector{keys: keys, want: reg.ResolveTags(tags)}
}

func (s *tagSelector) matches(ts tagset.TagSet) bool {
	if s.all {
		return true
	}
	return ts.Project(s.keys).Equal(s.want)
}

func (s *tagSelector) anySeries(reg *Registry, id MetricId) bool {
	any := false
	reg.Visit(id, func(ts tagset.TagSet, _ Sink) {
		if s.matches(ts) {
			any = true
		}
	})
	return any
}

// observedValue computes the aggregate parsed.AggregationMethod names, over
// the series kind selects. It returns nil whenever the (method, kind)
// combination has no meaning (e.g. "rate" of a Counter), and for a p(N)
// whose N is not one of 50, 75, 90, 95 or 99.
func observedValue(reg *Registry, id MetricId, kind MetricType, parsed *thresholdExpression, selector *tagSelector) *float64 {
	q := reg.Query(id)
	q.filters = append(q.filters, selector.matches)

	f := func(v float64) *float64 { return &v }

	switch parsed.AggregationMethod {
	case tokenCount:
		switch kind {
		case Counter:
			return f(float64(q.SumCounter()))
		case Rate:
			return f(float64(q.FoldRate().Total))
		case Histogram:
			if s, ok := q.MergeHistogram(); ok {
				return f(float64(s.Count))
			}
		}
		return nil

	case tokenRate:
		if kind != Rate {
			return nil
		}
		return f(q.FoldRate().Rate())

	case tokenAvg:
		switch kind {
		case Counter:
			return f(float64(q.SumCounter()))
		case Gauge:
			return f(latestGaugeValue(reg, id, selector))
		case Histogram:
			if s, ok := q.MergeHistogram(); ok {
				return f(s.Mean)
			}
		}
		return nil

	case tokenMin:
		switch kind {
		case Gauge:
			return f(latestGaugeValue(reg, id, selector))
		case Histogram:
			if s, ok := q.MergeHistogram(); ok {
				return f(float64(s.Min))
			}
		}
		return nil

	case tokenMax:
		switch kind {
		case Gauge:
			return f(latestGaugeValue(reg, id, selector))
		case Histogram:
			if s, ok := q.MergeHistogram(); ok {
				return f(float64(s.Max))
			}
		}
		return nil

	case tokenMed:
		if kind != Histogram {
			return nil
		}
		if s, ok := q.MergeHistogram(); ok {
			return f(s.P50)
		}
		return nil

	case tokenValue:
		if kind != Gauge {
			return nil
		}
		return f(latestGaugeValue(reg, id, selector))

	case tokenPercentile:
		if kind != Histogram {
			return nil
		}
		s, ok := q.MergeHistogram()
		if !ok {
			return nil
		}
		switch parsed.MethodValue.Float64 {
		case 50:
			return f(s.P50)
		case 75:
			return f(s.P75)
		case 90:
			return f(s.P90)
		case 95:
			return f(s.P95)
		case 99:
			return f(s.P99)
		default:
			return nil
		}
	}

	return nil
}

// latestGaugeValue returns the value of the last matching gauge series
// Visit iterates to (Visit has no defined order, so with more than one
// matching series this is simply "one of them" — the same pre-existing
// behavior tokenValue always had for a multi-series gauge selector).
func latestGaugeValue(reg *Registry, id MetricId, selector *tagSelector) float64 {
	var latest int64
	reg.Visit(id, func(ts tagset.TagSet, sink Sink) {
		if selector.matches(ts) {
			latest = sink.(*GaugeSink).Value()
		}
	})
	return float64(latest)
}

func compareThreshold(observed float64, op string, expected float64) bool {
	switch op {
	case "<":
		return observed < expected
	case "<=":
		return observed <= expected
	case ">":
		return observed > expected
	case ">=":
		return observed >= expected
	case "==", "===":
		return observed == expected
	case "!=":
		return observed != expected
	default:
		return false
	}
}
