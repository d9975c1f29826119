package metrics

import (
	"github.com/nogcio/wrkr-go/lib/tagset"
)

// predicate is a pure function over a TagSet; missing keys match the
// "missing" filter and fail the "eq"/"has" filters.
type predicate func(ts tagset.TagSet) bool

// Query is a builder-style filter and grouping over one metric's series.
// Build a Query with Registry.Query, narrow it with WhereEq/WhereNotEq/
// WhereHas/WhereMissing/GroupBy, and finish with a terminal reducer.
type Query struct {
	reg     *Registry
	metric  MetricId
	filters []predicate
	groupBy []tagset.KeyId
}

// Query starts a builder-style query over metric's series.
func (r *Registry) Query(metric MetricId) *Query {
	return &Query{reg: r, metric: metric}
}

// WhereEq keeps only series where key resolves to value.
func (q *Query) WhereEq(key, value string) *Query {
	k := q.reg.interner.Intern(key)
	v := q.reg.interner.Intern(value)
	q.filters = append(q.filters, func(ts tagset.TagSet) bool {
		got, ok := ts.Get(k)
		return ok && got == v
	})
	return q
}

// WhereNotEq keeps only series where key is absent, or present with a value
// other than value.
func (q *Query) WhereNotEq(key, value string) *Query {
	k := q.reg.interner.Intern(key)
	v := q.reg.interner.Intern(value)
	q.filters = append(q.filters, func(ts tagset.TagSet) bool {
		got, ok := ts.Get(k)
		return !ok || got != v
	})
	return q
}

// WhereHas keeps only series where key is present, regardless of value.
func (q *Query) WhereHas(key string) *Query {
	k := q.reg.interner.Intern(key)
	q.filters = append(q.filters, func(ts tagset.TagSet) bool {
		return ts.Has(k)
	})
	return q
}

// WhereMissing keeps only series where key is absent.
func (q *Query) WhereMissing(key string) *Query {
	k := q.reg.interner.Intern(key)
	q.filters = append(q.filters, func(ts tagset.TagSet) bool {
		return !ts.Has(k)
	})
	return q
}

// GroupBy reduces matching series by their projection onto keys: every
// series that projects to the same TagSet is merged into one group before
// the terminal reducer runs.
func (q *Query) GroupBy(keys ...string) *Query {
	ids := make([]tagset.KeyId, len(keys))
	for i, k := range keys {
		ids[i] = q.reg.interner.Intern(k)
	}
	q.groupBy = ids
	return q
}

func (q *Query) matches(ts tagset.TagSet) bool {
	for _, f := range q.filters {
		if !f(ts) {
			return false
		}
	}
	return true
}

// groupKey returns the TagSet matching series are merged under: ts projected
// onto GroupBy's keys, or ts itself (ungrouped, one bucket per series) when
// GroupBy was never called.
func (q *Query) groupKey(ts tagset.TagSet) tagset.TagSet {
	if q.groupBy == nil {
		return ts
	}
	return ts.Project(q.groupBy)
}

// GroupResult pairs a reduced value with the grouping TagSet it belongs to.
// Grouped reducers return a slice rather than a map because TagSet is not a
// comparable Go value (it holds a slice internally).
type GroupResult[T any] struct {
	Tags  tagset.TagSet
	Value T
}

// groupAccumulator merges reduced values keyed by a TagSet's Hash, retaining
// one representative TagSet per hash for the final result.
type groupAccumulator[T any] struct {
	tags map[string]tagset.TagSet
	vals map[string]T
}

func newGroupAccumulator[T any]() *groupAccumulator[T] {
	return &groupAccumulator[T]{tags: make(map[string]tagset.TagSet), vals: make(map[string]T)}
}

func (g *groupAccumulator[T]) update(key tagset.TagSet, fn func(cur T) T) {
	h := key.Hash()
	if _, ok := g.tags[h]; !ok {
		g.tags[h] = key
	}
	g.vals[h] = fn(g.vals[h])
}

func (g *groupAccumulator[T]) results() []GroupResult[T] {
	out := make([]GroupResult[T], 0, len(g.tags))
	for h, tags := range g.tags {
		out = append(out, GroupResult[T]{Tags: tags, Value: g.vals[h]})
	}
	return out
}

// SumCounter sums every matching counter series into one u64 total.
func (q *Query) SumCounter() uint64 {
	var total uint64
	q.reg.Visit(q.metric, func(ts tagset.TagSet, sink Sink) {
		if !q.matches(ts) {
			return
		}
		if cs, ok := sink.(*CounterSink); ok {
			total += cs.Value()
		}
	})
	return total
}

// SumCounterGrouped sums matching counter series into one total per group.
func (q *Query) SumCounterGrouped() []GroupResult[uint64] {
	acc := newGroupAccumulator[uint64]()
	q.reg.Visit(q.metric, func(ts tagset.TagSet, sink Sink) {
		if !q.matches(ts) {
			return
		}
		cs, ok := sink.(*CounterSink)
		if !ok {
			return
		}
		acc.update(q.groupKey(ts), func(cur uint64) uint64 { return cur + cs.Value() })
	})
	return acc.results()
}

// RateResult is the summed outcome of a FoldRate query.
type RateResult struct {
	Hits  int64
	Total int64
}

// Rate returns Hits/Total, or 0 when Total is 0.
func (r RateResult) Rate() float64 {
	if r.Total == 0 {
		return 0
	}
	return float64(r.Hits) / float64(r.Total)
}

// FoldRate sums every matching rate series' hits and total.
func (q *Query) FoldRate() RateResult {
	var out RateResult
	q.reg.Visit(q.metric, func(ts tagset.TagSet, sink Sink) {
		if !q.matches(ts) {
			return
		}
		rs, ok := sink.(*RateSink)
		if !ok {
			return
		}
		hits, total := rs.Values()
		out.Hits += hits
		out.Total += total
	})
	return out
}

// MergeHistogram additively merges every matching histogram series and
// returns their combined summary. It returns (Summary{}, false) if no
// series matched, mirroring the spec's "None if no series matched".
func (q *Query) MergeHistogram() (Summary, bool) {
	merged := NewHistogramSink()
	matched := false
	q.reg.Visit(q.metric, func(ts tagset.TagSet, sink Sink) {
		if !q.matches(ts) {
			return
		}
		hs, ok := sink.(*HistogramSink)
		if !ok {
			return
		}
		hs.mergeInto(merged.hist)
		matched = true
	})
	if !matched {
		return Summary{}, false
	}
	return merged.Summary(), true
}

// MergeHistogramGrouped additively merges matching histogram series within
// each GroupBy bucket, returning one summary per bucket.
func (q *Query) MergeHistogramGrouped() []GroupResult[Summary] {
	byHash := make(map[string]*HistogramSink)
	tagsByHash := make(map[string]tagset.TagSet)
	q.reg.Visit(q.metric, func(ts tagset.TagSet, sink Sink) {
		if !q.matches(ts) {
			return
		}
		hs, ok := sink.(*HistogramSink)
		if !ok {
			return
		}
		key := q.groupKey(ts)
		h := key.Hash()
		dst, ok := byHash[h]
		if !ok {
			dst = NewHistogramSink()
			byHash[h] = dst
			tagsByHash[h] = key
		}
		hs.mergeInto(dst.hist)
	})
	out := make([]GroupResult[Summary], 0, len(byHash))
	for h, dst := range byHash {
		out = append(out, GroupResult[Summary]{Tags: tagsByHash[h], Value: dst.Summary()})
	}
	return out
}
