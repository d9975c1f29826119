package metrics

import (
	"fmt"
	"sync"

	"github.com/nogcio/wrkr-go/lib/tagset"
)

// MetricId is the dense index a Registry assigns a metric on first
// registration.
type MetricId int

// Registry holds every registered Metric and, for each, a get-or-create map
// from TagSet to that metric's per-series storage. The top-level structure
// is "metric -> map(TagSet -> Sink)"; reads and writes to the inner map are
// concurrent, and insertion always uses get-or-create so a racing pair of
// first writers to a brand-new series converge on one Sink.
type Registry struct {
	interner *tagset.Interner

	mu      sync.RWMutex
	byName  map[string]MetricId
	metrics []*registeredMetric
}

type registeredMetric struct {
	metric *Metric

	series sync.Map // tagset.TagSet.Hash() -> *seriesEntry
}

// seriesEntry pairs a series' TagSet with its Sink. TagSet.Hash() is the
// sync.Map key rather than the TagSet itself: a TagSet holds a slice
// internally and so is not a comparable Go value, even though it is
// logically a value type.
type seriesEntry struct {
	tags tagset.TagSet
	sink Sink
}

// NewRegistry returns an empty Registry backed by a fresh interner.
func NewRegistry() *Registry {
	return &Registry{
		interner: tagset.NewInterner(),
		byName:   make(map[string]MetricId),
	}
}

// Register idempotently associates name with kind and returns its MetricId.
// A second registration of the same name with a different kind is a fatal
// configuration error, since no sink type could serve both.
func (r *Registry) Register(name string, kind MetricType) MetricId {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byName[name]; ok {
		existing := r.metrics[id]
		if existing.metric.Type != kind {
			panic(fmt.Sprintf("metrics: %q already registered as %s, cannot re-register as %s",
				name, existing.metric.Type, kind))
		}
		return id
	}

	id := MetricId(len(r.metrics))
	m := newMetric(name, kind)
	m.ID = int(id)
	r.byName[name] = id
	r.metrics = append(r.metrics, &registeredMetric{metric: m})
	return id
}

// ResolveTags interns every key/value in kv and returns the resulting sorted
// TagSet, usable as the second argument to Handle.
func (r *Registry) ResolveTags(kv map[string]string) tagset.TagSet {
	return tagset.ResolveTags(r.interner, kv)
}

// metricByID looks up a registered metric under the read lock, so it never
// races with a concurrent Register appending to the metrics slice. It
// returns nil for an id outside the registered range.
func (r *Registry) metricByID(id MetricId) *registeredMetric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) < 0 || int(id) >= len(r.metrics) {
		return nil
	}
	return r.metrics[id]
}

// Handle returns the typed writer for metric's series identified by ts,
// lazily constructing that series' storage on first use. It returns nil
// only if metric is unknown to this Registry.
func (r *Registry) Handle(metric MetricId, ts tagset.TagSet) Sink {
	rm := r.metricByID(metric)
	if rm == nil {
		return nil
	}
	key := ts.Hash()
	if entry, ok := rm.series.Load(key); ok {
		return entry.(*seriesEntry).sink
	}
	entry, _ := rm.series.LoadOrStore(key, &seriesEntry{tags: ts, sink: NewSink(rm.metric.Type)})
	return entry.(*seriesEntry).sink
}

// Metric returns the registered Metric for id, or nil if unknown.
func (r *Registry) Metric(id MetricId) *Metric {
	rm := r.metricByID(id)
	if rm == nil {
		return nil
	}
	return rm.metric
}

// Visit calls fn once per existing series of metric, in no particular
// order. fn must not mutate the TagSet or Sink it is given.
func (r *Registry) Visit(metric MetricId, fn func(ts tagset.TagSet, sink Sink)) {
	rm := r.metricByID(metric)
	if rm == nil {
		return
	}
	rm.series.Range(func(_, value any) bool {
		entry := value.(*seriesEntry)
		fn(entry.tags, entry.sink)
		return true
	})
}
