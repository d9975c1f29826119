package metrics

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nogcio/wrkr-go/lib/tagset"
)

func TestRegisterIsIdempotent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.Register("http_reqs", Counter)
	b := r.Register("http_reqs", Counter)
	assert.Equal(t, a, b)
}

func TestRegisterConflictingKindPanics(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register("http_reqs", Counter)
	assert.Panics(t, func() { r.Register("http_reqs", Gauge) })
}

func TestHandleUnknownMetricReturnsNil(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	ts := r.ResolveTags(nil)
	assert.Nil(t, r.Handle(MetricId(42), ts))
}

func TestHandleSharesStoragePerTagSet(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	id := r.Register("http_reqs", Counter)
	ts := r.ResolveTags(map[string]string{"scenario": "default"})

	h1 := r.Handle(id, ts)
	h1.(*CounterSink).Increment(3)

	h2 := r.Handle(id, ts)
	require.Equal(t, h1, h2)
	assert.EqualValues(t, 3, h2.(*CounterSink).Value())
}

func TestHandleKeepsDistinctSeriesSeparate(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	id := r.Register("http_reqs", Counter)
	a := r.ResolveTags(map[string]string{"scenario": "a"})
	b := r.ResolveTags(map[string]string{"scenario": "b"})

	r.Handle(id, a).(*CounterSink).Increment(1)
	r.Handle(id, b).(*CounterSink).Increment(2)

	assert.EqualValues(t, 1, r.Handle(id, a).(*CounterSink).Value())
	assert.EqualValues(t, 2, r.Handle(id, b).(*CounterSink).Value())
}

func TestHandleConcurrentFirstWriteConvergesOnOneSeries(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	id := r.Register("http_reqs", Counter)
	ts := r.ResolveTags(map[string]string{"scenario": "default"})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Handle(id, ts).(*CounterSink).Increment(1)
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 50, r.Handle(id, ts).(*CounterSink).Value())
}

func TestVisitEnumeratesAllSeries(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	id := r.Register("http_reqs", Counter)
	r.Handle(id, r.ResolveTags(map[string]string{"scenario": "a"})).(*CounterSink).Increment(1)
	r.Handle(id, r.ResolveTags(map[string]string{"scenario": "b"})).(*CounterSink).Increment(2)

	var total uint64
	count := 0
	r.Visit(id, func(_ tagset.TagSet, sink Sink) {
		count++
		total += sink.(*CounterSink).Value()
	})
	assert.Equal(t, 2, count)
	assert.EqualValues(t, 3, total)
}
