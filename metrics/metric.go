package metrics

import (
	"fmt"
	"strconv"
	"strings"
)

// MetricType is the kind of storage a metric's series use. Registration is
// idempotent per (name, kind); registering the same name with two different
// kinds is a configuration error.
type MetricType int

const (
	// Counter is a monotonically increasing unsigned total.
	Counter MetricType = iota
	// Gauge is a signed current value that may be set, added to, or
	// subtracted from.
	Gauge
	// Rate tracks hits against a total, exposing hits/total once total>0.
	Rate
	// Histogram records a high-dynamic-range distribution of positive
	// integer observations, canonically milliseconds in [1, 3_600_000].
	Histogram
)

func (mt MetricType) String() string {
	switch mt {
	case Counter:
		return "Counter"
	case Gauge:
		return "Gauge"
	case Rate:
		return "Rate"
	case Histogram:
		return "Histogram"
	default:
		return fmt.Sprintf("MetricType(%d)", int(mt))
	}
}

// Metric is a named, typed metric. Name and Type are set once at
// registration; ID is the dense index assigned by the Registry. Sink is an
// empty sink of the metric's type created alongside it; the Registry does
// not read or write it, and every series, the untagged one included, lives
// in the Registry's per-series map.
type Metric struct {
	Name string
	Type MetricType
	ID   int

	Sink Sink
}

func newMetric(name string, mt MetricType) *Metric {
	return &Metric{
		Name: name,
		Type: mt,
		Sink: NewSink(mt),
	}
}

// submetricTags holds the plain map[string]string tags parsed out of a
// submetric specification such as "group:login,status:200". It is distinct
// from the interned lib/tagset.TagSet the Registry indexes series by: a
// submetric is defined once, at script-load time, from literal strings, and
// never needs interning or projection.
type submetricTags struct {
	tags map[string]string
}

// Submetric is a named view over a Metric, restricted to series whose tags
// match Tags.
type Submetric struct {
	Name   string
	Metric *Metric
	Tags   submetricTags
}

// AddSubmetric parses raw (e.g. `a:1,b:2`) into a tag filter and returns the
// corresponding Submetric of m. Keys may be quoted with `'` or `"`, and
// values after a `:` are optional (meaning "key present, any value" is not
// distinguished here — an empty value is recorded, matching the literal
// parse). raw must contain at least one non-whitespace character.
func (m *Metric) AddSubmetric(raw string) (*Submetric, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("submetric criteria for metric %q cannot be empty", m.Name)
	}

	tags := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, ":")
		key = unquoteTagToken(strings.TrimSpace(key))
		value = unquoteTagToken(strings.TrimSpace(value))
		tags[key] = value
	}
	if len(tags) == 0 {
		return nil, fmt.Errorf("submetric criteria for metric %q cannot be empty", m.Name)
	}

	return &Submetric{
		Name:   fmt.Sprintf("%s%s", m.Name, raw),
		Metric: m,
		Tags:   submetricTags{tags: tags},
	}, nil
}

// unquoteTagToken strips a single layer of matching '...' or "..." quotes.
func unquoteTagToken(s string) string {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return s[1 : len(s)-1]
		}
	}
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	return s
}
