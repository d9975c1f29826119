package metrics

import (
	"time"

	"github.com/nogcio/wrkr-go/lib/tagset"
)

// Protocol identifies the transport a RequestSample was recorded against.
type Protocol int

const (
	ProtocolHTTP Protocol = iota
	ProtocolGRPC
)

func (p Protocol) String() string {
	switch p {
	case ProtocolHTTP:
		return "http"
	case ProtocolGRPC:
		return "grpc"
	default:
		return "unknown"
	}
}

// RequestSample is one completed transport-level request, ready to be
// folded into the standard request metrics.
type RequestSample struct {
	Scenario      string
	Protocol      Protocol
	OK            bool
	Latency       time.Duration
	BytesReceived uint64
	BytesSent     uint64
	ErrorKind     string // empty when OK or the failure has no named kind
}

// RequestMetricIds names the fixed set of metrics every scenario run
// reports against, registered once up front.
type RequestMetricIds struct {
	RequestsTotal      MetricId
	BytesReceivedTotal MetricId
	BytesSentTotal     MetricId
	ErrorsTotal        MetricId
	ErrorsByKindTotal  MetricId
	// LatencyMs is request latency in milliseconds.
	LatencyMs MetricId
}

// RegisterRequestMetrics registers the standard request metric family
// against reg and returns their ids.
func RegisterRequestMetrics(reg *Registry) RequestMetricIds {
	return RequestMetricIds{
		RequestsTotal:      reg.Register("requests_total", Counter),
		BytesReceivedTotal: reg.Register("bytes_received_total", Counter),
		BytesSentTotal:     reg.Register("bytes_sent_total", Counter),
		ErrorsTotal:        reg.Register("request_errors_total", Counter),
		ErrorsByKindTotal:  reg.Register("request_errors_by_kind_total", Counter),
		LatencyMs:          reg.Register("request_latency_ms", Histogram),
	}
}

// reservedRequestTagKeys are the tag keys RecordRequest derives itself; any
// identically-named key in extraTags is dropped rather than overridden, so
// a script cannot accidentally relabel a request's scenario or protocol.
var reservedRequestTagKeys = map[string]bool{
	"scenario":   true,
	"protocol":   true,
	"error_kind": true,
}

// RecordRequest folds sample into every series of ids it touches: the
// protocol-scoped request/byte counters always, the error counters only on
// failure, and the latency histogram both overall and protocol-scoped.
// extraTags are merged into every series' tags alongside the derived ones.
func (ids RequestMetricIds) RecordRequest(reg *Registry, sample RequestSample, extraTags map[string]string) {
	resolve := func(base map[string]string) tagset.TagSet {
		merged := make(map[string]string, len(base)+len(extraTags))
		for k, v := range base {
			merged[k] = v
		}
		for k, v := range extraTags {
			if !reservedRequestTagKeys[k] {
				merged[k] = v
			}
		}
		return reg.ResolveTags(merged)
	}

	protocol := sample.Protocol.String()

	reqTags := resolve(map[string]string{"scenario": sample.Scenario, "protocol": protocol})
	reg.Handle(ids.RequestsTotal, reqTags).(*CounterSink).Increment(1)
	reg.Handle(ids.BytesReceivedTotal, reqTags).(*CounterSink).Increment(sample.BytesReceived)
	reg.Handle(ids.BytesSentTotal, reqTags).(*CounterSink).Increment(sample.BytesSent)

	if !sample.OK {
		errTags := resolve(map[string]string{"scenario": sample.Scenario, "protocol": protocol})
		reg.Handle(ids.ErrorsTotal, errTags).(*CounterSink).Increment(1)

		if sample.ErrorKind != "" {
			kindTags := resolve(map[string]string{
				"scenario":   sample.Scenario,
				"protocol":   protocol,
				"error_kind": sample.ErrorKind,
			})
			reg.Handle(ids.ErrorsByKindTotal, kindTags).(*CounterSink).Increment(1)
		}
	}

	latencyMs := float64(sample.Latency.Milliseconds())
	if latencyMs < 1 {
		latencyMs = 1
	}

	overallTags := resolve(map[string]string{"scenario": sample.Scenario})
	reg.Handle(ids.LatencyMs, overallTags).(*HistogramSink).Observe(latencyMs)

	protocolTags := resolve(map[string]string{"scenario": sample.Scenario, "protocol": protocol})
	reg.Handle(ids.LatencyMs, protocolTags).(*HistogramSink).Observe(latencyMs)
}
