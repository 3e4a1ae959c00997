package goGuard

import (
	"sync/atomic"
	"time"
)

// MetricID identifies an in-process counter.
type MetricID uint16

const (
	MetricGuardAllowed MetricID = iota
	MetricDenyAuthentication
	MetricDenySession
	MetricDenyRateLimited
	MetricDenyCSRF
	MetricDenyPermission
	MetricDenyValidation
	MetricDenyUnavailable
	// MetricSuspiciousActivity counts rate limit denials escalated to
	// suspicious activity.
	MetricSuspiciousActivity
	// MetricSessionAnomaly counts non-fatal session findings.
	MetricSessionAnomaly
	MetricSessionOpened
	MetricSessionClosed
	MetricOperationFailed
	MetricAuditRecorded
	MetricAuditFailed
	MetricAuditDropped
	// MetricGuardLatency is the only histogram.
	MetricGuardLatency
	metricIDCount
)

// MetricCount is the number of defined metric ids.
const MetricCount = int(metricIDCount)

// LatencyBuckets are the inclusive upper bounds of the guard latency
// histogram. Durations above the last bound land in a final overflow bucket.
var LatencyBuckets = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const latencyBucketCount = len(LatencyBuckets) + 1

// counterSlot keeps each counter on its own cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

// Metrics holds lock-free counters and the guard latency histogram. A nil
// or disabled Metrics ignores every update.
//
//	Docs: docs/metrics.md
type Metrics struct {
	on      bool
	latency bool
	slots   [metricIDCount]counterSlot
	hist    [latencyBucketCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters. Histogram
// buckets are per-bucket counts, not cumulative.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{on: cfg.Enabled, latency: cfg.Enabled && cfg.EnableLatencyHistograms}
}

func (m *Metrics) Enabled() bool { return m != nil && m.on }

func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.slots[id].n.Add(1)
}

// Observe records d in id's histogram. Only MetricGuardLatency has one.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id != MetricGuardLatency {
		return
	}
	m.hist[latencyBucket(d)].Add(1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.slots[id].n.Load()
}

// Snapshot copies every counter. A disabled Metrics yields empty maps.
func (m *Metrics) Snapshot() MetricsSnapshot {
	out := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return out
	}
	for id := range metricIDCount {
		out.Counters[id] = m.slots[id].n.Load()
	}
	if m.latency {
		counts := make([]uint64, latencyBucketCount)
		for i := range counts {
			counts[i] = m.hist[i].Load()
		}
		out.Histograms[MetricGuardLatency] = counts
	}
	return out
}

func denyMetric(reason DenyReason) MetricID {
	switch reason {
	case ReasonAuthenticationRequired:
		return MetricDenyAuthentication
	case ReasonSessionExpiredOrAnomalous:
		return MetricDenySession
	case ReasonRateLimited:
		return MetricDenyRateLimited
	case ReasonCSRFInvalid:
		return MetricDenyCSRF
	case ReasonInsufficientPermission:
		return MetricDenyPermission
	case ReasonValidationFailed:
		return MetricDenyValidation
	default:
		return MetricDenyUnavailable
	}
}

func latencyBucket(d time.Duration) int {
	for i, bound := range LatencyBuckets {
		if d <= bound {
			return i
		}
	}
	return len(LatencyBuckets)
}
