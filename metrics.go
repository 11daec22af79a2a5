package credgate

import (
	"sync/atomic"
	"time"
)

// MetricID identifies one engine counter or histogram.
type MetricID uint16

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricRefreshSuccess
	MetricRefreshFailure
	MetricReplayDetected
	MetricRefreshUnknown
	MetricRefreshRateLimited
	MetricOwnerNotFound
	MetricStoreUnavailable
	MetricLogout
	MetricRevokeAll
	MetricVerifySuccess
	MetricVerifyFailure
	MetricRefreshLatency
	MetricVerifyLatency
	metricIDCount
)

// latencyBounds are the inclusive upper limits of the finite buckets. The
// last bucket takes everything slower.
var latencyBounds = [...]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

const histBucketCount = len(latencyBounds) + 1

var isHistogramID = [metricIDCount]bool{
	MetricRefreshLatency: true,
	MetricVerifyLatency:  true,
}

// counterSlot pads a counter to a 64 byte cache line.
type counterSlot struct {
	n atomic.Uint64
	_ [56]byte
}

type latencyHistogram [histBucketCount]atomic.Uint64

// Metrics holds lock-free engine counters and latency histograms.
type Metrics struct {
	enabled    bool
	latency    bool
	counters   [metricIDCount]counterSlot
	histograms [metricIDCount]latencyHistogram
}

// MetricsSnapshot is a point-in-time copy of all counters and, when latency
// collection is on, per-bucket histogram counts.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics returns a Metrics collector. A disabled collector ignores all updates.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled: cfg.Enabled,
		latency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

func (m *Metrics) Enabled() bool        { return m != nil && m.enabled }
func (m *Metrics) LatencyEnabled() bool { return m != nil && m.latency }

// Inc adds one to counter id.
func (m *Metrics) Inc(id MetricID) {
	if !m.Enabled() || id >= metricIDCount {
		return
	}
	m.counters[id].n.Add(1)
}

// Observe records d into histogram id. Non-histogram ids are ignored.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if !m.LatencyEnabled() || id >= metricIDCount || !isHistogramID[id] {
		return
	}
	m.histograms[id][bucketFor(d)].Add(1)
}

// Value returns the current value of counter id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return m.counters[id].n.Load()
}

// Snapshot copies every counter and, with latency collection on, every
// histogram. Histogram ids never appear in Counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters:   map[MetricID]uint64{},
		Histograms: map[MetricID][]uint64{},
	}
	if !m.Enabled() {
		return snap
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		if isHistogramID[id] {
			if m.latency {
				buckets := make([]uint64, histBucketCount)
				for i := range buckets {
					buckets[i] = m.histograms[id][i].Load()
				}
				snap.Histograms[id] = buckets
			}
			continue
		}
		snap.Counters[id] = m.counters[id].n.Load()
	}
	return snap
}

func bucketFor(d time.Duration) int {
	for i, bound := range latencyBounds {
		if d <= bound {
			return i
		}
	}
	return len(latencyBounds)
}
