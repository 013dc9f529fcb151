package authcore

import "sync/atomic"

// MetricID identifies one engine counter.
type MetricID uint16

const (
	// MetricLoginSuccess counts successful logins.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure counts rejected logins, whatever the internal cause.
	MetricLoginFailure
	// MetricTokenIssued counts minted refresh tokens (login and rotation).
	MetricTokenIssued
	// MetricRefreshSuccess counts successful rotations.
	MetricRefreshSuccess
	// MetricRefreshFailure counts rejected refreshes other than expiry.
	MetricRefreshFailure
	// MetricRefreshExpired counts refreshes rejected because the token aged out.
	MetricRefreshExpired
	// MetricReplayDetected counts replayed refresh tokens.
	MetricReplayDetected
	// MetricFamilyRevoked counts family-wide revocation sweeps.
	MetricFamilyRevoked
	// MetricLogout counts single-session logouts.
	MetricLogout
	// MetricLogoutAll counts subject-wide logouts.
	MetricLogoutAll
	metricIDCount
)

const cacheLineSize = 64

// Counters are padded to a cache line each so hot concurrent increments
// on different IDs do not false-share.
type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds the engine's atomic counters. When disabled, every
// operation is a no-op on a nil-safe receiver.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]paddedCounter
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}

	s := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}
	return s
}
