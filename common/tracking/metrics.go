package tracking

import (
	"go.temporal.io/server/common/metrics"
)

// TrackerMetrics defines the metrics emitted by the connection registry and
// its collaborators.
type TrackerMetrics interface {
	// IncEvicted increments the counter for records removed by the sweeper.
	IncEvicted(n int)

	// IncTrackingRejected increments the counter for new IPs rejected at capacity.
	IncTrackingRejected()

	// IncAddressUnavailable increments the counter for requests whose client
	// address could not be determined.
	IncAddressUnavailable()

	// IncClockRegression increments the counter for observed backward clock jumps.
	IncClockRegression()

	// RecordActiveConnections records the current number of tracked records.
	RecordActiveConnections(n int)
}

// noOpTrackerMetrics is used when metrics are disabled.
type noOpTrackerMetrics struct{}

func (noOpTrackerMetrics) IncEvicted(n int)              {}
func (noOpTrackerMetrics) IncTrackingRejected()          {}
func (noOpTrackerMetrics) IncAddressUnavailable()        {}
func (noOpTrackerMetrics) IncClockRegression()           {}
func (noOpTrackerMetrics) RecordActiveConnections(n int) {}

type trackerMetricsImpl struct {
	evicted            metrics.CounterIface
	trackingRejected   metrics.CounterIface
	addressUnavailable metrics.CounterIface
	clockRegression    metrics.CounterIface
	activeConnections  metrics.GaugeIface
}

// NewTrackerMetrics creates a TrackerMetrics backed by the given handler.
// A nil handler yields a no-op implementation.
func NewTrackerMetrics(metricsHandler metrics.Handler) TrackerMetrics {
	if metricsHandler == nil {
		return noOpTrackerMetrics{}
	}
	return &trackerMetricsImpl{
		evicted:            metricsHandler.Counter("ttlgate_connections_evicted_total"),
		trackingRejected:   metricsHandler.Counter("ttlgate_tracking_rejected_total"),
		addressUnavailable: metricsHandler.Counter("ttlgate_address_unavailable_total"),
		clockRegression:    metricsHandler.Counter("ttlgate_clock_regression_total"),
		activeConnections:  metricsHandler.Gauge("ttlgate_active_connections"),
	}
}

func (m *trackerMetricsImpl) IncEvicted(n int) {
	m.evicted.Record(int64(n))
}

func (m *trackerMetricsImpl) IncTrackingRejected() {
	m.trackingRejected.Record(1)
}

func (m *trackerMetricsImpl) IncAddressUnavailable() {
	m.addressUnavailable.Record(1)
}

func (m *trackerMetricsImpl) IncClockRegression() {
	m.clockRegression.Record(1)
}

func (m *trackerMetricsImpl) RecordActiveConnections(n int) {
	m.activeConnections.Record(float64(n))
}
