package tracking

import (
	"sort"
	"time"
)

// TTLStats aggregates the registry-wide TTL figures for monitoring.
type TTLStats struct {
	ActiveCount      int     `json:"active_count"`
	ExpiredTotal     int64   `json:"expired_total"`
	TrackingRejected int64   `json:"tracking_rejected"`
	AvgTTLSecs       float64 `json:"avg_ttl_secs"`
	MinTTLSecs       int64   `json:"min_ttl_secs"`
	MaxTTLSecs       int64   `json:"max_ttl_secs"`
}

// MetricsSnapshot is the point-in-time view served by the monitoring
// endpoint: the live records plus the cumulative counters.
type MetricsSnapshot struct {
	ActiveConnections []RecordView `json:"active_connections"`
	TTLStats          TTLStats     `json:"ttl_stats"`
}

// MetricsSnapshot builds a snapshot from a registry scan. The scan is
// best-effort: records expiring mid-scan may or may not appear, and the stats
// are computed over whatever set of records the scan observed. Cumulative
// counters are exact.
func (r *Registry) MetricsSnapshot(now time.Time) MetricsSnapshot {
	views := r.Snapshot(now)
	sort.Slice(views, func(i, j int) bool { return views[i].IP < views[j].IP })

	stats := TTLStats{
		ActiveCount:      len(views),
		ExpiredTotal:     r.ExpiredTotal(),
		TrackingRejected: r.TrackingRejected(),
	}

	if len(views) > 0 {
		var sum int64
		minTTL := views[0].CurrentTTLSecs
		maxTTL := views[0].CurrentTTLSecs
		for _, v := range views {
			sum += v.CurrentTTLSecs
			if v.CurrentTTLSecs < minTTL {
				minTTL = v.CurrentTTLSecs
			}
			if v.CurrentTTLSecs > maxTTL {
				maxTTL = v.CurrentTTLSecs
			}
		}
		stats.AvgTTLSecs = float64(sum) / float64(len(views))
		stats.MinTTLSecs = minTTL
		stats.MaxTTLSecs = maxTTL
	}

	return MetricsSnapshot{
		ActiveConnections: views,
		TTLStats:          stats,
	}
}
