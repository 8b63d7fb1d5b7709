package tracking

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.temporal.io/server/common/clock"
	"go.temporal.io/server/common/log"
	"go.temporal.io/server/common/log/tag"
	"go.temporal.io/server/common/metrics"
)

// ErrTrackingCapacity is returned when a genuinely new IP arrives while the
// registry is at MaxTrackedConnections. The request is served untracked.
var ErrTrackingCapacity = errors.New("tracking capacity exceeded")

// Registry is the concurrent mapping from client IP to its connection record.
//
// Records are immutable snapshots; per-key updates are a load / compute /
// CompareAndSwap retry loop and removals use CompareAndDelete, so writers to
// the same IP are linearized without any lock shared across IPs, and a record
// can never be revived with stale data after removal. The sweeper and the
// metrics aggregator operate through the same per-key discipline.
type Registry struct {
	cfg        Config
	timeSource clock.TimeSource
	logger     log.Logger
	metrics    TrackerMetrics

	records sync.Map // string (IP) -> *ConnectionRecord

	// size approximates len(records); maintained on create/remove.
	size atomic.Int64

	// Cumulative counters, monotone for the process lifetime.
	expiredTotal     atomic.Int64
	trackingRejected atomic.Int64
}

// NewRegistry creates a registry. The configuration is validated here;
// a validation error must abort startup.
func NewRegistry(
	cfg Config,
	timeSource clock.TimeSource,
	logger log.Logger,
	metricsHandler metrics.Handler,
) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if timeSource == nil {
		timeSource = clock.NewRealTimeSource()
	}

	if logger != nil {
		logger.Info("connection registry initialized",
			tag.NewDurationTag("default_ttl", cfg.DefaultTTL),
			tag.NewDurationTag("max_ttl", cfg.MaxTTL),
			tag.NewDurationTag("cleanup_interval", cfg.CleanupInterval),
			tag.NewInt("max_tracked_connections", cfg.MaxTrackedConnections))
	}

	return &Registry{
		cfg:        cfg,
		timeSource: timeSource,
		logger:     logger,
		metrics:    NewTrackerMetrics(metricsHandler),
	}, nil
}

// Config returns the registry configuration.
func (r *Registry) Config() Config {
	return r.cfg
}

// TimeSource returns the clock the registry was built with.
func (r *Registry) TimeSource() clock.TimeSource {
	return r.timeSource
}

// GetOrCreate returns the record for ip, inserting a fresh one if none exists.
// Exactly one record is created under concurrent first-time access; every
// caller observes the same record. created reports whether this call inserted.
func (r *Registry) GetOrCreate(ip string, now time.Time) (rec *ConnectionRecord, created bool, err error) {
	if v, ok := r.records.Load(ip); ok {
		return v.(*ConnectionRecord), false, nil
	}

	if max := r.cfg.MaxTrackedConnections; max > 0 && r.size.Load() >= int64(max) {
		r.trackingRejected.Add(1)
		r.metrics.IncTrackingRejected()
		if r.logger != nil {
			r.logger.Warn("registry at capacity, request served untracked",
				tag.NewStringTag("ip", ip),
				tag.NewInt("max_tracked_connections", max))
		}
		return nil, false, ErrTrackingCapacity
	}

	fresh := newRecord(ip, now, clampTTL(r.cfg.DefaultTTL, r.cfg.bounds()))
	actual, loaded := r.records.LoadOrStore(ip, fresh)
	if loaded {
		return actual.(*ConnectionRecord), false, nil
	}

	r.size.Add(1)
	if r.logger != nil {
		r.logger.Info("new connection tracked",
			tag.NewStringTag("ip", ip),
			tag.NewStringTag("connection_id", fresh.ID.String()),
			tag.NewDurationTag("ttl", fresh.CurrentTTL))
	}
	return fresh, true, nil
}

// RecordActivity applies one request arrival for ip: the TTL policy decides
// the next lifetime and LastSeen, RequestCount, CurrentTTL and ExpiresAt are
// updated atomically for that single entry. Concurrent writers to the same IP
// retry on conflict; different IPs never contend.
//
// If the entry was removed between load and swap (a sweep racing this
// arrival), the arrival recreates it with fresh timestamps.
func (r *Registry) RecordActivity(ip string, now time.Time) (*ConnectionRecord, error) {
	for {
		rec, created, err := r.GetOrCreate(ip, now)
		if err != nil {
			return nil, err
		}
		if created {
			return rec, nil
		}

		gap := now.Sub(rec.LastSeen)
		ttl := rec.CurrentTTL
		if gap < 0 {
			// Clock moved backwards. Treat elapsed as zero and keep the TTL:
			// a negative delta must never shrink or enlarge the lifetime.
			r.metrics.IncClockRegression()
			if r.logger != nil {
				r.logger.Debug("clock regression observed, keeping current TTL",
					tag.NewStringTag("ip", ip),
					tag.NewDurationTag("delta", gap))
			}
			gap = 0
		} else {
			ttl = NextTTL(ttl, gap, r.cfg.bounds())
		}

		next := rec.withActivity(now, gap, ttl)
		if r.records.CompareAndSwap(ip, rec, next) {
			return next, nil
		}
	}
}

// RemoveIfExpired removes the entry for ip iff it is expired at now as of the
// check. A record that became active between scan start and this check
// survives: the delete only succeeds against the exact record the expiry
// check saw.
func (r *Registry) RemoveIfExpired(ip string, now time.Time) bool {
	_, removed := r.removeExpired(ip, now)
	return removed
}

func (r *Registry) removeExpired(ip string, now time.Time) (*ConnectionRecord, bool) {
	v, ok := r.records.Load(ip)
	if !ok {
		return nil, false
	}
	rec := v.(*ConnectionRecord)
	if !rec.Expired(now) {
		return nil, false
	}
	if !r.records.CompareAndDelete(ip, v) {
		// A concurrent arrival replaced the record; it is live again.
		return nil, false
	}
	r.size.Add(-1)
	r.expiredTotal.Add(1)
	r.metrics.IncEvicted(1)
	return rec, true
}

// Get returns the live record for ip, treating expired-but-unswept records as
// absent.
func (r *Registry) Get(ip string, now time.Time) (*ConnectionRecord, bool) {
	v, ok := r.records.Load(ip)
	if !ok {
		return nil, false
	}
	rec := v.(*ConnectionRecord)
	if rec.Expired(now) {
		return nil, false
	}
	return rec, true
}

// Snapshot returns a best-effort view of all live records at now. It never
// blocks writers; entries that expire mid-scan may or may not appear.
func (r *Registry) Snapshot(now time.Time) []RecordView {
	views := make([]RecordView, 0, r.size.Load())
	r.records.Range(func(_, v any) bool {
		rec := v.(*ConnectionRecord)
		if !rec.Expired(now) {
			views = append(views, rec.View())
		}
		return true
	})
	return views
}

// Size returns the approximate number of physically present records,
// including expired-but-unswept ones.
func (r *Registry) Size() int {
	return int(r.size.Load())
}

// ExpiredTotal returns the cumulative count of swept records.
func (r *Registry) ExpiredTotal() int64 {
	return r.expiredTotal.Load()
}

// TrackingRejected returns the cumulative count of capacity rejections.
func (r *Registry) TrackingRejected() int64 {
	return r.trackingRejected.Load()
}
