package tracking

import (
	"errors"
	"net"
	"net/netip"
	"sync/atomic"
	"time"

	"go.temporal.io/server/common/log"
	"go.temporal.io/server/common/log/tag"
)

// TrackInfo is what the request path learns about its connection after an
// activity update: the lifetime it currently holds and when it lapses.
type TrackInfo struct {
	CurrentTTL time.Duration
	ExpiresAt  time.Time
}

// Tracker is the per-request entry point into the registry. It is strictly
// fail-open: nothing it does can fail, delay or change the HTTP response.
// An undeterminable client address or a registry at capacity only degrades
// observability; the request is served untracked.
type Tracker struct {
	registry *Registry
	logger   log.Logger

	addressFailures atomic.Int64
}

// NewTracker creates a tracker over the registry.
func NewTracker(registry *Registry, logger log.Logger) *Tracker {
	return &Tracker{
		registry: registry,
		logger:   logger,
	}
}

// RecordRequest records one request from remoteAddr. ok is false when the
// client address could not be determined or tracking was rejected at
// capacity; callers must not treat that as a request failure.
func (t *Tracker) RecordRequest(remoteAddr string) (TrackInfo, bool) {
	ip, ok := clientIP(remoteAddr)
	if !ok {
		t.addressFailures.Add(1)
		t.registry.metrics.IncAddressUnavailable()
		if t.logger != nil {
			t.logger.Debug("client address unavailable, request served untracked",
				tag.NewStringTag("remote_addr", remoteAddr))
		}
		return TrackInfo{}, false
	}

	rec, err := t.registry.RecordActivity(ip, t.registry.timeSource.Now())
	if err != nil {
		if !errors.Is(err, ErrTrackingCapacity) && t.logger != nil {
			t.logger.Warn("activity update failed, request served untracked",
				tag.NewStringTag("ip", ip), tag.Error(err))
		}
		return TrackInfo{}, false
	}

	return TrackInfo{CurrentTTL: rec.CurrentTTL, ExpiresAt: rec.ExpiresAt}, true
}

// AddressFailures returns the cumulative count of requests served without
// tracking because the client address could not be determined.
func (t *Tracker) AddressFailures() int64 {
	return t.addressFailures.Load()
}

// clientIP extracts a canonical IP from a peer address, with or without a
// port ("203.0.113.7:4312", "203.0.113.7", "[2001:db8::1]:443").
func clientIP(remoteAddr string) (string, bool) {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return "", false
	}
	return addr.String(), true
}
