package tracking

import (
	"time"

	"github.com/google/uuid"
)

// ConnectionRecord is the tracked state for a single client IP. Records are
// immutable once published to the registry: every update allocates a successor
// record and installs it with a compare-and-swap, so a loaded record is always
// internally consistent (ExpiresAt is always LastSeen + CurrentTTL).
type ConnectionRecord struct {
	// ID identifies this record for the lifetime of the tracked IP.
	ID uuid.UUID

	// IP is the registry key.
	IP string

	FirstSeen time.Time
	LastSeen  time.Time

	// RequestCount is monotonically non-decreasing for the life of the record.
	RequestCount uint64

	// CurrentTTL is always within [Config.DefaultTTL, Config.MaxTTL].
	CurrentTTL time.Duration

	// ExpiresAt is derived: LastSeen + CurrentTTL.
	ExpiresAt time.Time

	// ArrivalGap is the elapsed time between the two most recent requests,
	// clamped to zero when the observed clock moved backwards.
	ArrivalGap time.Duration
}

func newRecord(ip string, now time.Time, ttl time.Duration) *ConnectionRecord {
	return &ConnectionRecord{
		ID:           uuid.New(),
		IP:           ip,
		FirstSeen:    now,
		LastSeen:     now,
		RequestCount: 1,
		CurrentTTL:   ttl,
		ExpiresAt:    now.Add(ttl),
	}
}

// withActivity returns the successor record for one more request arriving at
// now. The receiver is not modified.
func (r *ConnectionRecord) withActivity(now time.Time, gap time.Duration, ttl time.Duration) *ConnectionRecord {
	next := *r
	next.LastSeen = now
	next.RequestCount = r.RequestCount + 1
	next.CurrentTTL = ttl
	next.ExpiresAt = now.Add(ttl)
	next.ArrivalGap = gap
	return &next
}

// Expired reports whether the record is logically absent at now. A record can
// be expired and not yet swept; liveness checks must treat it as gone.
func (r *ConnectionRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// Lifetime returns how long the tracked IP has been active.
func (r *ConnectionRecord) Lifetime() time.Duration {
	return r.LastSeen.Sub(r.FirstSeen)
}

// View returns the serializable summary of the record.
func (r *ConnectionRecord) View() RecordView {
	return RecordView{
		IP:             r.IP,
		FirstSeen:      r.FirstSeen,
		LastSeen:       r.LastSeen,
		RequestCount:   r.RequestCount,
		CurrentTTLSecs: int64(r.CurrentTTL / time.Second),
		ExpiresAt:      r.ExpiresAt,
	}
}

// RecordView is the wire form of a tracked connection as exposed by the
// monitoring endpoint.
type RecordView struct {
	IP             string    `json:"ip"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `json:"last_seen"`
	RequestCount   uint64    `json:"request_count"`
	CurrentTTLSecs int64     `json:"current_ttl_secs"`
	ExpiresAt      time.Time `json:"expires_at"`
}
