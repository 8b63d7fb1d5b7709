package tracking

import "time"

// extensionDivisor sets the TTL extension increment to a quarter of the
// default TTL. Tunable, but the policy must stay monotone-bounded: the TTL
// never leaves [default, max] and sustained idleness always decays it back
// to the default on the next arrival.
const extensionDivisor = 4

// Bounds are the static TTL limits the policy clamps to.
type Bounds struct {
	Default time.Duration
	Max     time.Duration
}

// NextTTL computes the TTL a record should carry after a request that arrived
// gap after the previous one.
//
// A client arriving faster than half its current lifetime earns an extension;
// a client whose gap reached its full lifetime (it is recovering from
// near-expiry or genuine idleness) is reset to the default; anything between
// leaves the TTL untouched. Callers handle negative elapsed time (a backward
// clock jump) before calling: gap must be >= 0.
func NextTTL(current, gap time.Duration, b Bounds) time.Duration {
	switch {
	case gap < current/2:
		next := current + b.Default/extensionDivisor
		if next > b.Max {
			next = b.Max
		}
		return next
	case gap >= current:
		return b.Default
	default:
		return current
	}
}

// clampTTL forces a TTL into the configured bounds. Updates go through
// NextTTL and stay in range by construction; this guards record creation.
func clampTTL(ttl time.Duration, b Bounds) time.Duration {
	if ttl < b.Default {
		return b.Default
	}
	if ttl > b.Max {
		return b.Max
	}
	return ttl
}
