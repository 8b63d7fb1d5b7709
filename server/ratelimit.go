package server

import (
	"os"
	"strconv"

	"golang.org/x/time/rate"
)

const (
	// RateLimitEnvVar overrides the configured request rate limit.
	RateLimitEnvVar = "TTLGATE_REQUEST_RATE_LIMIT"

	// RateBurstEnvVar overrides the configured burst capacity.
	RateBurstEnvVar = "TTLGATE_REQUEST_BURST_LIMIT"
)

// RequestRateLimiter caps the accepted request rate for the whole instance.
// This is server policy, separate from the fail-open tracking core: an
// exhausted limiter answers 429, it never touches the registry.
type RequestRateLimiter struct {
	limiter *rate.Limiter
}

// NewRequestRateLimiter creates a limiter from the configured limits, with
// environment overrides. Returns nil when rate limiting is disabled.
func NewRequestRateLimiter(perSec, burst int) *RequestRateLimiter {
	perSec = getEnvInt(RateLimitEnvVar, perSec)
	burst = getEnvInt(RateBurstEnvVar, burst)
	if perSec <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = perSec
	}
	return &RequestRateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSec), burst),
	}
}

// Allow reports whether one more request may be served now.
func (r *RequestRateLimiter) Allow() bool {
	return r.limiter.Allow()
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}
