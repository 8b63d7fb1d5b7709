package tracking

import (
	"fmt"
	"time"
)

const (
	// DefaultTTL is the starting lifetime for a newly tracked IP.
	DefaultTTL = 5 * time.Minute

	// DefaultMaxTTL caps how far sustained activity can extend a lifetime.
	DefaultMaxTTL = 1 * time.Hour

	// DefaultCleanupInterval is how often the sweeper scans for expired records.
	DefaultCleanupInterval = 1 * time.Minute
)

// Config configures the connection registry. Immutable after startup; there is
// no hot reload of TTL parameters.
type Config struct {
	// DefaultTTL is the TTL assigned on first sight of an IP and the value
	// idle clients decay back to.
	DefaultTTL time.Duration

	// MaxTTL bounds adaptive extension. Must be >= DefaultTTL.
	MaxTTL time.Duration

	// CleanupInterval is the sweeper period.
	CleanupInterval time.Duration

	// MaxTrackedConnections caps registry size. Zero means unlimited.
	// At capacity, requests from new IPs are served untracked.
	MaxTrackedConnections int
}

// DefaultConfig returns the registry configuration with default values.
func DefaultConfig() Config {
	return Config{
		DefaultTTL:      DefaultTTL,
		MaxTTL:          DefaultMaxTTL,
		CleanupInterval: DefaultCleanupInterval,
	}
}

// Validate rejects configurations the registry must not start with.
func (c Config) Validate() error {
	if c.DefaultTTL <= 0 {
		return fmt.Errorf("tracking: default TTL must be positive, got %v", c.DefaultTTL)
	}
	if c.MaxTTL <= 0 {
		return fmt.Errorf("tracking: max TTL must be positive, got %v", c.MaxTTL)
	}
	if c.MaxTTL < c.DefaultTTL {
		return fmt.Errorf("tracking: max TTL %v must be >= default TTL %v", c.MaxTTL, c.DefaultTTL)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("tracking: cleanup interval must be positive, got %v", c.CleanupInterval)
	}
	if c.MaxTrackedConnections < 0 {
		return fmt.Errorf("tracking: max tracked connections must be >= 0, got %d", c.MaxTrackedConnections)
	}
	return nil
}

func (c Config) bounds() Bounds {
	return Bounds{Default: c.DefaultTTL, Max: c.MaxTTL}
}
