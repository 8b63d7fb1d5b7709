package tracking

import (
	"context"
	"sync"
	"time"

	"go.temporal.io/server/common/log"
	"go.temporal.io/server/common/log/tag"
)

// Sweeper periodically scans the registry and evicts expired records. It is
// the only component that removes records (besides process shutdown); the
// request path never removes synchronously.
//
// Each removal goes through the registry's per-key compare-and-delete, so a
// sweep never holds a lock that blocks activity updates for unrelated IPs
// and never evicts a record that became active after the scan started.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	logger   log.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu           sync.Mutex
	totalSweeps  int64
	totalEvicted int64
}

// NewSweeper creates a sweeper for the registry. The interval comes from the
// registry's validated configuration.
func NewSweeper(registry *Registry, logger log.Logger) *Sweeper {
	return &Sweeper{
		registry: registry,
		interval: registry.cfg.CleanupInterval,
		logger:   logger,
	}
}

// Start begins the sweep loop. The loop exits promptly when ctx is cancelled,
// bounded by the in-flight sweep.
func (s *Sweeper) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.sweepLoop(ctx)

	if s.logger != nil {
		s.logger.Info("cleanup sweeper started",
			tag.NewDurationTag("cleanup_interval", s.interval))
	}
	return cancel
}

// Stop cancels the sweep loop and waits for it to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) sweepLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			sweeps := s.totalSweeps
			evicted := s.totalEvicted
			s.mu.Unlock()

			if s.logger != nil {
				s.logger.Info("cleanup sweeper stopped",
					tag.NewInt64("total_sweeps", sweeps),
					tag.NewInt64("total_evicted", evicted))
			}
			return

		case <-ticker.C:
			s.SweepOnce(s.registry.timeSource.Now())
		}
	}
}

// SweepOnce runs a single scan-and-evict pass at now and returns the number
// of records removed.
func (s *Sweeper) SweepOnce(now time.Time) int {
	// Collect candidates first, then re-check each under the per-key delete.
	var candidates []string
	s.registry.records.Range(func(k, v any) bool {
		if v.(*ConnectionRecord).Expired(now) {
			candidates = append(candidates, k.(string))
		}
		return true
	})

	evicted := 0
	for _, ip := range candidates {
		rec, removed := s.registry.removeExpired(ip, now)
		if !removed {
			continue
		}
		evicted++
		if s.logger != nil {
			s.logger.Info("expired connection evicted",
				tag.NewStringTag("ip", rec.IP),
				tag.NewStringTag("connection_id", rec.ID.String()),
				tag.NewDurationTag("lifetime", rec.Lifetime()),
				tag.NewInt64("request_count", int64(rec.RequestCount)))
		}
	}

	s.mu.Lock()
	s.totalSweeps++
	s.totalEvicted += int64(evicted)
	s.mu.Unlock()

	s.registry.metrics.RecordActiveConnections(s.registry.Size())

	if evicted > 0 && s.logger != nil {
		s.logger.Info("sweep completed",
			tag.NewInt("evicted", evicted),
			tag.NewInt("active", s.registry.Size()))
	}
	return evicted
}

// Stats returns cumulative sweep statistics.
func (s *Sweeper) Stats() (totalSweeps, totalEvicted int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSweeps, s.totalEvicted
}
