// Package server wires the tracking core, the SSL manager and the router
// into a TLS-terminating HTTP server with a graceful lifecycle.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.temporal.io/server/common/clock"
	"go.temporal.io/server/common/log"
	"go.temporal.io/server/common/log/tag"
	"go.temporal.io/server/common/metrics"

	"github.com/biferdou/ttlgate/common/config"
	"github.com/biferdou/ttlgate/common/ssl"
	"github.com/biferdou/ttlgate/common/tracking"
)

// shutdownTimeout bounds how long in-flight requests may delay exit.
const shutdownTimeout = 10 * time.Second

// Server owns the process components: the registry and its sweeper, the SSL
// manager and its monitor, and the HTTP listener. Created at startup and
// handed the shutdown context by the caller.
type Server struct {
	cfg        *config.AppConfig
	logger     log.Logger
	timeSource clock.TimeSource

	registry   *tracking.Registry
	tracker    *tracking.Tracker
	sweeper    *tracking.Sweeper
	sslManager *ssl.Manager
	httpServer *http.Server
}

// New assembles a server from the resolved configuration. Any construction
// error (invalid TTL config, unloadable certificates) must abort startup.
func New(
	cfg *config.AppConfig,
	logger log.Logger,
	metricsHandler metrics.Handler,
	version string,
) (*Server, error) {
	timeSource := clock.NewRealTimeSource()

	registry, err := tracking.NewRegistry(cfg.TrackingConfig(), timeSource, logger, metricsHandler)
	if err != nil {
		return nil, err
	}
	tracker := tracking.NewTracker(registry, logger)
	sweeper := tracking.NewSweeper(registry, logger)

	sslManager, err := ssl.NewManager(
		cfg.SSL.CertPath,
		cfg.SSL.KeyPath,
		cfg.CertCheckInterval(),
		timeSource,
		logger,
	)
	if err != nil {
		return nil, err
	}

	engine := NewRouter(RouterDeps{
		Tracker:    tracker,
		Registry:   registry,
		SSLManager: sslManager,
		Limiter:    NewRequestRateLimiter(cfg.Server.RateLimitPerSec, cfg.Server.RateBurst),
		TimeSource: timeSource,
		Logger:     logger,
		Version:    version,
		StartedAt:  timeSource.Now(),
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      engine,
		TLSConfig:    sslManager.TLSConfig(),
		ReadTimeout:  cfg.RequestTimeout(),
		WriteTimeout: cfg.RequestTimeout(),
	}

	return &Server{
		cfg:        cfg,
		logger:     logger,
		timeSource: timeSource,
		registry:   registry,
		tracker:    tracker,
		sweeper:    sweeper,
		sslManager: sslManager,
		httpServer: httpServer,
	}, nil
}

// Run serves until ctx is cancelled, then shuts down gracefully: the listener
// drains in-flight requests (bounded), the sweeper and certificate monitor
// are stopped and awaited.
func (s *Server) Run(ctx context.Context) error {
	s.sweeper.Start(ctx)
	s.sslManager.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		// Certificate contents come from the manager's GetCertificate.
		err := s.httpServer.ListenAndServeTLS("", "")
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if s.logger != nil {
		s.logger.Info("server listening",
			tag.NewStringTag("addr", s.httpServer.Addr))
	}

	var runErr error
	select {
	case <-ctx.Done():
		if s.logger != nil {
			s.logger.Info("shutdown signal received")
		}
	case err := <-errCh:
		runErr = fmt.Errorf("server: listen: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("server: shutdown: %w", err)
	}

	s.sweeper.Stop()
	s.sslManager.Stop()

	if s.logger != nil {
		s.logger.Info("server shutdown complete")
	}
	return runErr
}

// Registry exposes the connection registry, mainly for tests and tooling.
func (s *Server) Registry() *tracking.Registry {
	return s.registry
}
