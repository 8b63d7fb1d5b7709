// Package ssl loads the server certificate pair and keeps an eye on its
// validity so the health and ssl-status endpoints can report on it.
package ssl

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"go.temporal.io/server/common/clock"
	"go.temporal.io/server/common/log"
	"go.temporal.io/server/common/log/tag"
)

// expiryWarnWindow is how close to expiry the monitor starts warning.
const expiryWarnWindow = 7 * 24 * time.Hour

// CertificateInfo describes the currently loaded leaf certificate.
type CertificateInfo struct {
	Subject         string
	Issuer          string
	NotBefore       time.Time
	NotAfter        time.Time
	IsExpired       bool
	DaysUntilExpiry int64
}

// Manager owns the TLS server certificate: it loads the pair at startup,
// serves it to the TLS stack through a callback (so Reload swaps it without
// restarting listeners), and periodically re-checks validity in the
// background.
type Manager struct {
	certPath      string
	keyPath       string
	checkInterval time.Duration
	timeSource    clock.TimeSource
	logger        log.Logger

	mu   sync.RWMutex
	cert *tls.Certificate
	info CertificateInfo

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager loads the certificate pair and returns a manager. Load failures
// abort startup.
func NewManager(
	certPath string,
	keyPath string,
	checkInterval time.Duration,
	timeSource clock.TimeSource,
	logger log.Logger,
) (*Manager, error) {
	if timeSource == nil {
		timeSource = clock.NewRealTimeSource()
	}

	m := &Manager{
		certPath:      certPath,
		keyPath:       keyPath,
		checkInterval: checkInterval,
		timeSource:    timeSource,
		logger:        logger,
	}

	if err := m.Reload(); err != nil {
		return nil, err
	}

	if logger != nil {
		info := m.Info()
		logger.Info("certificates loaded",
			tag.NewStringTag("cert_path", certPath),
			tag.NewStringTag("subject", info.Subject),
			tag.NewStringTag("not_after", info.NotAfter.Format(time.RFC3339)))
	}
	return m, nil
}

// Reload re-reads the certificate pair from disk and atomically replaces the
// served certificate and its info.
func (m *Manager) Reload() error {
	cert, err := tls.LoadX509KeyPair(m.certPath, m.keyPath)
	if err != nil {
		return fmt.Errorf("ssl: load certificate pair: %w", err)
	}

	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	if err != nil {
		return fmt.Errorf("ssl: parse leaf certificate: %w", err)
	}
	cert.Leaf = leaf

	m.mu.Lock()
	m.cert = &cert
	m.info = m.certInfo(leaf)
	m.mu.Unlock()
	return nil
}

func (m *Manager) certInfo(leaf *x509.Certificate) CertificateInfo {
	now := m.timeSource.Now()
	info := CertificateInfo{
		Subject:   leaf.Subject.CommonName,
		Issuer:    leaf.Issuer.CommonName,
		NotBefore: leaf.NotBefore,
		NotAfter:  leaf.NotAfter,
		IsExpired: now.After(leaf.NotAfter),
	}
	if info.IsExpired {
		info.DaysUntilExpiry = -1
	} else {
		info.DaysUntilExpiry = int64(leaf.NotAfter.Sub(now) / (24 * time.Hour))
	}
	return info
}

// TLSConfig returns a server config that resolves the certificate per
// handshake, so a Reload takes effect on the next connection.
func (m *Manager) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		GetCertificate: func(*tls.ClientHelloInfo) (*tls.Certificate, error) {
			m.mu.RLock()
			defer m.mu.RUnlock()
			return m.cert, nil
		},
	}
}

// Info returns the current certificate information.
func (m *Manager) Info() CertificateInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.info
}

// Start begins the background validity check loop.
func (m *Manager) Start(ctx context.Context) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.wg.Add(1)
	go m.monitorLoop(ctx)

	if m.logger != nil {
		m.logger.Info("certificate monitoring started",
			tag.NewDurationTag("check_interval", m.checkInterval))
	}
	return cancel
}

// Stop cancels the monitor loop and waits for it to finish.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

func (m *Manager) monitorLoop(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.checkOnce()
		}
	}
}

func (m *Manager) checkOnce() {
	m.mu.Lock()
	leaf := m.cert.Leaf
	m.info = m.certInfo(leaf)
	info := m.info
	m.mu.Unlock()

	if m.logger == nil {
		return
	}
	switch {
	case info.IsExpired:
		m.logger.Error("certificate has expired",
			tag.NewStringTag("subject", info.Subject),
			tag.NewStringTag("not_after", info.NotAfter.Format(time.RFC3339)))
	case m.timeSource.Now().Add(expiryWarnWindow).After(info.NotAfter):
		m.logger.Warn("certificate expires soon",
			tag.NewStringTag("subject", info.Subject),
			tag.NewInt64("days_until_expiry", info.DaysUntilExpiry))
	default:
		m.logger.Debug("certificate is valid",
			tag.NewInt64("days_until_expiry", info.DaysUntilExpiry))
	}
}
