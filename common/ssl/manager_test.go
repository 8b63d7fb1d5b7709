package ssl

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/server/common/clock"
)

// writeSelfSignedPair writes a throwaway certificate pair valid for the given
// window and returns the file paths.
func writeSelfSignedPair(t *testing.T, notBefore, notAfter time.Time) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "ttlgate.test"},
		Issuer:       pkix.Name{CommonName: "ttlgate.test"},
		NotBefore:    notBefore,
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		IsCA:         true,
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)

	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath := filepath.Join(dir, "cert.pem")
	keyPath := filepath.Join(dir, "key.pem")

	require.NoError(t, os.WriteFile(certPath,
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath,
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}

func TestNewManager_LoadsCertificate(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	certPath, keyPath := writeSelfSignedPair(t, now.Add(-time.Hour), now.Add(90*24*time.Hour))

	ts := clock.NewEventTimeSource()
	ts.Update(now)

	m, err := NewManager(certPath, keyPath, time.Hour, ts, nil)
	require.NoError(t, err)

	info := m.Info()
	assert.Equal(t, "ttlgate.test", info.Subject)
	assert.False(t, info.IsExpired)
	assert.Equal(t, int64(90), info.DaysUntilExpiry)

	cfg := m.TLSConfig()
	require.NotNil(t, cfg.GetCertificate)
	cert, err := cfg.GetCertificate(nil)
	require.NoError(t, err)
	require.NotNil(t, cert)
}

func TestNewManager_MissingFiles(t *testing.T) {
	_, err := NewManager("/nonexistent/cert.pem", "/nonexistent/key.pem", time.Hour, nil, nil)
	require.Error(t, err)
}

func TestManager_ExpiredCertificate(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	certPath, keyPath := writeSelfSignedPair(t, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	ts := clock.NewEventTimeSource()
	ts.Update(now)

	// An expired certificate still loads; expiry is an operational signal,
	// not a startup failure.
	m, err := NewManager(certPath, keyPath, time.Hour, ts, nil)
	require.NoError(t, err)

	info := m.Info()
	assert.True(t, info.IsExpired)
	assert.Equal(t, int64(-1), info.DaysUntilExpiry)
}

func TestManager_Reload(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	certPath, keyPath := writeSelfSignedPair(t, now.Add(-time.Hour), now.Add(30*24*time.Hour))

	ts := clock.NewEventTimeSource()
	ts.Update(now)

	m, err := NewManager(certPath, keyPath, time.Hour, ts, nil)
	require.NoError(t, err)
	require.Equal(t, int64(30), m.Info().DaysUntilExpiry)

	// Replace the pair on disk with a longer-lived one and reload.
	newCert, newKey := writeSelfSignedPair(t, now.Add(-time.Hour), now.Add(90*24*time.Hour))
	data, err := os.ReadFile(newCert)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(certPath, data, 0o600))
	data, err = os.ReadFile(newKey)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(keyPath, data, 0o600))

	require.NoError(t, m.Reload())
	assert.Equal(t, int64(90), m.Info().DaysUntilExpiry)
}
