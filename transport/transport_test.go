package transport

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseURL(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr string
	}{
		{"https://featureprobe.io/server/api/client-sdk/toggles", ""},
		{"http://localhost:4007/api/events", ""},
		{"wss://featureprobe.io/realtime", ""},
		{"", "toggles url required"},
		{"ftp://featureprobe.io/toggles", "unsupported scheme ftp"},
		{"featureprobe.io/toggles", "unsupported scheme"},
		{"http:///toggles", "missing host"},
		{"::bad", "toggles url"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			u, err := ParseURL("toggles url", tt.raw)
			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.raw, u.String())
				return
			}
			assert.ErrorIs(t, err, ErrURL)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestErrorKinds(t *testing.T) {
	cause := errors.New("connection refused")
	err := HTTPError("sync request failed", cause)

	assert.ErrorIs(t, err, ErrHTTP)
	assert.NotErrorIs(t, err, ErrJSON)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "invalid http: sync request failed: connection refused", err.Error())
	assert.Equal(t, "invalid json: bad body", JSONError("bad body", nil).Error())
}

func TestSetHeaders(t *testing.T) {
	req, err := http.NewRequest(http.MethodGet, "http://fp/api", nil)
	require.NoError(t, err)

	SetHeaders(req, "client-sdk-key")
	assert.Equal(t, "client-sdk-key", req.Header.Get("Authorization"))
	assert.Equal(t, "Go/"+SDKVersion, req.Header.Get("User-Agent"))
}

func TestBuildTLSConfigDefaults(t *testing.T) {
	cfg, err := buildTLSConfig(TLSConfig{})
	require.NoError(t, err)
	assert.Nil(t, cfg.RootCAs)
	assert.Empty(t, cfg.Certificates)

	client, err := NewHTTPClient(TLSConfig{})
	require.NoError(t, err)
	assert.NotNil(t, client.Transport)
}

func TestBuildTLSConfigLoadsMaterial(t *testing.T) {
	certPath, keyPath := writeKeyPair(t)

	cfg, err := buildTLSConfig(TLSConfig{CAPath: certPath, CertPath: certPath, KeyPath: keyPath})
	require.NoError(t, err)
	assert.NotNil(t, cfg.RootCAs)
	assert.Len(t, cfg.Certificates, 1)
}

func TestBuildTLSConfigErrors(t *testing.T) {
	dir := t.TempDir()
	garbage := filepath.Join(dir, "garbage.pem")
	require.NoError(t, os.WriteFile(garbage, []byte("not a certificate"), 0o600))
	certPath, _ := writeKeyPair(t)

	tests := []struct {
		name    string
		cfg     TLSConfig
		wantErr string
	}{
		{"missing ca", TLSConfig{CAPath: filepath.Join(dir, "absent.pem")}, "failed to read CA certificate"},
		{"unparsable ca", TLSConfig{CAPath: garbage}, "failed to parse CA certificate"},
		{"cert without key", TLSConfig{CertPath: certPath}, "must be set together"},
		{"key without cert", TLSConfig{KeyPath: certPath}, "must be set together"},
		{"mismatched pair", TLSConfig{CertPath: certPath, KeyPath: garbage}, "failed to load client certificate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildTLSConfig(tt.cfg)
			assert.ErrorContains(t, err, tt.wantErr)

			_, err = NewHTTPClient(tt.cfg)
			assert.Error(t, err)
		})
	}
}

// writeKeyPair writes a self-signed certificate and its key as PEM files.
func writeKeyPair(t *testing.T) (certPath, keyPath string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "featureprobe-test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	certPath = filepath.Join(dir, "client.cert.pem")
	keyPath = filepath.Join(dir, "client.key.pem")
	require.NoError(t, os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certPath, keyPath
}
