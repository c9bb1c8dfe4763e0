package telemetry

import (
	"context"
	"encoding/pem"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientTLS(t *testing.T) {
	dir := t.TempDir()

	srv := httptest.NewTLSServer(nil)
	defer srv.Close()
	good := filepath.Join(dir, "collector-ca.pem")
	require.NoError(t, os.WriteFile(good, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: srv.Certificate().Raw}), 0o600))
	junk := filepath.Join(dir, "junk.pem")
	require.NoError(t, os.WriteFile(junk, []byte("not a certificate"), 0o600))

	cfg := NewDefaultConfig()
	got, err := clientTLS(cfg)
	require.NoError(t, err)
	assert.Nil(t, got)

	cfg.CAFile = good
	got, err = clientTLS(cfg)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.NotNil(t, got.RootCAs)

	cfg.CAFile = junk
	_, err = clientTLS(cfg)
	assert.ErrorContains(t, err, "no certificates")

	cfg.CAFile = filepath.Join(dir, "missing.pem")
	_, err = clientTLS(cfg)
	assert.ErrorContains(t, err, "collector CA")
}

func TestNew_BadCADegrades(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.Insecure = false
	cfg.CAFile = filepath.Join(t.TempDir(), "missing.pem")

	tel, err := New(context.Background(), cfg)
	require.NoError(t, err)
	h := tel.Health()
	assert.True(t, h.Degraded)
	assert.Contains(t, h.Reason, "collector CA")
	assert.Nil(t, tel.tracers)
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestConfig_CAFileNeedsTLS(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Enabled = true
	cfg.CAFile = "/etc/refundd/collector-ca.pem"
	assert.ErrorContains(t, cfg.Validate(), "ca file")

	cfg.Insecure = false
	assert.NoError(t, cfg.Validate())
}
