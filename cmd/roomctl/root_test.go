package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalURL(t *testing.T) {
	u, err := signalURL("http://localhost:8080")
	require.NoError(t, err)
	assert.Equal(t, "ws://localhost:8080/api/ws/signal", u)

	u, err = signalURL("https://huddle.example/")
	require.NoError(t, err)
	assert.Equal(t, "wss://huddle.example/api/ws/signal", u)

	_, err = signalURL("ftp://x")
	assert.Error(t, err)
}

func TestRecoveryConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
recovery:
  max_retries: 4
  base_delay: 20ms
  max_delay: 50ms
`), 0o600))
	flagConfig = path
	t.Cleanup(func() { flagConfig = "" })

	rc, err := recoveryConfig()
	require.NoError(t, err)
	assert.Equal(t, 4, rc.MaxRetries)
	assert.Equal(t, 20*time.Millisecond, rc.Backoff(1))
	assert.Equal(t, 50*time.Millisecond, rc.Backoff(3))
}
