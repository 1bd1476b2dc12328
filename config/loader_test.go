package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadServerConfig(t *testing.T) {
	path := writeTemp(t, `
listen:
  ip: 127.0.0.1
  port: 12345
lockstep:
  fixed_delta: 0.01
  simulator: server
timeouts:
  read: 5s
`)

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Listen.IP)
	assert.Equal(t, 12345, cfg.Listen.Port)
	assert.Equal(t, 0.01, cfg.Lockstep.FixedDelta)
	assert.Equal(t, "server", cfg.Lockstep.Simulator)
	assert.Equal(t, 5*time.Second, cfg.Timeouts.Read)

	// unset fields get defaults
	assert.NotEmpty(t, cfg.SessionID)
	assert.Equal(t, DefaultConnectTimeout, cfg.Timeouts.Connect)
	assert.Equal(t, DefaultFrameRateWindow, cfg.Lockstep.FrameRateWindow)
}

func TestLoadServerConfig_Missing(t *testing.T) {
	_, err := LoadServerConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadServerConfig_Malformed(t *testing.T) {
	path := writeTemp(t, "listen: [not a mapping")
	_, err := LoadServerConfig(path)
	assert.Error(t, err)
}

func TestLoadClientConfig(t *testing.T) {
	path := writeTemp(t, `
server:
  host: 10.0.0.7
  port: 11111
`)

	cfg, err := LoadClientConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.7:11111", cfg.Server.Addr())
	assert.Equal(t, DefaultFixedDelta, cfg.Lockstep.FixedDelta)
}

func TestLoadClientConfig_InvalidHost(t *testing.T) {
	path := writeTemp(t, `
server:
  host: not-an-ip
  port: 11111
`)
	_, err := LoadClientConfig(path)
	assert.Error(t, err)
}
