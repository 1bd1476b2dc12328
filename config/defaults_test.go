package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerApplyDefaults(t *testing.T) {
	var cfg Server
	cfg.ApplyDefaults()

	assert.Equal(t, "0.0.0.0", cfg.Listen.IP)
	assert.Equal(t, DefaultPort, cfg.Listen.Port)
	assert.Equal(t, DefaultSimulator, cfg.Lockstep.Simulator)
	assert.Equal(t, DefaultFixedDelta, cfg.Lockstep.FixedDelta)
	assert.Equal(t, DefaultReadTimeout, cfg.Timeouts.Read)
	assert.Equal(t, DefaultHandshakeTimeout, cfg.Timeouts.Handshake)
	assert.NotEmpty(t, cfg.SessionID)
}

func TestClientApplyDefaults(t *testing.T) {
	var cfg Client
	cfg.ApplyDefaults()

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, DefaultPort, cfg.Server.Port)
	assert.Equal(t, DefaultConnectTimeout, cfg.Timeouts.Connect)
	require.NoError(t, cfg.Server.Validate())
}

func TestApplyDefaults_PreservesExplicitValues(t *testing.T) {
	cfg := Server{
		SessionID: "fixed",
		Listen:    Listen{IP: "192.168.1.5", Port: 2222},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, "fixed", cfg.SessionID)
	assert.Equal(t, "192.168.1.5", cfg.Listen.IP)
	assert.Equal(t, 2222, cfg.Listen.Port)
}

func TestGenerateSessionID_Unique(t *testing.T) {
	a := GenerateSessionID()
	b := GenerateSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestListenGetIP(t *testing.T) {
	ip, err := Listen{IP: "127.0.0.1"}.GetIP()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip.String())

	_, err = Listen{IP: "garbage"}.GetIP()
	assert.Error(t, err)
}

func TestEndpointValidate(t *testing.T) {
	assert.NoError(t, Endpoint{Host: "10.1.2.3", Port: 11111}.Validate())
	assert.Error(t, Endpoint{Host: "example.com", Port: 11111}.Validate())
}
