package config

import (
	"fmt"
	"net"
)

type Client struct {
	SessionID string   `yaml:"session_id"`
	Server    Endpoint `yaml:"server"`
	Lockstep  Lockstep `yaml:"lockstep"`
	Timeouts  Timeouts `yaml:"timeouts"`
}

// Endpoint is the server address the client dials.
type Endpoint struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Validate checks that the endpoint host parses as an IP address. Connect
// failures past this point surface asynchronously through the exit code.
func (e Endpoint) Validate() error {
	if net.ParseIP(e.Host) == nil {
		return fmt.Errorf("invalid server address: %s", e.Host)
	}
	return nil
}

// Addr returns the host:port dial string.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, fmt.Sprintf("%d", e.Port))
}

// ApplyDefaults fills in zero-valued fields with defaults.
func (c *Client) ApplyDefaults() {
	if c.SessionID == "" {
		c.SessionID = GenerateSessionID()
	}
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = DefaultPort
	}
	c.Lockstep.applyDefaults()
	c.Timeouts.applyDefaults()
}
