package config

import (
	"fmt"
	"net"
	"time"
)

const (
	EnvPrefix = "STEPLOCK_"
)

type Listen struct {
	IP   string `yaml:"ip"`
	Port int    `yaml:"port"`
}

func (l Listen) GetIP() (net.IP, error) {
	ip := net.ParseIP(l.IP)
	if ip == nil {
		return nil, fmt.Errorf("invalid ip address: %s", l.IP)
	}
	return ip, nil
}

// Lockstep holds the simulation-side tuning shared by both roles.
type Lockstep struct {
	// FixedDelta is the fixed sub-step duration in seconds handed to the
	// physics collaborator. Constant for the lifetime of a link.
	FixedDelta float64 `yaml:"fixed_delta"`

	// Simulator selects who steps the shared physics: "both" or "server".
	Simulator string `yaml:"simulator"`

	// FrameRateWindow is the real-time window the handshake samples the
	// host frame interval over.
	FrameRateWindow time.Duration `yaml:"frame_rate_window"`
}

// Timeouts bound every blocking transport and handshake operation so a dead
// peer converts into an exit code instead of a stuck worker.
type Timeouts struct {
	Connect   time.Duration `yaml:"connect"`   // transport-level connect bound
	Read      time.Duration `yaml:"read"`      // per-read deadline while linked
	Handshake time.Duration `yaml:"handshake"` // per-sample ping/pong bound
}

func (t *Timeouts) applyDefaults() {
	if t.Connect == 0 {
		t.Connect = DefaultConnectTimeout
	}
	if t.Read == 0 {
		t.Read = DefaultReadTimeout
	}
	if t.Handshake == 0 {
		t.Handshake = DefaultHandshakeTimeout
	}
}

func (l *Lockstep) applyDefaults() {
	if l.FixedDelta == 0 {
		l.FixedDelta = DefaultFixedDelta
	}
	if l.Simulator == "" {
		l.Simulator = DefaultSimulator
	}
	if l.FrameRateWindow == 0 {
		l.FrameRateWindow = DefaultFrameRateWindow
	}
}
