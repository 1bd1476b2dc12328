package config

import (
	"time"

	"github.com/google/uuid"
)

// Default timeout and tuning values
const (
	// DefaultPort is the TCP port used when none is configured
	DefaultPort = 11111

	// DefaultConnectTimeout bounds the client's transport-level connect
	DefaultConnectTimeout = 30 * time.Second

	// DefaultReadTimeout is the per-read deadline on the receive loop
	DefaultReadTimeout = 30 * time.Second

	// DefaultHandshakeTimeout bounds each ping/pong and frame-rate exchange
	DefaultHandshakeTimeout = 10 * time.Second

	// DefaultFixedDelta is the fixed physics sub-step in seconds
	DefaultFixedDelta = 0.02

	// DefaultFrameRateWindow is how long the handshake samples the host
	// frame interval for
	DefaultFrameRateWindow = 500 * time.Millisecond

	// DefaultSimulator is the simulator mode used when none is configured
	DefaultSimulator = "both"
)

// GenerateSessionID generates a new UUID for log correlation across the two
// peers of a link.
func GenerateSessionID() string {
	return uuid.New().String()
}
