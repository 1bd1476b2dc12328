package run

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/rs/zerolog"

	"github.com/steplock/steplock/session"
)

// hostFrameInterval is the cadence the demo tick driver runs at.
const hostFrameInterval = 16 * time.Millisecond

// demoHandler is the sample host: it logs incoming payloads and echoes an
// incrementing 8-byte counter to the peer once a second's worth of frames.
type demoHandler struct {
	sess    *session.Session
	logger  zerolog.Logger
	counter uint64
}

func (h *demoHandler) OnFrameUpdate() {
	if h.sess.Frame()%60 != 0 {
		return
	}
	var payload [8]byte
	binary.BigEndian.PutUint64(payload[:], h.counter)
	h.counter++
	h.sess.SendMessage(payload[:])
}

func (h *demoHandler) OnFixedFrameUpdate() {}

func (h *demoHandler) OnCustomMessage(payload []byte) {
	if len(payload) == 8 {
		h.logger.Info().
			Uint64("counter", binary.BigEndian.Uint64(payload)).
			Uint64("frame", h.sess.Frame()).
			Msg("peer payload")
		return
	}
	h.logger.Info().Int("bytes", len(payload)).Msg("peer payload")
}

// demoPhysics counts steps in place of a real simulation engine.
type demoPhysics struct {
	steps uint64
}

func (p *demoPhysics) Step(_ float64) { p.steps++ }

// driveHost runs the external tick loop and a periodic status line until the
// context is cancelled or the session closes.
func driveHost(ctx context.Context, s *session.Session, logger zerolog.Logger) {
	ticker := time.NewTicker(hostFrameInterval)
	defer ticker.Stop()
	status := time.NewTicker(time.Second)
	defer status.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.UpdateFrame()
			if s.State() == session.StateClosed {
				return
			}
		case <-status.C:
			if b, err := s.StatusJSON(); err == nil {
				logger.Info().RawJSON("status", b).Msg("session status")
			}
		}
	}
}
