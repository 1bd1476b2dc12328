package session

import (
	"math"
	"time"

	"github.com/steplock/steplock/metrics"
	"github.com/steplock/steplock/protocol"
)

// runHandshake is the server's negotiation worker: it announces the
// simulator mode, measures round-trip latency over latencySamples ping/pong
// exchanges, collects both sides' frame intervals and derives the
// synchronized tick duration from the slowest contributor. The client's half
// is passive and lives in dispatchWire.
func (s *Session) runHandshake() {
	logger := s.logger.With().Str("com", "handshake").Logger()

	s.appendOutgoing(protocol.AppendSimulator(nil, byte(s.Mode())))
	if err := s.flushOutgoing(); err != nil {
		s.terminate(ExitNoResponse)
		return
	}

	s.lmu.Lock()
	s.latencySum = 0
	s.lmu.Unlock()

	for i := 0; i < latencySamples; i++ {
		s.lmu.Lock()
		s.pongReceived = false
		s.lmu.Unlock()

		s.appendOutgoing(protocol.AppendPing(nil))
		if err := s.flushOutgoing(); err != nil {
			s.terminate(ExitNoResponse)
			return
		}
		start := time.Now()

		s.lmu.Lock()
		if !s.waitLatency(func() bool { return s.pongReceived }) {
			s.lmu.Unlock()
			logger.Error().Int("sample", i).Msg("pong never arrived")
			s.terminate(ExitNoResponse)
			return
		}
		rtt := time.Since(start)
		// one-way estimate: half the round trip, in seconds
		s.latencySum += rtt.Seconds() / 2
		s.lmu.Unlock()

		metrics.HandshakeRTT.Observe(rtt.Seconds())
	}

	s.lmu.Lock()
	avg := s.latencySum / float64(latencySamples)
	s.avgLatency = avg
	s.lmu.Unlock()

	serverInterval := s.measureFrameInterval()

	s.lmu.Lock()
	s.rateReceived = false
	s.lmu.Unlock()

	s.appendOutgoing(protocol.AppendServerFrameRate(nil))
	if err := s.flushOutgoing(); err != nil {
		s.terminate(ExitNoResponse)
		return
	}

	s.lmu.Lock()
	if !s.waitLatency(func() bool { return s.rateReceived }) {
		s.lmu.Unlock()
		logger.Error().Msg("client frame interval never arrived")
		s.terminate(ExitNoResponse)
		return
	}
	clientInterval := s.peerInterval
	s.lmu.Unlock()

	synced := DeriveSyncedDelta(avg, clientInterval, serverInterval)

	s.appendOutgoing(protocol.AppendSyncFrameRate(nil, float32(synced), avg))
	if err := s.flushOutgoing(); err != nil {
		s.terminate(ExitNoResponse)
		return
	}

	s.qmu.Lock()
	s.syncedDelta = synced
	if s.state == StateConnecting {
		s.state = StateConnected
	}
	s.qcond.Broadcast()
	s.qmu.Unlock()

	logger.Info().
		Float64("latency", avg).
		Float64("server_interval", serverInterval).
		Float64("client_interval", clientInterval).
		Float64("synced_delta", synced).
		Msg("handshake complete")
}

// DeriveSyncedDelta picks the common tick duration: the slowest of the
// averaged one-way latency and the two measured frame intervals, so neither
// side is asked to run faster than it demonstrably can.
func DeriveSyncedDelta(avgLatency, clientInterval, serverInterval float64) float64 {
	return math.Max(avgLatency, math.Max(clientInterval, serverInterval))
}

// waitLatency blocks on the latency condition variable until pred holds,
// the session closes or the handshake deadline passes. The caller holds lmu.
func (s *Session) waitLatency(pred func() bool) bool {
	deadline := time.Now().Add(s.handshakeTimeout)
	timer := time.AfterFunc(s.handshakeTimeout, func() {
		s.lmu.Lock()
		s.lcond.Broadcast()
		s.lmu.Unlock()
	})
	defer timer.Stop()

	for !pred() {
		if s.closed.Load() || !time.Now().Before(deadline) {
			return false
		}
		s.lcond.Wait()
	}
	return true
}

// measureFrameInterval samples the host's frame counter over the configured
// real-time window and returns the average seconds per frame. A host that
// never ticked during the window counts as one frame per window.
func (s *Session) measureFrameInterval() float64 {
	start := s.frameProbe.Load()
	time.Sleep(s.frameRateWindow)
	frames := s.frameProbe.Load() - start
	if frames == 0 {
		return s.frameRateWindow.Seconds()
	}
	return s.frameRateWindow.Seconds() / float64(frames)
}
