package session

import (
	"github.com/steplock/steplock/metrics"
	"github.com/steplock/steplock/protocol"
)

// UpdateFrame is the per-tick entry point, driven once per host frame by the
// external tick loop. While the link is Connected it gates on the peer's
// frame signal (the sole blocking point on the tick path), then drains the
// current frame's messages, runs the fixed-step loop, invokes the per-frame
// callback and flushes outgoing traffic as a single write.
//
// Before Connected it only feeds the frame-rate probe and returns, so the
// host can keep ticking through the handshake.
func (s *Session) UpdateFrame() {
	s.qmu.Lock()
	if s.state != StateConnected {
		s.qmu.Unlock()
		s.frameProbe.Add(1)
		return
	}

	for s.enterUpdate == 0 && s.state == StateConnected {
		s.qcond.Wait()
	}
	if s.state != StateConnected {
		s.qmu.Unlock()
		return
	}

	s.enterUpdate--
	s.enterFixedUpdate += s.syncedDelta
	s.currentFrame++

	frame := s.queue.takeFrame()

	// consume accumulated simulated time; the replaying peer still drains
	// it but runs its callbacks off the peer's markers instead
	steps := 0
	for s.enterFixedUpdate >= s.fixedDelta {
		s.enterFixedUpdate -= s.fixedDelta
		steps++
	}

	authoritative := s.role == RoleServer && s.mode == SimulateServer
	replaying := s.role == RoleClient && s.mode == SimulateServer
	s.qmu.Unlock()

	s.dispatchFrame(frame, replaying)

	if !replaying {
		for i := 0; i < steps; i++ {
			s.handler.OnFixedFrameUpdate()
			if authoritative {
				s.appendOutgoing(protocol.AppendOnUpdate(nil))
				s.appendOutgoing(protocol.AppendPhysics(nil))
			}
			s.physics.Step(s.fixedDelta)
			metrics.FixedSteps.Inc()
		}
	}

	s.handler.OnFrameUpdate()

	s.appendOutgoing(protocol.AppendEndOfFrame(nil))
	if err := s.flushOutgoing(); err != nil && !s.closed.Load() {
		s.logger.Error().Err(err).Msg("frame flush failed")
		s.terminate(ExitNoResponse)
		return
	}
	metrics.FramesAdvanced.Inc()
}

// dispatchFrame walks one frame's worth of queued messages in arrival order.
// Custom payloads go to the handler; on the replaying peer the Physics and
// OnUpdate markers drive the fixed-step callbacks the authoritative side
// already ran.
func (s *Session) dispatchFrame(frame []byte, replaying bool) {
	off := 0
	for off < len(frame) {
		n, err := protocol.MessageLength(frame[off:])
		if err != nil {
			s.logger.Error().Err(err).Msg("queued frame corrupted")
			return
		}
		msg := frame[off : off+n]
		switch msg[0] {
		case protocol.OpCustomMessage:
			payload, derr := protocol.DecodeCustom(msg)
			if derr == nil {
				s.handler.OnCustomMessage(payload)
			}
		case protocol.OpOnUpdate:
			if replaying {
				s.handler.OnFixedFrameUpdate()
			}
		case protocol.OpPhysics:
			if replaying {
				s.physics.Step(s.fixedDelta)
			}
		case protocol.OpEndOfFrame, protocol.OpSetBreakpoint:
			// boundary markers, nothing to apply
		}
		off += n
	}
}
