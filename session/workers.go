package session

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/steplock/steplock/metrics"
	"github.com/steplock/steplock/protocol"
)

// acceptLoop adopts the first inbound connection as the active link and
// rejects every later one with a RoomIsFull status.
func (s *Session) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.closed.Load() {
				s.logger.Error().Err(err).Msg("accept failed")
				s.shutdown()
			}
			return
		}

		s.qmu.Lock()
		if s.conn == nil && s.state == StateNotConnected {
			s.conn = conn
			s.state = StateConnecting
			s.qmu.Unlock()

			if tcp, ok := conn.(*net.TCPConn); ok {
				tcp.SetNoDelay(true)
			}
			s.logger.Info().Stringer("peer", conn.RemoteAddr()).Msg("peer connected")

			s.wg.Add(2)
			go func() {
				defer s.wg.Done()
				s.receiveLoop(conn)
			}()
			go func() {
				defer s.wg.Done()
				s.runHandshake()
			}()
			continue
		}
		s.qmu.Unlock()

		// extra peer: tell it the room is taken, never adopt it
		conn.SetWriteDeadline(time.Now().Add(time.Second))
		conn.Write(protocol.AppendSetStatus(nil, byte(StateClosed), byte(ExitRoomIsFull)))
		conn.Close()
		metrics.PeersRejected.Inc()
		s.logger.Warn().Stringer("peer", conn.RemoteAddr()).Msg("rejected extra peer")
	}
}

// connectLoop dials the server with a bounded wait, then runs the receive
// loop on the established link.
func (s *Session) connectLoop(addr string) {
	defer s.wg.Done()

	conn, err := net.DialTimeout("tcp4", addr, s.connectTimeout)
	if err != nil {
		if s.closed.Load() {
			return
		}
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			s.logger.Error().Err(err).Msg("connect timed out")
			s.terminate(ExitTimeout)
		} else {
			s.logger.Error().Err(err).Msg("connect failed")
			s.terminate(ExitDenied)
		}
		return
	}

	s.qmu.Lock()
	if s.state == StateClosed {
		s.qmu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.state = StateConnecting
	s.qmu.Unlock()

	if tcp, ok := conn.(*net.TCPConn); ok {
		tcp.SetNoDelay(true)
	}
	s.logger.Info().Stringer("server", conn.RemoteAddr()).Msg("connected, awaiting handshake")

	s.receiveLoop(conn)
}

// receiveLoop performs the blocking transport reads. A zero-length read
// (orderly peer shutdown) ends the link with ExitNone; an overrun of the
// per-read deadline ends it with ExitNoResponse.
func (s *Session) receiveLoop(conn net.Conn) {
	staging := protocol.NewStagingBuffer()

	for {
		if s.closed.Load() {
			return
		}
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		n, err := conn.Read(staging.Writable())
		if n > 0 {
			staging.Advance(n)
			if derr := s.drainStaging(staging, conn); derr != nil {
				if !s.closed.Load() {
					s.logger.Error().Err(derr).Msg("stream corrupted")
					s.terminate(ExitNoResponse)
				}
				return
			}
		}
		if err != nil {
			if s.closed.Load() {
				return
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info().Msg("peer shut down")
				s.shutdown()
				return
			}
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				s.logger.Error().Dur("deadline", s.readTimeout).Msg("peer stopped responding")
			} else {
				s.logger.Error().Err(err).Msg("read failed")
			}
			s.terminate(ExitNoResponse)
			return
		}
	}
}

// drainStaging decodes every complete message in the staging buffer and
// carries the trailing partial, if any, to the front for the next read.
func (s *Session) drainStaging(staging *protocol.StagingBuffer, conn net.Conn) error {
	data := staging.Bytes()
	off := 0
	for {
		msgLen, err := protocol.MessageLength(data[off:])
		if err == protocol.ErrIncomplete {
			break
		}
		if err != nil {
			return err
		}
		if err := s.dispatchWire(data[off:off+msgLen], conn); err != nil {
			return err
		}
		off += msgLen
	}
	staging.Carry(off)
	return nil
}

// dispatchWire reacts to one decoded message on the receive worker: control
// messages short-circuit in-thread, frame traffic goes into the queue for
// the tick path.
func (s *Session) dispatchWire(msg []byte, conn net.Conn) error {
	metrics.MessagesReceived.WithLabelValues(protocol.OpcodeName(msg[0])).Inc()

	switch msg[0] {
	case protocol.OpPing:
		// auto-reply without queuing
		conn.SetWriteDeadline(time.Now().Add(s.readTimeout))
		if _, err := conn.Write(protocol.AppendPong(nil)); err != nil {
			return err
		}

	case protocol.OpPong:
		s.lmu.Lock()
		s.pongReceived = true
		s.lcond.Signal()
		s.lmu.Unlock()

	case protocol.OpSimulator:
		mode, err := protocol.DecodeSimulator(msg)
		if err != nil {
			return err
		}
		s.qmu.Lock()
		s.mode = SimulatorMode(mode)
		s.qmu.Unlock()
		s.logger.Debug().Stringer("simulator", SimulatorMode(mode)).Msg("adopted simulator mode")

	case protocol.OpServerFrameRate:
		// measure off the receive worker so reads keep flowing
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			interval := s.measureFrameInterval()
			conn.SetWriteDeadline(time.Now().Add(s.readTimeout))
			conn.Write(protocol.AppendClientFrameRate(nil, float32(interval)))
			s.logger.Debug().Float64("interval", interval).Msg("reported frame interval")
		}()

	case protocol.OpClientFrameRate:
		if s.role == RoleServer {
			interval, err := protocol.DecodeClientFrameRate(msg)
			if err != nil {
				return err
			}
			s.lmu.Lock()
			s.peerInterval = float64(interval)
			s.rateReceived = true
			s.lcond.Signal()
			s.lmu.Unlock()
		}

	case protocol.OpSyncFrameRate:
		synced, latency, err := protocol.DecodeSyncFrameRate(msg)
		if err != nil {
			return err
		}
		s.lmu.Lock()
		s.avgLatency = latency
		s.lmu.Unlock()
		s.qmu.Lock()
		s.syncedDelta = float64(synced)
		if s.state == StateConnecting {
			s.state = StateConnected
		}
		s.qcond.Broadcast()
		s.qmu.Unlock()
		s.logger.Info().
			Float64("synced_delta", float64(synced)).
			Float64("latency", latency).
			Msg("adopted negotiated tick duration")

	case protocol.OpSetStatus:
		_, exit, err := protocol.DecodeSetStatus(msg)
		if err != nil {
			return err
		}
		s.logger.Info().Stringer("exit_code", ExitCode(exit)).Msg("peer ended the link")
		s.terminate(ExitCode(exit))

	case protocol.OpEndOfFrame:
		s.qmu.Lock()
		s.queue.push(msg)
		s.queue.markBreakpoint()
		s.enterUpdate++
		s.qcond.Signal()
		s.qmu.Unlock()

	case protocol.OpSetBreakpoint:
		s.qmu.Lock()
		s.queue.push(msg)
		s.queue.markBreakpoint()
		s.qmu.Unlock()

	case protocol.OpOnUpdate:
		// carries its own trailing breakpoint
		s.qmu.Lock()
		s.queue.push(msg)
		s.queue.markBreakpoint()
		s.qmu.Unlock()

	default: // CustomMessage, Physics
		s.qmu.Lock()
		s.queue.push(msg)
		s.qmu.Unlock()
	}
	return nil
}
