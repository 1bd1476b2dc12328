// Package session implements a two-peer lockstep link over a single TCP
// connection: one side serves, one side dials, the handshake negotiates a
// common tick duration, and afterwards both sides advance simulation frames
// in the same order at the slower peer's pace.
package session

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/steplock/steplock/config"
	"github.com/steplock/steplock/metrics"
	"github.com/steplock/steplock/protocol"
)

// Handler receives the per-frame callbacks. All methods run synchronously on
// the tick path; SendMessage may be called from any of them.
type Handler interface {
	// OnFrameUpdate runs once per synchronized frame.
	OnFrameUpdate()
	// OnFixedFrameUpdate runs once per fixed sub-step.
	OnFixedFrameUpdate()
	// OnCustomMessage delivers an opaque payload sent by the peer. The
	// slice is only valid for the duration of the call.
	OnCustomMessage(payload []byte)
}

// Physics is the external simulation collaborator stepped once per fixed
// sub-step by whichever side is authoritative.
type Physics interface {
	Step(fixedDelta float64)
}

type nopHandler struct{}

func (nopHandler) OnFrameUpdate()           {}
func (nopHandler) OnFixedFrameUpdate()      {}
func (nopHandler) OnCustomMessage(_ []byte) {}

type nopPhysics struct{}

func (nopPhysics) Step(_ float64) {}

// latencySamples is the number of ping/pong round trips the handshake
// averages over.
const latencySamples = 20

// Session owns one lockstep link: the transport handles, the worker
// goroutines and the frame synchronization state. Create one with Serve or
// Connect; a Closed session is not reusable.
type Session struct {
	id     string
	logger zerolog.Logger
	role   Role

	handler Handler
	physics Physics

	fixedDelta       float64
	frameRateWindow  time.Duration
	readTimeout      time.Duration
	connectTimeout   time.Duration
	handshakeTimeout time.Duration

	// queue domain: shared between the receive worker and the tick path.
	qmu              sync.Mutex
	qcond            *sync.Cond
	queue            *messageQueue
	enterUpdate      int
	enterFixedUpdate float64
	currentFrame     uint64
	syncedDelta      float64
	state            State
	exit             ExitCode
	mode             SimulatorMode
	conn             net.Conn

	// latency domain: shared between the handshake worker and the
	// receive worker's decode step.
	lmu          sync.Mutex
	lcond        *sync.Cond
	latencySum   float64
	avgLatency   float64
	peerInterval float64
	pongReceived bool
	rateReceived bool

	// sendBuf is tick-local: written by the handshake worker before
	// Connected and by the tick path after, never concurrently.
	sendBuf []byte

	// frameProbe counts host frames while not Connected; the handshake
	// samples it to measure the host frame interval.
	frameProbe atomic.Uint64

	listener  net.Listener
	closed    atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func newSession(role Role, id string, lockstep config.Lockstep, timeouts config.Timeouts, handler Handler, physics Physics) *Session {
	if handler == nil {
		handler = nopHandler{}
	}
	if physics == nil {
		physics = nopPhysics{}
	}
	s := &Session{
		id:      id,
		role:    role,
		handler: handler,
		physics: physics,

		fixedDelta:       lockstep.FixedDelta,
		frameRateWindow:  lockstep.FrameRateWindow,
		readTimeout:      timeouts.Read,
		connectTimeout:   timeouts.Connect,
		handshakeTimeout: timeouts.Handshake,

		queue:   newMessageQueue(protocol.StagingCapacity),
		sendBuf: make([]byte, 0, protocol.StagingCapacity),
		mode:    ParseSimulatorMode(lockstep.Simulator),
		state:   StateNotConnected,
	}
	s.qcond = sync.NewCond(&s.qmu)
	s.lcond = sync.NewCond(&s.lmu)
	s.logger = log.With().
		Str("com", "session").
		Str("role", role.String()).
		Str("session_id", id).
		Logger()
	return s
}

// Serve resolves and binds the local address, starts listening and spawns
// the accept worker. The first inbound peer becomes the active link; later
// ones are rejected. The server is primed to enter its first tick without
// waiting for the peer.
func Serve(cfg *config.Server, handler Handler, physics Physics) (*Session, error) {
	cfg.ApplyDefaults()

	ip, err := cfg.Listen.GetIP()
	if err != nil {
		return nil, err
	}
	listener, err := net.ListenTCP("tcp4", &net.TCPAddr{IP: ip, Port: cfg.Listen.Port})
	if err != nil {
		return nil, err
	}

	s := newSession(RoleServer, cfg.SessionID, cfg.Lockstep, cfg.Timeouts, handler, physics)
	s.listener = listener
	s.enterUpdate = 1

	s.logger.Info().
		Stringer("addr", listener.Addr()).
		Stringer("simulator", s.mode).
		Msg("listening")

	s.wg.Add(1)
	go s.acceptLoop()
	return s, nil
}

// Connect validates the server address and spawns the connect worker. Only
// construction failures are returned here; connect failures past this point
// surface asynchronously through the exit code. The client waits for the
// server's first frame signal before entering its first tick.
func Connect(cfg *config.Client, handler Handler, physics Physics) (*Session, error) {
	cfg.ApplyDefaults()

	if err := cfg.Server.Validate(); err != nil {
		return nil, err
	}

	s := newSession(RoleClient, cfg.SessionID, cfg.Lockstep, cfg.Timeouts, handler, physics)
	s.enterUpdate = 0

	s.logger.Info().Str("server", cfg.Server.Addr()).Msg("connecting")

	s.wg.Add(1)
	go s.connectLoop(cfg.Server.Addr())
	return s, nil
}

// ID returns the session identifier used for log correlation.
func (s *Session) ID() string { return s.id }

// Addr returns the address the server listens on, nil for clients.
func (s *Session) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Role returns which end of the link this session is.
func (s *Session) Role() Role { return s.role }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.state
}

// ExitCode explains why the link closed; ExitNone while live or after an
// orderly shutdown.
func (s *Session) ExitCode() ExitCode {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.exit
}

// Mode returns the simulator mode in effect.
func (s *Session) Mode() SimulatorMode {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.mode
}

// SyncedDelta returns the negotiated tick duration in seconds, 0 before the
// handshake completes.
func (s *Session) SyncedDelta() float64 {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.syncedDelta
}

// FixedDelta returns the fixed sub-step duration in seconds.
func (s *Session) FixedDelta() float64 { return s.fixedDelta }

// Latency returns the averaged one-way latency measured by the handshake.
func (s *Session) Latency() float64 {
	s.lmu.Lock()
	defer s.lmu.Unlock()
	return s.avgLatency
}

// Frame returns the number of synchronized frames completed so far.
func (s *Session) Frame() uint64 {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.currentFrame
}

// SendMessage frames an opaque payload as a CustomMessage and queues it for
// the end-of-tick flush; the peer observes it no later than its next frame.
// Call it from a Handler callback. Oversized payloads are clamped to
// protocol.MaxCustomPayload bytes.
func (s *Session) SendMessage(payload []byte) {
	if len(payload) > protocol.MaxCustomPayload {
		payload = payload[:protocol.MaxCustomPayload]
	}
	msg, err := protocol.AppendCustom(nil, payload)
	if err != nil {
		return
	}
	s.appendOutgoing(msg)
}

// appendOutgoing stages wire bytes in the tick-local send buffer, forcing a
// mid-tick flush when the next message would overflow it. A failed forced
// flush ends the link: continuing would deliver a frame with messages
// silently elided.
func (s *Session) appendOutgoing(msg []byte) {
	if len(s.sendBuf)+len(msg) > cap(s.sendBuf) {
		if err := s.flushOutgoing(); err != nil {
			if !s.closed.Load() {
				s.logger.Error().Err(err).Msg("mid-tick flush failed")
				s.terminate(ExitNoResponse)
			}
			return
		}
	}
	s.sendBuf = append(s.sendBuf, msg...)
	metrics.MessagesSent.WithLabelValues(protocol.OpcodeName(msg[0])).Inc()
}

// flushOutgoing writes the staged bytes as a single transport write.
func (s *Session) flushOutgoing() error {
	if len(s.sendBuf) == 0 {
		return nil
	}
	conn := s.link()
	if conn == nil {
		s.sendBuf = s.sendBuf[:0]
		return net.ErrClosed
	}
	n, err := conn.Write(s.sendBuf)
	s.sendBuf = s.sendBuf[:0]
	if err != nil {
		return err
	}
	metrics.BytesFlushed.Add(float64(n))
	return nil
}

func (s *Session) link() net.Conn {
	s.qmu.Lock()
	defer s.qmu.Unlock()
	return s.conn
}

// terminate records the exit code (first writer wins) and closes the link.
func (s *Session) terminate(code ExitCode) {
	s.qmu.Lock()
	if s.state == StateClosed {
		s.qmu.Unlock()
		return
	}
	if s.exit == ExitNone {
		s.exit = code
	}
	s.qmu.Unlock()
	s.shutdown()
}

// shutdown drives the state machine to Closed, tells the peer, releases the
// transport handles and wakes every waiter on both condition variables. It
// is safe to call from any goroutine and runs at most once.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)

		s.qmu.Lock()
		prev := s.state
		s.state = StateClosed
		code := s.exit
		conn := s.conn
		s.qmu.Unlock()

		if conn != nil && (prev == StateConnecting || prev == StateConnected) {
			// best-effort farewell so the peer learns the exit code
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			conn.Write(protocol.AppendSetStatus(nil, byte(StateClosed), byte(code)))
		}
		if conn != nil {
			conn.Close()
		}
		if s.listener != nil {
			s.listener.Close()
		}

		s.qmu.Lock()
		s.qcond.Broadcast()
		s.qmu.Unlock()
		s.lmu.Lock()
		s.lcond.Broadcast()
		s.lmu.Unlock()

		s.logger.Info().
			Stringer("exit_code", code).
			Stringer("previous_state", prev).
			Msg("session closed")
	})
}

// Close shuts the session down and joins every worker goroutine. It is
// idempotent and must not be called from a Handler callback or a worker.
func (s *Session) Close() {
	s.shutdown()
	s.wg.Wait()
}
