package session

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/steplock/steplock/config"
	"github.com/steplock/steplock/protocol"
)

// TestMain ensures no worker goroutine outlives its session across all
// tests in this package.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func testLockstep() config.Lockstep {
	return config.Lockstep{
		FixedDelta:      0.02,
		Simulator:       "both",
		FrameRateWindow: 30 * time.Millisecond,
	}
}

func testTimeouts() config.Timeouts {
	return config.Timeouts{
		Connect:   2 * time.Second,
		Read:      2 * time.Second,
		Handshake: 2 * time.Second,
	}
}

func testServerConfig(port int) *config.Server {
	return &config.Server{
		Listen:   config.Listen{IP: "127.0.0.1", Port: port},
		Lockstep: testLockstep(),
		Timeouts: testTimeouts(),
	}
}

func testClientConfig(port int) *config.Client {
	return &config.Client{
		Server:   config.Endpoint{Host: "127.0.0.1", Port: port},
		Lockstep: testLockstep(),
		Timeouts: testTimeouts(),
	}
}

// scriptedHandler counts callbacks and runs an optional per-frame script.
type scriptedHandler struct {
	*countingHandler
	onFrame func()
}

func newScriptedHandler() *scriptedHandler {
	return &scriptedHandler{countingHandler: newCountingHandler()}
}

func (h *scriptedHandler) OnFrameUpdate() {
	h.countingHandler.OnFrameUpdate()
	if h.onFrame != nil {
		h.onFrame()
	}
}

// driveUntilClosed runs the external tick loop the way a host would; the
// returned channel closes when the session reaches Closed.
func driveUntilClosed(s *Session) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			s.UpdateFrame()
			if s.State() == StateClosed {
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
	}()
	return done
}

func waitState(t *testing.T, s *Session, want State, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if s.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state never reached %v, still %v (exit %v)", want, s.State(), s.ExitCode())
}

// Both sides reach Connected through the full handshake, with correct role
// flags and an identical negotiated tick duration.
func TestHandshake_BothSidesReachConnected(t *testing.T) {
	port := freePort(t)

	server, err := Serve(testServerConfig(port), nil, nil)
	require.NoError(t, err)
	serverDone := driveUntilClosed(server)

	client, err := Connect(testClientConfig(port), nil, nil)
	require.NoError(t, err)
	clientDone := driveUntilClosed(client)

	waitState(t, server, StateConnected, 5*time.Second)
	waitState(t, client, StateConnected, 5*time.Second)

	assert.Equal(t, RoleServer, server.Role())
	assert.Equal(t, RoleClient, client.Role())
	assert.Greater(t, server.SyncedDelta(), 0.0)
	assert.InDelta(t, server.SyncedDelta(), client.SyncedDelta(), 1e-6,
		"client adopts the server's derived tick duration")

	client.Close()
	server.Close()
	<-serverDone
	<-clientDone
}

// An orderly shutdown on one side transitions the peer to Closed with
// ExitNone.
func TestOrderlyShutdown_PeerClosesWithExitNone(t *testing.T) {
	port := freePort(t)

	server, err := Serve(testServerConfig(port), nil, nil)
	require.NoError(t, err)
	serverDone := driveUntilClosed(server)

	client, err := Connect(testClientConfig(port), nil, nil)
	require.NoError(t, err)
	clientDone := driveUntilClosed(client)

	waitState(t, client, StateConnected, 5*time.Second)

	server.Close()
	waitState(t, client, StateClosed, 2*time.Second)
	assert.Equal(t, ExitNone, client.ExitCode())

	client.Close()
	<-serverDone
	<-clientDone
}

// A payload sent during frame N is observed by the peer byte-identically no
// later than its frame N+1.
func TestCustomPayload_DeliveredNextFrame(t *testing.T) {
	port := freePort(t)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04}

	serverHandler := newScriptedHandler()
	server, err := Serve(testServerConfig(port), serverHandler, nil)
	require.NoError(t, err)

	var sendOnce sync.Once
	serverHandler.onFrame = func() {
		sendOnce.Do(func() { server.SendMessage(payload) })
	}
	serverDone := driveUntilClosed(server)

	clientHandler := newScriptedHandler()
	client, err := Connect(testClientConfig(port), clientHandler, nil)
	require.NoError(t, err)
	clientDone := driveUntilClosed(client)

	waitState(t, client, StateConnected, 5*time.Second)

	select {
	case got := <-clientHandler.customMsgs:
		assert.Equal(t, payload, got)
	case <-time.After(3 * time.Second):
		t.Fatal("payload never delivered")
	}

	client.Close()
	server.Close()
	<-serverDone
	<-clientDone
}

// A read exceeding the configured deadline while Connected converts into
// ExitNoResponse.
func TestReadDeadline_ClosesWithNoResponse(t *testing.T) {
	lockstep := testLockstep()
	timeouts := testTimeouts()
	timeouts.Read = 100 * time.Millisecond

	s := newSession(RoleClient, "test", lockstep, timeouts, nil, nil)
	local, remote := net.Pipe()
	defer remote.Close()
	s.conn = local
	s.state = StateConnected

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.receiveLoop(local) // no traffic ever arrives
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop never gave up")
	}
	assert.Equal(t, StateClosed, s.State())
	assert.Equal(t, ExitNoResponse, s.ExitCode())
	s.Close()
}

// A second inbound connection is told the room is full and closed, without
// ever being adopted or disturbing the active link.
func TestAdmissionControl_ExtraPeerRejected(t *testing.T) {
	port := freePort(t)

	server, err := Serve(testServerConfig(port), nil, nil)
	require.NoError(t, err)
	defer server.Close()

	first, err := net.Dial("tcp4", server.Addr().String())
	require.NoError(t, err)
	defer first.Close()

	// the first peer is adopted: the server opens with a Simulator message
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	opening := make([]byte, 2)
	_, err = first.Read(opening)
	require.NoError(t, err)
	assert.Equal(t, byte(protocol.OpSimulator), opening[0])

	second, err := net.Dial("tcp4", server.Addr().String())
	require.NoError(t, err)
	defer second.Close()

	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	rejection := make([]byte, protocol.SetStatusLen)
	_, err = second.Read(rejection)
	require.NoError(t, err)
	state, exit, err := protocol.DecodeSetStatus(rejection)
	require.NoError(t, err)
	assert.Equal(t, byte(StateClosed), state)
	assert.Equal(t, byte(ExitRoomIsFull), exit)

	// rejected socket is closed by the server
	_, err = second.Read(make([]byte, 1))
	assert.Error(t, err)

	// active link unaffected
	assert.NotEqual(t, StateClosed, server.State())
}

func TestClose_Idempotent(t *testing.T) {
	server, err := Serve(testServerConfig(freePort(t)), nil, nil)
	require.NoError(t, err)

	server.Close()
	exit := server.ExitCode()
	server.Close() // second close: no panic, no new side effects

	assert.Equal(t, StateClosed, server.State())
	assert.Equal(t, exit, server.ExitCode())
}

func TestConnect_RefusedSetsDenied(t *testing.T) {
	port := freePort(t) // nobody listens here

	client, err := Connect(testClientConfig(port), nil, nil)
	require.NoError(t, err, "connect failures surface asynchronously")

	waitState(t, client, StateClosed, 5*time.Second)
	assert.Equal(t, ExitDenied, client.ExitCode())
	client.Close()
}

func TestConnect_InvalidAddressFailsFast(t *testing.T) {
	cfg := testClientConfig(1234)
	cfg.Server.Host = "definitely-not-an-ip"

	_, err := Connect(cfg, nil, nil)
	assert.Error(t, err)
}

func TestServe_PortCollisionFails(t *testing.T) {
	port := freePort(t)
	first, err := Serve(testServerConfig(port), nil, nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = Serve(testServerConfig(port), nil, nil)
	assert.Error(t, err)
}

func TestSnapshot_ReflectsState(t *testing.T) {
	server, err := Serve(testServerConfig(freePort(t)), nil, nil)
	require.NoError(t, err)

	st := server.Snapshot()
	assert.Equal(t, "server", st.Role)
	assert.Equal(t, "not_connected", st.State)
	assert.Equal(t, "none", st.ExitCode)

	b, err := server.StatusJSON()
	require.NoError(t, err)
	assert.Contains(t, string(b), `"state":"not_connected"`)

	server.Close()
	st = server.Snapshot()
	assert.Equal(t, "closed", st.State)
}
