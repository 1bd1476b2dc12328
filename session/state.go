package session

import "github.com/steplock/steplock/protocol"

// State is the link lifecycle state. The only forward path is Closed →
// NotConnected → Connecting → Connected; any state may drop to Closed.
type State byte

const (
	StateClosed State = iota
	StateNotConnected
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateNotConnected:
		return "not_connected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// ExitCode explains why a link reached Closed. It is set at most once,
// immediately before the transition, and stays readable afterward.
type ExitCode byte

const (
	ExitNone ExitCode = iota
	ExitRoomIsFull
	ExitDenied
	ExitTimeout
	ExitNoResponse
)

func (e ExitCode) String() string {
	switch e {
	case ExitNone:
		return "none"
	case ExitRoomIsFull:
		return "room_is_full"
	case ExitDenied:
		return "denied"
	case ExitTimeout:
		return "timeout"
	case ExitNoResponse:
		return "no_response"
	default:
		return "unknown"
	}
}

// Role is fixed for the lifetime of one session.
type Role byte

const (
	RoleServer Role = iota
	RoleClient
)

func (r Role) String() string {
	if r == RoleServer {
		return "server"
	}
	return "client"
}

// SimulatorMode determines who steps the shared physics.
type SimulatorMode byte

const (
	// SimulateBoth has both peers step physics independently.
	SimulateBoth SimulatorMode = protocol.SimulatorBoth
	// SimulateServer has the server alone step physics and stream the
	// step markers to the client for replay.
	SimulateServer SimulatorMode = protocol.SimulatorServer
)

func (m SimulatorMode) String() string {
	if m == SimulateServer {
		return "server"
	}
	return "both"
}

// ParseSimulatorMode maps the configuration string to a mode. Unrecognized
// values fall back to SimulateBoth.
func ParseSimulatorMode(s string) SimulatorMode {
	if s == "server" {
		return SimulateServer
	}
	return SimulateBoth
}
