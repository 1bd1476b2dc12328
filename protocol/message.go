package protocol

// Opcodes
const (
	OpSetStatus       = 0x01 // Link status + exit code
	OpPing            = 0x02 // Latency probe
	OpPong            = 0x03 // Latency probe reply
	OpClientFrameRate = 0x04 // Client's measured frame interval
	OpServerFrameRate = 0x05 // Request for the client's frame interval
	OpSyncFrameRate   = 0x06 // Negotiated tick duration + average latency
	OpSetBreakpoint   = 0x07 // Frame boundary marker (mid-frame)
	OpEndOfFrame      = 0x08 // Frame boundary marker (tick end)
	OpCustomMessage   = 0x09 // Opaque application payload
	OpPhysics         = 0x0A // Authoritative physics step marker
	OpOnUpdate        = 0x0B // Authoritative fixed-update marker
	OpSimulator       = 0x0C // Simulator mode announcement
)

// Wire sizes. Every message is a 1-byte opcode followed by a fixed-size
// body, except CustomMessage which carries a 2-byte length prefix.
const (
	SetStatusLen       = 3
	PingLen            = 1
	PongLen            = 1
	ClientFrameRateLen = 5
	ServerFrameRateLen = 1
	SyncFrameRateLen   = 13
	SetBreakpointLen   = 1
	EndOfFrameLen      = 1
	CustomHeaderLen    = 3
	PhysicsLen         = 1
	OnUpdateLen        = 2
	SimulatorLen       = 2
)

const (
	// StagingCapacity is the fixed size of the receive staging buffer.
	// It must exceed the largest possible message on the wire.
	StagingCapacity = 1024

	// MaxCustomPayload is the largest CustomMessage payload that fits in
	// one staging buffer alongside its header.
	MaxCustomPayload = StagingCapacity - CustomHeaderLen
)

// Simulator modes carried by the Simulator message.
const (
	SimulatorBoth   = 0x00 // both peers step physics independently
	SimulatorServer = 0x01 // only the server steps physics and streams results
)

// OpcodeName returns a human-readable opcode label for logs and metrics.
func OpcodeName(op byte) string {
	switch op {
	case OpSetStatus:
		return "set_status"
	case OpPing:
		return "ping"
	case OpPong:
		return "pong"
	case OpClientFrameRate:
		return "client_frame_rate"
	case OpServerFrameRate:
		return "server_frame_rate"
	case OpSyncFrameRate:
		return "sync_frame_rate"
	case OpSetBreakpoint:
		return "set_breakpoint"
	case OpEndOfFrame:
		return "end_of_frame"
	case OpCustomMessage:
		return "custom_message"
	case OpPhysics:
		return "physics"
	case OpOnUpdate:
		return "on_update"
	case OpSimulator:
		return "simulator"
	default:
		return "unknown"
	}
}
