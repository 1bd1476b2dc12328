package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// All multi-byte numeric fields cross the wire in network byte order;
// conversion happens here and nowhere else.

// ErrIncomplete reports that the bytes at hand are a truncated message.
// The caller keeps the trailing bytes and retries after the next read.
var ErrIncomplete = errors.New("incomplete message")

// ErrPayloadTooLarge reports a CustomMessage payload over MaxCustomPayload.
var ErrPayloadTooLarge = errors.New("payload too large")

// MessageLength returns the full encoded length of the message starting at
// b[0]. It returns ErrIncomplete when b holds fewer bytes than the message
// needs, including when the CustomMessage length prefix itself is truncated.
func MessageLength(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, ErrIncomplete
	}
	var need int
	switch b[0] {
	case OpSetStatus:
		need = SetStatusLen
	case OpPing:
		need = PingLen
	case OpPong:
		need = PongLen
	case OpClientFrameRate:
		need = ClientFrameRateLen
	case OpServerFrameRate:
		need = ServerFrameRateLen
	case OpSyncFrameRate:
		need = SyncFrameRateLen
	case OpSetBreakpoint:
		need = SetBreakpointLen
	case OpEndOfFrame:
		need = EndOfFrameLen
	case OpPhysics:
		need = PhysicsLen
	case OpOnUpdate:
		need = OnUpdateLen
	case OpSimulator:
		need = SimulatorLen
	case OpCustomMessage:
		if len(b) < CustomHeaderLen {
			return 0, ErrIncomplete
		}
		need = CustomHeaderLen + int(binary.BigEndian.Uint16(b[1:]))
	default:
		return 0, fmt.Errorf("unknown opcode 0x%02x", b[0])
	}
	if len(b) < need {
		return 0, ErrIncomplete
	}
	return need, nil
}

// AppendSetStatus appends a SetStatus message carrying a link state byte and
// an exit code byte.
func AppendSetStatus(dst []byte, state, exit byte) []byte {
	return append(dst, OpSetStatus, state, exit)
}

// DecodeSetStatus decodes the state and exit code bytes of a SetStatus.
func DecodeSetStatus(b []byte) (state, exit byte, err error) {
	if len(b) < SetStatusLen {
		return 0, 0, ErrIncomplete
	}
	return b[1], b[2], nil
}

// AppendPing appends a Ping probe.
func AppendPing(dst []byte) []byte { return append(dst, OpPing) }

// AppendPong appends a Pong probe reply.
func AppendPong(dst []byte) []byte { return append(dst, OpPong) }

// AppendClientFrameRate appends the client's measured frame interval in
// seconds.
func AppendClientFrameRate(dst []byte, interval float32) []byte {
	var body [4]byte
	binary.BigEndian.PutUint32(body[:], math.Float32bits(interval))
	return append(append(dst, OpClientFrameRate), body[:]...)
}

// DecodeClientFrameRate decodes the frame interval of a ClientFrameRate.
func DecodeClientFrameRate(b []byte) (float32, error) {
	if len(b) < ClientFrameRateLen {
		return 0, ErrIncomplete
	}
	return math.Float32frombits(binary.BigEndian.Uint32(b[1:])), nil
}

// AppendServerFrameRate appends a request for the peer's frame interval.
func AppendServerFrameRate(dst []byte) []byte { return append(dst, OpServerFrameRate) }

// AppendSyncFrameRate appends the negotiated tick duration and the averaged
// one-way latency, both in seconds.
func AppendSyncFrameRate(dst []byte, synced float32, latency float64) []byte {
	var body [12]byte
	binary.BigEndian.PutUint32(body[:4], math.Float32bits(synced))
	binary.BigEndian.PutUint64(body[4:], math.Float64bits(latency))
	return append(append(dst, OpSyncFrameRate), body[:]...)
}

// DecodeSyncFrameRate decodes the negotiated tick duration and latency.
func DecodeSyncFrameRate(b []byte) (synced float32, latency float64, err error) {
	if len(b) < SyncFrameRateLen {
		return 0, 0, ErrIncomplete
	}
	synced = math.Float32frombits(binary.BigEndian.Uint32(b[1:5]))
	latency = math.Float64frombits(binary.BigEndian.Uint64(b[5:13]))
	return synced, latency, nil
}

// AppendSetBreakpoint appends a mid-frame boundary marker.
func AppendSetBreakpoint(dst []byte) []byte { return append(dst, OpSetBreakpoint) }

// AppendEndOfFrame appends a tick-end boundary marker.
func AppendEndOfFrame(dst []byte) []byte { return append(dst, OpEndOfFrame) }

// AppendPhysics appends an authoritative physics step marker.
func AppendPhysics(dst []byte) []byte { return append(dst, OpPhysics) }

// AppendOnUpdate appends an authoritative fixed-update marker. The marker
// carries a trailing SetBreakpoint so the replaying peer observes a frame
// boundary immediately after it.
func AppendOnUpdate(dst []byte) []byte {
	return append(dst, OpOnUpdate, OpSetBreakpoint)
}

// AppendSimulator appends a simulator mode announcement.
func AppendSimulator(dst []byte, mode byte) []byte {
	return append(dst, OpSimulator, mode)
}

// DecodeSimulator decodes the mode byte of a Simulator message.
func DecodeSimulator(b []byte) (byte, error) {
	if len(b) < SimulatorLen {
		return 0, ErrIncomplete
	}
	return b[1], nil
}

// AppendCustom appends a CustomMessage framing the given opaque payload.
func AppendCustom(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxCustomPayload {
		return dst, ErrPayloadTooLarge
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(payload)))
	dst = append(dst, OpCustomMessage)
	dst = append(dst, hdr[:]...)
	return append(dst, payload...), nil
}

// DecodeCustom returns the payload of the CustomMessage starting at b[0].
// The returned slice aliases b; callers that retain it must copy.
func DecodeCustom(b []byte) ([]byte, error) {
	n, err := MessageLength(b)
	if err != nil {
		return nil, err
	}
	return b[CustomHeaderLen:n], nil
}
