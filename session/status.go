package session

import (
	jsoniter "github.com/json-iterator/go"
)

// json is a drop-in replacement for encoding/json with better performance
var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is a point-in-time diagnostic snapshot of a session.
type Status struct {
	SessionID   string  `json:"session_id"`
	Role        string  `json:"role"`
	State       string  `json:"state"`
	ExitCode    string  `json:"exit_code"`
	Simulator   string  `json:"simulator"`
	Frame       uint64  `json:"frame"`
	SyncedDelta float64 `json:"synced_delta"`
	FixedDelta  float64 `json:"fixed_delta"`
	Latency     float64 `json:"latency"`
	QueueUnread int     `json:"queue_unread"`
	QueueGrowth int     `json:"queue_growth"`
}

// Snapshot captures the session's observable state.
func (s *Session) Snapshot() Status {
	s.qmu.Lock()
	st := Status{
		SessionID:   s.id,
		Role:        s.role.String(),
		State:       s.state.String(),
		ExitCode:    s.exit.String(),
		Simulator:   s.mode.String(),
		Frame:       s.currentFrame,
		SyncedDelta: s.syncedDelta,
		FixedDelta:  s.fixedDelta,
		QueueUnread: s.queue.unread(),
		QueueGrowth: s.queue.grown,
	}
	s.qmu.Unlock()

	s.lmu.Lock()
	st.Latency = s.avgLatency
	s.lmu.Unlock()
	return st
}

// StatusJSON marshals the snapshot for the CLI's status line.
func (s *Session) StatusJSON() ([]byte, error) {
	return json.Marshal(s.Snapshot())
}
