package config

type Server struct {
	SessionID string   `yaml:"session_id"`
	Listen    Listen   `yaml:"listen"`
	Lockstep  Lockstep `yaml:"lockstep"`
	Timeouts  Timeouts `yaml:"timeouts"`
}

// ApplyDefaults fills in zero-valued fields with defaults.
func (s *Server) ApplyDefaults() {
	if s.SessionID == "" {
		s.SessionID = GenerateSessionID()
	}
	if s.Listen.IP == "" {
		s.Listen.IP = "0.0.0.0"
	}
	if s.Listen.Port == 0 {
		s.Listen.Port = DefaultPort
	}
	s.Lockstep.applyDefaults()
	s.Timeouts.applyDefaults()
}
