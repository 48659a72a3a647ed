package connectivity

import "time"

type Status int

const (
	StatusUnknown Status = iota
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusConnected:
		return "connected"
	case StatusDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText maps anything unrecognised to StatusUnknown.
func (s *Status) UnmarshalText(b []byte) error {
	switch string(b) {
	case "connected":
		*s = StatusConnected
	case "disconnected":
		*s = StatusDisconnected
	default:
		*s = StatusUnknown
	}
	return nil
}

// State is the monitor's view of the backend. Only the Monitor writes it.
type State struct {
	Status    Status        `json:"status"`
	Reason    string        `json:"reason,omitempty"`
	CheckedAt time.Time     `json:"checked_at,omitempty"`
	Latency   time.Duration `json:"latency_ns,omitempty"`
}

func (s State) Connected() bool {
	return s.Status == StatusConnected
}

// Label is the status line shown to the user.
func (s State) Label() string {
	switch s.Status {
	case StatusConnected:
		return "Conectado al backend"
	case StatusDisconnected:
		if s.Reason == "" {
			return "Error de conexión con el backend"
		}
		return "Error de conexión con el backend: " + s.Reason
	default:
		return "Verificando conexión..."
	}
}

// Err returns a *Error unless the state is Connected.
func (s State) Err() error {
	if s.Connected() {
		return nil
	}
	reason := s.Reason
	if s.Status == StatusUnknown {
		reason = "estado de conexión desconocido"
	}
	return &Error{Reason: reason, CheckedAt: s.CheckedAt}
}

// Error is the connectivity failure surfaced to submissions.
type Error struct {
	Reason    string
	CheckedAt time.Time
}

func (e *Error) Error() string {
	if e.Reason == "" {
		return "Error de conexión con el backend"
	}
	return "Error de conexión con el backend: " + e.Reason
}
