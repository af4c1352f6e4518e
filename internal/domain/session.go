package domain

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a bridged session, reported to the
// owner on every material transition.
type Status int

const (
	StatusConnecting Status = iota
	StatusConnected
	StatusError
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusError:
		return "error"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// MarshalText lets Status render as its name in JSON and logs.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	st, ok := ParseStatus(string(b))
	if !ok {
		return fmt.Errorf("unknown session status %q", b)
	}
	*s = st
	return nil
}

// ParseStatus is the inverse of Status.String.
func ParseStatus(name string) (Status, bool) {
	for st := StatusConnecting; st <= StatusClosed; st++ {
		if st.String() == name {
			return st, true
		}
	}
	return 0, false
}

// SessionInfo is a point-in-time summary of one bridged session.
type SessionInfo struct {
	ID        string    `json:"id"`
	User      string    `json:"user"`
	Remote    string    `json:"remote"`
	Status    Status    `json:"status"`
	Protocol  string    `json:"protocol,omitempty"`
	NetworkID NetworkID `json:"networkId,omitempty"`
	Nick      string    `json:"nick,omitempty"`
	LastError string    `json:"lastError,omitempty"`
	StartedAt time.Time `json:"startedAt"`
}
