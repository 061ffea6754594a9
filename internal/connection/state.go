// Package connection drives snapshot polling against the contest proxy as an
// explicit state machine with exponential backoff.
package connection

import "time"

type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseConnecting Phase = "connecting"
	PhaseConnected  Phase = "connected"
	PhaseBackoff    Phase = "backoff"
	PhaseFailed     Phase = "failed"
)

var Phases = []Phase{PhaseIdle, PhaseConnecting, PhaseConnected, PhaseBackoff, PhaseFailed}

// State is a point in the connection lifecycle. Attempt counts consecutive
// failed fetches and is only non-zero in Connecting (retry), Backoff and
// Failed.
type State struct {
	Phase     Phase     `json:"phase"`
	Attempt   int       `json:"attempt"`
	LastError string    `json:"lastError,omitempty"`
	RetryIn   string    `json:"retryIn,omitempty"`
	Since     time.Time `json:"since"`
}

func (s State) Connect() State {
	s.Phase = PhaseConnecting
	s.RetryIn = ""
	return s
}

func (s State) Succeed() State {
	return State{Phase: PhaseConnected}
}

// Fail records a failed fetch. The connection backs off until more than
// maxAttempts consecutive fetches failed, then gives up.
func (s State) Fail(err error, maxAttempts int) State {
	s.Attempt++
	s.LastError = err.Error()
	s.RetryIn = ""
	if s.Attempt > maxAttempts {
		s.Phase = PhaseFailed
		return s
	}
	s.Phase = PhaseBackoff
	return s
}

func (s State) Disconnect() State {
	return State{Phase: PhaseIdle}
}

// Reconnect restarts from a clean attempt budget.
func (s State) Reconnect() State {
	return State{Phase: PhaseConnecting}
}
