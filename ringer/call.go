// Package ringer decides whether the device rings, plays a call waiting tone,
// vibrates or stays silent while one or more calls are handled.
package ringer

import "fmt"

// CallID identifies a call for its whole lifetime.
type CallID string

// CallState is the lifecycle state of a call.
type CallState int

const (
	CallStateNew CallState = iota
	CallStateDialing
	CallStateRinging
	CallStateActive
	CallStateOnHold
	CallStateDisconnecting
	CallStateDisconnected
)

var callStateNames = map[CallState]string{
	CallStateNew:           "new",
	CallStateDialing:       "dialing",
	CallStateRinging:       "ringing",
	CallStateActive:        "active",
	CallStateOnHold:        "on_hold",
	CallStateDisconnecting: "disconnecting",
	CallStateDisconnected:  "disconnected",
}

func (s CallState) String() string {
	if name, ok := callStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("call_state(%d)", int(s))
}

// ParseCallState converts a textual call state.
func ParseCallState(value string) (CallState, error) {
	for state, name := range callStateNames {
		if name == value {
			return state, nil
		}
	}
	return CallStateNew, fmt.Errorf("unknown call state %q", value)
}

// Call is a snapshot of a call as reported by the call manager.
type Call struct {
	ID       CallID
	State    CallState
	Incoming bool
	// Contact is the contact reference of the remote party, if known.
	Contact string
	// AccountID identifies the phone account the call arrived on.
	AccountID string
	Ringtone  string
}

// IsRinging reports whether the call is an unanswered incoming call.
func (c Call) IsRinging() bool {
	return c.Incoming && c.State == CallStateRinging
}
