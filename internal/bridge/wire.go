package bridge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/timzifer/ringd/ringer"
)

// callPayload is the JSON form of a call snapshot.
type callPayload struct {
	ID        string `json:"id"`
	State     string `json:"state"`
	Incoming  bool   `json:"incoming"`
	Contact   string `json:"contact,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Ringtone  string `json:"ringtone,omitempty"`
}

// eventPayload is published by the call manager on the events topic.
type eventPayload struct {
	Type              string       `json:"type"`
	Call              *callPayload `json:"call,omitempty"`
	OldState          string       `json:"old_state,omitempty"`
	NewState          string       `json:"new_state,omitempty"`
	OldForeground     *callPayload `json:"old_foreground,omitempty"`
	NewForeground     *callPayload `json:"new_foreground,omitempty"`
	RejectWithMessage bool         `json:"reject_with_message,omitempty"`
	Message           string       `json:"message,omitempty"`
}

// devicePayload reports the state of the audio and haptic hardware. Absent
// fields keep their previous value.
type devicePayload struct {
	RingVolume  *int           `json:"ring_volume,omitempty"`
	RingerMode  *string        `json:"ringer_mode,omitempty"`
	HasVibrator *bool          `json:"has_vibrator,omitempty"`
	Lines       map[string]int `json:"lines,omitempty"`
}

// settingPayload requests a settings write.
type settingPayload struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Value     string `json:"value"`
	User      *int   `json:"user,omitempty"`
}

// Command is published on the commands topic for every actuator instruction.
type Command struct {
	ID          string                      `json:"id"`
	Target      string                      `json:"target"`
	Action      string                      `json:"action"`
	Call        string                      `json:"call,omitempty"`
	Ringing     *bool                       `json:"ringing,omitempty"`
	Ringtone    string                      `json:"ringtone,omitempty"`
	StartVolume *float64                    `json:"start_volume,omitempty"`
	RampUpMS    *int64                      `json:"ramp_up_ms,omitempty"`
	Line        *int                        `json:"line,omitempty"`
	PatternMS   []int64                     `json:"pattern_ms,omitempty"`
	Repeat      *int                        `json:"repeat,omitempty"`
	Attributes  *ringer.VibrationAttributes `json:"attributes,omitempty"`
	Tone        string                      `json:"tone,omitempty"`
	Timestamp   time.Time                   `json:"ts"`
}

// Command targets.
const (
	TargetAudio    = "audio"
	TargetVibrator = "vibrator"
	TargetRingtone = "ringtone"
	TargetTone     = "tone"
	TargetCall     = "call"
)

func (p *callPayload) toCall() (ringer.Call, error) {
	if p == nil {
		return ringer.Call{}, fmt.Errorf("call missing")
	}
	if strings.TrimSpace(p.ID) == "" {
		return ringer.Call{}, fmt.Errorf("call id must not be empty")
	}
	call := ringer.Call{
		ID:        ringer.CallID(p.ID),
		Incoming:  p.Incoming,
		Contact:   p.Contact,
		AccountID: p.AccountID,
		Ringtone:  p.Ringtone,
	}
	if p.State != "" {
		state, err := ringer.ParseCallState(p.State)
		if err != nil {
			return ringer.Call{}, err
		}
		call.State = state
	}
	return call, nil
}

func optionalCall(p *callPayload) (*ringer.Call, error) {
	if p == nil {
		return nil, nil
	}
	call, err := p.toCall()
	if err != nil {
		return nil, err
	}
	return &call, nil
}

// DecodeEvent converts an events topic payload.
func DecodeEvent(data []byte) (ringer.Event, error) {
	var payload eventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return ringer.Event{}, fmt.Errorf("decode event: %w", err)
	}
	kind, ok := ringer.ParseEventKind(payload.Type)
	if !ok {
		return ringer.Event{}, fmt.Errorf("decode event: unknown type %q", payload.Type)
	}

	switch kind {
	case ringer.EventSilence:
		return ringer.Silence(), nil
	case ringer.EventForegroundCallChanged:
		oldCall, err := optionalCall(payload.OldForeground)
		if err != nil {
			return ringer.Event{}, fmt.Errorf("decode event: old foreground: %w", err)
		}
		newCall, err := optionalCall(payload.NewForeground)
		if err != nil {
			return ringer.Event{}, fmt.Errorf("decode event: new foreground: %w", err)
		}
		return ringer.ForegroundCallChanged(oldCall, newCall), nil
	}

	call, err := payload.Call.toCall()
	if err != nil {
		return ringer.Event{}, fmt.Errorf("decode event %s: %w", payload.Type, err)
	}
	switch kind {
	case ringer.EventCallAdded:
		return ringer.CallAdded(call), nil
	case ringer.EventCallRemoved:
		return ringer.CallRemoved(call), nil
	case ringer.EventCallStateChanged:
		oldState, err := ringer.ParseCallState(payload.OldState)
		if err != nil {
			return ringer.Event{}, fmt.Errorf("decode event %s: old state: %w", payload.Type, err)
		}
		newState, err := ringer.ParseCallState(payload.NewState)
		if err != nil {
			return ringer.Event{}, fmt.Errorf("decode event %s: new state: %w", payload.Type, err)
		}
		return ringer.CallStateChanged(call, oldState, newState), nil
	case ringer.EventIncomingCallAnswered:
		return ringer.IncomingCallAnswered(call), nil
	default:
		return ringer.IncomingCallRejected(call, payload.RejectWithMessage, payload.Message), nil
	}
}

func durationsMS(pattern []time.Duration) []int64 {
	out := make([]int64, len(pattern))
	for i, d := range pattern {
		out[i] = d.Milliseconds()
	}
	return out
}
