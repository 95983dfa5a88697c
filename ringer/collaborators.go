package ringer

import (
	"context"
	"time"
)

// RingerMode is the device wide ringer mode.
type RingerMode int

const (
	RingerModeNormal RingerMode = iota
	RingerModeVibrate
	RingerModeSilent
)

func (m RingerMode) String() string {
	switch m {
	case RingerModeNormal:
		return "normal"
	case RingerModeVibrate:
		return "vibrate"
	case RingerModeSilent:
		return "silent"
	default:
		return "unknown"
	}
}

// ParseRingerMode converts a textual ringer mode.
func ParseRingerMode(value string) (RingerMode, bool) {
	switch value {
	case "normal":
		return RingerModeNormal, true
	case "vibrate":
		return RingerModeVibrate, true
	case "silent":
		return RingerModeSilent, true
	default:
		return RingerModeNormal, false
	}
}

// AudioRouter exposes the audio routing layer.
type AudioRouter interface {
	// RingStreamVolume returns the volume of the ring stream. A negative
	// volume means the stream is hard muted.
	RingStreamVolume(ctx context.Context) (int, error)
	RingerMode(ctx context.Context) (RingerMode, error)
	// SetRinging tells the routing layer whether a call is ringing so it can
	// manage audio focus.
	SetRinging(ctx context.Context, call CallID, ringing bool) error
}

// VibrationAttributes describe the vibration for the haptic layer.
type VibrationAttributes struct {
	ContentType string `json:"content_type"`
	Usage       string `json:"usage"`
}

// RingtoneVibrationAttributes are attached to every ring vibration.
var RingtoneVibrationAttributes = VibrationAttributes{
	ContentType: "sonification",
	Usage:       "notification_ringtone",
}

// Vibrator is the haptic actuator.
type Vibrator interface {
	HasVibrator(ctx context.Context) bool
	// Vibrate plays pattern, alternating off and on durations starting with
	// off. The pattern repeats from index repeat until cancelled; -1 plays it
	// once.
	Vibrate(ctx context.Context, pattern []time.Duration, repeat int, attrs VibrationAttributes) error
	Cancel(ctx context.Context) error
}

// RingtonePlayer plays ringtones on a hardware line.
type RingtonePlayer interface {
	SetLine(ctx context.Context, index int) error
	Play(ctx context.Context, ringtone string, startVolume float64, rampUp time.Duration) error
	Stop(ctx context.Context) error
}

// ToneCallWaiting is the tone played while a call waits.
const ToneCallWaiting = "call_waiting"

// TonePlayer plays a single in-call tone.
type TonePlayer interface {
	StartTone(ctx context.Context) error
	StopTone(ctx context.Context) error
}

// TonePlayerFactory creates tone players.
type TonePlayerFactory interface {
	NewTonePlayer(ctx context.Context, tone string) (TonePlayer, error)
}

// InterruptionFilter decides whether a caller may interrupt the user.
type InterruptionFilter interface {
	// MatchesFilter reports whether a call from the given contacts passes the
	// filter and may ring.
	MatchesFilter(ctx context.Context, contacts []string) bool
}

// LineResolver maps a subscription id to a hardware line index.
type LineResolver interface {
	ResolvePhoneIndex(ctx context.Context, subscriptionID int) (int, error)
}

// CallManager answers questions about the calls the device is handling.
type CallManager interface {
	// ForegroundCall returns the call currently in the foreground, if any.
	ForegroundCall(ctx context.Context) (Call, bool)
	HasActiveOrHoldingCall(ctx context.Context) bool
	// Silence tells a ringing call that it was silenced.
	Silence(ctx context.Context, call CallID)
}

// Collaborators bundles the components the arbiter drives. Only Calls is
// required; missing actuators disable their feature.
type Collaborators struct {
	Audio    AudioRouter
	Vibrator Vibrator
	Ringtone RingtonePlayer
	Tones    TonePlayerFactory
	Filter   InterruptionFilter
	Lines    LineResolver
	Calls    CallManager
}
