package ringer

import (
	"context"
	"strconv"
	"time"

	"github.com/timzifer/ringd/settings"
)

// Settings is the subset of the settings registry read by the arbiter.
type Settings interface {
	GetInt(ctx context.Context, ns settings.Namespace, key string, def int) int
	GetFloat(ctx context.Context, ns settings.Namespace, key string, def float64) float64
}

// Ramp-up defaults used when increasing ring is enabled without explicit values.
const (
	DefaultRampStartVolume = 0.1
	DefaultRampUpSeconds   = 20
)

// DefaultVibrationPattern is silence, buzz, pause. It repeats from
// DefaultVibrationRepeat.
var DefaultVibrationPattern = []time.Duration{0, time.Second, time.Second}

// DefaultVibrationRepeat is the index the vibration pattern repeats from.
const DefaultVibrationRepeat = 1

// Ramp describes how the ringtone volume grows.
type Ramp struct {
	StartVolume float64
	RampUp      time.Duration
}

// RampParameters reads the increasing ring settings. Without increasing ring
// the tone starts at volume 0 with no ramp, which leaves the player at its
// regular volume.
func RampParameters(ctx context.Context, s Settings) Ramp {
	if s == nil || s.GetInt(ctx, settings.NamespaceSystem, settings.KeyIncreasingRing, 0) == 0 {
		return Ramp{}
	}
	startVolume := s.GetFloat(ctx, settings.NamespaceSystem, settings.KeyIncreasingRingStartVolume, DefaultRampStartVolume)
	seconds := s.GetInt(ctx, settings.NamespaceSystem, settings.KeyIncreasingRingRampUpTime, DefaultRampUpSeconds)
	return Ramp{
		StartVolume: startVolume,
		RampUp:      time.Duration(seconds) * time.Second,
	}
}

// ShouldVibrate implements the vibration policy: the device needs a vibrator
// and either vibrate-when-ringing outside of silent mode or vibrate mode.
func ShouldVibrate(hasVibrator, vibrateWhenRinging bool, mode RingerMode) bool {
	if !hasVibrator {
		return false
	}
	if vibrateWhenRinging {
		return mode != RingerModeSilent
	}
	return mode == RingerModeVibrate
}

// TheaterModeOn reports whether theater mode suppresses all signaling.
func TheaterModeOn(ctx context.Context, s Settings) bool {
	if s == nil {
		return false
	}
	return s.GetInt(ctx, settings.NamespaceGlobal, settings.KeyTheaterModeOn, 0) == 1
}

// subscriptionID parses an account id consisting of decimal digits only.
func subscriptionID(accountID string) (int, bool) {
	if accountID == "" {
		return 0, false
	}
	for _, r := range accountID {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(accountID)
	if err != nil {
		return 0, false
	}
	return id, true
}
