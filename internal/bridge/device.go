package bridge

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/timzifer/ringd/ringer"
)

// DeviceState holds the last reported audio and haptic hardware state.
type DeviceState struct {
	mu          sync.RWMutex
	ringVolume  int
	ringerMode  ringer.RingerMode
	hasVibrator bool
	lines       map[int]int
}

// NewDeviceState creates a device state with a normal ringer mode, volume 0,
// a vibrator and no line table.
func NewDeviceState() *DeviceState {
	return &DeviceState{
		ringerMode:  ringer.RingerModeNormal,
		hasVibrator: true,
		lines:       make(map[int]int),
	}
}

// ApplyJSON merges a device topic payload.
func (d *DeviceState) ApplyJSON(data []byte) error {
	var payload devicePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode device state: %w", err)
	}
	var mode ringer.RingerMode
	if payload.RingerMode != nil {
		var ok bool
		mode, ok = ringer.ParseRingerMode(*payload.RingerMode)
		if !ok {
			return fmt.Errorf("decode device state: unknown ringer mode %q", *payload.RingerMode)
		}
	}
	lines := make(map[int]int, len(payload.Lines))
	for sub, index := range payload.Lines {
		id, err := strconv.Atoi(sub)
		if err != nil {
			return fmt.Errorf("decode device state: line %q: %w", sub, err)
		}
		lines[id] = index
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if payload.RingVolume != nil {
		d.ringVolume = *payload.RingVolume
	}
	if payload.RingerMode != nil {
		d.ringerMode = mode
	}
	if payload.HasVibrator != nil {
		d.hasVibrator = *payload.HasVibrator
	}
	if payload.Lines != nil {
		d.lines = lines
	}
	return nil
}

// RingVolume returns the last reported ring stream volume.
func (d *DeviceState) RingVolume() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ringVolume
}

// RingerMode returns the last reported ringer mode.
func (d *DeviceState) RingerMode() ringer.RingerMode {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.ringerMode
}

// HasVibrator reports whether the device has a haptic actuator.
func (d *DeviceState) HasVibrator() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.hasVibrator
}

// Line resolves a subscription id to a line index.
func (d *DeviceState) Line(subscriptionID int) (int, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	index, ok := d.lines[subscriptionID]
	return index, ok
}
