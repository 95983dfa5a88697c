package ringer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/timzifer/ringd/settings"
)

// recorder collects the commands issued to every fake in order.
type recorder struct {
	commands []string
}

func (r *recorder) add(format string, args ...interface{}) {
	r.commands = append(r.commands, fmt.Sprintf(format, args...))
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, cmd := range r.commands {
		if strings.HasPrefix(cmd, prefix) {
			n++
		}
	}
	return n
}

func (r *recorder) reset() {
	r.commands = nil
}

type fakeAudio struct {
	rec       *recorder
	volume    int
	mode      RingerMode
	volumeErr error
}

func (f *fakeAudio) RingStreamVolume(context.Context) (int, error) {
	return f.volume, f.volumeErr
}

func (f *fakeAudio) RingerMode(context.Context) (RingerMode, error) {
	return f.mode, nil
}

func (f *fakeAudio) SetRinging(_ context.Context, call CallID, ringing bool) error {
	f.rec.add("audio.ringing(%s,%t)", call, ringing)
	return nil
}

type fakeVibrator struct {
	rec     *recorder
	present bool
	pattern []time.Duration
	repeat  int
	attrs   VibrationAttributes
}

func (f *fakeVibrator) HasVibrator(context.Context) bool {
	return f.present
}

func (f *fakeVibrator) Vibrate(_ context.Context, pattern []time.Duration, repeat int, attrs VibrationAttributes) error {
	f.rec.add("vibrator.vibrate")
	f.pattern = pattern
	f.repeat = repeat
	f.attrs = attrs
	return nil
}

func (f *fakeVibrator) Cancel(context.Context) error {
	f.rec.add("vibrator.cancel")
	return nil
}

type fakeRingtone struct {
	rec     *recorder
	playErr error
	line    int
	volume  float64
	rampUp  time.Duration
}

func (f *fakeRingtone) SetLine(_ context.Context, index int) error {
	f.rec.add("ringtone.line(%d)", index)
	f.line = index
	return nil
}

func (f *fakeRingtone) Play(_ context.Context, ringtone string, startVolume float64, rampUp time.Duration) error {
	f.rec.add("ringtone.play(%s)", ringtone)
	f.volume = startVolume
	f.rampUp = rampUp
	return f.playErr
}

func (f *fakeRingtone) Stop(context.Context) error {
	f.rec.add("ringtone.stop")
	return nil
}

type fakeTone struct {
	rec *recorder
}

func (f *fakeTone) StartTone(context.Context) error {
	f.rec.add("tone.start")
	return nil
}

func (f *fakeTone) StopTone(context.Context) error {
	f.rec.add("tone.stop")
	return nil
}

type fakeTones struct {
	rec     *recorder
	created []string
}

func (f *fakeTones) NewTonePlayer(_ context.Context, tone string) (TonePlayer, error) {
	f.created = append(f.created, tone)
	return &fakeTone{rec: f.rec}, nil
}

type fakeFilter struct {
	blocked map[string]bool
	seen    [][]string
}

func (f *fakeFilter) MatchesFilter(_ context.Context, contacts []string) bool {
	f.seen = append(f.seen, contacts)
	for _, c := range contacts {
		if f.blocked[c] {
			return false
		}
	}
	return true
}

type fakeLines struct {
	index map[int]int
	err   error
}

func (f *fakeLines) ResolvePhoneIndex(_ context.Context, sub int) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	idx, ok := f.index[sub]
	if !ok {
		return -1, nil
	}
	return idx, nil
}

type fakeCalls struct {
	rec          *recorder
	foreground   *Call
	activeOrHold bool
	silenced     []CallID
}

func (f *fakeCalls) ForegroundCall(context.Context) (Call, bool) {
	if f.foreground == nil {
		return Call{}, false
	}
	return *f.foreground, true
}

func (f *fakeCalls) HasActiveOrHoldingCall(context.Context) bool {
	return f.activeOrHold
}

func (f *fakeCalls) Silence(_ context.Context, call CallID) {
	f.rec.add("calls.silence(%s)", call)
	f.silenced = append(f.silenced, call)
}

type fakeSettings struct {
	ints   map[string]int
	floats map[string]float64
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{ints: map[string]int{}, floats: map[string]float64{}}
}

func (f *fakeSettings) GetInt(_ context.Context, ns settings.Namespace, key string, def int) int {
	if v, ok := f.ints[string(ns)+"/"+key]; ok {
		return v
	}
	return def
}

func (f *fakeSettings) GetFloat(_ context.Context, ns settings.Namespace, key string, def float64) float64 {
	if v, ok := f.floats[string(ns)+"/"+key]; ok {
		return v
	}
	return def
}

type harness struct {
	rec      *recorder
	audio    *fakeAudio
	vibrator *fakeVibrator
	ringtone *fakeRingtone
	tones    *fakeTones
	filter   *fakeFilter
	lines    *fakeLines
	calls    *fakeCalls
	settings *fakeSettings
}

func newHarness() *harness {
	rec := &recorder{}
	return &harness{
		rec:      rec,
		audio:    &fakeAudio{rec: rec},
		vibrator: &fakeVibrator{rec: rec, present: true},
		ringtone: &fakeRingtone{rec: rec},
		tones:    &fakeTones{rec: rec},
		filter:   &fakeFilter{blocked: map[string]bool{}},
		lines:    &fakeLines{index: map[int]int{}},
		calls:    &fakeCalls{rec: rec},
		settings: newFakeSettings(),
	}
}

func (h *harness) collaborators() Collaborators {
	return Collaborators{
		Audio:    h.audio,
		Vibrator: h.vibrator,
		Ringtone: h.ringtone,
		Tones:    h.tones,
		Filter:   h.filter,
		Lines:    h.lines,
		Calls:    h.calls,
	}
}

func incoming(id string) Call {
	return Call{ID: CallID(id), State: CallStateRinging, Incoming: true, Ringtone: "ring-" + id}
}

func active(id string) Call {
	return Call{ID: CallID(id), State: CallStateActive}
}
