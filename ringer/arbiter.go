package ringer

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/timzifer/ringd/settings"
	"github.com/timzifer/ringd/telemetry"
)

// SignalState is the signal the arbiter currently emits.
type SignalState int

const (
	StateIdle SignalState = iota
	StateRinging
	StateCallWaitingTone
)

func (s SignalState) String() string {
	switch s {
	case StateRinging:
		return "ringing"
	case StateCallWaitingTone:
		return "call_waiting_tone"
	default:
		return "idle"
	}
}

// Logged signal events.
const (
	EventStartRinger          = "START_RINGER"
	EventStopRinger           = "STOP_RINGER"
	EventStartCallWaitingTone = "START_CALL_WAITING_TONE"
	EventStopCallWaitingTone  = "STOP_CALL_WAITING_TONE"
)

const (
	reasonNoRingingCalls = "No more ringing calls found"
	reasonCallWaiting    = "Stop for call-waiting"
	reasonShutdown       = "Arbiter shut down"
)

// Option configures an Arbiter.
type Option func(*options) error

type options struct {
	logger      zerolog.Logger
	collector   telemetry.Collector
	pattern     []time.Duration
	repeat      int
	defaultLine int
}

// WithLogger sets the arbiter logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) error {
		o.logger = logger
		return nil
	}
}

// WithTelemetry sets the collector receiving transition metrics.
func WithTelemetry(collector telemetry.Collector) Option {
	return func(o *options) error {
		if collector == nil {
			return errors.New("telemetry collector must not be nil")
		}
		o.collector = collector
		return nil
	}
}

// WithVibrationPattern overrides the ring vibration waveform.
func WithVibrationPattern(pattern []time.Duration, repeat int) Option {
	return func(o *options) error {
		if len(pattern) == 0 {
			return errors.New("vibration pattern must not be empty")
		}
		for _, d := range pattern {
			if d < 0 {
				return errors.New("vibration pattern durations must not be negative")
			}
		}
		if repeat < -1 || repeat >= len(pattern) {
			return errors.New("vibration repeat index out of range")
		}
		o.pattern = append([]time.Duration(nil), pattern...)
		o.repeat = repeat
		return nil
	}
}

// WithDefaultLine sets the line used when an account cannot be resolved.
func WithDefaultLine(index int) Option {
	return func(o *options) error {
		if index < 0 {
			return errors.New("default line must not be negative")
		}
		o.defaultLine = index
		return nil
	}
}

// Arbiter owns the set of ringing calls and drives ringtone, vibration and
// call waiting tone. Events must be delivered serially; the arbiter does no
// locking of its own.
type Arbiter struct {
	settings  Settings
	collab    Collaborators
	logger    zerolog.Logger
	collector telemetry.Collector

	pattern     []time.Duration
	repeat      int
	defaultLine int

	ringing     []Call
	state       SignalState
	vibrating   bool
	tone        TonePlayer
	ringtoneFor CallID
}

// New creates an arbiter.
func New(s Settings, collab Collaborators, opts ...Option) (*Arbiter, error) {
	cfg := options{
		logger:    zerolog.Nop(),
		collector: telemetry.Noop(),
		pattern:   append([]time.Duration(nil), DefaultVibrationPattern...),
		repeat:    DefaultVibrationRepeat,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}
	if collab.Calls == nil {
		return nil, errors.New("call manager must not be nil")
	}
	return &Arbiter{
		settings:    s,
		collab:      collab,
		logger:      cfg.logger.With().Str("component", "ringer").Logger(),
		collector:   cfg.collector,
		pattern:     cfg.pattern,
		repeat:      cfg.repeat,
		defaultLine: cfg.defaultLine,
	}, nil
}

// State returns the current signal state.
func (a *Arbiter) State() SignalState {
	return a.state
}

// Vibrating reports whether the ring vibration is running.
func (a *Arbiter) Vibrating() bool {
	return a.vibrating
}

// RingingCalls returns the ids of all unanswered incoming calls, oldest first.
func (a *Arbiter) RingingCalls() []CallID {
	ids := make([]CallID, len(a.ringing))
	for i, call := range a.ringing {
		ids[i] = call.ID
	}
	return ids
}

// Run handles events until the context ends or the channel is closed.
func (a *Arbiter) Run(ctx context.Context, events <-chan Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			a.Handle(ctx, ev)
		}
	}
}

// Handle processes one call lifecycle event.
func (a *Arbiter) Handle(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventCallAdded:
		a.onCallAdded(ctx, ev.Call)
	case EventCallRemoved:
		a.removeFromUnanswered(ctx, ev.Call)
	case EventCallStateChanged:
		if ev.NewState != CallStateRinging {
			a.removeFromUnanswered(ctx, ev.Call)
		}
	case EventIncomingCallAnswered, EventIncomingCallRejected:
		a.onRespondedToIncomingCall(ctx, ev.Call)
	case EventForegroundCallChanged:
		a.onForegroundCallChanged(ctx, ev.OldForeground, ev.NewForeground)
	case EventSilence:
		a.silence(ctx)
	default:
		a.logger.Warn().Int("kind", int(ev.Kind)).Msg("ignoring unknown event")
		return
	}
	a.collector.SetRingingCalls(len(a.ringing))
}

// Shutdown stops every signal and forgets all ringing calls.
func (a *Arbiter) Shutdown(ctx context.Context) {
	a.ringing = nil
	a.stopRinging(ctx, nil, reasonShutdown)
	a.stopCallWaiting(ctx, nil)
	a.collector.SetRingingCalls(0)
}

func (a *Arbiter) onCallAdded(ctx context.Context, call Call) {
	if !call.IsRinging() {
		return
	}
	if i := a.indexOf(call.ID); i >= 0 {
		a.logger.Error().
			Bool("defect", true).
			Str("call", string(call.ID)).
			Msg("new ringing call is already in list of unanswered calls")
		a.ringing[i] = call
	} else {
		a.ringing = append(a.ringing, call)
	}
	a.updateRinging(ctx, &call)
}

func (a *Arbiter) onRespondedToIncomingCall(ctx context.Context, call Call) {
	// Only the oldest unanswered call is removed here; any other call leaves
	// the set once its state changes.
	if len(a.ringing) > 0 && a.ringing[0].ID == call.ID {
		a.removeFromUnanswered(ctx, call)
	}
}

func (a *Arbiter) onForegroundCallChanged(ctx context.Context, oldCall, newCall *Call) {
	var ringingCall *Call
	switch {
	case newCall != nil && a.indexOf(newCall.ID) >= 0:
		ringingCall = newCall
	case oldCall != nil && a.indexOf(oldCall.ID) >= 0:
		ringingCall = oldCall
	}
	if ringingCall != nil {
		a.updateRinging(ctx, ringingCall)
	}
}

func (a *Arbiter) silence(ctx context.Context) {
	for _, call := range a.ringing {
		a.collab.Calls.Silence(ctx, call.ID)
	}
	a.ringing = nil
	a.updateRinging(ctx, nil)
}

func (a *Arbiter) removeFromUnanswered(ctx context.Context, call Call) {
	if i := a.indexOf(call.ID); i >= 0 {
		a.ringing = append(a.ringing[:i], a.ringing[i+1:]...)
	}
	a.updateRinging(ctx, &call)
}

func (a *Arbiter) indexOf(id CallID) int {
	for i, call := range a.ringing {
		if call.ID == id {
			return i
		}
	}
	return -1
}

func (a *Arbiter) updateRinging(ctx context.Context, call *Call) {
	if len(a.ringing) == 0 {
		a.stopRinging(ctx, call, reasonNoRingingCalls)
		a.stopCallWaiting(ctx, call)
		return
	}
	a.startRingingOrCallWaiting(ctx, call)
}

func (a *Arbiter) startRingingOrCallWaiting(ctx context.Context, call *Call) {
	foreground, hasForeground := a.collab.Calls.ForegroundCall(ctx)
	a.logger.Debug().
		Str("foreground", string(foreground.ID)).
		Bool("has_foreground", hasForeground).
		Msg("evaluating ring state")

	if TheaterModeOn(ctx, a.settings) {
		return
	}

	if hasForeground && a.indexOf(foreground.ID) >= 0 && !a.collab.Calls.HasActiveOrHoldingCall(ctx) {
		a.stopCallWaiting(ctx, call)
		if !a.shouldRingForContact(ctx, foreground.Contact) {
			a.logger.Debug().Str("call", string(foreground.ID)).Msg("call filtered by interruption policy")
			return
		}
		a.startRinging(ctx, call, foreground)
		if !a.vibrating && a.shouldVibrate(ctx) {
			if err := a.vibrate(ctx); err != nil {
				a.collaboratorFailed("vibrator", err)
			} else {
				a.vibrating = true
			}
		}
		return
	}

	if hasForeground {
		a.logger.Debug().Str("call", string(foreground.ID)).Msg("playing call waiting tone")
		a.stopRinging(ctx, call, reasonCallWaiting)
		a.setState(call, StateCallWaitingTone, EventStartCallWaitingTone, "")
		if a.tone == nil {
			a.startCallWaitingTone(ctx)
		}
	}
}

func (a *Arbiter) startRinging(ctx context.Context, call *Call, foreground Call) {
	entered := a.state != StateRinging
	a.setState(call, StateRinging, EventStartRinger, "")
	if !entered && a.ringtoneFor == foreground.ID {
		return
	}

	// Only the ringtone depends on the ring stream; vibration is decided separately.
	volume, err := a.ringStreamVolume(ctx)
	if err != nil {
		a.collaboratorFailed("audio", err)
		return
	}
	if volume < 0 {
		a.logger.Debug().Int("volume", volume).Msg("skipping ringtone, ring stream is muted")
		return
	}

	ramp := RampParameters(ctx, a.settings)
	if a.collab.Audio != nil {
		if err := a.collab.Audio.SetRinging(ctx, callID(call), true); err != nil {
			a.collaboratorFailed("audio", err)
		}
	}
	if a.collab.Ringtone == nil {
		a.ringtoneFor = foreground.ID
		return
	}
	if err := a.collab.Ringtone.SetLine(ctx, a.resolveLine(ctx, foreground.AccountID)); err != nil {
		a.collaboratorFailed("ringtone", err)
	}
	if err := a.collab.Ringtone.Play(ctx, foreground.Ringtone, ramp.StartVolume, ramp.RampUp); err != nil {
		a.collaboratorFailed("ringtone", err)
		return
	}
	a.ringtoneFor = foreground.ID
}

func (a *Arbiter) stopRinging(ctx context.Context, call *Call, reason string) {
	if a.state == StateRinging {
		a.setState(call, StateIdle, EventStopRinger, reason)
	}
	a.ringtoneFor = ""
	if a.collab.Ringtone != nil {
		if err := a.collab.Ringtone.Stop(ctx); err != nil {
			a.collaboratorFailed("ringtone", err)
		}
	}
	if a.vibrating {
		if a.collab.Vibrator != nil {
			if err := a.collab.Vibrator.Cancel(ctx); err != nil {
				a.collaboratorFailed("vibrator", err)
			}
		}
		a.vibrating = false
	}
	if a.collab.Audio != nil {
		if err := a.collab.Audio.SetRinging(ctx, callID(call), false); err != nil {
			a.collaboratorFailed("audio", err)
		}
	}
}

func (a *Arbiter) startCallWaitingTone(ctx context.Context) {
	if a.collab.Tones == nil {
		return
	}
	player, err := a.collab.Tones.NewTonePlayer(ctx, ToneCallWaiting)
	if err != nil {
		a.collaboratorFailed("tone", err)
		return
	}
	a.tone = player
	if err := player.StartTone(ctx); err != nil {
		a.collaboratorFailed("tone", err)
	}
}

func (a *Arbiter) stopCallWaiting(ctx context.Context, call *Call) {
	if a.tone != nil {
		if err := a.tone.StopTone(ctx); err != nil {
			a.collaboratorFailed("tone", err)
		}
		a.tone = nil
	}
	if a.state == StateCallWaitingTone {
		a.setState(call, StateIdle, EventStopCallWaitingTone, "")
	}
}

func (a *Arbiter) setState(call *Call, next SignalState, event, reason string) {
	if a.state == next {
		return
	}
	prev := a.state
	a.state = next
	entry := a.logger.Info().Str("call", string(callID(call))).Str("from", prev.String()).Str("to", next.String())
	if reason != "" {
		entry = entry.Str("reason", reason)
	}
	entry.Msg(event)
	a.collector.IncSignalTransition(prev.String(), next.String())
}

func (a *Arbiter) shouldRingForContact(ctx context.Context, contact string) bool {
	if a.collab.Filter == nil {
		return true
	}
	var contacts []string
	if contact != "" {
		contacts = []string{contact}
	}
	return a.collab.Filter.MatchesFilter(ctx, contacts)
}

func (a *Arbiter) shouldVibrate(ctx context.Context) bool {
	if a.collab.Vibrator == nil {
		return false
	}
	mode := RingerModeNormal
	if a.collab.Audio != nil {
		m, err := a.collab.Audio.RingerMode(ctx)
		if err != nil {
			a.collaboratorFailed("audio", err)
			return false
		}
		mode = m
	}
	vibrateWhenRinging := a.settings != nil &&
		a.settings.GetInt(ctx, settings.NamespaceSystem, settings.KeyVibrateWhenRinging, 0) != 0
	return ShouldVibrate(a.collab.Vibrator.HasVibrator(ctx), vibrateWhenRinging, mode)
}

func (a *Arbiter) vibrate(ctx context.Context) error {
	pattern := append([]time.Duration(nil), a.pattern...)
	return a.collab.Vibrator.Vibrate(ctx, pattern, a.repeat, RingtoneVibrationAttributes)
}

func (a *Arbiter) ringStreamVolume(ctx context.Context) (int, error) {
	if a.collab.Audio == nil {
		return 0, nil
	}
	return a.collab.Audio.RingStreamVolume(ctx)
}

func (a *Arbiter) resolveLine(ctx context.Context, accountID string) int {
	sub, ok := subscriptionID(accountID)
	if !ok || a.collab.Lines == nil {
		return a.defaultLine
	}
	index, err := a.collab.Lines.ResolvePhoneIndex(ctx, sub)
	if err != nil {
		a.collaboratorFailed("lines", err)
		return a.defaultLine
	}
	if index < 0 {
		return a.defaultLine
	}
	return index
}

func (a *Arbiter) collaboratorFailed(name string, err error) {
	a.logger.Warn().Err(err).Str("collaborator", name).Msg("collaborator command failed")
	a.collector.IncCollaboratorError(name)
}

func callID(call *Call) CallID {
	if call == nil {
		return ""
	}
	return call.ID
}
