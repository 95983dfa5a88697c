package ringer

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type countingCollector struct {
	transitions []string
	ringing     int
	errors      map[string]int
}

func (c *countingCollector) IncHotReload(string) {}

func (c *countingCollector) IncSignalTransition(from, to string) {
	c.transitions = append(c.transitions, from+">"+to)
}

func (c *countingCollector) SetRingingCalls(count int) { c.ringing = count }

func (c *countingCollector) IncSettingsLookup(string, string) {}

func (c *countingCollector) IncStoreError(string, string) {}

func (c *countingCollector) IncCollaboratorError(name string) {
	if c.errors == nil {
		c.errors = map[string]int{}
	}
	c.errors[name]++
}

func newTestArbiter(t *testing.T, h *harness, opts ...Option) *Arbiter {
	t.Helper()
	a, err := New(h.settings, h.collaborators(), opts...)
	require.NoError(t, err)
	return a
}

func TestNewRequiresCallManager(t *testing.T) {
	_, err := New(nil, Collaborators{})
	require.Error(t, err)
}

func TestNewValidatesOptions(t *testing.T) {
	h := newHarness()
	_, err := New(h.settings, h.collaborators(), WithVibrationPattern(nil, 0))
	require.Error(t, err)
	_, err = New(h.settings, h.collaborators(), WithVibrationPattern([]time.Duration{time.Second}, 1))
	require.Error(t, err)
	_, err = New(h.settings, h.collaborators(), WithDefaultLine(-1))
	require.Error(t, err)
	_, err = New(h.settings, h.collaborators(), WithTelemetry(nil))
	require.Error(t, err)
}

func TestSingleIncomingCallRings(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)
	ctx := context.Background()

	call := incoming("A")
	h.calls.foreground = &call
	a.Handle(ctx, CallAdded(call))

	require.Equal(t, StateRinging, a.State())
	require.Equal(t, []CallID{"A"}, a.RingingCalls())
	require.Equal(t, []string{
		"audio.ringing(A,true)",
		"ringtone.line(0)",
		"ringtone.play(ring-A)",
	}, h.rec.commands)
	require.False(t, a.Vibrating())
}

func TestUpdateRingingIsIdempotent(t *testing.T) {
	h := newHarness()
	h.settings.ints["system/vibrate_when_ringing"] = 1
	a := newTestArbiter(t, h)
	ctx := context.Background()

	call := incoming("A")
	h.calls.foreground = &call
	a.Handle(ctx, CallAdded(call))
	require.Equal(t, 1, h.rec.count("ringtone.play"))
	require.Equal(t, 1, h.rec.count("vibrator.vibrate"))

	h.rec.reset()
	a.Handle(ctx, ForegroundCallChanged(nil, &call))
	a.Handle(ctx, ForegroundCallChanged(nil, &call))
	require.Empty(t, h.rec.commands)
	require.Equal(t, StateRinging, a.State())
}

func TestTwoIncomingCallsRejectHead(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA, callB := incoming("A"), incoming("B")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	a.Handle(ctx, CallAdded(callB))
	require.Equal(t, []CallID{"A", "B"}, a.RingingCalls())
	require.Equal(t, StateRinging, a.State())
	require.Equal(t, 1, h.rec.count("ringtone.play"))

	h.calls.foreground = &callB
	a.Handle(ctx, IncomingCallRejected(callA, true, "busy"))
	require.Equal(t, []CallID{"B"}, a.RingingCalls())
	require.Equal(t, StateRinging, a.State())
	require.Equal(t, 2, h.rec.count("ringtone.play"))
	require.Equal(t, "ringtone.play(ring-B)", h.rec.commands[len(h.rec.commands)-1])
}

func TestAnsweringNonHeadCallKeepsItRinging(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA, callB := incoming("A"), incoming("B")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	a.Handle(ctx, CallAdded(callB))

	a.Handle(ctx, IncomingCallAnswered(callB))
	require.Equal(t, []CallID{"A", "B"}, a.RingingCalls())

	a.Handle(ctx, CallStateChanged(callB, CallStateRinging, CallStateActive))
	require.Equal(t, []CallID{"A"}, a.RingingCalls())
}

func TestCallWaitingStartsToneOnce(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callC := active("C")
	h.calls.foreground = &callC
	h.calls.activeOrHold = true
	a.Handle(ctx, CallAdded(active("C")))
	require.Empty(t, h.rec.commands)

	callD := incoming("D")
	a.Handle(ctx, CallAdded(callD))
	require.Equal(t, StateCallWaitingTone, a.State())
	require.Equal(t, []string{
		"ringtone.stop",
		"audio.ringing(D,false)",
		"tone.start",
	}, h.rec.commands)

	a.Handle(ctx, ForegroundCallChanged(&callC, &callD))
	a.Handle(ctx, CallAdded(callD))
	require.Equal(t, 1, h.rec.count("tone.start"))
	require.Equal(t, []string{ToneCallWaiting}, h.tones.created)
	require.Zero(t, h.rec.count("ringtone.play"))
	require.Zero(t, h.rec.count("vibrator.vibrate"))
	require.Equal(t, []CallID{"D"}, a.RingingCalls())

	h.rec.reset()
	a.Handle(ctx, IncomingCallAnswered(callD))
	require.Equal(t, StateIdle, a.State())
	require.Empty(t, a.RingingCalls())
	require.Equal(t, []string{
		"ringtone.stop",
		"audio.ringing(D,false)",
		"tone.stop",
	}, h.rec.commands)
}

func TestCallWaitingReplacesRinging(t *testing.T) {
	h := newHarness()
	h.audio.mode = RingerModeVibrate
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	require.True(t, a.Vibrating())

	callA.State = CallStateActive
	h.calls.activeOrHold = true
	a.Handle(ctx, CallStateChanged(callA, CallStateRinging, CallStateActive))
	require.Equal(t, StateIdle, a.State())

	h.rec.reset()
	callB := incoming("B")
	a.Handle(ctx, CallAdded(callB))
	require.Equal(t, StateCallWaitingTone, a.State())
	require.False(t, a.Vibrating())
	require.Equal(t, 1, h.rec.count("tone.start"))
}

func TestTheaterModeSuppressesSignaling(t *testing.T) {
	h := newHarness()
	h.settings.ints["global/theater_mode_on"] = 1
	h.settings.ints["system/vibrate_when_ringing"] = 1
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	a.Handle(ctx, CallAdded(incoming("B")))

	callC := active("C")
	h.calls.foreground = &callC
	h.calls.activeOrHold = true
	a.Handle(ctx, ForegroundCallChanged(&callA, &callC))

	require.Empty(t, h.rec.commands)
	require.Equal(t, StateIdle, a.State())
	require.Equal(t, []CallID{"A", "B"}, a.RingingCalls())
}

func TestTheaterModeRequiresExactValue(t *testing.T) {
	h := newHarness()
	h.settings.ints["global/theater_mode_on"] = 2
	a := newTestArbiter(t, h)

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(context.Background(), CallAdded(callA))
	require.Equal(t, StateRinging, a.State())
}

func TestStoppingRingingCancelsVibrationInOrder(t *testing.T) {
	h := newHarness()
	h.settings.ints["system/vibrate_when_ringing"] = 1
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	require.True(t, a.Vibrating())
	require.Equal(t, DefaultVibrationPattern, h.vibrator.pattern)
	require.Equal(t, DefaultVibrationRepeat, h.vibrator.repeat)
	require.Equal(t, RingtoneVibrationAttributes, h.vibrator.attrs)

	h.rec.reset()
	h.calls.foreground = nil
	a.Handle(ctx, CallRemoved(callA))
	require.False(t, a.Vibrating())
	require.Equal(t, StateIdle, a.State())
	require.Equal(t, []string{
		"ringtone.stop",
		"vibrator.cancel",
		"audio.ringing(A,false)",
	}, h.rec.commands)
}

func TestMutedStreamStillVibrates(t *testing.T) {
	h := newHarness()
	h.audio.volume = -1
	h.audio.mode = RingerModeVibrate
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	require.Equal(t, StateRinging, a.State())
	require.True(t, a.Vibrating())
	require.Equal(t, []string{"vibrator.vibrate"}, h.rec.commands)

	a.Handle(ctx, ForegroundCallChanged(nil, &callA))
	require.Equal(t, StateRinging, a.State())
	require.Equal(t, 1, h.rec.count("vibrator.vibrate"))
	require.Zero(t, h.rec.count("ringtone.play"))

	a.Handle(ctx, CallRemoved(callA))
	require.Equal(t, StateIdle, a.State())
	require.False(t, a.Vibrating())
	require.Equal(t, 1, h.rec.count("vibrator.cancel"))
}

func TestInterruptionFilterBlocksContact(t *testing.T) {
	h := newHarness()
	h.settings.ints["system/vibrate_when_ringing"] = 1
	h.filter.blocked["tel:+4912345"] = true
	a := newTestArbiter(t, h)

	callA := incoming("A")
	callA.Contact = "tel:+4912345"
	h.calls.foreground = &callA
	a.Handle(context.Background(), CallAdded(callA))

	require.Empty(t, h.rec.commands)
	require.Equal(t, StateIdle, a.State())
	require.Equal(t, [][]string{{"tel:+4912345"}}, h.filter.seen)
	require.Equal(t, []CallID{"A"}, a.RingingCalls())
}

func TestUnknownContactPassesEmptyList(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(context.Background(), CallAdded(callA))
	require.Equal(t, [][]string{nil}, h.filter.seen)
}

func TestRampParametersReachPlayer(t *testing.T) {
	h := newHarness()
	h.settings.ints["system/increasing_ring"] = 1
	a := newTestArbiter(t, h)

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(context.Background(), CallAdded(callA))
	require.Equal(t, DefaultRampStartVolume, h.ringtone.volume)
	require.Equal(t, 20*time.Second, h.ringtone.rampUp)
}

func TestLineResolution(t *testing.T) {
	tests := []struct {
		name      string
		accountID string
		lines     *fakeLines
		opts      []Option
		want      int
	}{
		{name: "digits resolved", accountID: "12", lines: &fakeLines{index: map[int]int{12: 1}}, want: 1},
		{name: "non numeric", accountID: "sip:alice", lines: &fakeLines{index: map[int]int{}}, want: 0},
		{name: "empty", accountID: "", lines: &fakeLines{index: map[int]int{}}, want: 0},
		{name: "unknown subscription", accountID: "7", lines: &fakeLines{index: map[int]int{}}, want: 0},
		{name: "resolver error", accountID: "7", lines: &fakeLines{err: errors.New("no subscription service")}, want: 0},
		{name: "overflow", accountID: "99999999999999999999999", lines: &fakeLines{index: map[int]int{}}, want: 0},
		{name: "custom default", accountID: "x", lines: &fakeLines{}, opts: []Option{WithDefaultLine(2)}, want: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness()
			h.lines = tt.lines
			a := newTestArbiter(t, h, tt.opts...)

			call := incoming("A")
			call.AccountID = tt.accountID
			h.calls.foreground = &call
			a.Handle(context.Background(), CallAdded(call))
			if h.ringtone.line != tt.want {
				t.Fatalf("expected line %d, got %d", tt.want, h.ringtone.line)
			}
		})
	}
}

func TestSilenceClearsRingingCalls(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA, callB := incoming("A"), incoming("B")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	a.Handle(ctx, CallAdded(callB))

	h.rec.reset()
	a.Handle(ctx, Silence())
	require.Empty(t, a.RingingCalls())
	require.Equal(t, StateIdle, a.State())
	require.Equal(t, []CallID{"A", "B"}, h.calls.silenced)
	require.Equal(t, []string{
		"calls.silence(A)",
		"calls.silence(B)",
		"ringtone.stop",
		"audio.ringing(,false)",
	}, h.rec.commands)
}

func TestNonRingingCallsAreIgnored(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)
	ctx := context.Background()

	outgoing := Call{ID: "O", State: CallStateDialing}
	a.Handle(ctx, CallAdded(outgoing))
	notRinging := Call{ID: "N", State: CallStateNew, Incoming: true}
	a.Handle(ctx, CallAdded(notRinging))

	require.Empty(t, a.RingingCalls())
	require.Empty(t, h.rec.commands)
}

func TestDuplicateCallAddedIsNotDuplicated(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	a.Handle(ctx, CallAdded(callA))
	require.Equal(t, []CallID{"A"}, a.RingingCalls())
	require.Equal(t, 1, h.rec.count("ringtone.play"))
}

func TestStateChangeToRingingKeepsCall(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	a.Handle(ctx, CallStateChanged(callA, CallStateNew, CallStateRinging))
	require.Equal(t, []CallID{"A"}, a.RingingCalls())

	a.Handle(ctx, CallStateChanged(callA, CallStateRinging, CallStateDisconnected))
	require.Empty(t, a.RingingCalls())
}

func TestFailedRingtoneIsRetriedOnNextEvent(t *testing.T) {
	h := newHarness()
	h.ringtone.playErr = errors.New("device busy")
	collector := &countingCollector{}
	a := newTestArbiter(t, h, WithTelemetry(collector))
	ctx := context.Background()

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	require.Equal(t, StateRinging, a.State())
	require.Equal(t, 1, collector.errors["ringtone"])

	h.ringtone.playErr = nil
	a.Handle(ctx, ForegroundCallChanged(nil, &callA))
	require.Equal(t, 2, h.rec.count("ringtone.play"))
	a.Handle(ctx, ForegroundCallChanged(nil, &callA))
	require.Equal(t, 2, h.rec.count("ringtone.play"))
}

func TestAudioFailureSkipsRingtone(t *testing.T) {
	h := newHarness()
	h.audio.volumeErr = errors.New("audio server gone")
	a := newTestArbiter(t, h)

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(context.Background(), CallAdded(callA))
	require.Equal(t, StateRinging, a.State())
	require.Zero(t, h.rec.count("ringtone.play"))
}

func TestMissingActuatorsAreTolerated(t *testing.T) {
	calls := &fakeCalls{rec: &recorder{}}
	a, err := New(nil, Collaborators{Calls: calls})
	require.NoError(t, err)
	ctx := context.Background()

	callA := incoming("A")
	calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	require.Equal(t, StateRinging, a.State())
	require.False(t, a.Vibrating())

	callC := active("C")
	calls.foreground = &callC
	calls.activeOrHold = true
	a.Handle(ctx, ForegroundCallChanged(&callA, &callC))
	a.Handle(ctx, CallAdded(incoming("D")))
	require.Equal(t, StateCallWaitingTone, a.State())

	a.Handle(ctx, Silence())
	require.Equal(t, StateIdle, a.State())
}

func TestTelemetryTracksTransitions(t *testing.T) {
	h := newHarness()
	collector := &countingCollector{}
	a := newTestArbiter(t, h, WithTelemetry(collector))
	ctx := context.Background()

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))
	require.Equal(t, 1, collector.ringing)

	callC := active("C")
	h.calls.foreground = &callC
	h.calls.activeOrHold = true
	a.Handle(ctx, CallAdded(incoming("B")))
	a.Handle(ctx, Silence())

	require.Equal(t, []string{
		"idle>ringing",
		"ringing>idle",
		"idle>call_waiting_tone",
		"call_waiting_tone>idle",
	}, collector.transitions)
	require.Zero(t, collector.ringing)
}

func TestShutdownStopsSignals(t *testing.T) {
	h := newHarness()
	h.audio.mode = RingerModeVibrate
	a := newTestArbiter(t, h)
	ctx := context.Background()

	callA := incoming("A")
	h.calls.foreground = &callA
	a.Handle(ctx, CallAdded(callA))

	a.Shutdown(ctx)
	require.Equal(t, StateIdle, a.State())
	require.False(t, a.Vibrating())
	require.Empty(t, a.RingingCalls())
	require.Equal(t, 1, h.rec.count("vibrator.cancel"))
}

func TestRunProcessesEventsSerially(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)

	callA := incoming("A")
	h.calls.foreground = &callA
	events := make(chan Event, 2)
	events <- CallAdded(callA)
	events <- CallRemoved(callA)
	close(events)

	require.NoError(t, a.Run(context.Background(), events))
	require.Equal(t, StateIdle, a.State())
	require.Equal(t, 1, h.rec.count("ringtone.play"))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	h := newHarness()
	a := newTestArbiter(t, h)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := a.Run(ctx, make(chan Event))
	require.ErrorIs(t, err, context.Canceled)
}

func TestRingingSetInvariantsUnderRandomEvents(t *testing.T) {
	h := newHarness()
	h.audio.mode = RingerModeVibrate
	a := newTestArbiter(t, h)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	ids := []string{"A", "B", "C", "D"}
	lastNonRinging := map[CallID]bool{}

	for i := 0; i < 500; i++ {
		call := incoming(ids[rng.Intn(len(ids))])
		h.audio.volume = rng.Intn(3) - 1
		switch rng.Intn(4) {
		case 0, 1:
			a.Handle(ctx, CallAdded(call))
			lastNonRinging[call.ID] = false
		case 2:
			a.Handle(ctx, CallRemoved(call))
		case 3:
			a.Handle(ctx, CallStateChanged(call, CallStateRinging, CallStateActive))
			lastNonRinging[call.ID] = true
		}
		if rng.Intn(3) == 0 {
			ringing := a.RingingCalls()
			if len(ringing) > 0 {
				fg := incoming(string(ringing[rng.Intn(len(ringing))]))
				h.calls.foreground = &fg
			} else {
				h.calls.foreground = nil
			}
		}

		seen := map[CallID]bool{}
		for _, id := range a.RingingCalls() {
			if seen[id] {
				t.Fatalf("step %d: duplicate call %s in %v", i, id, a.RingingCalls())
			}
			seen[id] = true
			if lastNonRinging[id] {
				t.Fatalf("step %d: call %s left ringing state but is still tracked", i, id)
			}
		}
		if a.State() != StateRinging && a.Vibrating() {
			t.Fatalf("step %d: vibrating while %s", i, a.State())
		}
	}
}
