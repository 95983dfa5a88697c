package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/timzifer/ringd/ringer"
)

type audioActuator struct{ b *Bridge }

func (a audioActuator) RingStreamVolume(context.Context) (int, error) {
	return a.b.device.RingVolume(), nil
}

func (a audioActuator) RingerMode(context.Context) (ringer.RingerMode, error) {
	return a.b.device.RingerMode(), nil
}

func (a audioActuator) SetRinging(_ context.Context, call ringer.CallID, ringing bool) error {
	return a.b.publish(Command{Target: TargetAudio, Action: "set_ringing", Call: string(call), Ringing: &ringing})
}

type vibratorActuator struct{ b *Bridge }

func (v vibratorActuator) HasVibrator(context.Context) bool {
	return v.b.device.HasVibrator()
}

func (v vibratorActuator) Vibrate(_ context.Context, pattern []time.Duration, repeat int, attrs ringer.VibrationAttributes) error {
	return v.b.publish(Command{
		Target:     TargetVibrator,
		Action:     "vibrate",
		PatternMS:  durationsMS(pattern),
		Repeat:     &repeat,
		Attributes: &attrs,
	})
}

func (v vibratorActuator) Cancel(context.Context) error {
	return v.b.publish(Command{Target: TargetVibrator, Action: "cancel"})
}

type ringtoneActuator struct{ b *Bridge }

func (r ringtoneActuator) SetLine(_ context.Context, index int) error {
	return r.b.publish(Command{Target: TargetRingtone, Action: "set_line", Line: &index})
}

func (r ringtoneActuator) Play(_ context.Context, ringtone string, startVolume float64, rampUp time.Duration) error {
	rampMS := rampUp.Milliseconds()
	return r.b.publish(Command{
		Target:      TargetRingtone,
		Action:      "play",
		Ringtone:    ringtone,
		StartVolume: &startVolume,
		RampUpMS:    &rampMS,
	})
}

func (r ringtoneActuator) Stop(context.Context) error {
	return r.b.publish(Command{Target: TargetRingtone, Action: "stop"})
}

type toneFactory struct{ b *Bridge }

func (f toneFactory) NewTonePlayer(_ context.Context, tone string) (ringer.TonePlayer, error) {
	return tonePlayer{b: f.b, tone: tone}, nil
}

type tonePlayer struct {
	b    *Bridge
	tone string
}

func (t tonePlayer) StartTone(context.Context) error {
	return t.b.publish(Command{Target: TargetTone, Action: "start", Tone: t.tone})
}

func (t tonePlayer) StopTone(context.Context) error {
	return t.b.publish(Command{Target: TargetTone, Action: "stop", Tone: t.tone})
}

type lineResolver struct{ b *Bridge }

func (l lineResolver) ResolvePhoneIndex(_ context.Context, subscriptionID int) (int, error) {
	index, ok := l.b.device.Line(subscriptionID)
	if !ok {
		return 0, fmt.Errorf("bridge: no line for subscription %d", subscriptionID)
	}
	return index, nil
}
