package bridge

import (
	"context"
	"sync"

	"github.com/timzifer/ringd/ringer"
)

// CallTracker mirrors the calls reported on the events topic and answers the
// arbiter's questions about them. It is updated from the MQTT goroutine and
// read from the arbiter loop.
type CallTracker struct {
	mu         sync.RWMutex
	order      []ringer.CallID
	calls      map[ringer.CallID]ringer.Call
	foreground ringer.CallID
	silence    func(ctx context.Context, call ringer.CallID)
}

// NewCallTracker creates an empty tracker. silence is invoked for every call
// the arbiter silences and may be nil.
func NewCallTracker(silence func(ctx context.Context, call ringer.CallID)) *CallTracker {
	return &CallTracker{
		calls:   make(map[ringer.CallID]ringer.Call),
		silence: silence,
	}
}

// Apply updates the tracked calls with an event.
func (t *CallTracker) Apply(ev ringer.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch ev.Kind {
	case ringer.EventCallAdded:
		t.upsert(ev.Call)
	case ringer.EventCallStateChanged:
		call := ev.Call
		call.State = ev.NewState
		t.upsert(call)
		if call.State == ringer.CallStateDisconnected {
			t.remove(call.ID)
		}
	case ringer.EventCallRemoved:
		t.remove(ev.Call.ID)
	case ringer.EventForegroundCallChanged:
		t.foreground = ""
		if ev.NewForeground != nil {
			if _, ok := t.calls[ev.NewForeground.ID]; !ok {
				t.upsert(*ev.NewForeground)
			}
			t.foreground = ev.NewForeground.ID
		}
	}
}

// Seed adds calls known from elsewhere, such as a previous tracker. Calls
// already tracked keep their current state, and foreground only applies when
// no foreground call has been reported yet.
func (t *CallTracker) Seed(calls []ringer.Call, foreground ringer.CallID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, call := range calls {
		if _, ok := t.calls[call.ID]; ok {
			continue
		}
		t.upsert(call)
	}
	if t.foreground == "" {
		if _, ok := t.calls[foreground]; ok {
			t.foreground = foreground
		}
	}
}

// Foreground returns the id of the reported foreground call.
func (t *CallTracker) Foreground() (ringer.CallID, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.calls[t.foreground]; !ok || t.foreground == "" {
		return "", false
	}
	return t.foreground, true
}

func (t *CallTracker) upsert(call ringer.Call) {
	if existing, ok := t.calls[call.ID]; ok {
		if call.Contact == "" {
			call.Contact = existing.Contact
		}
		if call.AccountID == "" {
			call.AccountID = existing.AccountID
		}
		if call.Ringtone == "" {
			call.Ringtone = existing.Ringtone
		}
		t.calls[call.ID] = call
		return
	}
	t.calls[call.ID] = call
	t.order = append(t.order, call.ID)
}

func (t *CallTracker) remove(id ringer.CallID) {
	if _, ok := t.calls[id]; !ok {
		return
	}
	delete(t.calls, id)
	for i, existing := range t.order {
		if existing == id {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
	if t.foreground == id {
		t.foreground = ""
	}
}

// ForegroundCall returns the reported foreground call. Without a report it
// prefers the oldest live call over the oldest ringing call over a held call.
func (t *CallTracker) ForegroundCall(context.Context) (ringer.Call, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if call, ok := t.calls[t.foreground]; ok && t.foreground != "" {
		return call, true
	}
	for _, states := range [][]ringer.CallState{
		{ringer.CallStateActive, ringer.CallStateDialing},
		{ringer.CallStateRinging},
		{ringer.CallStateOnHold},
	} {
		for _, id := range t.order {
			call := t.calls[id]
			for _, state := range states {
				if call.State == state {
					return call, true
				}
			}
		}
	}
	return ringer.Call{}, false
}

// HasActiveOrHoldingCall reports whether any call is active or on hold.
func (t *CallTracker) HasActiveOrHoldingCall(context.Context) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, call := range t.calls {
		if call.State == ringer.CallStateActive || call.State == ringer.CallStateOnHold {
			return true
		}
	}
	return false
}

// Silence forwards the silence request for a call.
func (t *CallTracker) Silence(ctx context.Context, call ringer.CallID) {
	if t.silence != nil {
		t.silence(ctx, call)
	}
}

// Calls returns the tracked calls in arrival order.
func (t *CallTracker) Calls() []ringer.Call {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ringer.Call, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.calls[id])
	}
	return out
}
