package ringer

// EventKind tags the call lifecycle events consumed by the arbiter.
type EventKind int

const (
	EventCallAdded EventKind = iota + 1
	EventCallRemoved
	EventCallStateChanged
	EventIncomingCallAnswered
	EventIncomingCallRejected
	EventForegroundCallChanged
	EventSilence
)

var eventKindNames = map[EventKind]string{
	EventCallAdded:             "call_added",
	EventCallRemoved:           "call_removed",
	EventCallStateChanged:      "call_state_changed",
	EventIncomingCallAnswered:  "incoming_call_answered",
	EventIncomingCallRejected:  "incoming_call_rejected",
	EventForegroundCallChanged: "foreground_call_changed",
	EventSilence:               "silence",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseEventKind converts a textual event kind.
func ParseEventKind(value string) (EventKind, bool) {
	for kind, name := range eventKindNames {
		if name == value {
			return kind, true
		}
	}
	return 0, false
}

// Event is a call lifecycle notification. Only the fields relevant for Kind
// are set.
type Event struct {
	Kind EventKind
	Call Call

	OldState CallState
	NewState CallState

	OldForeground *Call
	NewForeground *Call

	RejectWithMessage bool
	Message           string
}

// CallAdded reports a new call.
func CallAdded(call Call) Event {
	return Event{Kind: EventCallAdded, Call: call}
}

// CallRemoved reports that a call is gone.
func CallRemoved(call Call) Event {
	return Event{Kind: EventCallRemoved, Call: call}
}

// CallStateChanged reports a lifecycle transition of a call.
func CallStateChanged(call Call, oldState, newState CallState) Event {
	call.State = newState
	return Event{Kind: EventCallStateChanged, Call: call, OldState: oldState, NewState: newState}
}

// IncomingCallAnswered reports that the user answered an incoming call.
func IncomingCallAnswered(call Call) Event {
	return Event{Kind: EventIncomingCallAnswered, Call: call}
}

// IncomingCallRejected reports that the user rejected an incoming call,
// optionally with a text message.
func IncomingCallRejected(call Call, withMessage bool, message string) Event {
	return Event{Kind: EventIncomingCallRejected, Call: call, RejectWithMessage: withMessage, Message: message}
}

// ForegroundCallChanged reports a new foreground call. Either side may be nil.
func ForegroundCallChanged(oldCall, newCall *Call) Event {
	return Event{Kind: EventForegroundCallChanged, OldForeground: oldCall, NewForeground: newCall}
}

// Silence asks the arbiter to stop signaling every ringing call.
func Silence() Event {
	return Event{Kind: EventSilence}
}
