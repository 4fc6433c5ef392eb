package scenario

import (
	"slices"
	"strings"
)

// This file tracks the connection state of a scenario attempt as a pure
// transition table. Case bodies report what they issued and observed; the
// tracker never touches the product.
//
//	Idle --ConnectIssued--> Connecting --ConnectOK--> Connected
//	  ^                        |  |                    |  |
//	  |   ConnectRejected      |  | CommandFailed      |  | DisconnectIssued
//	  +------------------------+  v                    |  v
//	  |                      Failed <--AssertionFailed-+ Disconnecting
//	  |                        |                          |  |
//	  +-------Reset------------+<------CommandFailed------+  |
//	  +--------------------DisconnectOK----------------------+

// State is a scenario connection state.
type State uint8

// Scenario states.
const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
	StateFailed
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	case StateDisconnecting:
		return "Disconnecting"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Event is something a case body issued or observed.
type Event uint8

// Scenario events.
const (
	// EventConnectIssued is sent before a connect command runs.
	EventConnectIssued Event = iota

	// EventConnectOK is sent when a connect command exited zero.
	EventConnectOK

	// EventConnectRejected is sent when a connect command failed as the
	// case expected (absent server, invalid group, no uplink).
	EventConnectRejected

	// EventDisconnectIssued is sent before a disconnect command runs.
	EventDisconnectIssued

	// EventDisconnectOK is sent when a disconnect command exited zero.
	EventDisconnectOK

	// EventCommandFailed is sent when a command failed unexpectedly.
	EventCommandFailed

	// EventAssertionFailed is sent when an observed state mismatched.
	EventAssertionFailed

	// EventReset is sent by the executor once cleanup has unwound.
	EventReset
)

// String returns the human-readable name of the event.
func (e Event) String() string {
	switch e {
	case EventConnectIssued:
		return "ConnectIssued"
	case EventConnectOK:
		return "ConnectOK"
	case EventConnectRejected:
		return "ConnectRejected"
	case EventDisconnectIssued:
		return "DisconnectIssued"
	case EventDisconnectOK:
		return "DisconnectOK"
	case EventCommandFailed:
		return "CommandFailed"
	case EventAssertionFailed:
		return "AssertionFailed"
	case EventReset:
		return "Reset"
	default:
		return "Unknown"
	}
}

type stateEvent struct {
	state State
	event Event
}

// fsmTable lists every valid transition. Unlisted pairs are ignored.
//
// Reset is accepted from every non-idle state: cleanup brackets force a
// disconnect before the executor sends it.
//
//nolint:gochecknoglobals // transition table is intentionally package-level.
var fsmTable = map[stateEvent]State{
	{StateIdle, EventConnectIssued}:   StateConnecting,
	{StateIdle, EventAssertionFailed}: StateFailed,

	{StateConnecting, EventConnectOK}:       StateConnected,
	{StateConnecting, EventConnectRejected}: StateIdle,
	{StateConnecting, EventCommandFailed}:   StateFailed,
	{StateConnecting, EventReset}:           StateIdle,

	// Connecting again while connected is how double connect is exercised.
	{StateConnected, EventConnectIssued}:    StateConnecting,
	{StateConnected, EventDisconnectIssued}: StateDisconnecting,
	{StateConnected, EventAssertionFailed}:  StateFailed,
	{StateConnected, EventReset}:            StateIdle,

	{StateDisconnecting, EventDisconnectOK}:  StateIdle,
	{StateDisconnecting, EventCommandFailed}: StateFailed,
	{StateDisconnecting, EventReset}:         StateIdle,

	{StateFailed, EventReset}: StateIdle,
}

// Transition is the outcome of applying one event.
type Transition struct {
	Event    Event
	OldState State
	NewState State

	// Changed is false when the event was ignored.
	Changed bool
}

// ApplyEvent applies e to s. It has no side effects.
func ApplyEvent(s State, e Event) Transition {
	next, ok := fsmTable[stateEvent{state: s, event: e}]
	if !ok {
		return Transition{Event: e, OldState: s, NewState: s}
	}
	return Transition{Event: e, OldState: s, NewState: next, Changed: next != s}
}

// Tracker follows one scenario across its attempts and keeps the trail of
// applied transitions.
type Tracker struct {
	state    State
	trail    []Transition
	observer func(Transition)
}

// NewTracker returns a Tracker in StateIdle. observer, if non-nil, sees
// every transition that changed the state.
func NewTracker(observer func(Transition)) *Tracker {
	return &Tracker{state: StateIdle, observer: observer}
}

// Apply feeds e into the tracker.
func (t *Tracker) Apply(e Event) Transition {
	tr := ApplyEvent(t.state, e)
	if !tr.Changed {
		return tr
	}
	t.state = tr.NewState
	t.trail = append(t.trail, tr)
	if t.observer != nil {
		t.observer(tr)
	}
	return tr
}

// State returns the current state.
func (t *Tracker) State() State { return t.state }

// Trail returns a copy of the applied transitions.
func (t *Tracker) Trail() []Transition { return slices.Clone(t.trail) }

// TrailString renders the trail as "Idle > Connecting > Connected ...".
func (t *Tracker) TrailString() string {
	if len(t.trail) == 0 {
		return t.state.String()
	}
	var b strings.Builder
	b.WriteString(t.trail[0].OldState.String())
	for _, tr := range t.trail {
		b.WriteString(" > ")
		b.WriteString(tr.NewState.String())
	}
	return b.String()
}
