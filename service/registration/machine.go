package registration

import "fmt"

// State is a step in the account registration lifecycle.
type State string

const (
	// StateNotConnected means no wallet is associated yet.
	StateNotConnected State = "not_connected"
	// StateNotRegistered means a wallet is connected but the ledger has no
	// confirmed account for it.
	StateNotRegistered State = "not_registered"
	// StatePending means a registration transaction was submitted and its
	// confirmation is being polled.
	StatePending State = "pending"
	// StateRegistered is terminal: the ledger confirmed the account.
	StateRegistered State = "registered"
)

// Event drives a transition of the registration machine.
type Event string

const (
	// EventConnect associates a wallet address.
	EventConnect Event = "connect"
	// EventSubmit records that a registration transaction was submitted.
	EventSubmit Event = "submit"
	// EventConfirmed records that the ledger confirmed the registration.
	EventConfirmed Event = "confirmed"
	// EventFailed records that the submitted registration was rejected or
	// timed out, returning the wallet to the unregistered state.
	EventFailed Event = "failed"
)

// transitions holds every legal (state, event) pair. Anything absent is an
// invalid transition.
var transitions = map[State]map[Event]State{
	StateNotConnected: {
		EventConnect: StateNotRegistered,
	},
	StateNotRegistered: {
		EventSubmit: StatePending,
	},
	StatePending: {
		EventConfirmed: StateRegistered,
		EventFailed:    StateNotRegistered,
	},
}

// Machine tracks the registration state for a single wallet. It is a pure
// value type: callers persist the state and rebuild the machine as needed.
type Machine struct {
	state State
}

// NewMachine creates a machine in the given state. An empty state starts
// at not_connected.
func NewMachine(state State) *Machine {
	if state == "" {
		state = StateNotConnected
	}
	return &Machine{state: state}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Apply transitions the machine on the given event. Repeating an event
// that already produced the current state is a no-op, so confirmations and
// failures can be delivered more than once.
func (m *Machine) Apply(event Event) (State, error) {
	next, ok := transitions[m.state][event]
	if !ok {
		if m.idempotent(event) {
			return m.state, nil
		}
		return m.state, fmt.Errorf("invalid registration transition: %s on %s", event, m.state)
	}
	m.state = next
	return next, nil
}

// CanApply reports whether the event is legal in the current state.
func (m *Machine) CanApply(event Event) bool {
	_, ok := transitions[m.state][event]
	return ok || m.idempotent(event)
}

// idempotent reports whether the event re-delivers the outcome that
// already produced the current state.
func (m *Machine) idempotent(event Event) bool {
	switch {
	case m.state == StateRegistered && event == EventConfirmed:
		return true
	case m.state == StateNotRegistered && event == EventConnect:
		return true
	default:
		return false
	}
}
