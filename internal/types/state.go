package types

import "fmt"

// State is a step of the per-format parse state machine.
type State int

const (
	// StateStart is the initial state before any byte is read.
	StateStart State = iota
	// StateSignatureVerified means the magic bytes matched.
	StateSignatureVerified
	// StateBodyWalking means the chunk/segment walk is in progress.
	StateBodyWalking
	// StateBodyComplete is terminal and means a model is available.
	StateBodyComplete
	// StateFailed is terminal and carries the first violation.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateSignatureVerified:
		return "signature-verified"
	case StateBodyWalking:
		return "body-walking"
	case StateBodyComplete:
		return "body-complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Terminal reports whether no further transition is allowed.
func (s State) Terminal() bool {
	return s == StateBodyComplete || s == StateFailed
}

// next lists legal forward transitions; StateFailed is reachable from any
// non-terminal state.
var next = map[State]State{
	StateStart:             StateSignatureVerified,
	StateSignatureVerified: StateBodyWalking,
	StateBodyWalking:       StateBodyComplete,
}

// Machine tracks the progress of one parse.
type Machine struct {
	err    error
	state  State
	format Format
}

// NewMachine returns a machine in StateStart for the given format.
func NewMachine(f Format) *Machine {
	return &Machine{format: f}
}

// State returns the current state.
func (m *Machine) State() State {
	return m.state
}

// Err returns the error recorded by Fail, if any.
func (m *Machine) Err() error {
	return m.err
}

// Advance moves to the given state. Transitions other than the single
// legal successor panic, since they indicate a parser bug rather than bad input.
func (m *Machine) Advance(to State) {
	if want, ok := next[m.state]; !ok || want != to {
		panic(fmt.Sprintf("%s parser: illegal transition %s -> %s", m.format, m.state, to))
	}
	m.state = to
}

// Fail records err, stamps it with the machine's format and enters StateFailed.
// It returns the stamped error so callers can write `return nil, m.Fail(err)`.
func (m *Machine) Fail(err error) error {
	if m.state.Terminal() {
		return err
	}
	m.err = WithFormat(err, m.format)
	m.state = StateFailed
	return m.err
}
