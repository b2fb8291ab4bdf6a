// backend/internal/orchestrator/machine.go
package orchestrator

import "fmt"

// State names the positions of the per-request routing machine.
type State string

const (
	StateReceived   State = "RECEIVED"
	StateValidated  State = "VALIDATED"
	StateKBLookup   State = "KB_LOOKUP"
	StateWebLookup  State = "WEB_LOOKUP"
	StateGenerating State = "GENERATING"
	StateDone       State = "DONE"
	StateFailed     State = "FAILED"
	StateRejected   State = "REJECTED"
)

// transitions enumerates every legal edge. The machine is single-pass:
// there is no edge back from GENERATING to a lookup state.
var transitions = map[State][]State{
	StateReceived:   {StateValidated},
	StateValidated:  {StateKBLookup, StateRejected},
	StateKBLookup:   {StateGenerating, StateWebLookup, StateFailed},
	StateWebLookup:  {StateGenerating, StateRejected, StateFailed},
	StateGenerating: {StateDone, StateFailed},
}

// machine tracks one request's walk through the routing states. Each
// request owns its own instance; there is no shared machine state.
type machine struct {
	state   State
	history []State
}

func newMachine() *machine {
	return &machine{
		state:   StateReceived,
		history: []State{StateReceived},
	}
}

// transition moves to the target state, rejecting edges that are not in
// the transition table.
func (m *machine) transition(to State) error {
	for _, allowed := range transitions[m.state] {
		if allowed == to {
			m.state = to
			m.history = append(m.history, to)
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", m.state, to)
}

func (m *machine) current() State {
	return m.state
}

func (m *machine) terminal() bool {
	return m.state == StateDone || m.state == StateFailed || m.state == StateRejected
}
