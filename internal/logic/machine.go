package logic

import "fmt"

// Default motor speeds in percent. The action speed has the opposite sign to
// the interrogation speed: reversing the motor engages the selected action.
const (
	DefaultInterrogationSpeed = 40
	DefaultActionSpeed        = -100
)

// Machine is the action-state machine. It is not safe for concurrent use;
// exactly one goroutine owns it and feeds it requests and debounced edges.
//
// To change action the machine:
//  1. enters Interrogate and sweeps the motor past the ring of action switches,
//  2. waits for the falling edge of the switch bound to the desired action,
//  3. settles on that action and reverses the motor to perform it.
type Machine struct {
	lines              *LineMap
	current            Action
	desired            Action
	interrogationSpeed int
	actionSpeed        int
}

// NewMachine creates a Machine holding Stop.
func NewMachine(lines *LineMap, interrogationSpeed, actionSpeed int) *Machine {
	return &Machine{
		lines:              lines,
		current:            ActionStop,
		desired:            ActionStop,
		interrogationSpeed: interrogationSpeed,
		actionSpeed:        actionSpeed,
	}
}

// Current returns the current state. It is ActionInterrogate while sweeping.
func (m *Machine) Current() Action {
	return m.current
}

// Desired returns the desired state.
func (m *Machine) Desired() Action {
	return m.desired
}

// Interrogating reports whether the motor is sweeping toward the desired action.
func (m *Machine) Interrogating() bool {
	return m.current == ActionInterrogate
}

// Request asks for a new desired state. Requesting the current state is a
// no-op. ActionAssistant toggles the assistant and then requests Stop.
func (m *Machine) Request(a Action) ([]Command, error) {
	if a == ActionAssistant {
		cmds := []Command{{Kind: CommandToggleAssistant}}
		return append(cmds, m.request(ActionStop)...), nil
	}
	if !a.Mechanical() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAction, a)
	}
	return m.request(a), nil
}

func (m *Machine) request(a Action) []Command {
	if a == m.current {
		return nil
	}
	m.desired = a
	m.current = ActionInterrogate
	return []Command{m.speedCommand()}
}

// Edge applies a debounced edge. An edge on an unmapped line returns
// ErrUnmappedLine and must be treated as fatal.
func (m *Machine) Edge(e Edge) ([]Command, error) {
	action, ok := m.lines.Action(e.Line)
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnmappedLine, e.Line)
	}

	if action == ActionAssistant {
		if e.Level == Low {
			return m.Request(ActionAssistant)
		}
		return nil, nil
	}

	if e.Level == High {
		// Rising edges mostly mean the gear left a switch and are ignored.
		// Released while holding that action means the arm hit its limit.
		if action != m.current || m.current == ActionStop {
			return nil, nil
		}
		cmds := []Command{{Kind: CommandSetSpeed, Speed: 0}}
		return append(cmds, m.request(ActionStop)...), nil
	}

	switch action {
	case m.current:
		// Held switch re-triggering.
		return nil, nil
	case m.desired:
		m.current = m.desired
		return []Command{m.speedCommand()}, nil
	}
	// Swept past an unrelated switch.
	return nil, nil
}

// Speed returns the motor speed policy for the current state.
func (m *Machine) Speed() int {
	switch m.current {
	case ActionInterrogate:
		return m.interrogationSpeed
	case ActionStop:
		return 0
	}
	return m.actionSpeed
}

func (m *Machine) speedCommand() Command {
	return Command{Kind: CommandSetSpeed, Speed: m.Speed()}
}
