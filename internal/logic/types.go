// Package logic contains the pure control logic for the verbot action gearbox.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Hardware ticks and wall-clock times are always passed in by the caller.
package logic

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action is a mechanical end-state the gearbox can rest in, plus the two
// pseudo-actions Interrogate and Assistant.
type Action int

const (
	// ActionInterrogate is the transient sweep state. It is never requestable.
	ActionInterrogate Action = iota
	ActionStop
	ActionRotateRight
	ActionRotateLeft
	ActionForwards
	ActionReverse
	ActionPickUp
	ActionPutDown
	ActionTalk
	// ActionAssistant toggles the voice assistant conversation. It is never
	// a mechanical target.
	ActionAssistant
)

var actionNames = [...]string{
	ActionInterrogate: "interrogate",
	ActionStop:        "stop",
	ActionRotateRight: "rotate_right",
	ActionRotateLeft:  "rotate_left",
	ActionForwards:    "forwards",
	ActionReverse:     "reverse",
	ActionPickUp:      "pick_up",
	ActionPutDown:     "put_down",
	ActionTalk:        "talk",
	ActionAssistant:   "assistant",
}

// ErrUnknownAction is returned for action names (or values) that cannot be requested.
var ErrUnknownAction = errors.New("unknown action")

func (a Action) String() string {
	if a < 0 || int(a) >= len(actionNames) {
		return fmt.Sprintf("action(%d)", int(a))
	}
	return actionNames[a]
}

// Mechanical reports whether a is a position the gearbox can settle in.
func (a Action) Mechanical() bool {
	return a >= ActionStop && a <= ActionTalk
}

// ParseAction resolves a request name. Accepted names are the lowercase
// mechanical action identifiers plus "assistant".
func ParseAction(name string) (Action, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for a := ActionStop; a <= ActionAssistant; a++ {
		if actionNames[a] == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAction, name)
}

// Actions returns every requestable action in declaration order.
func Actions() []Action {
	out := make([]Action, 0, int(ActionAssistant))
	for a := ActionStop; a <= ActionAssistant; a++ {
		out = append(out, a)
	}
	return out
}

// phrases maps recognized speech to actions.
var phrases = map[string]Action{
	"stop":       ActionStop,
	"forwards":   ActionForwards,
	"backwards":  ActionReverse,
	"reverse":    ActionReverse,
	"left":       ActionRotateLeft,
	"turn left":  ActionRotateLeft,
	"right":      ActionRotateRight,
	"turn right": ActionRotateRight,
	"pick up":    ActionPickUp,
	"put down":   ActionPutDown,
}

// ParsePhrase maps a recognized voice phrase to an action.
func ParsePhrase(text string) (Action, bool) {
	a, ok := phrases[strings.ToLower(strings.TrimSpace(text))]
	return a, ok
}

// Level is the sampled digital level of a switch line.
// Lines are pulled high and read low while the switch is physically activated.
type Level uint8

const (
	Low  Level = 0
	High Level = 1
)

func (l Level) String() string {
	if l == High {
		return "HIGH"
	}
	return "LOW"
}

// Edge is an observed level change on a monitored line.
type Edge struct {
	Line  int
	Level Level
	Tick  uint32 // hardware microsecond counter, wraps at 2^32
}

// CommandKind identifies what a Command asks the caller to do.
type CommandKind int

const (
	// CommandSetSpeed sets the motor to Command.Speed percent.
	CommandSetSpeed CommandKind = iota
	// CommandToggleAssistant starts or stops the assistant conversation.
	CommandToggleAssistant
)

// Command is an effect produced by the Machine. Commands must be executed
// in the order returned.
type Command struct {
	Kind  CommandKind
	Speed int
}

func (c Command) String() string {
	if c.Kind == CommandToggleAssistant {
		return "toggle-assistant"
	}
	return fmt.Sprintf("speed=%d", c.Speed)
}

// TransitionType identifies a state observer notification.
type TransitionType string

const (
	TransitionWillChange TransitionType = "STATE_WILL_CHANGE"
	TransitionDidChange  TransitionType = "STATE_DID_CHANGE"
)

// Transition is published to observers when the desired state changes
// (WillChange) or the gearbox settles on the desired action (DidChange).
type Transition struct {
	Timestamp time.Time
	Type      TransitionType
	Current   Action
	Desired   Action
}

// Counts tracks pipeline activity since startup.
type Counts struct {
	Records     int // notification records read
	Edges       int // level changes decoded
	Accepted    int // edges passed by the debouncer
	Suppressed  int // edges filtered by the debouncer
	Requests    int // desired-state requests processed
	Transitions int // DidChange transitions
}
