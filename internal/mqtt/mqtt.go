// Package mqtt publishes verbot state and lifecycle events, signals the voice
// assistant, and accepts action requests, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sweeney/verbot/internal/logic"
)

const (
	// TopicState carries STATE_WILL_CHANGE and STATE_DID_CHANGE transitions.
	TopicState = "verbot/state/events"

	// TopicSystem carries STARTUP, SHUTDOWN, HEARTBEAT and RECONNECTED events.
	TopicSystem = "verbot/system"

	// TopicAssistant tells the assistant process to start or stop a conversation.
	TopicAssistant = "verbot/assistant/toggle"

	// TopicAction accepts action names or recognized phrases as plain text.
	TopicAction = "verbot/action/set"
)

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a state transition to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(t logic.Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// ToggleConversation asks the assistant to start or stop listening.
	ToggleConversation() error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// RequestFunc receives action requests arriving on TopicAction.
type RequestFunc func(a logic.Action) error

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Verbot VerbotPayload `json:"verbot"`
}

// VerbotPayload contains the transition details.
type VerbotPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Current   string `json:"current"`
	Desired   string `json:"desired"`
}

// FormatPayload creates the JSON payload for a state transition.
func FormatPayload(t logic.Transition) ([]byte, error) {
	payload := Payload{
		Verbot: VerbotPayload{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(t.Type),
			Current:   t.Current.String(),
			Desired:   t.Desired.String(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// AssistantPayload is published on TopicAssistant.
type AssistantPayload struct {
	Assistant AssistantPayloadInner `json:"assistant"`
}

// AssistantPayloadInner contains the toggle details.
type AssistantPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
}

// FormatAssistantPayload creates the JSON payload for a conversation toggle.
func FormatAssistantPayload(ts time.Time) ([]byte, error) {
	return json.Marshal(AssistantPayload{
		Assistant: AssistantPayloadInner{
			Timestamp: ts.UTC().Format(time.RFC3339),
			Event:     "TOGGLE",
		},
	})
}

// ParseRequest interprets a TopicAction payload as an action name, falling
// back to the recognized-phrase table.
func ParseRequest(payload []byte) (logic.Action, error) {
	text := strings.TrimSpace(string(payload))
	if a, err := logic.ParseAction(text); err == nil {
		return a, nil
	}
	if a, ok := logic.ParsePhrase(text); ok {
		return a, nil
	}
	return 0, fmt.Errorf("%w: %q", logic.ErrUnknownAction, text)
}
