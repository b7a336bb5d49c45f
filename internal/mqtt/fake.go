package mqtt

import (
	"sync"

	"github.com/sweeney/verbot/internal/logic"
)

// FakePublisher records published events for test assertions.
// It is safe for concurrent use.
type FakePublisher struct {
	mu sync.Mutex

	// Transitions contains all state transitions that were published.
	Transitions []logic.Transition

	// Payloads contains the JSON payloads that were published.
	Payloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// Toggles counts ToggleConversation calls.
	Toggles int

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Publish records the transition.
func (f *FakePublisher) Publish(t logic.Transition) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatPayload(t)
	if err != nil {
		return err
	}
	f.Transitions = append(f.Transitions, t)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// ToggleConversation counts the toggle.
func (f *FakePublisher) ToggleConversation() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Toggles++
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// TransitionTypes returns the types of recorded transitions in order.
func (f *FakePublisher) TransitionTypes() []logic.TransitionType {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]logic.TransitionType, 0, len(f.Transitions))
	for _, t := range f.Transitions {
		out = append(out, t.Type)
	}
	return out
}

// SystemEventNames returns the names of recorded system events in order.
func (f *FakePublisher) SystemEventNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.SystemEvents))
	for _, e := range f.SystemEvents {
		out = append(out, e.Event)
	}
	return out
}

// ToggleCount returns the number of ToggleConversation calls.
func (f *FakePublisher) ToggleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Toggles
}

// Reset clears recorded events.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Transitions = nil
	f.Payloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Toggles = 0
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}
