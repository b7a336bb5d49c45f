// Package status provides a thread-safe status tracker for the verbot daemon.
// The controller writes it; HTTP handlers and MQTT heartbeats read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/verbot/internal/logic"
)

// Config contains daemon configuration for display.
type Config struct {
	DebounceMicros     int64
	InterrogationSpeed int
	ActionSpeed        int
	HeartbeatMs        int64
	Broker             string
	HTTPAddr           string
	Source             string
	Motor              string
	Lines              map[int]string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Current       logic.Action
	Desired       logic.Action
	Running       bool
	Counts        logic.Counts
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Interrogating reports whether the motor is sweeping toward the desired switch.
func (s Snapshot) Interrogating() bool {
	return s.Current == logic.ActionInterrogate
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
// The initial state is settled on stop.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Current:   logic.ActionStop,
			Desired:   logic.ActionStop,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the machine state and counters.
// Called by the controller after every record and request.
func (t *Tracker) Update(current, desired logic.Action, counts logic.Counts) {
	t.mu.Lock()
	t.snap.Current = current
	t.snap.Desired = desired
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetRunning records whether a controller loop owns the state.
func (t *Tracker) SetRunning(running bool) {
	t.mu.Lock()
	t.snap.Running = running
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
