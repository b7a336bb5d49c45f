package motor

import "sync"

// FakeActuator records speed commands for test assertions.
type FakeActuator struct {
	mu sync.Mutex

	speeds      []int
	initialized bool
	cleanedUp   bool

	// InitError, if set, is returned by Init.
	InitError error
	// SpeedError, if set, is returned by SetSpeedPercent. The speed is not recorded.
	SpeedError error
	// FailAfter, if > 0, makes SetSpeedPercent fail with SpeedError once that
	// many speeds have been recorded.
	FailAfter int
}

// NewFakeActuator creates a FakeActuator.
func NewFakeActuator() *FakeActuator {
	return &FakeActuator{}
}

// Init marks the actuator as initialized.
func (f *FakeActuator) Init() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InitError != nil {
		return f.InitError
	}
	f.initialized = true
	return nil
}

// SetSpeedPercent records the clamped speed.
func (f *FakeActuator) SetSpeedPercent(speed int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.initialized {
		return ErrNotInitialized
	}
	if f.SpeedError != nil && (f.FailAfter == 0 || len(f.speeds) >= f.FailAfter) {
		return f.SpeedError
	}
	f.speeds = append(f.speeds, Clamp(speed))
	return nil
}

// Cleanup marks the actuator as released.
func (f *FakeActuator) Cleanup() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initialized = false
	f.cleanedUp = true
	return nil
}

// Speeds returns a copy of every recorded speed.
func (f *FakeActuator) Speeds() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.speeds...)
}

// Speed returns the last recorded speed, or 0.
func (f *FakeActuator) Speed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.speeds) == 0 {
		return 0
	}
	return f.speeds[len(f.speeds)-1]
}

// CleanedUp reports whether Cleanup was called.
func (f *FakeActuator) CleanedUp() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleanedUp
}

// Reset clears recorded speeds.
func (f *FakeActuator) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.speeds = nil
	f.cleanedUp = false
}
