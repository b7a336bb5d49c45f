// Package motor drives the single gearbox motor through a DRV8835 H-bridge.
// Speeds are signed percentages: the sign selects direction, the magnitude
// the duty cycle.
package motor

import "errors"

// Pin assignments on the M2 port of the Pololu DRV8835 board (BCM numbering).
const (
	DefaultPWMPin = 13
	DefaultDirPin = 6
)

// DefaultPWMFrequency is the highest PWM frequency the DRV8835 supports.
const DefaultPWMFrequency = 250000

// MaxDuty is the full-scale duty value accepted by pigpio's hardware PWM.
const MaxDuty = 1000000

// ErrNotInitialized is returned when a speed is set before Init.
var ErrNotInitialized = errors.New("motor: not initialized")

// Actuator accepts signed speed commands. Init and Cleanup bracket its lifetime
// and both leave the motor stopped.
type Actuator interface {
	Init() error
	SetSpeedPercent(speed int) error
	Cleanup() error
}

// Clamp limits speed to [-100, 100].
func Clamp(speed int) int {
	switch {
	case speed > 100:
		return 100
	case speed < -100:
		return -100
	}
	return speed
}

// Split converts a speed into a duty cycle in [0, MaxDuty] and a direction
// level: 1 for negative speeds, 0 otherwise.
func Split(speed int) (duty int, dir int) {
	speed = Clamp(speed)
	if speed < 0 {
		speed = -speed
		dir = 1
	}
	return speed * MaxDuty / 100, dir
}
