package gpio

import (
	"fmt"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"

	"github.com/sweeney/verbot/internal/motor"
)

// PWMMotor drives the motor with hardware PWM through periph.io.
// It is a motor.Actuator.
type PWMMotor struct {
	pwmPin    int
	dirPin    int
	frequency physic.Frequency

	pwm pgpio.PinIO
	dir pgpio.PinIO
}

// NewPWMMotor creates a PWMMotor. frequency is in Hz.
func NewPWMMotor(pwmPin, dirPin, frequency int) *PWMMotor {
	return &PWMMotor{
		pwmPin:    pwmPin,
		dirPin:    dirPin,
		frequency: physic.Frequency(frequency) * physic.Hertz,
	}
}

// Init initializes periph.io, resolves both pins and stops the motor.
func (m *PWMMotor) Init() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}

	pwm, err := resolvePin(m.pwmPin)
	if err != nil {
		return err
	}
	dir, err := resolvePin(m.dirPin)
	if err != nil {
		return err
	}
	m.pwm, m.dir = pwm, dir

	if err := m.set(0, 0); err != nil {
		m.pwm, m.dir = nil, nil
		return err
	}
	return nil
}

// SetSpeedPercent sets direction first, then the duty cycle.
func (m *PWMMotor) SetSpeedPercent(speed int) error {
	if m.pwm == nil {
		return motor.ErrNotInitialized
	}
	duty, dir := motor.Split(speed)
	return m.set(duty, dir)
}

// Cleanup stops the motor and drives both pins low.
func (m *PWMMotor) Cleanup() error {
	if m.pwm == nil {
		return nil
	}
	var err error
	if e := m.pwm.Out(pgpio.Low); e != nil {
		err = fmt.Errorf("stop pwm pin %d: %w", m.pwmPin, e)
	}
	if e := m.dir.Out(pgpio.Low); e != nil && err == nil {
		err = fmt.Errorf("stop dir pin %d: %w", m.dirPin, e)
	}
	m.pwm, m.dir = nil, nil
	return err
}

func (m *PWMMotor) set(duty, dir int) error {
	if err := m.dir.Out(pgpio.Level(dir == 1)); err != nil {
		return fmt.Errorf("set direction: %w", err)
	}
	if err := m.pwm.PWM(periphDuty(duty), m.frequency); err != nil {
		return fmt.Errorf("set pwm: %w", err)
	}
	return nil
}

// periphDuty scales a duty in [0, motor.MaxDuty] to periph's [0, DutyMax].
func periphDuty(duty int) pgpio.Duty {
	return pgpio.Duty(int64(duty) * int64(pgpio.DutyMax) / motor.MaxDuty)
}

func resolvePin(pin int) (pgpio.PinIO, error) {
	name := fmt.Sprintf("GPIO%d", pin)
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("pin %d (%s) not found in hardware", pin, name)
	}
	return p, nil
}
