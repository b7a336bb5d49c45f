package motor

import "fmt"

// Commander sends pigpiod pipe commands. *pigpio.Pipe implements it.
type Commander interface {
	Command(format string, args ...any) (int, error)
}

// PipeMotor drives the motor with pigpiod hardware PWM over the pipe interface.
type PipeMotor struct {
	pipe        Commander
	pwmPin      int
	dirPin      int
	frequency   int
	initialized bool
}

// NewPipeMotor creates a PipeMotor on the given pins.
func NewPipeMotor(pipe Commander, pwmPin, dirPin, frequency int) *PipeMotor {
	return &PipeMotor{pipe: pipe, pwmPin: pwmPin, dirPin: dirPin, frequency: frequency}
}

// Init configures the direction pin as an output and stops the motor.
func (m *PipeMotor) Init() error {
	if _, err := m.pipe.Command("m %d w", m.dirPin); err != nil {
		return fmt.Errorf("set dir pin %d mode: %w", m.dirPin, err)
	}
	m.initialized = true
	return m.set(0, 0)
}

// SetSpeedPercent sets direction first, then the PWM duty.
func (m *PipeMotor) SetSpeedPercent(speed int) error {
	if !m.initialized {
		return ErrNotInitialized
	}
	duty, dir := Split(speed)
	return m.set(duty, dir)
}

// Cleanup stops the motor.
func (m *PipeMotor) Cleanup() error {
	if !m.initialized {
		return nil
	}
	err := m.set(0, 0)
	m.initialized = false
	return err
}

func (m *PipeMotor) set(duty, dir int) error {
	if _, err := m.pipe.Command("w %d %d", m.dirPin, dir); err != nil {
		return fmt.Errorf("set direction: %w", err)
	}
	if _, err := m.pipe.Command("hp %d %d %d", m.pwmPin, m.frequency, duty); err != nil {
		return fmt.Errorf("set pwm: %w", err)
	}
	return nil
}
