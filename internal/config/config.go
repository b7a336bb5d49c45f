// Package config loads verbot settings from built-in defaults, an optional
// YAML file and VERBOT_* environment variables, in that order.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/verbot/internal/gpio"
	"github.com/sweeney/verbot/internal/logic"
	"github.com/sweeney/verbot/internal/motor"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "VERBOT_"

// Notification sources.
const (
	SourcePigpio   = "pigpio"
	SourceGPIOCdev = "gpiocdev"
)

// Motor drivers.
const (
	DriverPigpio   = "pigpio"
	DriverGPIOCdev = "gpiocdev"
	DriverPeriph   = "periph"
)

// MotorConfig selects and configures the motor driver.
type MotorConfig struct {
	Driver    string `yaml:"driver" env:"DRIVER"`
	PWMPin    int    `yaml:"pwm_pin" env:"PWM_PIN"`
	DirPin    int    `yaml:"dir_pin" env:"DIR_PIN"`
	EnablePin int    `yaml:"enable_pin" env:"ENABLE_PIN"`
	Frequency int    `yaml:"frequency" env:"FREQUENCY"`
}

// Config is the complete daemon configuration.
type Config struct {
	Source string         `yaml:"source" env:"SOURCE"`
	Chip   string         `yaml:"chip" env:"CHIP"`
	Lines  map[int]string `yaml:"lines" env:"LINES"`

	InterrogationSpeed int    `yaml:"interrogation_speed" env:"INTERROGATION_SPEED"`
	ActionSpeed        int    `yaml:"action_speed" env:"ACTION_SPEED"`
	DebounceMicros     uint32 `yaml:"debounce_us" env:"DEBOUNCE_US"`

	Motor MotorConfig `yaml:"motor" envPrefix:"MOTOR_"`

	Broker    string        `yaml:"broker" env:"BROKER"`
	HTTPAddr  string        `yaml:"http" env:"HTTP"`
	Heartbeat time.Duration `yaml:"heartbeat" env:"HEARTBEAT"`
	RateLimit float64       `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int           `yaml:"rate_burst" env:"RATE_BURST"`
	Verbose   bool          `yaml:"verbose" env:"VERBOSE"`
}

// DefaultLines is the switch wiring of the stock gearbox (BCM numbering).
func DefaultLines() map[int]string {
	return map[int]string{
		22: "stop",
		24: "rotate_right",
		10: "rotate_left",
		9:  "forwards",
		25: "reverse",
		11: "put_down",
		8:  "pick_up",
		7:  "talk",
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Source:             SourcePigpio,
		Chip:               gpio.DefaultChip,
		Lines:              DefaultLines(),
		InterrogationSpeed: logic.DefaultInterrogationSpeed,
		ActionSpeed:        logic.DefaultActionSpeed,
		DebounceMicros:     logic.DefaultDebounceMicros,
		Motor: MotorConfig{
			Driver:    DriverPigpio,
			PWMPin:    motor.DefaultPWMPin,
			DirPin:    motor.DefaultDirPin,
			EnablePin: motor.DefaultPWMPin,
			Frequency: motor.DefaultPWMFrequency,
		},
		Broker:    "tcp://192.168.1.200:1883",
		HTTPAddr:  "127.0.0.1:8080",
		Heartbeat: 15 * time.Minute,
		RateLimit: 10,
		RateBurst: 5,
	}
}

// Load builds a Config from defaults, then the YAML file at path (skipped
// when path is empty), then the environment. The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.decodeYAML(data); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// decodeYAML overlays data onto cfg. A lines table in the file replaces the
// default table instead of merging with it.
func (c *Config) decodeYAML(data []byte) error {
	defaults := c.Lines
	c.Lines = nil

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	if c.Lines == nil {
		c.Lines = defaults
	}
	return nil
}

// Validate reports every problem with the configuration.
func (c *Config) Validate() error {
	var errs []error

	switch c.Source {
	case SourcePigpio, SourceGPIOCdev:
	default:
		errs = append(errs, fmt.Errorf("source %q: want %s or %s", c.Source, SourcePigpio, SourceGPIOCdev))
	}
	switch c.Motor.Driver {
	case DriverPigpio, DriverGPIOCdev, DriverPeriph:
	default:
		errs = append(errs, fmt.Errorf("motor driver %q: want %s, %s or %s", c.Motor.Driver, DriverPigpio, DriverGPIOCdev, DriverPeriph))
	}

	if err := checkSpeed("interrogation_speed", c.InterrogationSpeed); err != nil {
		errs = append(errs, err)
	}
	if err := checkSpeed("action_speed", c.ActionSpeed); err != nil {
		errs = append(errs, err)
	}
	if c.DebounceMicros == 0 {
		errs = append(errs, errors.New("debounce_us must be > 0"))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat %v must not be negative", c.Heartbeat))
	}
	if c.RateLimit < 0 || c.RateBurst < 0 {
		errs = append(errs, errors.New("rate_limit and rate_burst must not be negative"))
	}
	if c.Motor.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("motor frequency %d must be > 0", c.Motor.Frequency))
	}

	lm, err := c.LineMap()
	if err != nil {
		errs = append(errs, err)
	} else {
		if _, ok := lm.Line(logic.ActionStop); !ok {
			errs = append(errs, errors.New("lines: no line mapped to stop"))
		}
		for _, pin := range c.motorPins() {
			if a, ok := lm.Action(pin); ok {
				errs = append(errs, fmt.Errorf("motor pin %d is also the %s switch line", pin, a))
			}
		}
	}

	return errors.Join(errs...)
}

func checkSpeed(name string, speed int) error {
	if speed < -100 || speed > 100 {
		return fmt.Errorf("%s %d out of range [-100,100]", name, speed)
	}
	return nil
}

func (c *Config) motorPins() []int {
	if c.Motor.Driver == DriverGPIOCdev {
		return []int{c.Motor.DirPin, c.Motor.EnablePin}
	}
	return []int{c.Motor.PWMPin, c.Motor.DirPin}
}

// LineMap resolves the configured line names to actions.
func (c *Config) LineMap() (*logic.LineMap, error) {
	lines := make(map[int]logic.Action, len(c.Lines))
	for _, line := range c.SortedLines() {
		a, err := logic.ParseAction(c.Lines[line])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		lines[line] = a
	}
	lm, err := logic.NewLineMap(lines)
	if err != nil {
		return nil, fmt.Errorf("lines: %w", err)
	}
	return lm, nil
}

// SortedLines returns the configured line numbers in ascending order.
func (c *Config) SortedLines() []int {
	out := make([]int, 0, len(c.Lines))
	for line := range c.Lines {
		out = append(out, line)
	}
	sort.Ints(out)
	return out
}

// YAML renders the configuration in the file format Load accepts.
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}
