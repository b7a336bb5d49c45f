//go:build !linux

package gpio

import (
	"context"
	"errors"

	"github.com/sweeney/verbot/internal/notify"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(chipName string, offsets []int) (*RealReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read() (uint32, error) {
	return 0, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}

// Watcher is not available on non-Linux platforms.
type Watcher struct{}

// NewWatcher returns an error on non-Linux platforms.
func NewWatcher(chipName string, offsets []int) (*Watcher, error) {
	return nil, errUnsupported
}

// Next is not implemented on non-Linux platforms.
func (w *Watcher) Next(ctx context.Context) (notify.Record, error) {
	return notify.Record{}, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (w *Watcher) Close() error {
	return nil
}

// DigitalMotor is not available on non-Linux platforms.
type DigitalMotor struct{}

// NewDigitalMotor returns a motor whose Init always fails.
func NewDigitalMotor(chipName string, dirPin, enablePin int) *DigitalMotor {
	return &DigitalMotor{}
}

// Init returns an error on non-Linux platforms.
func (m *DigitalMotor) Init() error {
	return errUnsupported
}

// SetSpeedPercent returns an error on non-Linux platforms.
func (m *DigitalMotor) SetSpeedPercent(speed int) error {
	return errUnsupported
}

// Cleanup is a no-op on non-Linux platforms.
func (m *DigitalMotor) Cleanup() error {
	return nil
}
