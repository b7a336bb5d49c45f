//go:build linux

package gpio

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/verbot/internal/motor"
	"github.com/sweeney/verbot/internal/notify"
)

// RealReader reads switch levels from actual hardware.
type RealReader struct {
	chip    *gpiocdev.Chip
	lines   *gpiocdev.Lines
	offsets []int
}

// NewRealReader requests the given lines as inputs with pull-up.
// The switches short a line to ground when pressed.
func NewRealReader(chipName string, offsets []int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lines, err := chip.RequestLines(offsets, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request lines %v: %w", offsets, err)
	}

	return &RealReader{chip: chip, lines: lines, offsets: offsets}, nil
}

// Read returns a level bitmask of the requested lines.
func (r *RealReader) Read() (uint32, error) {
	values := make([]int, len(r.offsets))
	if err := r.lines.Values(values); err != nil {
		return 0, fmt.Errorf("read lines: %w", err)
	}
	return levelMask(r.offsets, values), nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error
	if r.lines != nil {
		if err := r.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close lines: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Watcher turns kernel edge events on the switch lines into notification
// records. It is a notify.Source.
type Watcher struct {
	chip    *gpiocdev.Chip
	lines   *gpiocdev.Lines
	events  chan gpiocdev.LineEvent
	stop    chan struct{}
	builder *recordBuilder

	closeOnce sync.Once
	closeErr  error
}

// NewWatcher requests both-edge events on the given lines.
func NewWatcher(chipName string, offsets []int) (*Watcher, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	w := &Watcher{
		chip:   chip,
		events: make(chan gpiocdev.LineEvent, 64),
		stop:   make(chan struct{}),
	}

	lines, err := chip.RequestLines(offsets,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(w.handle),
	)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request lines %v: %w", offsets, err)
	}
	w.lines = lines

	values := make([]int, len(offsets))
	if err := lines.Values(values); err != nil {
		w.Close()
		return nil, fmt.Errorf("read initial levels: %w", err)
	}
	w.builder = newRecordBuilder(levelMask(offsets, values))

	return w, nil
}

// handle runs on the library's event goroutine.
func (w *Watcher) handle(evt gpiocdev.LineEvent) {
	select {
	case w.events <- evt:
	case <-w.stop:
	}
}

// Next returns the record for the next edge event.
func (w *Watcher) Next(ctx context.Context) (notify.Record, error) {
	select {
	case evt := <-w.events:
		high := evt.Type == gpiocdev.LineEventRisingEdge
		return w.builder.add(evt.Offset, high, evt.Seqno, evt.Timestamp), nil
	case <-w.stop:
		return notify.Record{}, notify.ErrClosed
	case <-ctx.Done():
		return notify.Record{}, ctx.Err()
	}
}

// Close stops event delivery and releases the lines.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.stop)
		var errs []error
		if w.lines != nil {
			if err := w.lines.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close lines: %w", err))
			}
		}
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		w.closeErr = errors.Join(errs...)
	})
	return w.closeErr
}

// DigitalMotor drives the H-bridge without PWM: full speed in either
// direction or stopped. It is a motor.Actuator.
type DigitalMotor struct {
	chipName  string
	dirPin    int
	enablePin int

	chip   *gpiocdev.Chip
	dir    *gpiocdev.Line
	enable *gpiocdev.Line
}

// NewDigitalMotor creates a DigitalMotor. Lines are requested by Init.
func NewDigitalMotor(chipName string, dirPin, enablePin int) *DigitalMotor {
	return &DigitalMotor{chipName: chipName, dirPin: dirPin, enablePin: enablePin}
}

// Init requests both lines as outputs driven low.
func (m *DigitalMotor) Init() error {
	chip, err := gpiocdev.NewChip(m.chipName)
	if err != nil {
		return fmt.Errorf("open gpio chip: %w", err)
	}

	dir, err := chip.RequestLine(m.dirPin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return fmt.Errorf("request dir pin %d: %w", m.dirPin, err)
	}

	enable, err := chip.RequestLine(m.enablePin, gpiocdev.AsOutput(0))
	if err != nil {
		dir.Close()
		chip.Close()
		return fmt.Errorf("request enable pin %d: %w", m.enablePin, err)
	}

	m.chip, m.dir, m.enable = chip, dir, enable
	return nil
}

// SetSpeedPercent sets the direction line, then enables the bridge for any
// non-zero speed.
func (m *DigitalMotor) SetSpeedPercent(speed int) error {
	if m.enable == nil {
		return motor.ErrNotInitialized
	}
	_, dir := motor.Split(speed)
	if err := m.dir.SetValue(dir); err != nil {
		return fmt.Errorf("set direction: %w", err)
	}
	on := 0
	if motor.Clamp(speed) != 0 {
		on = 1
	}
	if err := m.enable.SetValue(on); err != nil {
		return fmt.Errorf("set enable: %w", err)
	}
	return nil
}

// Cleanup stops the motor and returns both lines to input with pull-down,
// matching the Pi's boot defaults so the bridge stays off across reboots.
func (m *DigitalMotor) Cleanup() error {
	if m.chip == nil {
		return nil
	}

	var errs []error
	for _, l := range []*gpiocdev.Line{m.enable, m.dir} {
		if err := l.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("stop pin %d: %w", l.Offset(), err))
		}
		if err := l.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.Offset(), err))
		}
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin %d: %w", l.Offset(), err))
		}
	}
	if err := m.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}
	m.chip, m.dir, m.enable = nil, nil, nil

	return errors.Join(errs...)
}
