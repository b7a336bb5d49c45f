// Package gpio talks to the switch and motor lines through the Linux GPIO
// character device, with a periph.io PWM motor for hosts without pigpiod.
// The fake implementation allows testing without hardware.
package gpio

import (
	"time"

	"github.com/sweeney/verbot/internal/notify"
)

// DefaultChip is the Raspberry Pi's main GPIO controller.
const DefaultChip = "gpiochip0"

// Reader reads the current levels of a set of lines.
type Reader interface {
	// Read returns a bitmask with bit n set when line n is high.
	// Bits for lines the reader does not own are set.
	Read() (uint32, error)

	// Close releases GPIO resources.
	Close() error
}

// recordBuilder folds single-line events into full notification records,
// carrying the last known level of every other line.
type recordBuilder struct {
	levels uint32
}

func newRecordBuilder(levels uint32) *recordBuilder {
	return &recordBuilder{levels: levels}
}

func (b *recordBuilder) add(line int, high bool, seqno uint32, ts time.Duration) notify.Record {
	if line >= 0 && line < 32 {
		if high {
			b.levels |= 1 << uint(line)
		} else {
			b.levels &^= 1 << uint(line)
		}
	}
	return notify.Record{
		Seq:    uint16(seqno),
		Tick:   uint32(ts.Microseconds()),
		Levels: b.levels,
	}
}

// levelMask builds a level bitmask from per-line values, starting from all high.
func levelMask(lines, values []int) uint32 {
	mask := ^uint32(0)
	for i, line := range lines {
		if i >= len(values) || line < 0 || line >= 32 {
			continue
		}
		if values[i] == 0 {
			mask &^= 1 << uint(line)
		}
	}
	return mask
}
