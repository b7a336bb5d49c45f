package logic

import "math"

// DefaultDebounceMicros is the default per-line debounce threshold (10ms).
const DefaultDebounceMicros = 10000

// Debouncer suppresses rapid toggles per line using hardware ticks.
// Lines are independent: noise on one line never delays another.
//
// The tick wraps every ~71.6 minutes, so two edges almost exactly one period
// apart look like a burst and the second is suppressed.
type Debouncer struct {
	threshold uint32
	last      [MaxLines]uint32
	seen      uint32 // bit set once a line has had an accepted edge
}

// NewDebouncer creates a Debouncer. An edge is accepted when more than
// thresholdMicros have elapsed since the last accepted edge on its line.
func NewDebouncer(thresholdMicros uint32) *Debouncer {
	return &Debouncer{threshold: thresholdMicros}
}

// Threshold returns the debounce threshold in microseconds.
func (d *Debouncer) Threshold() uint32 {
	return d.threshold
}

// Accept reports whether an edge on line at tick should be processed.
// The first edge seen on a line is always accepted.
func (d *Debouncer) Accept(line int, tick uint32) bool {
	if line < 0 || line >= MaxLines {
		return true
	}
	bit := uint32(1) << uint(line)
	if d.seen&bit == 0 || Delay(d.last[line], tick) > d.threshold {
		d.seen |= bit
		d.last[line] = tick
		return true
	}
	return false
}

// Delay returns the ticks elapsed from last to tick across at most one wrap.
func Delay(last, tick uint32) uint32 {
	if tick >= last {
		return tick - last
	}
	return math.MaxUint32 - last + tick
}
