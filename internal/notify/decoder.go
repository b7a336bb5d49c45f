package notify

import "github.com/sweeney/verbot/internal/logic"

// Decoder turns records into per-line edges. It remembers the last known
// level of every monitored line, seeded to all high (switches released).
type Decoder struct {
	mask uint32
	last uint32
}

// NewDecoder creates a Decoder for the lines set in mask.
func NewDecoder(mask uint32) *Decoder {
	return &Decoder{mask: mask, last: ^uint32(0)}
}

// Levels returns the last known level bitmask restricted to monitored lines.
func (d *Decoder) Levels() uint32 {
	return d.last & d.mask
}

// Decode appends one edge per monitored line whose level changed in rec to
// dst, in ascending line order, and returns the extended slice.
// Informational records produce no edges.
func (d *Decoder) Decode(dst []logic.Edge, rec Record) []logic.Edge {
	if rec.Informational() {
		return dst
	}
	changed := (rec.Levels ^ d.last) & d.mask
	for line := 0; changed != 0; line++ {
		bit := uint32(1) << uint(line)
		if changed&bit == 0 {
			continue
		}
		changed &^= bit
		level := logic.Low
		if rec.Levels&bit != 0 {
			level = logic.High
		}
		dst = append(dst, logic.Edge{Line: line, Level: level, Tick: rec.Tick})
	}
	d.last = d.last&^d.mask | rec.Levels&d.mask
	return dst
}
