// Package notify decodes the pigpiod GPIO notification stream.
//
// The stream is a sequence of fixed 12-byte little-endian records owned by
// the pigpio daemon:
//
//	u16 seq | u16 flags | u32 tick (µs) | u32 level bitmask
//
// Records with the watchdog, keepalive or event flag set carry no level
// information.
package notify

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
)

// RecordSize is the size of one notification record in bytes.
const RecordSize = 12

// Flag bits in Record.Flags.
const (
	FlagWatchdog uint16 = 1 << 5 // watchdog timeout on a line
	FlagAlive    uint16 = 1 << 6 // periodic keepalive
	FlagEvent    uint16 = 1 << 7 // externally triggered event

	// informational flags mark records the decoder skips.
	informational = FlagWatchdog | FlagAlive | FlagEvent
)

var (
	// ErrShortRecord means the stream ended mid-record. The stream is corrupt.
	ErrShortRecord = errors.New("notify: short record")
	// ErrClosed is returned by Next after the source has been closed or ended.
	ErrClosed = errors.New("notify: stream closed")
)

// Record is one decoded notification.
type Record struct {
	Seq    uint16
	Flags  uint16
	Tick   uint32
	Levels uint32
}

// Informational reports whether the record carries no line levels.
func (r Record) Informational() bool {
	return r.Flags&informational != 0
}

// UnmarshalRecord decodes a record. b must be exactly RecordSize bytes.
func UnmarshalRecord(b []byte) (Record, error) {
	if len(b) != RecordSize {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(b))
	}
	return Record{
		Seq:    binary.LittleEndian.Uint16(b[0:2]),
		Flags:  binary.LittleEndian.Uint16(b[2:4]),
		Tick:   binary.LittleEndian.Uint32(b[4:8]),
		Levels: binary.LittleEndian.Uint32(b[8:12]),
	}, nil
}

// AppendRecord appends the wire encoding of r to b.
func AppendRecord(b []byte, r Record) []byte {
	b = binary.LittleEndian.AppendUint16(b, r.Seq)
	b = binary.LittleEndian.AppendUint16(b, r.Flags)
	b = binary.LittleEndian.AppendUint32(b, r.Tick)
	return binary.LittleEndian.AppendUint32(b, r.Levels)
}

// Source yields notification records.
type Source interface {
	// Next blocks until the next record arrives, the source fails, or ctx is done.
	Next(ctx context.Context) (Record, error)

	// Close stops the source and releases its resources. Any in-flight Next
	// has unwound by the time Close returns.
	Close() error
}
