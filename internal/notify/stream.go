package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"
)

// deadliner is implemented by *os.File for pipes and FIFOs.
type deadliner interface {
	SetReadDeadline(t time.Time) error
}

type result struct {
	rec Record
	err error
}

// Stream reads records from a byte stream such as a pigpio notification pipe.
// A single goroutine owns the reader; Next hands its records to the caller.
type Stream struct {
	r       io.ReadCloser
	records chan result
	stop    chan struct{}
	done    chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewStream starts reading records from r. The Stream owns r and closes it.
func NewStream(r io.ReadCloser) *Stream {
	s := &Stream{
		r:       r,
		records: make(chan result),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	go s.readLoop()
	return s
}

func (s *Stream) readLoop() {
	defer close(s.done)
	var buf [RecordSize]byte
	for {
		var res result
		if _, err := io.ReadFull(s.r, buf[:]); err != nil {
			res.err = readError(err)
		} else {
			res.rec, res.err = UnmarshalRecord(buf[:])
		}
		select {
		case s.records <- res:
		case <-s.stop:
			return
		}
		if res.err != nil {
			return
		}
	}
}

func readError(err error) error {
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return ErrShortRecord
	case errors.Is(err, io.EOF):
		return ErrClosed
	}
	return fmt.Errorf("notify: read: %w", err)
}

// Next returns the next record. A short trailing record returns ErrShortRecord;
// a cleanly closed stream returns ErrClosed.
func (s *Stream) Next(ctx context.Context) (Record, error) {
	select {
	case res := <-s.records:
		return res.rec, res.err
	case <-s.done:
		return Record{}, ErrClosed
	case <-ctx.Done():
		return Record{}, ctx.Err()
	}
}

// Close cancels any in-flight read, waits for the reader goroutine to exit and
// then closes the underlying reader.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.stop)
		if d, ok := s.r.(deadliner); ok && d.SetReadDeadline(time.Now()) == nil {
			<-s.done
			s.closeErr = s.r.Close()
			return
		}
		// No deadline support: closing is the only way to unblock the read.
		s.closeErr = s.r.Close()
		<-s.done
	})
	return s.closeErr
}
