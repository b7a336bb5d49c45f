package notify

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"testing"
	"time"
)

func encode(recs ...Record) []byte {
	var b []byte
	for _, r := range recs {
		b = AppendRecord(b, r)
	}
	return b
}

func TestStreamReadsRecords(t *testing.T) {
	recs := []Record{
		{Seq: 1, Tick: 100, Levels: 0xFFFFFDFF},
		{Seq: 2, Flags: FlagAlive, Tick: 200, Levels: 0xFFFFFDFF},
		{Seq: 3, Tick: 300, Levels: allHigh},
	}
	s := NewStream(io.NopCloser(bytes.NewReader(encode(recs...))))
	defer s.Close()

	ctx := context.Background()
	for i, want := range recs {
		got, err := s.Next(ctx)
		if err != nil {
			t.Fatalf("record %d: unexpected error: %v", i, err)
		}
		if got != want {
			t.Errorf("record %d: got %+v, want %+v", i, got, want)
		}
	}

	if _, err := s.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed at EOF, got %v", err)
	}
	// Still closed on subsequent calls.
	if _, err := s.Next(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed again, got %v", err)
	}
}

func TestStreamShortRecord(t *testing.T) {
	data := append(encode(Record{Seq: 1}), 0x01, 0x02, 0x03)
	s := NewStream(io.NopCloser(bytes.NewReader(data)))
	defer s.Close()

	if _, err := s.Next(context.Background()); err != nil {
		t.Fatalf("first record: unexpected error: %v", err)
	}
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrShortRecord) {
		t.Errorf("expected ErrShortRecord, got %v", err)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }
func (r errReader) Close() error             { return nil }

func TestStreamReadError(t *testing.T) {
	boom := errors.New("boom")
	s := NewStream(errReader{err: boom})
	defer s.Close()

	if _, err := s.Next(context.Background()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped read error, got %v", err)
	}
}

func TestStreamNextHonoursContext(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := NewStream(pr)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := s.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestStreamCloseUnblocksReadWithoutDeadline(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	s := NewStream(pr)

	done := make(chan error, 1)
	go func() { done <- s.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected close error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	if _, err := s.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed after Close, got %v", err)
	}
	// Close is idempotent.
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
}

func TestStreamCloseUsesReadDeadline(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe: %v", err)
	}
	defer w.Close()

	s := NewStream(r)
	if _, err := w.Write(encode(Record{Seq: 9})); err != nil {
		t.Fatalf("write: %v", err)
	}
	rec, err := s.Next(context.Background())
	if err != nil || rec.Seq != 9 {
		t.Fatalf("expected record 9, got %+v, %v", rec, err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Close() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("unexpected close error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}

	// The reader goroutine had unwound before the file was closed.
	if err := r.Close(); !errors.Is(err, os.ErrClosed) {
		t.Errorf("expected file already closed, got %v", err)
	}
}
