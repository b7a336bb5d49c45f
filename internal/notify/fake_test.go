package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeSourceNext(t *testing.T) {
	f := NewFakeSource(Record{Seq: 1}, Record{Seq: 2})
	ctx := context.Background()

	for want := uint16(1); want <= 2; want++ {
		rec, err := f.Next(ctx)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if rec.Seq != want {
			t.Errorf("expected seq %d, got %d", want, rec.Seq)
		}
	}
	if f.Remaining() != 0 {
		t.Errorf("expected 0 remaining, got %d", f.Remaining())
	}
}

func TestFakeSourceErrAfterRecords(t *testing.T) {
	f := NewFakeSource(Record{Seq: 1})
	f.Err = ErrShortRecord

	f.Next(context.Background())
	if _, err := f.Next(context.Background()); !errors.Is(err, ErrShortRecord) {
		t.Errorf("expected ErrShortRecord, got %v", err)
	}
}

func TestFakeSourceBlocksUntilContextDone(t *testing.T) {
	f := NewFakeSource()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if _, err := f.Next(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestFakeSourceClose(t *testing.T) {
	f := NewFakeSource(Record{Seq: 1})
	if f.Closed() {
		t.Error("should not be closed initially")
	}
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed() {
		t.Error("should be closed after Close()")
	}
	if _, err := f.Next(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
