package notify

import (
	"context"
	"sync"
)

// FakeSource is a test double that yields scripted records.
type FakeSource struct {
	mu      sync.Mutex
	records []Record
	index   int
	closed  bool

	// Err, if set, is returned once all records have been consumed.
	// Otherwise Next blocks until its context is done, like an idle pipe.
	Err error
}

// NewFakeSource creates a FakeSource with the given records.
func NewFakeSource(records ...Record) *FakeSource {
	return &FakeSource{records: records}
}

// Next returns the next scripted record.
func (f *FakeSource) Next(ctx context.Context) (Record, error) {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return Record{}, ErrClosed
	}
	if f.index < len(f.records) {
		rec := f.records[f.index]
		f.index++
		f.mu.Unlock()
		return rec, nil
	}
	err := f.Err
	f.mu.Unlock()

	if err != nil {
		return Record{}, err
	}
	<-ctx.Done()
	return Record{}, ctx.Err()
}

// Close marks the source as closed.
func (f *FakeSource) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// Closed reports whether Close was called.
func (f *FakeSource) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Remaining returns the number of records not yet consumed.
func (f *FakeSource) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records) - f.index
}
