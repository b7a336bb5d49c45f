package gpio

import "errors"

// FakeReader is a test double that returns scripted level bitmasks.
type FakeReader struct {
	// Samples contains scripted bitmasks to return.
	// Each call to Read() consumes the next sample.
	Samples []uint32

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples ...uint32) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (uint32, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}
