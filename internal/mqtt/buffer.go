package mqtt

import "log"

// bufferedMsg stores a serialized MQTT message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO that stores messages while disconnected.
// Not safe for concurrent use: caller must synchronize.
type ringBuffer struct {
	buf     []bufferedMsg
	head    int // next write position
	count   int
	dropped int // messages overwritten since last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{buf: make([]bufferedMsg, capacity)}
}

// push appends msg, overwriting the oldest message when full.
func (r *ringBuffer) push(msg bufferedMsg) {
	if r.count == len(r.buf) {
		if r.dropped == 0 {
			log.Printf("mqtt: buffer full (%d messages), dropping oldest", len(r.buf))
		}
		r.dropped++
	} else {
		r.count++
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
}

// drainAll returns buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drainAll() []bufferedMsg {
	if r.count == 0 {
		return nil
	}
	if r.dropped > 0 {
		log.Printf("mqtt: %d buffered messages were dropped while disconnected", r.dropped)
	}

	out := make([]bufferedMsg, 0, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}

	r.head, r.count, r.dropped = 0, 0, 0
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
