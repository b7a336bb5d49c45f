// Package pigpio talks to the pigpio daemon through its pipe interface.
//
// Commands are written as text lines to /dev/pigpio and each produces one
// numeric response line on /dev/pigout. Notifications are started with the
// "no" and "nb" commands and then read as binary records from /dev/pigpio<h>.
package pigpio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/sweeney/verbot/internal/notify"
)

// Default pipe paths created by pigpiod.
const (
	DefaultCommandPipe  = "/dev/pigpio"
	DefaultResponsePipe = "/dev/pigout"
	DefaultNotifyPrefix = "/dev/pigpio"
)

// Error is a negative status returned by the daemon.
type Error struct {
	Command string
	Code    int
}

func (e *Error) Error() string {
	return fmt.Sprintf("pigpio: %q failed with status %d", e.Command, e.Code)
}

// Pipe is a command channel to pigpiod. It is safe for concurrent use;
// commands are serialized so each response pairs with its command.
type Pipe struct {
	mu     sync.Mutex
	w      io.Writer
	r      *bufio.Reader
	closer []io.Closer
}

// NewPipe creates a Pipe over an arbitrary command writer and response reader.
func NewPipe(w io.Writer, r io.Reader) *Pipe {
	return &Pipe{w: w, r: bufio.NewReader(r)}
}

// OpenPipe opens the daemon's command and response pipes.
func OpenPipe(cmdPath, respPath string) (*Pipe, error) {
	w, err := os.OpenFile(cmdPath, os.O_WRONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("open command pipe: %w", err)
	}
	r, err := os.Open(respPath)
	if err != nil {
		w.Close()
		return nil, fmt.Errorf("open response pipe: %w", err)
	}
	p := NewPipe(w, r)
	p.closer = []io.Closer{w, r}
	return p, nil
}

// Command sends one command line and returns the daemon's status.
func (p *Pipe) Command(format string, args ...any) (int, error) {
	cmd := fmt.Sprintf(format, args...)

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := io.WriteString(p.w, cmd+"\n"); err != nil {
		return 0, fmt.Errorf("write %q: %w", cmd, err)
	}
	line, err := p.r.ReadString('\n')
	if err != nil {
		return 0, fmt.Errorf("read response to %q: %w", cmd, err)
	}
	status, err := strconv.Atoi(strings.TrimSpace(line))
	if err != nil {
		return 0, fmt.Errorf("parse response to %q: %w", cmd, err)
	}
	if status < 0 {
		return status, &Error{Command: cmd, Code: status}
	}
	return status, nil
}

// Close closes the pipes opened by OpenPipe.
func (p *Pipe) Close() error {
	var errs []error
	for _, c := range p.closer {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// Notifier is a notification source backed by a pigpiod notification handle.
type Notifier struct {
	pipe   *Pipe
	handle int
	stream *notify.Stream
}

// OpenNotifier opens a notification handle, starts notifications for the
// lines in bits and returns a source reading its binary stream.
// prefix is the handle pipe prefix, normally DefaultNotifyPrefix.
func OpenNotifier(p *Pipe, prefix string, bits uint32) (*Notifier, error) {
	h, err := p.Command("no")
	if err != nil {
		return nil, fmt.Errorf("open notification: %w", err)
	}
	// The handle pipe must be open before notifications begin.
	f, err := os.Open(prefix + strconv.Itoa(h))
	if err != nil {
		p.Command("nc %d", h)
		return nil, fmt.Errorf("open notification pipe: %w", err)
	}
	if _, err := p.Command("nb %d %#x", h, bits); err != nil {
		f.Close()
		p.Command("nc %d", h)
		return nil, fmt.Errorf("begin notification: %w", err)
	}
	return &Notifier{pipe: p, handle: h, stream: notify.NewStream(f)}, nil
}

// Handle returns the daemon's notification handle.
func (n *Notifier) Handle() int {
	return n.handle
}

// Next returns the next notification record.
func (n *Notifier) Next(ctx context.Context) (notify.Record, error) {
	return n.stream.Next(ctx)
}

// Close stops the stream and releases the notification handle.
func (n *Notifier) Close() error {
	var errs []error
	if err := n.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	if _, err := n.pipe.Command("nc %d", n.handle); err != nil {
		errs = append(errs, fmt.Errorf("close notification: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
