// Package controller owns the verbot state. A single Run loop decodes
// notification records, debounces edges, drives the state machine and
// executes its motor commands. Requests from other goroutines are marshaled
// onto that loop.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sweeney/verbot/internal/logic"
	"github.com/sweeney/verbot/internal/motor"
	"github.com/sweeney/verbot/internal/notify"
	"github.com/sweeney/verbot/internal/status"
)

// ErrNotRunning is returned by requests submitted while no Run loop owns the state.
var ErrNotRunning = errors.New("controller: not running")

// Publisher receives state transitions.
type Publisher interface {
	Publish(t logic.Transition) error
}

// Assistant starts or stops the external voice assistant conversation.
type Assistant interface {
	ToggleConversation() error
}

// Config configures a Controller.
type Config struct {
	Lines              *logic.LineMap
	InterrogationSpeed int
	ActionSpeed        int
	DebounceMicros     uint32
	Verbose            bool

	// Publisher and Assistant are optional. They are called in order from
	// a separate goroutine; a full queue drops notifications.
	Publisher Publisher
	Assistant Assistant

	// Now defaults to time.Now.
	Now func() time.Time
}

type request struct {
	action logic.Action
	reply  chan error
}

// Controller is the facade over the decoding pipeline and the state machine.
type Controller struct {
	cfg     Config
	motor   motor.Actuator
	tracker *status.Tracker

	machine   *logic.Machine
	debouncer *logic.Debouncer
	decoder   *notify.Decoder
	counts    logic.Counts
	edges     []logic.Edge
	obs       *observers

	requests chan request
	started  chan struct{}
	stopped  chan struct{}
	once     sync.Once
}

// New creates a Controller settled on stop. A nil tracker gets a private one.
func New(cfg Config, m motor.Actuator, tracker *status.Tracker) *Controller {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if tracker == nil {
		tracker = status.NewTracker(cfg.Now(), status.Config{})
	}
	return &Controller{
		cfg:       cfg,
		motor:     m,
		tracker:   tracker,
		machine:   logic.NewMachine(cfg.Lines, cfg.InterrogationSpeed, cfg.ActionSpeed),
		debouncer: logic.NewDebouncer(cfg.DebounceMicros),
		decoder:   notify.NewDecoder(cfg.Lines.Mask()),
		obs:       newObservers(cfg.Publisher, cfg.Assistant),
		requests:  make(chan request),
		started:   make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// CurrentState returns the last published current state.
func (c *Controller) CurrentState() logic.Action {
	return c.tracker.Snapshot().Current
}

// DesiredState returns the last published desired state.
func (c *Controller) DesiredState() logic.Action {
	return c.tracker.Snapshot().Desired
}

// Counts returns the last published counters.
func (c *Controller) Counts() logic.Counts {
	return c.tracker.Snapshot().Counts
}

// RequestAction parses a request name and submits it. Unknown names return
// an error wrapping logic.ErrUnknownAction and change nothing.
func (c *Controller) RequestAction(ctx context.Context, name string) error {
	a, err := logic.ParseAction(name)
	if err != nil {
		return err
	}
	return c.SetDesiredState(ctx, a)
}

// SetDesiredState submits a request to the Run loop and waits until it has
// been applied, including any motor command.
func (c *Controller) SetDesiredState(ctx context.Context, a logic.Action) error {
	select {
	case <-c.started:
	default:
		return ErrNotRunning
	}

	req := request{action: a, reply: make(chan error, 1)}
	select {
	case c.requests <- req:
	case <-c.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run owns the state until ctx is cancelled or a fatal error occurs. It
// initializes the motor, consumes src, and on exit closes src, stops the
// motor and releases it. Run may be called only once.
func (c *Controller) Run(ctx context.Context, src notify.Source) (err error) {
	first := false
	c.once.Do(func() { first = true })
	if !first {
		return errors.New("controller: already run")
	}

	if err := c.motor.Init(); err != nil {
		close(c.stopped)
		return errors.Join(fmt.Errorf("init motor: %w", err), src.Close())
	}

	go c.obs.run()

	pumpCtx, cancel := context.WithCancel(ctx)
	records := make(chan notify.Record)
	pumpErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pump(pumpCtx, src, records, pumpErr)
	}()

	c.tracker.SetRunning(true)
	c.publishState()
	close(c.started)
	log.Printf("controller: running lines=%v debounce=%dus", c.cfg.Lines.Lines(), c.debouncer.Threshold())

	defer func() {
		close(c.stopped)
		cancel()
		wg.Wait()
		err = errors.Join(err, c.release(src))
		c.obs.close()
		c.tracker.SetRunning(false)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case err := <-pumpErr:
			return fmt.Errorf("read notification: %w", err)

		case rec := <-records:
			if err := c.handleRecord(rec); err != nil {
				return err
			}

		case req := <-c.requests:
			reqErr, fatal := c.handleRequest(req.action)
			req.reply <- reqErr
			if fatal != nil {
				return fatal
			}
		}
	}
}

func pump(ctx context.Context, src notify.Source, records chan<- notify.Record, errs chan<- error) {
	for {
		rec, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				errs <- err
			}
			return
		}
		select {
		case records <- rec:
		case <-ctx.Done():
			return
		}
	}
}

// release closes the source, then stops and releases the motor.
func (c *Controller) release(src notify.Source) error {
	var errs []error
	if err := src.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close source: %w", err))
	}
	if err := c.motor.SetSpeedPercent(0); err != nil {
		errs = append(errs, fmt.Errorf("stop motor: %w", err))
	}
	if err := c.motor.Cleanup(); err != nil {
		errs = append(errs, fmt.Errorf("cleanup motor: %w", err))
	}
	return errors.Join(errs...)
}

// handleRecord runs one record through decoder, debouncer and machine.
// A returned error is fatal.
func (c *Controller) handleRecord(rec notify.Record) error {
	c.counts.Records++
	c.edges = c.decoder.Decode(c.edges[:0], rec)

	for _, e := range c.edges {
		c.counts.Edges++
		if !c.debouncer.Accept(e.Line, e.Tick) {
			c.counts.Suppressed++
			if c.cfg.Verbose {
				log.Printf("debounce: suppressed line=%d level=%s tick=%d", e.Line, e.Level, e.Tick)
			}
			continue
		}
		c.counts.Accepted++

		prevCurrent, prevDesired := c.machine.Current(), c.machine.Desired()
		cmds, err := c.machine.Edge(e)
		if err != nil {
			c.publishState()
			return err
		}
		if c.cfg.Verbose && len(cmds) == 0 {
			log.Printf("edge: ignored line=%d level=%s current=%s desired=%s", e.Line, e.Level, prevCurrent, prevDesired)
		}
		if err := c.apply(cmds, prevCurrent, prevDesired); err != nil {
			c.publishState()
			return err
		}
	}

	c.publishState()
	return nil
}

// handleRequest applies one request. reqErr goes back to the caller; fatal
// stops the loop.
func (c *Controller) handleRequest(a logic.Action) (reqErr, fatal error) {
	prevCurrent, prevDesired := c.machine.Current(), c.machine.Desired()
	cmds, err := c.machine.Request(a)
	if err != nil {
		return err, nil
	}
	c.counts.Requests++
	log.Printf("request: %s current=%s desired=%s", a, c.machine.Current(), c.machine.Desired())

	if err := c.apply(cmds, prevCurrent, prevDesired); err != nil {
		c.publishState()
		return err, err
	}
	c.publishState()
	return nil, nil
}

// apply executes machine commands in order, then notifies observers of any
// state change they caused.
func (c *Controller) apply(cmds []logic.Command, prevCurrent, prevDesired logic.Action) error {
	for _, cmd := range cmds {
		switch cmd.Kind {
		case logic.CommandSetSpeed:
			if err := c.setSpeed(cmd.Speed); err != nil {
				return err
			}
		case logic.CommandToggleAssistant:
			c.toggleAssistant()
		}
	}

	current, desired := c.machine.Current(), c.machine.Desired()
	if desired != prevDesired {
		c.notify(logic.TransitionWillChange, current, desired)
	}
	if current != prevCurrent && current.Mechanical() {
		c.counts.Transitions++
		c.notify(logic.TransitionDidChange, current, desired)
	}
	return nil
}

// setSpeed commands the motor. On failure it tries once to stop the motor
// and returns the original error.
func (c *Controller) setSpeed(speed int) error {
	if err := c.motor.SetSpeedPercent(speed); err != nil {
		if stopErr := c.motor.SetSpeedPercent(0); stopErr != nil {
			log.Printf("motor: stop after failure: %v", stopErr)
		}
		return fmt.Errorf("set motor speed %d: %w", speed, err)
	}
	if c.cfg.Verbose {
		log.Printf("motor: speed=%d", speed)
	}
	return nil
}

func (c *Controller) toggleAssistant() {
	c.obs.send(event{toggle: true})
}

func (c *Controller) notify(typ logic.TransitionType, current, desired logic.Action) {
	log.Printf("state: %s current=%s desired=%s", typ, current, desired)
	t := logic.Transition{Timestamp: c.cfg.Now(), Type: typ, Current: current, Desired: desired}
	c.obs.send(event{transition: &t})
}

func (c *Controller) publishState() {
	c.tracker.Update(c.machine.Current(), c.machine.Desired(), c.counts)
}
