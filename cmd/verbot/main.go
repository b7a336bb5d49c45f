// Command verbot drives the toy's action gearbox from its switch lines and
// serves action requests over JSON-RPC and MQTT.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/verbot/internal/config"
	"github.com/sweeney/verbot/internal/controller"
	"github.com/sweeney/verbot/internal/gpio"
	"github.com/sweeney/verbot/internal/logic"
	"github.com/sweeney/verbot/internal/motor"
	"github.com/sweeney/verbot/internal/mqtt"
	"github.com/sweeney/verbot/internal/notify"
	"github.com/sweeney/verbot/internal/pigpio"
	"github.com/sweeney/verbot/internal/status"
	"github.com/sweeney/verbot/internal/web"
)

// refreshInterval is how often the status tracker picks up MQTT connectivity.
const refreshInterval = time.Second

// actionQueue bounds MQTT action requests waiting for the controller.
const actionQueue = 8

var errQueueFull = errors.New("action queue full")

type flags struct {
	source    string
	motor     string
	broker    string
	httpAddr  string
	heartbeat time.Duration
	verbose   bool
}

func main() {
	configPath := flag.String("config", "", "YAML config file (optional)")
	var f flags
	flag.StringVar(&f.source, "source", config.SourcePigpio, "Notification source: pigpio or gpiocdev")
	flag.StringVar(&f.motor, "motor", config.DriverPigpio, "Motor driver: pigpio, gpiocdev or periph")
	flag.StringVar(&f.broker, "broker", "tcp://192.168.1.200:1883", "MQTT broker address")
	flag.StringVar(&f.httpAddr, "http", "127.0.0.1:8080", "JSON-RPC and status address (empty to disable)")
	flag.DurationVar(&f.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.BoolVar(&f.verbose, "verbose", false, "Log suppressed and ignored edges")
	printState := flag.Bool("print-state", false, "Print active switches and exit")
	printConfig := flag.Bool("print-config", false, "Print effective config and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}
	set := make(map[string]bool)
	flag.Visit(func(fl *flag.Flag) { set[fl.Name] = true })
	applyFlags(cfg, f, set)

	if err := run(cfg, *printState, *printConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

// applyFlags overrides cfg with the flags given on the command line.
func applyFlags(cfg *config.Config, f flags, set map[string]bool) {
	if set["source"] {
		cfg.Source = f.source
	}
	if set["motor"] {
		cfg.Motor.Driver = f.motor
	}
	if set["broker"] {
		cfg.Broker = f.broker
	}
	if set["http"] {
		cfg.HTTPAddr = f.httpAddr
	}
	if set["heartbeat"] {
		cfg.Heartbeat = f.heartbeat
	}
	if set["verbose"] {
		cfg.Verbose = f.verbose
	}
}

func run(cfg *config.Config, printState, printConfig bool) error {
	if printConfig {
		out, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}
		os.Stdout.Write(out)
		return nil
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	lines, err := cfg.LineMap()
	if err != nil {
		return err
	}

	if printState {
		reader, err := newReader(cfg.Chip, lines.Lines())
		if err != nil {
			return fmt.Errorf("init gpio: %w", err)
		}
		return printSwitches(os.Stdout, reader, lines)
	}

	var pipe *pigpio.Pipe
	if cfg.Source == config.SourcePigpio || cfg.Motor.Driver == config.DriverPigpio {
		pipe, err = pigpio.OpenPipe(pigpio.DefaultCommandPipe, pigpio.DefaultResponsePipe)
		if err != nil {
			return fmt.Errorf("open pigpio: %w", err)
		}
		defer pipe.Close()
	}

	src, err := newSource(cfg, pipe, lines)
	if err != nil {
		return fmt.Errorf("init source: %w", err)
	}
	act := newActuator(cfg, pipe)

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))

	// MQTT requests are queued for the main loop; the controller is created
	// after the publisher it reports to.
	actions := make(chan logic.Action, actionQueue)
	publisher := mqtt.NewRealPublisher(cfg.Broker, func(a logic.Action) error {
		select {
		case actions <- a:
			return nil
		default:
			return errQueueFull
		}
	})
	defer publisher.Close()

	ctrl := controller.New(controller.Config{
		Lines:              lines,
		InterrogationSpeed: cfg.InterrogationSpeed,
		ActionSpeed:        cfg.ActionSpeed,
		DebounceMicros:     cfg.DebounceMicros,
		Verbose:            cfg.Verbose,
		Publisher:          publisher,
		Assistant:          publisher,
	}, act, tracker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- ctrl.Run(ctx, src)
		close(done)
	}()

	if cfg.HTTPAddr != "" {
		var limiter *rate.Limiter
		if cfg.RateLimit > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst)
		}
		srv := web.New(cfg.HTTPAddr, tracker, ctrl, limiter)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http server listening on %s", cfg.HTTPAddr)
	}

	snap := tracker.Snapshot()
	startup := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startup); err != nil {
		log.Printf("failed to publish startup event: %v", err)
	} else {
		log.Printf("published startup event")
	}

	log.Printf("started: source=%s motor=%s lines=%d debounce=%dus broker=%s heartbeat=%v",
		cfg.Source, cfg.Motor.Driver, len(cfg.Lines), cfg.DebounceMicros, cfg.Broker, cfg.Heartbeat)

	var heartbeat <-chan time.Time
	if cfg.Heartbeat > 0 {
		ticker := time.NewTicker(cfg.Heartbeat)
		defer ticker.Stop()
		heartbeat = ticker.C
	}
	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	loopErr := runLoop(ctrl, publisher, publisher, tracker, time.Now, heartbeat, refresh.C, sigCh, actions, done)

	cancel()
	for err := range done {
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("controller stopped: %v", err)
		}
	}
	return loopErr
}

// desiredSetter accepts decoded action requests.
type desiredSetter interface {
	SetDesiredState(ctx context.Context, a logic.Action) error
}

func runLoop(ctrl desiredSetter, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, heartbeat, refresh <-chan time.Time, sig <-chan os.Signal, actions <-chan logic.Action, done <-chan error) error {
	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			name := signalName(s)
			publishSystem(publisher, mqttStatus, tracker, now, "SHUTDOWN", name, true)
			return nil

		case err, ok := <-done:
			if !ok {
				return nil
			}
			reason := "CONTROLLER_STOPPED"
			if err != nil {
				reason = "CONTROLLER_ERROR"
			}
			publishSystem(publisher, mqttStatus, tracker, now, "SHUTDOWN", reason, true)
			if err != nil {
				return fmt.Errorf("controller: %w", err)
			}
			return nil

		case a := <-actions:
			if err := ctrl.SetDesiredState(context.Background(), a); err != nil {
				log.Printf("mqtt action %s: %v", a, err)
			}

		case <-heartbeat:
			snap := publishSystem(publisher, mqttStatus, tracker, now, "HEARTBEAT", "", false)
			log.Printf("heartbeat: uptime=%v current=%s desired=%s records=%d transitions=%d",
				snap.Uptime().Truncate(time.Second), snap.Current, snap.Desired, snap.Counts.Records, snap.Counts.Transitions)

		case <-refresh:
			if mqttStatus != nil {
				tracker.SetMQTTConnected(mqttStatus.IsConnected())
			}
		}
	}
}

// publishSystem publishes a system event carrying the current status snapshot.
func publishSystem(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, event, reason string, retained bool) status.Snapshot {
	if mqttStatus != nil {
		tracker.SetMQTTConnected(mqttStatus.IsConnected())
	}
	snap := tracker.Snapshot()
	ev := mqtt.SystemEvent{
		Timestamp:  now(),
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	}
	if err := publisher.PublishSystem(ev); err != nil {
		log.Printf("failed to publish %s event: %v", strings.ToLower(event), err)
	} else if event != "HEARTBEAT" {
		log.Printf("published %s event", strings.ToLower(event))
	}
	return snap
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func newSource(cfg *config.Config, pipe *pigpio.Pipe, lines *logic.LineMap) (notify.Source, error) {
	if cfg.Source == config.SourceGPIOCdev {
		return gpio.NewWatcher(cfg.Chip, lines.Lines())
	}
	return pigpio.OpenNotifier(pipe, pigpio.DefaultNotifyPrefix, lines.Mask())
}

func newActuator(cfg *config.Config, pipe *pigpio.Pipe) motor.Actuator {
	m := cfg.Motor
	switch m.Driver {
	case config.DriverGPIOCdev:
		return gpio.NewDigitalMotor(cfg.Chip, m.DirPin, m.EnablePin)
	case config.DriverPeriph:
		return gpio.NewPWMMotor(m.PWMPin, m.DirPin, m.Frequency)
	}
	return motor.NewPipeMotor(pipe, m.PWMPin, m.DirPin, m.Frequency)
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		DebounceMicros:     int64(cfg.DebounceMicros),
		InterrogationSpeed: cfg.InterrogationSpeed,
		ActionSpeed:        cfg.ActionSpeed,
		HeartbeatMs:        cfg.Heartbeat.Milliseconds(),
		Broker:             cfg.Broker,
		HTTPAddr:           cfg.HTTPAddr,
		Source:             cfg.Source,
		Motor:              cfg.Motor.Driver,
		Lines:              cfg.Lines,
	}
}

// newReader opens the switch lines for -print-state.
var newReader = func(chip string, offsets []int) (gpio.Reader, error) {
	r, err := gpio.NewRealReader(chip, offsets)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// printSwitches samples the switch lines once and closes the reader.
func printSwitches(w io.Writer, r gpio.Reader, lines *logic.LineMap) error {
	defer r.Close()
	levels, err := r.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	_, err = io.WriteString(w, formatSwitches(lines, levels))
	return err
}

// formatSwitches lists each mapped line with its switch state. Lines are
// pulled high, so a low level means the switch is pressed.
func formatSwitches(lines *logic.LineMap, levels uint32) string {
	var b strings.Builder
	var active []string
	for _, line := range lines.Lines() {
		a, _ := lines.Action(line)
		state := "inactive"
		if levels&(1<<uint(line)) == 0 {
			state = "active"
			active = append(active, a.String())
		}
		fmt.Fprintf(&b, "GPIO %d %s: %s\n", line, a, state)
	}
	if len(active) == 0 {
		active = append(active, "none")
	}
	fmt.Fprintf(&b, "Active: %s\n", strings.Join(active, ", "))
	return b.String()
}
