package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/verbot/internal/controller"
	"github.com/sweeney/verbot/internal/logic"
	"github.com/sweeney/verbot/internal/motor"
	"github.com/sweeney/verbot/internal/mqtt"
	"github.com/sweeney/verbot/internal/notify"
	"github.com/sweeney/verbot/internal/pigpio"
	"github.com/sweeney/verbot/internal/status"
	"github.com/sweeney/verbot/internal/web"
)

var start = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// levels returns an all-high bitmask with the given lines pulled low.
func levels(lowLines ...int) uint32 {
	l := ^uint32(0)
	for _, line := range lowLines {
		l &^= 1 << uint(line)
	}
	return l
}

// system wires the real pipeline around in-memory I/O: records are written to
// a byte pipe, the motor speaks the pigpio pipe protocol into a buffer.
type system struct {
	wire     *io.PipeWriter
	seq      uint16
	commands *bytes.Buffer
	pub      *mqtt.FakePublisher
	tracker  *status.Tracker
	ctrl     *controller.Controller
	web      *httptest.Server
	cancel   context.CancelFunc
	done     chan error
}

func startSystem(t *testing.T, act motor.Actuator, commands *bytes.Buffer) *system {
	t.Helper()
	lines, err := logic.NewLineMap(map[int]logic.Action{
		22: logic.ActionStop,
		9:  logic.ActionForwards,
		8:  logic.ActionPickUp,
		4:  logic.ActionAssistant,
	})
	if err != nil {
		t.Fatalf("NewLineMap: %v", err)
	}

	pr, pw := io.Pipe()
	s := &system{
		wire:     pw,
		commands: commands,
		pub:      mqtt.NewFakePublisher(),
		tracker:  status.NewTracker(start, status.Config{Source: "pigpio", Motor: "pigpio"}),
		done:     make(chan error, 1),
	}
	s.ctrl = controller.New(controller.Config{
		Lines:              lines,
		InterrogationSpeed: logic.DefaultInterrogationSpeed,
		ActionSpeed:        logic.DefaultActionSpeed,
		DebounceMicros:     logic.DefaultDebounceMicros,
		Publisher:          s.pub,
		Assistant:          s.pub,
		Now:                func() time.Time { return start },
	}, act, s.tracker)
	s.web = httptest.NewServer(web.New(":0", s.tracker, s.ctrl, nil).Handler())
	t.Cleanup(s.web.Close)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go func() { s.done <- s.ctrl.Run(ctx, notify.NewStream(pr)) }()
	t.Cleanup(cancel)

	waitFor(t, func() bool { return s.tracker.Snapshot().Running })
	return s
}

// send writes one record to the wire and waits until the controller counted it.
func (s *system) send(t *testing.T, tick uint32, lowLines ...int) {
	t.Helper()
	want := s.tracker.Snapshot().Counts.Records + 1
	s.seq++
	buf := notify.AppendRecord(nil, notify.Record{Seq: s.seq, Tick: tick, Levels: levels(lowLines...)})
	if _, err := s.wire.Write(buf); err != nil {
		t.Fatalf("write record: %v", err)
	}
	waitFor(t, func() bool { return s.tracker.Snapshot().Counts.Records >= want })
}

func (s *system) rpc(t *testing.T, action string) web.Response {
	t.Helper()
	body := fmt.Sprintf(`{"jsonrpc":"2.0","method":"verbot_action","params":{"action":%q},"id":1}`, action)
	resp, err := http.Post(s.web.URL+"/", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	var r web.Response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return r
}

func (s *system) stop(t *testing.T) error {
	t.Helper()
	s.cancel()
	select {
	case err := <-s.done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
		return nil
	}
}

func (s *system) assertState(t *testing.T, current, desired logic.Action) {
	t.Helper()
	snap := s.tracker.Snapshot()
	if snap.Current != current || snap.Desired != desired {
		t.Errorf("expected %s/%s, got %s/%s", current, desired, snap.Current, snap.Desired)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for condition")
		}
		time.Sleep(time.Millisecond)
	}
}

// TestIntegrationFullFlow drives pick_up from an RPC request through the
// switch stream to the pigpio motor commands.
func TestIntegrationFullFlow(t *testing.T) {
	var commands bytes.Buffer
	pipe := pigpio.NewPipe(&commands, strings.NewReader(strings.Repeat("0\n", 64)))
	act := motor.NewPipeMotor(pipe, motor.DefaultPWMPin, motor.DefaultDirPin, motor.DefaultPWMFrequency)
	s := startSystem(t, act, &commands)

	if r := s.rpc(t, "pick_up"); r.Error != nil || r.Result != "ok" {
		t.Fatalf("expected ok, got %+v", r)
	}
	s.assertState(t, logic.ActionInterrogate, logic.ActionPickUp)

	// Sweep passes forwards, then reaches pick_up.
	s.send(t, 20000, 9)
	s.send(t, 40000)
	s.assertState(t, logic.ActionInterrogate, logic.ActionPickUp)
	s.send(t, 60000, 8)
	s.assertState(t, logic.ActionPickUp, logic.ActionPickUp)

	// A bounce inside the threshold changes nothing.
	s.send(t, 63000)
	s.send(t, 65000, 8)
	s.assertState(t, logic.ActionPickUp, logic.ActionPickUp)

	// Releasing the held switch past the threshold is the limit: sweep home.
	s.send(t, 80000)
	s.assertState(t, logic.ActionInterrogate, logic.ActionStop)
	s.send(t, 100000, 22)
	s.assertState(t, logic.ActionStop, logic.ActionStop)

	// Status endpoint reflects the run.
	resp, err := http.Get(s.web.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	var sj status.StatusJSON
	json.NewDecoder(resp.Body).Decode(&sj)
	resp.Body.Close()
	if sj.Status.Current != "stop" || !sj.Status.Running {
		t.Errorf("unexpected status %+v", sj.Status)
	}
	if c := sj.Status.Counts; c.Records != 7 || c.Requests != 1 || c.Transitions != 2 || c.Suppressed != 2 {
		t.Errorf("unexpected counts %+v", c)
	}

	if err := s.stop(t); err != nil {
		t.Fatalf("expected clean stop, got %v", err)
	}

	want := []string{
		"m 6 w", "w 6 0", "hp 13 250000 0", // init
		"w 6 0", "hp 13 250000 400000", // sweep toward pick_up
		"w 6 1", "hp 13 250000 1000000", // work pick_up
		"w 6 0", "hp 13 250000 0", // limit
		"w 6 0", "hp 13 250000 400000", // interrogate to stop
		"w 6 0", "hp 13 250000 0", // settled on stop
		"w 6 0", "hp 13 250000 0", // release
		"w 6 0", "hp 13 250000 0", // cleanup
	}
	got := strings.Split(strings.TrimSpace(commands.String()), "\n")
	if len(got) != len(want) {
		t.Fatalf("expected %d commands, got %d:\n%s", len(want), len(got), commands.String())
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("command %d: expected %q, got %q", i, want[i], got[i])
		}
	}

	types := s.pub.TransitionTypes()
	wantTypes := []logic.TransitionType{
		logic.TransitionWillChange, // -> pick_up
		logic.TransitionDidChange,  // pick_up
		logic.TransitionWillChange, // -> stop
		logic.TransitionDidChange,  // stop
	}
	if len(types) != len(wantTypes) {
		t.Fatalf("expected %v, got %v", wantTypes, types)
	}
	for i := range wantTypes {
		if types[i] != wantTypes[i] {
			t.Errorf("transition %d: expected %s, got %s", i, wantTypes[i], types[i])
		}
	}
}

// TestIntegrationAssistantLine toggles the assistant from its switch and
// stops a moving gearbox.
func TestIntegrationAssistantLine(t *testing.T) {
	act := motor.NewFakeActuator()
	s := startSystem(t, act, nil)

	if r := s.rpc(t, "forwards"); r.Error != nil {
		t.Fatalf("rpc: %+v", r.Error)
	}
	s.send(t, 20000, 9)
	s.assertState(t, logic.ActionForwards, logic.ActionForwards)

	s.send(t, 40000, 9, 4)
	waitFor(t, func() bool { return s.pub.ToggleCount() == 1 })
	s.assertState(t, logic.ActionInterrogate, logic.ActionStop)

	s.stop(t)
	if !act.CleanedUp() || act.Speed() != 0 {
		t.Errorf("expected motor stopped and released, speed=%d", act.Speed())
	}
}

// TestIntegrationRequestErrors covers RPC failures that leave state alone.
func TestIntegrationRequestErrors(t *testing.T) {
	act := motor.NewFakeActuator()
	s := startSystem(t, act, nil)

	if r := s.rpc(t, "interrogate"); r.Error == nil || r.Error.Code != web.CodeInvalidParams {
		t.Errorf("expected invalid params, got %+v", r)
	}
	s.assertState(t, logic.ActionStop, logic.ActionStop)
	if len(act.Speeds()) != 0 {
		t.Errorf("expected no motor commands, got %v", act.Speeds())
	}

	s.stop(t)
	if r := s.rpc(t, "stop"); r.Error == nil || r.Error.Code != web.CodeNotRunning {
		t.Errorf("expected not running after stop, got %+v", r)
	}
}

// TestIntegrationShortRecordIsFatal ends the stream mid-record.
func TestIntegrationShortRecordIsFatal(t *testing.T) {
	act := motor.NewFakeActuator()
	s := startSystem(t, act, nil)

	if r := s.rpc(t, "forwards"); r.Error != nil {
		t.Fatalf("rpc: %+v", r.Error)
	}
	s.wire.Write([]byte{1, 0, 0, 0, 0x10})
	s.wire.Close()

	var err error
	select {
	case err = <-s.done:
	case <-time.After(2 * time.Second):
		t.Fatal("controller did not stop")
	}
	if !errors.Is(err, notify.ErrShortRecord) {
		t.Errorf("expected ErrShortRecord, got %v", err)
	}
	if act.Speed() != 0 || !act.CleanedUp() {
		t.Errorf("expected motor forced to 0 and released, speed=%d", act.Speed())
	}
	if s.tracker.Snapshot().Running {
		t.Error("expected Running=false after fatal error")
	}
}

// TestIntegrationMQTTRequest routes a voice phrase from the action topic.
func TestIntegrationMQTTRequest(t *testing.T) {
	act := motor.NewFakeActuator()
	s := startSystem(t, act, nil)

	if _, err := mqtt.ParseRequest([]byte("power off")); !errors.Is(err, logic.ErrUnknownAction) {
		t.Errorf("expected system phrase rejected, got %v", err)
	}

	a, err := mqtt.ParseRequest([]byte("pick up"))
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if err := s.ctrl.SetDesiredState(context.Background(), a); err != nil {
		t.Fatalf("SetDesiredState: %v", err)
	}
	s.assertState(t, logic.ActionInterrogate, logic.ActionPickUp)
	s.stop(t)
}
