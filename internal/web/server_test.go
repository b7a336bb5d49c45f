package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/sweeney/verbot/internal/controller"
	"github.com/sweeney/verbot/internal/logic"
	"github.com/sweeney/verbot/internal/status"
)

// fakeRequester records requested names and answers like the controller.
type fakeRequester struct {
	mu    sync.Mutex
	names []string
	err   error
}

func (f *fakeRequester) RequestAction(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := logic.ParseAction(name); err != nil {
		return err
	}
	if f.err != nil {
		return f.err
	}
	f.names = append(f.names, name)
	return nil
}

func newTestServer(t *testing.T, req Requester, limiter *rate.Limiter) (*httptest.Server, *status.Tracker) {
	t.Helper()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := status.Config{
		DebounceMicros:     10000,
		InterrogationSpeed: 40,
		ActionSpeed:        -100,
		HeartbeatMs:        900000,
		Broker:             "tcp://192.168.1.200:1883",
		HTTPAddr:           ":8080",
		Source:             "pigpio",
		Motor:              "pigpio",
		Lines:              map[int]string{22: "stop", 9: "forwards"},
	}
	tr := status.NewTracker(start, cfg)
	srv := New(":0", tr, req, limiter)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func call(t *testing.T, url, body string) (int, Response) {
	t.Helper()
	resp, err := http.Post(url+"/", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}
	var r Response
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if r.JSONRPC != "2.0" {
		t.Errorf("jsonrpc: got %q, want 2.0", r.JSONRPC)
	}
	return resp.StatusCode, r
}

func actionBody(id int, action string) string {
	return fmt.Sprintf(`{"jsonrpc":"2.0","method":"verbot_action","params":{"action":%q},"id":%d}`, action, id)
}

func TestRPCAction(t *testing.T) {
	req := &fakeRequester{}
	ts, _ := newTestServer(t, req, nil)

	code, resp := call(t, ts.URL, actionBody(7, "pick_up"))
	if code != http.StatusOK {
		t.Errorf("status: got %d, want 200", code)
	}
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if resp.Result != "ok" {
		t.Errorf("result: got %v, want ok", resp.Result)
	}
	if string(resp.ID) != "7" {
		t.Errorf("id: got %s, want 7", resp.ID)
	}
	if len(req.names) != 1 || req.names[0] != "pick_up" {
		t.Errorf("expected pick_up forwarded, got %v", req.names)
	}
}

func TestRPCErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
	}{
		{"unknown action", actionBody(1, "dance"), nil, CodeInvalidParams},
		{"interrogate rejected", actionBody(1, "interrogate"), nil, CodeInvalidParams},
		{"malformed json", `{"jsonrpc":`, nil, CodeParseError},
		{"unknown method", `{"jsonrpc":"2.0","method":"verbot_dance","params":{},"id":1}`, nil, CodeMethodNotFound},
		{"wrong version", `{"jsonrpc":"1.0","method":"verbot_action","params":{"action":"stop"},"id":1}`, nil, CodeInvalidRequest},
		{"missing params", `{"jsonrpc":"2.0","method":"verbot_action","id":1}`, nil, CodeInvalidParams},
		{"positional params", `{"jsonrpc":"2.0","method":"verbot_action","params":["stop"],"id":1}`, nil, CodeInvalidParams},
		{"not running", actionBody(1, "stop"), controller.ErrNotRunning, CodeNotRunning},
		{"motor failure", actionBody(1, "stop"), errors.New("set motor speed 0: stall"), CodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts, _ := newTestServer(t, &fakeRequester{err: tt.err}, nil)
			_, resp := call(t, ts.URL, tt.body)
			if resp.Error == nil {
				t.Fatalf("expected error code %d, got result %v", tt.code, resp.Result)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code: got %d, want %d (%s)", resp.Error.Code, tt.code, resp.Error.Message)
			}
			if resp.Result != nil {
				t.Errorf("expected no result with error, got %v", resp.Result)
			}
		})
	}
}

func TestRPCUnknownActionMessage(t *testing.T) {
	ts, _ := newTestServer(t, &fakeRequester{}, nil)
	_, resp := call(t, ts.URL, actionBody(2, "fly"))
	if resp.Error == nil || resp.Error.Message != "unknown action" {
		t.Errorf("expected unknown action error, got %+v", resp.Error)
	}
}

func TestRPCRateLimited(t *testing.T) {
	ts, _ := newTestServer(t, &fakeRequester{}, rate.NewLimiter(rate.Every(time.Hour), 1))

	if _, resp := call(t, ts.URL, actionBody(1, "stop")); resp.Error != nil {
		t.Fatalf("first call should pass, got %+v", resp.Error)
	}

	code, resp := call(t, ts.URL, actionBody(2, "stop"))
	if code != http.StatusTooManyRequests {
		t.Errorf("status: got %d, want 429", code)
	}
	if resp.Error == nil || resp.Error.Code != CodeBusy {
		t.Errorf("expected busy error, got %+v", resp.Error)
	}
}

func TestRPCWithoutRequester(t *testing.T) {
	ts, _ := newTestServer(t, nil, nil)
	_, resp := call(t, ts.URL, actionBody(1, "stop"))
	if resp.Error == nil || resp.Error.Code != CodeNotRunning {
		t.Errorf("expected not running, got %+v", resp.Error)
	}
}

func TestRPCBodyTooLarge(t *testing.T) {
	ts, _ := newTestServer(t, &fakeRequester{}, nil)
	body := `{"jsonrpc":"2.0","method":"verbot_action","params":{"action":"` + strings.Repeat("x", 2*maxRequestBytes) + `"}}`
	_, resp := call(t, ts.URL, body)
	if resp.Error == nil || resp.Error.Code != CodeParseError {
		t.Errorf("expected parse error, got %+v", resp.Error)
	}
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, nil, nil)
	tr.Update(logic.ActionInterrogate, logic.ActionForwards, logic.Counts{Records: 5, Accepted: 2})
	tr.SetMQTTConnected(true)

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.NewDecoder(resp.Body).Decode(&sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}

	if sj.Status.Current != "interrogate" || sj.Status.Desired != "forwards" {
		t.Errorf("state: got %s/%s, want interrogate/forwards", sj.Status.Current, sj.Status.Desired)
	}
	if !sj.Status.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if sj.Status.Counts.Records != 5 || sj.Status.Counts.Accepted != 2 {
		t.Errorf("unexpected counts %+v", sj.Status.Counts)
	}
	if sj.Status.Config.Source != "pigpio" {
		t.Errorf("Config.Source: got %q", sj.Status.Config.Source)
	}
}

func TestHTMLEndpointRoot(t *testing.T) {
	ts, tr := newTestServer(t, nil, nil)
	tr.Update(logic.ActionTalk, logic.ActionTalk, logic.Counts{})

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q, want text/html", ct)
	}

	var body bytes.Buffer
	body.ReadFrom(resp.Body)
	for _, want := range []string{"talk", "GPIO 9", "forwards", "rotate_left", "10000us"} {
		if !strings.Contains(body.String(), want) {
			t.Errorf("expected page to contain %q", want)
		}
	}
	if strings.Index(body.String(), "GPIO 9") > strings.Index(body.String(), "GPIO 22") {
		t.Error("expected lines sorted ascending")
	}
}

func TestHTMLEndpointIndexHTML(t *testing.T) {
	ts, _ := newTestServer(t, nil, nil)

	resp, err := http.Get(ts.URL + "/index.html")
	if err != nil {
		t.Fatalf("GET /index.html: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, nil, nil)

	resp, err := http.Get(ts.URL + "/nonexistent")
	if err != nil {
		t.Fatalf("GET /nonexistent: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t, nil, nil)

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE /: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", resp.StatusCode)
	}
}
