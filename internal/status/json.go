package status

import (
	"encoding/json"
	"strconv"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Current       string     `json:"current"`
	Desired       string     `json:"desired"`
	Interrogating bool       `json:"interrogating"`
	Running       bool       `json:"running"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of controller counters.
type CountsJSON struct {
	Records     int `json:"records"`
	Edges       int `json:"edges"`
	Accepted    int `json:"accepted"`
	Suppressed  int `json:"suppressed"`
	Requests    int `json:"requests"`
	Transitions int `json:"transitions"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DebounceMicros     int64             `json:"debounce_us"`
	InterrogationSpeed int               `json:"interrogation_speed"`
	ActionSpeed        int               `json:"action_speed"`
	HeartbeatMs        int64             `json:"heartbeat_ms"`
	Broker             string            `json:"broker"`
	HTTPAddr           string            `json:"http_addr"`
	Source             string            `json:"source"`
	Motor              string            `json:"motor"`
	Lines              map[string]string `json:"lines,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	var lines map[string]string
	if len(snap.Config.Lines) > 0 {
		lines = make(map[string]string, len(snap.Config.Lines))
		for line, action := range snap.Config.Lines {
			lines[strconv.Itoa(line)] = action
		}
	}

	return StatusInner{
		Current:       snap.Current.String(),
		Desired:       snap.Desired.String(),
		Interrogating: snap.Interrogating(),
		Running:       snap.Running,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Records:     snap.Counts.Records,
			Edges:       snap.Counts.Edges,
			Accepted:    snap.Counts.Accepted,
			Suppressed:  snap.Counts.Suppressed,
			Requests:    snap.Counts.Requests,
			Transitions: snap.Counts.Transitions,
		},
		Config: ConfigJSON{
			DebounceMicros:     snap.Config.DebounceMicros,
			InterrogationSpeed: snap.Config.InterrogationSpeed,
			ActionSpeed:        snap.Config.ActionSpeed,
			HeartbeatMs:        snap.Config.HeartbeatMs,
			Broker:             snap.Config.Broker,
			HTTPAddr:           snap.Config.HTTPAddr,
			Source:             snap.Config.Source,
			Motor:              snap.Config.Motor,
			Lines:              lines,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
