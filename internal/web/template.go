package web

import (
	"fmt"
	"html/template"
	"io"
	"sort"
	"time"

	"github.com/sweeney/verbot/internal/logic"
	"github.com/sweeney/verbot/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Verbot</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.settled { color: green; font-weight: bold; }
.sweeping { color: orange; }
.connected { color: green; }
.disconnected { color: red; }
button { font-family: monospace; margin: 2px; }
</style>
</head>
<body>
<h1>Verbot</h1>

<h2>State</h2>
<table>
<tr><th>Current</th><td id="current" class="{{if .Interrogating}}sweeping{{else}}settled{{end}}">{{.Current}}</td></tr>
<tr><th>Desired</th><td id="desired">{{.Desired}}</td></tr>
<tr><th>Controller</th><td>{{if .Running}}running{{else}}stopped{{end}}</td></tr>
</table>

<p>{{range .Actions}}<button onclick="act('{{.}}')">{{.}}</button>{{end}}</p>
<p id="result"></p>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
</table>

<h2>Counters</h2>
<table>
<tr><th>Records</th><td>{{.Counts.Records}}</td></tr>
<tr><th>Edges</th><td>{{.Counts.Edges}}</td></tr>
<tr><th>Accepted</th><td>{{.Counts.Accepted}}</td></tr>
<tr><th>Suppressed</th><td>{{.Counts.Suppressed}}</td></tr>
<tr><th>Requests</th><td>{{.Counts.Requests}}</td></tr>
<tr><th>Transitions</th><td>{{.Counts.Transitions}}</td></tr>
</table>

<h2>Lines</h2>
<table>
{{range .Lines}}<tr><th>GPIO {{.Line}}</th><td>{{.Action}}</td></tr>
{{end}}</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Source</th><td>{{.Config.Source}}</td></tr>
<tr><th>Motor</th><td>{{.Config.Motor}}</td></tr>
<tr><th>Speeds</th><td>interrogate {{.Config.InterrogationSpeed}}%, action {{.Config.ActionSpeed}}%</td></tr>
<tr><th>Debounce</th><td>{{.Config.DebounceMicros}}us</td></tr>
<tr><th>Heartbeat</th><td>{{if eq .Config.HeartbeatMs 0}}disabled{{else}}{{.Config.HeartbeatMs}}ms{{end}}</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
<script>
function act(action) {
  fetch("/", {
    method: "POST",
    headers: { "Content-Type": "application/json" },
    body: JSON.stringify({ jsonrpc: "2.0", method: "verbot_action", params: { action: action }, id: Date.now() })
  }).then(function(r) { return r.json(); }).then(function(resp) {
    document.getElementById("result").textContent = resp.error ? "error: " + resp.error.message : action + ": ok";
  }).catch(function(e) {
    document.getElementById("result").textContent = "error: " + e;
  });
}
</script>
</body>
</html>
`

type lineRow struct {
	Line   int
	Action string
}

func renderHTML(w io.Writer, snap status.Snapshot) {
	rows := make([]lineRow, 0, len(snap.Config.Lines))
	for line, action := range snap.Config.Lines {
		rows = append(rows, lineRow{Line: line, Action: action})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Line < rows[j].Line })

	var actions []string
	for _, a := range logic.Actions() {
		actions = append(actions, a.String())
	}

	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime  time.Duration
		Actions []string
		Lines   []lineRow
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
		Actions:  actions,
		Lines:    rows,
	}
	indexTmpl.Execute(w, data)
}
