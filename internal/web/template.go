package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/picorelay/relayd/internal/status"
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
<title>{{.Config.DeviceName}}</title>
<style>
body { font-family: monospace; max-width: 600px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
th { width: 40%; }
.on { color: green; font-weight: bold; }
.off { color: #888; }
.degraded { color: red; font-weight: bold; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>{{.Config.DeviceName}}</h1>

<h2>Relay</h2>
<table>
<tr><th>State</th><td class="{{if eq (printf "%s" .Relay.State) "ON"}}on{{else}}off{{end}}">{{if .Relay.State}}{{.Relay.State}}{{else}}OFF{{end}}</td></tr>
{{if .Relay.Degraded}}<tr><th>Hardware</th><td class="degraded">DEGRADED</td></tr>{{end}}
{{if eq (printf "%s" .Relay.State) "ON"}}<tr><th>On For</th><td>{{uptime .Relay.SessionDuration}}</td></tr>{{end}}
</table>

<h2>Lifetime</h2>
<table>
<tr><th>Cycles</th><td>{{.Relay.Counters.Cycles}}</td></tr>
<tr><th>Runtime</th><td>{{uptime .Relay.RuntimeWithSession}}</td></tr>
<tr><th>Power-Ons</th><td>{{.Relay.Counters.PowerOnCount}}</td></tr>
{{if not .Relay.Counters.LastOn.IsZero}}<tr><th>Last On</th><td>{{.Relay.Counters.LastOn.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
{{if not .Relay.Counters.LastOff.IsZero}}<tr><th>Last Off</th><td>{{.Relay.Counters.LastOff.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>MQTT</th><td class="{{if .MQTTConnected}}connected{{else}}disconnected{{end}}">{{if .MQTTConnected}}connected{{else}}disconnected{{end}}</td></tr>
{{if .Config.Broker}}<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>{{end}}
</table>

<h2>System</h2>
<table>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Pin</th><td>GPIO{{.Config.Pin}}{{if .Config.ActiveLow}} (active low){{end}}</td></tr>
<tr><th>Safety Timeout</th><td>{{if eq .Config.SafetyTimeoutSec 0}}disabled{{else}}{{.Config.SafetyTimeoutSec}}s{{end}}</td></tr>
<tr><th>Max On Time</th><td>{{if eq .Config.MaxOnTimeSec 0}}disabled{{else}}{{.Config.MaxOnTimeSec}}s{{end}}</td></tr>
<tr><th>Sessions</th><td>{{.ActiveSessions}}</td></tr>
<tr><th>Requests</th><td>{{.RequestCount}}</td></tr>
</table>

<p><a href="/index.json">JSON</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
