package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event          string      `json:"event,omitempty"`
	Reason         string      `json:"reason,omitempty"`
	Relay          RelayJSON   `json:"relay"`
	ActiveSessions int         `json:"active_sessions"`
	RequestCount   int64       `json:"request_count"`
	UptimeSeconds  int64       `json:"uptime_seconds"`
	StartTime      string      `json:"start_time"`
	Timestamp      string      `json:"timestamp"`
	MQTT           MQTTStatus  `json:"mqtt"`
	Config         ConfigJSON  `json:"config"`
}

// RelayJSON is the JSON representation of the relay state.
type RelayJSON struct {
	State          string `json:"state"`
	Degraded       bool   `json:"degraded"`
	SessionSeconds int64  `json:"session_seconds"`
	Cycles         int64  `json:"cycles"`
	RuntimeSeconds int64  `json:"runtime_seconds"`
	PowerOnCount   int64  `json:"power_on_count"`
	LastOn         string `json:"last_on,omitempty"`
	LastOff        string `json:"last_off,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	DeviceName       string `json:"device_name"`
	Pin              int    `json:"pin"`
	ActiveLow        bool   `json:"active_low"`
	SafetyTimeoutSec int    `json:"safety_timeout_sec"`
	MaxOnTimeSec     int    `json:"max_on_time_sec"`
	PollMs           int64  `json:"poll_ms"`
	HeartbeatSec     int    `json:"heartbeat_sec"`
	Addr             string `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	state := string(snap.Relay.State)
	if state == "" {
		state = "OFF"
	}

	r := RelayJSON{
		State:          state,
		Degraded:       snap.Relay.Degraded,
		SessionSeconds: int64(snap.Relay.SessionDuration / time.Second),
		Cycles:         snap.Relay.Counters.Cycles,
		RuntimeSeconds: int64(snap.Relay.Counters.Runtime / time.Second),
		PowerOnCount:   snap.Relay.Counters.PowerOnCount,
	}
	if !snap.Relay.Counters.LastOn.IsZero() {
		r.LastOn = snap.Relay.Counters.LastOn.UTC().Format(time.RFC3339)
	}
	if !snap.Relay.Counters.LastOff.IsZero() {
		r.LastOff = snap.Relay.Counters.LastOff.UTC().Format(time.RFC3339)
	}

	return StatusInner{
		Relay:          r,
		ActiveSessions: snap.ActiveSessions,
		RequestCount:   snap.RequestCount,
		UptimeSeconds:  int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:      snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:      snap.Now.UTC().Format(time.RFC3339),
		MQTT:           MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			DeviceName:       snap.Config.DeviceName,
			Pin:              snap.Config.Pin,
			ActiveLow:        snap.Config.ActiveLow,
			SafetyTimeoutSec: snap.Config.SafetyTimeoutSec,
			MaxOnTimeSec:     snap.Config.MaxOnTimeSec,
			PollMs:           snap.Config.PollMs,
			HeartbeatSec:     snap.Config.HeartbeatSec,
			Addr:             snap.Config.Addr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
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
