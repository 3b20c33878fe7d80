// Package mqtt publishes relay events with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/picorelay/relayd/internal/relay"
)

// EventsTopic returns the MQTT topic for relay state transitions.
func EventsTopic(device string) string {
	return "home/relay/" + device + "/events"
}

// SystemTopic returns the MQTT topic for system lifecycle events.
func SystemTopic(device string) string {
	return "home/relay/" + device + "/system"
}

// Publisher publishes relay events to MQTT.
type Publisher interface {
	// PublishTransition sends a relay state transition to the broker.
	// Returns error if publishing fails (must not crash the process).
	PublishTransition(t relay.Transition) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event.
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // shutdown only, e.g. "SIGTERM"
	RawPayload []byte // pre-formatted JSON; if set, FormatSystemPayload returns it directly
	Retained   bool
}

// Payload is the MQTT message structure for a transition.
type Payload struct {
	Relay RelayPayload `json:"relay"`
}

// RelayPayload contains the transition details.
type RelayPayload struct {
	Timestamp      string `json:"timestamp"`
	From           string `json:"from"`
	To             string `json:"to"`
	Reason         string `json:"reason"`
	SessionSeconds int64  `json:"session_seconds,omitempty"`
}

// FormatPayload creates the JSON payload for a relay transition.
func FormatPayload(t relay.Transition) ([]byte, error) {
	payload := Payload{
		Relay: RelayPayload{
			Timestamp:      t.Timestamp.UTC().Format(time.RFC3339),
			From:           string(t.From),
			To:             string(t.To),
			Reason:         string(t.Reason),
			SessionSeconds: int64(t.SessionDuration / time.Second),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload is the MQTT message structure for simple system events.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full
// status snapshots such as the heartbeat).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
