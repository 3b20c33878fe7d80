// Package status provides a thread-safe status tracker for the relayd
// daemon. It is read by HTTP handlers and the MQTT heartbeat.
package status

import (
	"sync"
	"time"

	"github.com/picorelay/relayd/internal/relay"
)

// Config contains daemon configuration for display.
type Config struct {
	DeviceName       string
	Pin              int
	ActiveLow        bool
	SafetyTimeoutSec int
	MaxOnTimeSec     int
	PollMs           int64
	HeartbeatSec     int
	Broker           string
	Addr             string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Relay          relay.Status
	ActiveSessions int
	RequestCount   int64
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update sets the relay status and active session count.
// Called from runLoop on every tick.
func (t *Tracker) Update(rs relay.Status, sessions int) {
	t.mu.Lock()
	t.snap.Relay = rs
	t.snap.ActiveSessions = sessions
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// IncRequests counts one handled HTTP request.
func (t *Tracker) IncRequests() {
	t.mu.Lock()
	t.snap.RequestCount++
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
