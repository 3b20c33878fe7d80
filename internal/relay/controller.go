package relay

import (
	"fmt"
	"sync"
	"time"

	"github.com/picorelay/relayd/internal/gpio"
)

// Controller owns the relay state and enforces the safety timers.
// It is safe for concurrent use: HTTP handlers and the daemon run loop
// share it.
type Controller struct {
	mu     sync.Mutex
	drv    gpio.Driver
	timers Timers

	state          State
	lastTransition time.Time
	sessionStart   time.Time
	counters       Counters
	degraded       bool
}

// New creates a Controller with the relay released and drives the pin OFF
// so the logical and physical states agree from the first instant.
// boot carries the counters persisted from a previous run.
func New(drv gpio.Driver, timers Timers, boot Counters, now time.Time) (*Controller, error) {
	if timers.SafetyTimeout > 0 && timers.MaxOnTime > 0 && timers.SafetyTimeout > timers.MaxOnTime {
		return nil, fmt.Errorf("relay: safety timeout %v exceeds max on-time %v", timers.SafetyTimeout, timers.MaxOnTime)
	}
	if err := drv.Write(false); err != nil {
		return nil, fmt.Errorf("drive relay off: %w", err)
	}
	return &Controller{
		drv:            drv,
		timers:         timers,
		state:          StateOff,
		lastTransition: now,
		counters:       boot,
	}, nil
}

// Set drives the relay to the desired state. USER commands inside the
// minimum switch interval fail with ErrRapidSwitch; TIMEOUT and EMERGENCY
// transitions bypass the guard. A GPIO write failure engages the fail-safe
// and returns ErrHardwareFault.
func (c *Controller) Set(desired State, reason Reason, now time.Time) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set(desired, reason, now)
}

// Toggle switches to the opposite of the current state.
func (c *Controller) Toggle(reason Reason, now time.Time) (*Transition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateOn {
		return c.set(StateOff, reason, now)
	}
	return c.set(StateOn, reason, now)
}

// Tick evaluates the safety timers. It must be called on every run loop
// iteration: the relay can only be kept ON by a live loop. When a timer
// has expired it forces OFF and returns the transition for logging;
// otherwise it returns nil.
func (c *Controller) Tick(now time.Time) *Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateOn {
		return nil
	}

	expired := false
	if c.timers.SafetyTimeout > 0 && now.Sub(c.lastTransition) >= c.timers.SafetyTimeout {
		expired = true
	}
	if c.timers.MaxOnTime > 0 && now.Sub(c.sessionStart) >= c.timers.MaxOnTime {
		expired = true
	}
	if !expired {
		return nil
	}

	// The write failure path has already engaged the fail-safe; the
	// logical state is OFF either way, so report the transition.
	tr, _ := c.set(StateOff, ReasonTimeout, now)
	return tr
}

// EmergencyStop unconditionally forces the relay OFF, bypassing all
// guards. It never fails: a write error only latches the degraded flag.
func (c *Controller) EmergencyStop(now time.Time) *Transition {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr, _ := c.set(StateOff, ReasonEmergency, now)
	return tr
}

// Status returns a point-in-time snapshot.
func (c *Controller) Status(now time.Time) Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := Status{
		State:              c.state,
		Counters:           c.counters,
		RuntimeWithSession: c.counters.Runtime,
		LastTransition:     c.lastTransition,
		Degraded:           c.degraded,
	}
	if c.state == StateOn && !c.sessionStart.IsZero() {
		st.SessionDuration = now.Sub(c.sessionStart)
		st.RuntimeWithSession += st.SessionDuration
	}
	if c.counters.Cycles > 0 {
		st.AverageSession = c.counters.Runtime / time.Duration(c.counters.Cycles)
	}
	return st
}

// Counters returns the persisted usage counters.
func (c *Controller) Counters() Counters {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.counters
}

// Degraded reports whether a hardware fault has been latched.
func (c *Controller) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// set performs the guarded transition. Caller holds the lock.
func (c *Controller) set(desired State, reason Reason, now time.Time) (*Transition, error) {
	if reason == ReasonUser && now.Sub(c.lastTransition) < c.timers.MinSwitchInterval {
		return nil, ErrRapidSwitch
	}

	if desired == c.state {
		return nil, nil
	}

	if err := c.drv.Write(desired == StateOn); err != nil {
		c.failSafe(now)
		return nil, fmt.Errorf("%w: %v", ErrHardwareFault, err)
	}

	tr := &Transition{
		Timestamp: now,
		From:      c.state,
		To:        desired,
		Reason:    reason,
	}

	switch desired {
	case StateOn:
		c.sessionStart = now
		c.counters.PowerOnCount++
		c.counters.LastOn = now
	case StateOff:
		tr.SessionDuration = c.endSession(now)
	}

	c.state = desired
	c.lastTransition = now
	return tr, nil
}

// failSafe is the hardware fault path: best-effort release of the relay,
// degraded flag latched, logical state OFF. Caller holds the lock.
func (c *Controller) failSafe(now time.Time) {
	c.degraded = true
	// The driver already failed once; a second write is still worth
	// attempting because faults can be transient (bus contention).
	_ = c.drv.Write(false)
	if c.state == StateOn {
		c.endSession(now)
		c.state = StateOff
		c.lastTransition = now
	}
}

// endSession accumulates the finished ON session into the counters and
// returns its duration. Caller holds the lock.
func (c *Controller) endSession(now time.Time) time.Duration {
	if c.sessionStart.IsZero() {
		return 0
	}
	d := now.Sub(c.sessionStart)
	c.counters.Runtime += d
	c.counters.Cycles++
	c.counters.LastOff = now
	c.sessionStart = time.Time{}
	return d
}
