// Package relay contains the safety-timed relay state machine.
// Time is always injectable via time.Time parameters; the only side
// effect is driving the gpio.Driver output.
package relay

import (
	"errors"
	"time"
)

// State represents the logical state of the relay.
type State string

const (
	StateOn  State = "ON"
	StateOff State = "OFF"
)

// Reason labels what initiated a transition.
type Reason string

const (
	// ReasonUser is an operator command, subject to the rapid-switch guard.
	ReasonUser Reason = "USER"
	// ReasonTimeout is a forced OFF from a safety timer.
	ReasonTimeout Reason = "TIMEOUT"
	// ReasonEmergency is a forced OFF bypassing all guards.
	ReasonEmergency Reason = "EMERGENCY"
)

// Timers holds the safety timer configuration. Immutable after boot.
type Timers struct {
	// SafetyTimeout forces the relay OFF after this long continuously ON.
	// Zero disables the timer.
	SafetyTimeout time.Duration
	// MaxOnTime is the absolute ceiling for a single ON session.
	// Zero disables the timer.
	MaxOnTime time.Duration
	// MinSwitchInterval rejects USER transitions closer together than this.
	MinSwitchInterval time.Duration
}

// Transition records a completed state change.
type Transition struct {
	Timestamp time.Time
	From      State
	To        State
	Reason    Reason
	// SessionDuration is the length of the ended ON session for an
	// ON to OFF transition, zero otherwise.
	SessionDuration time.Duration
}

// Counters are the persisted usage counters. Loaded at boot, saved on
// each ON to OFF transition and at shutdown.
type Counters struct {
	// Cycles counts completed ON/OFF cycles.
	Cycles int64
	// Runtime is the accumulated ON time across all completed sessions.
	Runtime time.Duration
	// PowerOnCount counts OFF to ON transitions.
	PowerOnCount int64
	// LastOn and LastOff are the most recent transition times.
	LastOn  time.Time
	LastOff time.Time
}

// Status is a point-in-time view of the relay.
// It is a value type — safe to use after the lock is released.
type Status struct {
	State           State
	SessionDuration time.Duration
	Counters        Counters
	// RuntimeWithSession includes the running session when ON.
	RuntimeWithSession time.Duration
	AverageSession     time.Duration
	LastTransition     time.Time
	// Degraded is latched after a hardware write failure.
	Degraded bool
}

// ErrRapidSwitch rejects a USER command inside the minimum switch interval.
var ErrRapidSwitch = errors.New("relay: switching too rapidly")

// ErrHardwareFault reports a GPIO write failure. The controller engages
// the fail-safe and latches the degraded flag before returning it.
var ErrHardwareFault = errors.New("relay: hardware fault")
