// Package gpio drives the relay output pin with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Driver sets the relay output state.
type Driver interface {
	// Write energizes (true) or releases (false) the relay.
	// The raw pin level depends on the module wiring: active-low
	// relay boards energize on a LOW level.
	Write(on bool) error

	// Close releases GPIO resources. The pin is left released.
	Close() error
}

// DefaultPin is the BCM pin number driving the relay module.
const DefaultPin = 18

// ValidPin reports whether pin is usable for the relay output.
// Pins 23-25 are reserved for the WiFi module on the target board.
func ValidPin(pin int) bool {
	if pin < 0 || pin > 28 {
		return false
	}
	switch pin {
	case 23, 24, 25:
		return false
	}
	return true
}
