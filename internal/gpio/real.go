//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealDriver drives the relay through the Linux GPIO character device.
type RealDriver struct {
	chip      *gpiocdev.Chip
	line      *gpiocdev.Line
	activeLow bool
}

// NewRealDriver requests the relay pin as an output, released.
// activeLow selects the raw level that energizes the relay module.
func NewRealDriver(pin int, activeLow bool) (*RealDriver, error) {
	if !ValidPin(pin) {
		return nil, fmt.Errorf("relay pin %d out of range", pin)
	}

	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Initial level releases the relay so the load is de-energized
	// until the controller explicitly turns it on.
	line, err := chip.RequestLine(pin, gpiocdev.AsOutput(levelFor(false, activeLow)))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	return &RealDriver{
		chip:      chip,
		line:      line,
		activeLow: activeLow,
	}, nil
}

// Write sets the raw pin level for the requested logical state.
func (d *RealDriver) Write(on bool) error {
	if err := d.line.SetValue(levelFor(on, d.activeLow)); err != nil {
		return fmt.Errorf("set relay pin: %w", err)
	}
	return nil
}

// Close releases the relay, reconfigures the pin to input with pull-down
// (matching Pi boot defaults) and closes the chip. Leaving the pin as an
// input prevents the relay module from re-energizing during early boot.
func (d *RealDriver) Close() error {
	var errs []error

	if d.line != nil {
		if err := d.line.SetValue(levelFor(false, d.activeLow)); err != nil {
			errs = append(errs, fmt.Errorf("release relay: %w", err))
		}
		if err := d.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure relay pin: %w", err))
		}
		if err := d.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay pin: %w", err))
		}
	}
	if d.chip != nil {
		if err := d.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func levelFor(on, activeLow bool) int {
	if on != activeLow {
		return 1
	}
	return 0
}
