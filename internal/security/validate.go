package security

import (
	"strconv"
	"strings"

	"github.com/picorelay/relayd/internal/gpio"
)

// Field names a validated input type.
type Field string

const (
	FieldRelayCommand Field = "relay_command"
	FieldPinNumber    Field = "pin_number"
	FieldTimeout      Field = "timeout"
	FieldDeviceName   Field = "device_name"
)

// maxTimeout is seven days in seconds, the largest accepted timeout.
const maxTimeout = 604800

// Sanitize validates raw against the whitelist for the field and returns
// the normalized value. Failures name the field only.
func Sanitize(field Field, raw string) (string, error) {
	switch field {
	case FieldRelayCommand:
		return sanitizeRelayCommand(raw)
	case FieldPinNumber:
		return sanitizePinNumber(raw)
	case FieldTimeout:
		return sanitizeTimeout(raw)
	case FieldDeviceName:
		return sanitizeDeviceName(raw)
	default:
		return "", &InvalidInputError{Field: string(field)}
	}
}

// sanitizeRelayCommand accepts the boolean-like command vocabulary and
// normalizes it to "on", "off" or "toggle".
func sanitizeRelayCommand(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "1":
		return "on", nil
	case "off", "false", "0":
		return "off", nil
	case "toggle":
		return "toggle", nil
	}
	return "", &InvalidInputError{Field: string(FieldRelayCommand)}
}

func sanitizePinNumber(raw string) (string, error) {
	pin, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || !gpio.ValidPin(pin) {
		return "", &InvalidInputError{Field: string(FieldPinNumber)}
	}
	return strconv.Itoa(pin), nil
}

func sanitizeTimeout(raw string) (string, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v <= 0 || v > maxTimeout {
		return "", &InvalidInputError{Field: string(FieldTimeout)}
	}
	return strconv.Itoa(v), nil
}

func sanitizeDeviceName(raw string) (string, error) {
	if len(raw) < 1 || len(raw) > 50 {
		return "", &InvalidInputError{Field: string(FieldDeviceName)}
	}
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return "", &InvalidInputError{Field: string(FieldDeviceName)}
		}
	}
	return raw, nil
}
