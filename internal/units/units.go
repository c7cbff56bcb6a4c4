// Package units provides shared constants and validation for velocity units
package units

// Unit constants
const (
	MPS  = "mps"
	KMPS = "kmps"
)

// ValidUnits contains all valid unit values
var ValidUnits = []string{MPS, KMPS}

// IsValid checks if the given unit is in the list of valid units
func IsValid(unit string) bool {
	for _, validUnit := range ValidUnits {
		if unit == validUnit {
			return true
		}
	}
	return false
}

// GetValidUnitsString returns a comma-separated string of valid units for error messages
func GetValidUnitsString() string {
	return "mps, kmps"
}

// ConvertVelocity converts a velocity from meters per second to the target units.
// Every quantity inside the engine is kept in m/s.
func ConvertVelocity(velocityMPS float64, targetUnits string) float64 {
	switch targetUnits {
	case KMPS:
		return velocityMPS / 1000
	case MPS:
		return velocityMPS
	default:
		return velocityMPS // default to m/s if unknown unit
	}
}

// ToMPS converts a velocity expressed in unit into meters per second.
func ToMPS(velocity float64, unit string) float64 {
	if unit == KMPS {
		return velocity * 1000
	}
	return velocity
}
