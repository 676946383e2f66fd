// Package units provides shared constants and validation for acceleration units
package units

import "strings"

// Unit constants
const (
	G    = "g"
	MPS2 = "mps2"
)

// StandardGravity is 1 g in m/s².
const StandardGravity = 9.80665

// ValidUnits contains all valid unit values
var ValidUnits = []string{G, MPS2}

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
	return strings.Join(ValidUnits, ", ")
}

// ConvertAcceleration converts an acceleration from g to the target units.
// Decoded samples are always in g.
func ConvertAcceleration(valueG float64, targetUnits string) float64 {
	switch targetUnits {
	case MPS2:
		return valueG * StandardGravity
	case G:
		return valueG
	default:
		return valueG
	}
}
