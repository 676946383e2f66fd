package units

import (
	"math"
	"testing"
)

func TestConvertAcceleration(t *testing.T) {
	tests := []struct {
		name     string
		valueG   float64
		units    string
		expected float64
	}{
		{"1 g to mps2", 1.0, MPS2, 9.80665},
		{"1 g to g", 1.0, G, 1.0},
		{"-0.5 g to mps2", -0.5, MPS2, -4.903325},
		{"unknown units default to g", 2.0, "furlongs", 2.0},
		{"0 g to mps2", 0.0, MPS2, 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertAcceleration(tt.valueG, tt.units)
			if math.Abs(result-tt.expected) > 1e-9 {
				t.Errorf("ConvertAcceleration(%f, %s) = %f, want %f", tt.valueG, tt.units, result, tt.expected)
			}
		})
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		unit     string
		expected bool
	}{
		{G, true},
		{MPS2, true},
		{"G", false},
		{"mps", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsValid(tt.unit); got != tt.expected {
			t.Errorf("IsValid(%q) = %v, want %v", tt.unit, got, tt.expected)
		}
	}
}

func TestGetValidUnitsString(t *testing.T) {
	if got := GetValidUnitsString(); got != "g, mps2" {
		t.Errorf("GetValidUnitsString() = %q", got)
	}
}
