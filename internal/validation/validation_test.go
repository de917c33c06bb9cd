package validation

import (
	"math"
	"testing"
)

func TestIsValidPincode(t *testing.T) {
	tests := []struct {
		name    string
		pincode string
		valid   bool
	}{
		{
			name:    "valid pincode",
			pincode: "560001",
			valid:   true,
		},
		{
			name:    "too short",
			pincode: "56001",
			valid:   false,
		},
		{
			name:    "too long",
			pincode: "5600011",
			valid:   false,
		},
		{
			name:    "contains letters",
			pincode: "56a001",
			valid:   false,
		},
		{
			name:    "empty string",
			pincode: "",
			valid:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidPincode(tt.pincode)
			if got != tt.valid {
				t.Fatalf("IsValidPincode(%q) = %v, want %v", tt.pincode, got, tt.valid)
			}
		})
	}
}

func TestIsValidPhone(t *testing.T) {
	tests := []struct {
		name  string
		phone string
		valid bool
	}{
		{
			name:  "ten digits",
			phone: "9876543210",
			valid: true,
		},
		{
			name:  "with plus prefix",
			phone: "+79161234567",
			valid: true,
		},
		{
			name:  "plus in the middle",
			phone: "7916+1234567",
			valid: false,
		},
		{
			name:  "too short",
			phone: "12345",
			valid: false,
		},
		{
			name:  "contains letters",
			phone: "98765432ab",
			valid: false,
		},
		{
			name:  "empty string",
			phone: "",
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsValidPhone(tt.phone)
			if got != tt.valid {
				t.Fatalf("IsValidPhone(%q) = %v, want %v", tt.phone, got, tt.valid)
			}
		})
	}
}

func TestValidCoordinates(t *testing.T) {
	tests := []struct {
		name  string
		lng   float64
		lat   float64
		valid bool
	}{
		{"origin", 0, 0, true},
		{"valid point", 77.5946, 12.9716, true},
		{"longitude out of range", 181, 0, false},
		{"latitude out of range", 0, -91, false},
		{"nan longitude", math.NaN(), 0, false},
		{"infinite latitude", 0, math.Inf(1), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidCoordinates(tt.lng, tt.lat)
			if got != tt.valid {
				t.Fatalf("ValidCoordinates(%f, %f) = %v, want %v", tt.lng, tt.lat, got, tt.valid)
			}
		})
	}
}
