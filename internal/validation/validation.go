// Package validation содержит функции валидации входных данных.
package validation

import (
	"math"
	"unicode"
)

// IsValidPincode проверяет почтовый индекс: ровно шесть цифр.
func IsValidPincode(pincode string) bool {
	if len(pincode) != 6 {
		return false
	}
	for _, ch := range pincode {
		if !unicode.IsDigit(ch) {
			return false
		}
	}
	return true
}

// IsValidPhone проверяет номер телефона: от 10 до 15 цифр,
// допускается ведущий знак «+».
func IsValidPhone(phone string) bool {
	if phone == "" {
		return false
	}

	digits := 0
	for i, ch := range phone {
		if ch == '+' && i == 0 {
			continue
		}
		if !unicode.IsDigit(ch) {
			return false
		}
		digits++
	}

	return digits >= 10 && digits <= 15
}

// ValidCoordinates проверяет пару долгота/широта в десятичных градусах.
func ValidCoordinates(lng, lat float64) bool {
	if math.IsNaN(lng) || math.IsInf(lng, 0) || math.IsNaN(lat) || math.IsInf(lat, 0) {
		return false
	}
	return math.Abs(lng) <= 180 && math.Abs(lat) <= 90
}
