package core

import "math"

// HDRScale maps 32 stops above black onto the quantum range.
const HDRScale = QuantumRange / 32.

// ToHDR encodes a linear intensity, clamped to the quantum range.
func ToHDR(x float64) uint16 {
	if x <= 0 {
		return 0
	}
	return Clamp(HDRScale * math.Log2(1+x))
}

// FromHDR decodes an encoded channel value to a linear intensity.
func FromHDR(v float64) float64 {
	return math.Exp2(v/HDRScale) - 1
}

// Clamp rounds x to the nearest channel value.
func Clamp(x float64) uint16 {
	switch {
	case math.IsNaN(x) || x <= 0:
		return 0
	case x >= QuantumRange:
		return QuantumRange
	default:
		return uint16(x + .5)
	}
}
