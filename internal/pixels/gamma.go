package pixels

import (
	"math"
	"sync"

	"photoflow/internal/core"
)

// Well-known transfer curves.
const (
	SRGBGamma  = 2.4
	SRGBToe    = 0.00304
	BT709Gamma = 1 / 0.45
	BT709Toe   = 0.018
	LabGamma   = 3.
	LabToe     = 216. / 24389.
)

// Curve is a power law with a linear toe below X0, continuous in value and
// slope at the junction.
type Curve struct {
	Gamma float64
	X0    float64
	a     float64
	slope float64
}

// NewCurve solves the offset and toe slope for gamma and x0.
func NewCurve(gamma, x0 float64) Curve {
	c := Curve{Gamma: gamma, X0: x0}
	p := math.Pow(x0, 1/gamma) * (1 - 1/gamma)
	c.a = p / (1 - p)
	c.slope = (1 + c.a) / gamma * math.Pow(x0, 1/gamma-1)
	return c
}

// Encode maps a linear value in [0,1] to the curve.
func (c Curve) Encode(x float64) float64 {
	if x < c.X0 {
		return c.slope * x
	}
	return (1+c.a)*math.Pow(x, 1/c.Gamma) - c.a
}

// Decode is the inverse of Encode.
func (c Curve) Decode(y float64) float64 {
	if y < c.slope*c.X0 {
		return y / c.slope
	}
	return math.Pow((y+c.a)/(1+c.a), c.Gamma)
}

// Gamma returns the table encoding linear levels with the curve, or
// decoding them when invert is set.
func Gamma(gamma, x0 float64, invert bool) LUT {
	c := NewCurve(gamma, x0)
	f := c.Encode
	if invert {
		f = c.Decode
	}
	return NewLUT(func(level float64) float64 {
		return core.QuantumRange * f(level/core.QuantumRange)
	})
}

var presets sync.Map

func preset(name string, gamma, x0 float64, invert bool) LUT {
	if lut, ok := presets.Load(name); ok {
		return lut.(LUT)
	}
	lut, _ := presets.LoadOrStore(name, Gamma(gamma, x0, invert))
	return lut.(LUT)
}

func SRGB() LUT         { return preset("srgb", SRGBGamma, SRGBToe, false) }
func ReverseSRGB() LUT  { return preset("-srgb", SRGBGamma, SRGBToe, true) }
func BT709() LUT        { return preset("bt709", BT709Gamma, BT709Toe, false) }
func ReverseBT709() LUT { return preset("-bt709", BT709Gamma, BT709Toe, true) }
func Lab() LUT          { return preset("lab", LabGamma, LabToe, false) }
func ReverseLab() LUT   { return preset("-lab", LabGamma, LabToe, true) }
