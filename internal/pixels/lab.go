package pixels

import (
	"math"

	"photoflow/internal/core"
)

// MaxABModule is the largest chroma (a,b modulus) reachable from sRGB.
const MaxABModule = 133.81

const (
	labEpsilon = 216. / 24389.
	labKappa   = 24389. / 27.

	whiteX = 0.95047
	whiteZ = 1.08883
)

func labF(t float64) float64 {
	if t > labEpsilon {
		return math.Cbrt(t)
	}
	return (labKappa*t + 16) / 116
}

func labFInv(f float64) float64 {
	if t := f * f * f; t > labEpsilon {
		return t
	}
	return (116*f - 16) / labKappa
}

// RGBToLab converts linear RGB channel values (quantum scale) to CIE Lab.
func RGBToLab(rgb [3]float64) [3]float64 {
	r := rgb[0] / core.QuantumRange
	g := rgb[1] / core.QuantumRange
	b := rgb[2] / core.QuantumRange

	x := (0.4124564*r + 0.3575761*g + 0.1804375*b) / whiteX
	y := 0.2126729*r + 0.7151522*g + 0.0721750*b
	z := (0.0193339*r + 0.1191920*g + 0.9503041*b) / whiteZ

	fx, fy, fz := labF(x), labF(y), labF(z)
	return [3]float64{116*fy - 16, 500 * (fx - fy), 200 * (fy - fz)}
}

// LabToRGB is the inverse of RGBToLab. Results are not clamped.
func LabToRGB(lab [3]float64) [3]float64 {
	fy := (lab[0] + 16) / 116
	fx := fy + lab[1]/500
	fz := fy - lab[2]/200

	x := labFInv(fx) * whiteX
	y := LabLinearize(lab[0])
	z := labFInv(fz) * whiteZ

	r := 3.2404542*x - 1.5371385*y - 0.4985314*z
	g := -0.9692660*x + 1.8760108*y + 0.0415560*z
	b := 0.0556434*x - 0.2040259*y + 1.0572252*z
	return [3]float64{r * core.QuantumRange, g * core.QuantumRange, b * core.QuantumRange}
}

// LabLinearize converts lightness L to relative luminance Y.
func LabLinearize(l float64) float64 {
	if l > labKappa*labEpsilon {
		f := (l + 16) / 116
		return f * f * f
	}
	return l / labKappa
}

// LabGammaize converts relative luminance Y to lightness L.
func LabGammaize(y float64) float64 {
	return 116*labF(y) - 16
}
