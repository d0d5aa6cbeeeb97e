package pixels

import (
	"context"
	"math"

	"photoflow/internal/core"
)

// Selection weighs Lab hue angles around a target hue. The weight is 1 at
// the target and exactly 1/2 at half the coverage angle away from it.
type Selection struct {
	coverage int
	theta    float64
	power    float64
}

// NewSelection builds the window for hue and coverage, both in degrees.
// Coverage is taken by magnitude and capped at 360.
func NewSelection(hue, coverage int) Selection {
	if coverage < 0 {
		coverage = -coverage
	}
	coverage = min(coverage, 360)
	s := Selection{
		coverage: coverage,
		theta:    math.Pi * float64(((hue%360)+360)%360) / 180,
	}
	if coverage > 0 && coverage < 360 {
		half := math.Pi * float64(coverage) / 2 / 180
		s.power = -math.Ln2 / math.Log((1+math.Cos(half))/2)
	}
	return s
}

// Weight returns the selection weight of a pixel whose chroma angle is arg,
// as returned by Angle.
func (s Selection) Weight(arg float64) float64 {
	switch s.coverage {
	case 0:
		return 0
	case 360:
		return 1
	}
	return math.Pow((1-math.Cos(arg+s.theta))/2, s.power)
}

// Angle returns the chroma angle of (a, b) in the convention Weight expects.
func Angle(a, b float64) float64 {
	return math.Atan2(b, -a)
}

// SelectiveLab changes saturation and exposure of the pixels whose hue lies
// in a window of the Lab a,b plane.
type SelectiveLab struct {
	Hue      int
	Coverage int // negative inverts the selection
	// Saturation multiplies chroma inside the selection. With Strict the
	// chroma outside the selection is removed.
	Saturation float64
	Strict     bool
	// Exposure multiplies luminance inside the selection. With
	// ExposureStrict the luminance outside the selection is removed.
	Exposure          float64
	ExposureStrict    bool
	InsideSelection   bool
	OutsideSaturation bool
}

type selective struct {
	sel          Selection
	saturation   float64
	exposure     float64
	strictSat    bool
	strictVal    bool
	invSat       bool
	invVal       bool
	neutralValue bool
}

func (f SelectiveLab) prepare() selective {
	p := selective{
		saturation: f.Saturation,
		exposure:   f.Exposure,
		strictSat:  f.Strict,
		strictVal:  f.ExposureStrict,
		invSat:     f.OutsideSaturation,
		invVal:     !f.InsideSelection,
	}
	coverage := f.Coverage
	if coverage < 0 {
		coverage = -coverage
		p.invSat = !p.invSat
		p.invVal = !p.invVal
	}
	p.sel = NewSelection(f.Hue, coverage)
	// an empty value selection leaves luminance alone
	if (p.sel.coverage == 0 && !p.invVal) || (p.sel.coverage == 360 && p.invVal) {
		p.neutralValue = true
		p.exposure = 1
	}
	return p
}

// Weights returns the saturation and value weights of a pixel of chroma (a, b).
func (f SelectiveLab) Weights(a, b float64) (sat, val float64) {
	p := f.prepare()
	return p.weights(Angle(a, b))
}

func (p *selective) weights(arg float64) (sat, val float64) {
	w := p.sel.Weight(arg)
	sat, val = w, w
	if p.invSat {
		sat = 1 - sat
	}
	if p.invVal {
		val = 1 - val
	}
	return sat, val
}

func (p *selective) pixel(rgb [3]float64) [3]float64 {
	lab := RGBToLab(rgb)
	module := math.Hypot(lab[1], lab[2])
	arg := Angle(lab[1], lab[2])
	mulSat, mulVal := p.weights(arg)

	if !p.neutralValue {
		v := LabLinearize(lab[0])
		if p.strictVal {
			v = v * mulVal * p.exposure
		} else {
			// enlarge the selection in low saturation zones to avoid a discontinuity
			correction := math.Max(0, math.Min(1, math.Pow(module/MaxABModule, .15)))
			v = v*mulVal*p.exposure + v*(1-mulVal)*math.Pow(p.exposure, 1-correction)
		}
		lab[0] = LabGammaize(v)
	}

	if p.strictSat {
		module = module * mulSat * p.saturation
	} else {
		module = module*mulSat*p.saturation + module*(1-mulSat)
	}
	lab[1] = -module * math.Cos(arg)
	lab[2] = module * math.Sin(arg)
	return LabToRGB(lab)
}

// ApplyOn writes the filtered src into dst. Both buffers must have the same
// size; hdr tells whether channels use the HDR encoding.
func (f SelectiveLab) ApplyOn(ctx context.Context, k Kernel, src, dst Buffer, hdr bool) error {
	p := f.prepare()
	w := dst.Columns()
	k.Sync = dst.Sync
	return k.Run(ctx, dst.Rows(), func(y int) error {
		in := src.ConstRows(y, 1)
		out := dst.MutableRows(y, 1)
		if in == nil || out == nil {
			return ErrUnavailable
		}
		for x := 0; x < w; x++ {
			var rgb [3]float64
			for c := 0; c < 3; c++ {
				if hdr {
					rgb[c] = core.FromHDR(float64(in[3*x+c]))
				} else {
					rgb[c] = float64(in[3*x+c])
				}
			}
			rgb = p.pixel(rgb)
			for c := 0; c < 3; c++ {
				if hdr {
					out[3*x+c] = core.ToHDR(rgb[c])
				} else {
					out[3*x+c] = core.Clamp(rgb[c])
				}
			}
		}
		return nil
	})
}
