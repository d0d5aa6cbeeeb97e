package operators

import (
	"fmt"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/pixels"
)

var GammaDef = engine.Definition{
	Type:     "gamma",
	Name:     "Gamma",
	Inputs:   []string{"Images"},
	Outputs:  []string{"Images"},
	Strategy: engine.Parallel,
}

var gammaPresets = []string{"custom", "srgb", "bt709", "lab"}

// gamma applies a transfer curve through a lookup table.
type gamma struct {
	preset *engine.DropDown
	gamma  *engine.Slider
	x0     *engine.Slider
	invert *engine.Toggle
}

func NewGamma(opts engine.Options) *engine.Operator {
	return engine.NewOperator(GammaDef, opts, func(op *engine.Operator) engine.Kernel {
		return &gamma{
			preset: engine.NewDropDown(op, "preset", gammaPresets, 0),
			gamma:  engine.NewSlider(op, "gamma", pixels.SRGBGamma, 0.1, 10, false),
			x0:     engine.NewSlider(op, "x0", pixels.SRGBToe, 0, 0.5, false),
			invert: engine.NewToggle(op, "invert", false),
		}
	})
}

func (g *gamma) lut() pixels.LUT {
	inv := g.invert.Bool()
	switch g.preset.Selected() {
	case "srgb":
		if inv {
			return pixels.ReverseSRGB()
		}
		return pixels.SRGB()
	case "bt709":
		if inv {
			return pixels.ReverseBT709()
		}
		return pixels.BT709()
	case "lab":
		if inv {
			return pixels.ReverseLab()
		}
		return pixels.Lab()
	}
	return pixels.Gamma(g.gamma.Float(), g.x0.Float(), inv)
}

func (g *gamma) Process(w *engine.Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	if err := g.lut().ApplyOn(w.Context(), w.Kernel(), pixels.NewMatBuffer(photo.Image)); err != nil {
		return nil, err
	}
	photo.SetTag(core.TagTreatment, fmt.Sprintf("gamma %s", g.preset.Selected()))
	return photo, nil
}
