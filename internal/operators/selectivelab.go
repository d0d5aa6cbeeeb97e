package operators

import (
	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/pixels"
)

var SelectiveLabDef = engine.Definition{
	Type:     "selective_lab",
	Name:     "Selective Lab",
	Inputs:   []string{"Images"},
	Outputs:  []string{"Images"},
	Strategy: engine.Parallel,
}

type selectiveLab struct {
	selection         *engine.SelectiveLabParameter
	saturation        *engine.Slider
	exposure          *engine.Slider
	exposureStrict    *engine.Toggle
	insideSelection   *engine.Toggle
	outsideSaturation *engine.Toggle
}

func NewSelectiveLab(opts engine.Options) *engine.Operator {
	return engine.NewOperator(SelectiveLabDef, opts, func(op *engine.Operator) engine.Kernel {
		return &selectiveLab{
			selection:         engine.NewSelectiveLabParameter(op, "selection", engine.Selection{Hue: 0, Coverage: 90}),
			saturation:        engine.NewSlider(op, "saturation", 1, 0, 32, false),
			exposure:          engine.NewSlider(op, "exposure", 1, 1./64, 64, false),
			exposureStrict:    engine.NewToggle(op, "exposure_strict", false),
			insideSelection:   engine.NewToggle(op, "inside_selection", true),
			outsideSaturation: engine.NewToggle(op, "outside_saturation", false),
		}
	})
}

func (s *selectiveLab) filter() pixels.SelectiveLab {
	sel := s.selection.Selection()
	return pixels.SelectiveLab{
		Hue:               sel.Hue,
		Coverage:          sel.Coverage,
		Strict:            sel.Strict,
		Saturation:        s.saturation.Float(),
		Exposure:          s.exposure.Float(),
		ExposureStrict:    s.exposureStrict.Bool(),
		InsideSelection:   s.insideSelection.Bool(),
		OutsideSaturation: s.outsideSaturation.Bool(),
	}
}

func (s *selectiveLab) Process(w *engine.Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	buf := pixels.NewMatBuffer(photo.Image)
	if err := s.filter().ApplyOn(w.Context(), w.Kernel(), buf, buf, photo.Scale == core.HDR); err != nil {
		return nil, err
	}
	return photo, nil
}
