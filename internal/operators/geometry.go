package operators

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"

	"photoflow/internal/core"
	"photoflow/internal/engine"
)

var RotateDef = engine.Definition{
	Type:     "rotate",
	Name:     "Rotate",
	Inputs:   []string{"Images"},
	Outputs:  []string{"Images"},
	Strategy: engine.Parallel,
}

var ScaleDef = engine.Definition{
	Type:     "scale",
	Name:     "Scale",
	Inputs:   []string{"Images"},
	Outputs:  []string{"Images"},
	Strategy: engine.Parallel,
}

var rotations = []string{"0", "90", "180", "270"}

// rotate turns photos clockwise by quarter turns.
type rotate struct {
	angle *engine.DropDown
}

func NewRotate(opts engine.Options) *engine.Operator {
	return engine.NewOperator(RotateDef, opts, func(op *engine.Operator) engine.Kernel {
		return &rotate{angle: engine.NewDropDown(op, "angle", rotations, 0)}
	})
}

func (r *rotate) Process(w *engine.Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	var code gocv.RotateFlag
	switch r.angle.Selected() {
	case "90":
		code = gocv.Rotate90Clockwise
	case "180":
		code = gocv.Rotate180Clockwise
	case "270":
		code = gocv.Rotate90CounterClockwise
	default:
		return photo, nil
	}
	dst := gocv.NewMat()
	gocv.Rotate(*photo.Image.Mat(), &dst, code)
	if err := photo.Image.Replace(dst); err != nil {
		dst.Close()
		return nil, fmt.Errorf("rotate: %w", err)
	}
	return photo, nil
}

// scale resizes photos by a factor.
type scale struct {
	factor *engine.Slider
}

func NewScale(opts engine.Options) *engine.Operator {
	return engine.NewOperator(ScaleDef, opts, func(op *engine.Operator) engine.Kernel {
		return &scale{factor: engine.NewSlider(op, "factor", 0.5, 0.01, 16, false)}
	})
}

func (s *scale) Process(w *engine.Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	f := s.factor.Float()
	if f == 1 {
		return photo, nil
	}
	width := int(math.Round(float64(photo.Image.Width()) * f))
	height := int(math.Round(float64(photo.Image.Height()) * f))
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("scale: %dx%d by %v is empty", photo.Image.Width(), photo.Image.Height(), f)
	}
	interp := gocv.InterpolationLinear
	if f < 1 {
		interp = gocv.InterpolationArea
	}
	dst := gocv.NewMat()
	gocv.Resize(*photo.Image.Mat(), &dst, image.Pt(width, height), 0, 0, interp)
	if err := photo.Image.Replace(dst); err != nil {
		dst.Close()
		return nil, fmt.Errorf("scale: %w", err)
	}
	return photo, nil
}
