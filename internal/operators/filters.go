package operators

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"photoflow/internal/core"
	"photoflow/internal/engine"
)

var BlurDef = engine.Definition{
	Type:     "blur",
	Name:     "Blur",
	Inputs:   []string{"Images"},
	Outputs:  []string{"Images"},
	Strategy: engine.Parallel,
}

var MorphologyDef = engine.Definition{
	Type:     "morphology",
	Name:     "Morphology",
	Inputs:   []string{"Images"},
	Outputs:  []string{"Images"},
	Strategy: engine.Parallel,
}

var blurMethods = []string{"gaussian", "bilateral"}

// blur smooths photos with a Gaussian kernel, or with an edge preserving
// bilateral filter.
type blur struct {
	method     *engine.DropDown
	kernelSize *engine.Slider
	sigma      *engine.Slider
	sigmaColor *engine.Slider
}

func NewBlur(opts engine.Options) *engine.Operator {
	return engine.NewOperator(BlurDef, opts, func(op *engine.Operator) engine.Kernel {
		return &blur{
			method:     engine.NewDropDown(op, "method", blurMethods, 0),
			kernelSize: engine.NewSlider(op, "kernel_size", 5, 1, 31, true),
			sigma:      engine.NewSlider(op, "sigma", 1, 0, 100, false),
			// fraction of the full range
			sigmaColor: engine.NewSlider(op, "sigma_color", 0.1, 0.001, 1, false),
		}
	})
}

// oddSize rounds a kernel size up to the next odd number.
func oddSize(n int) int {
	if n%2 == 0 {
		n++
	}
	return n
}

func (b *blur) Process(w *engine.Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	ksize := oddSize(b.kernelSize.Int())
	src := *photo.Image.Mat()
	dst := gocv.NewMat()

	switch b.method.Selected() {
	case "bilateral":
		// OpenCV filters 8-bit or float data only
		f := gocv.NewMat()
		defer f.Close()
		if err := src.ConvertToWithParams(&f, gocv.MatTypeCV32FC3, 1./core.QuantumRange, 0); err != nil {
			dst.Close()
			return nil, fmt.Errorf("bilateral: %w", err)
		}
		filtered := gocv.NewMat()
		defer filtered.Close()
		if err := gocv.BilateralFilter(f, &filtered, ksize, b.sigmaColor.Float(), b.sigma.Float()); err != nil {
			dst.Close()
			return nil, fmt.Errorf("bilateral: %w", err)
		}
		if err := filtered.ConvertToWithParams(&dst, core.ImageType, core.QuantumRange, 0); err != nil {
			dst.Close()
			return nil, fmt.Errorf("bilateral: %w", err)
		}
	default:
		if err := gocv.GaussianBlur(src, &dst, image.Pt(ksize, ksize), b.sigma.Float(), b.sigma.Float(), gocv.BorderDefault); err != nil {
			dst.Close()
			return nil, fmt.Errorf("gaussian: %w", err)
		}
	}
	if err := photo.Image.Replace(dst); err != nil {
		dst.Close()
		return nil, fmt.Errorf("blur: %w", err)
	}
	return photo, nil
}

var (
	morphOperations = []string{"erode", "dilate", "open", "close"}
	morphShapes     = []string{"rect", "ellipse", "cross"}
)

// morphology applies a morphological operation with a structuring element.
type morphology struct {
	operation  *engine.DropDown
	shape      *engine.DropDown
	kernelSize *engine.Slider
	iterations *engine.Slider
}

func NewMorphology(opts engine.Options) *engine.Operator {
	return engine.NewOperator(MorphologyDef, opts, func(op *engine.Operator) engine.Kernel {
		return &morphology{
			operation:  engine.NewDropDown(op, "operation", morphOperations, 0),
			shape:      engine.NewDropDown(op, "shape", morphShapes, 0),
			kernelSize: engine.NewSlider(op, "kernel_size", 3, 1, 31, true),
			iterations: engine.NewSlider(op, "iterations", 1, 1, 32, true),
		}
	})
}

func (m *morphology) Process(w *engine.Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	var op gocv.MorphType
	switch m.operation.Selected() {
	case "dilate":
		op = gocv.MorphDilate
	case "open":
		op = gocv.MorphOpen
	case "close":
		op = gocv.MorphClose
	default:
		op = gocv.MorphErode
	}
	shape := gocv.MorphRect
	switch m.shape.Selected() {
	case "ellipse":
		shape = gocv.MorphEllipse
	case "cross":
		shape = gocv.MorphCross
	}
	ksize := oddSize(m.kernelSize.Int())
	kernel := gocv.GetStructuringElement(shape, image.Pt(ksize, ksize))
	defer kernel.Close()

	for i := 0; i < m.iterations.Int(); i++ {
		if w.Aborted() {
			return nil, engine.ErrAborted
		}
		dst := gocv.NewMat()
		if err := gocv.MorphologyEx(*photo.Image.Mat(), &dst, op, kernel); err != nil {
			dst.Close()
			return nil, fmt.Errorf("%s: %w", m.operation.Selected(), err)
		}
		if err := photo.Image.Replace(dst); err != nil {
			dst.Close()
			return nil, fmt.Errorf("%s: %w", m.operation.Selected(), err)
		}
	}
	return photo, nil
}
