package operators

import (
	"math"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/pixels"
)

var ColorDef = engine.Definition{
	Type:    "color",
	Name:    "Color",
	Outputs: []string{"Color"},
}

const minComponent = 1. / (1 << 16)

// color generates a single pixel photo of a constant color, identified by
// the operator id.
type color struct {
	engine.PlayerBase
	op      *engine.Operator
	r, g, b *engine.Slider
}

func NewColor(opts engine.Options) *engine.Operator {
	return engine.NewOperator(ColorDef, opts, func(op *engine.Operator) engine.Kernel {
		return &color{
			op: op,
			r:  engine.NewSlider(op, "red", 1, minComponent, 1, false),
			g:  engine.NewSlider(op, "green", 1, minComponent, 1, false),
			b:  engine.NewSlider(op, "blue", 1, minComponent, 1, false),
		}
	})
}

// quantum maps a component in [2^-16, 1] onto [0, QuantumRange].
func quantum(v float64) uint16 {
	return core.Clamp(math.Round((v - minComponent) * (1 << 16)))
}

func (c *color) Play(w *engine.Worker) {
	photo := core.NewPhoto(c.op.ID(), core.Linear)
	if err := photo.CreateImage(1, 1); err != nil {
		w.SetError(photo, err)
		w.EmitFailure()
		return
	}
	photo.SetTag(core.TagName, "Color")
	px := pixels.NewMatBuffer(photo.Image).MutableRows(0, 1)
	if px == nil {
		photo.Close()
		w.SetError(photo, pixels.ErrUnavailable)
		w.EmitFailure()
		return
	}
	px[0], px[1], px[2] = quantum(c.r.Float()), quantum(c.g.Float()), quantum(c.b.Float())
	w.Push(0, photo)
	w.EmitSuccess()
}
