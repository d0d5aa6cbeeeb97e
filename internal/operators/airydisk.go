package operators

import (
	"math"
	"sync"
	"sync/atomic"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/pixels"
)

var AiryDiskDef = engine.Definition{
	Type:    "airy_disk",
	Name:    "Airy Disk",
	Outputs: []string{"Airy Disk"},
}

// wavelengths of the R, G and B channels, in meters
var wavelengths = [3]float64{612e-9, 549e-9, 450e-9}

// airyDisk renders the diffraction pattern of a circular aperture.
type airyDisk struct {
	engine.PlayerBase
	op        *engine.Operator
	diameter  *engine.Slider // mm
	focal     *engine.Slider // mm
	pixelSize *engine.Slider // µm
	offset    *engine.Slider // fraction of pixel
	width     *engine.Slider
	precision *engine.Slider
	outputHDR *engine.Toggle
}

func NewAiryDisk(opts engine.Options) *engine.Operator {
	return engine.NewOperator(AiryDiskDef, opts, func(op *engine.Operator) engine.Kernel {
		return &airyDisk{
			op:        op,
			diameter:  engine.NewSlider(op, "diameter", 200, 1, 10000, false),
			focal:     engine.NewSlider(op, "focal", 2000, 1, 100000, false),
			pixelSize: engine.NewSlider(op, "pixel_size", 8.45, 0.001, 100, false),
			offset:    engine.NewSlider(op, "offset", 0.5, 0, 1, false),
			width:     engine.NewSlider(op, "width", 512, 0, 65535, true),
			precision: engine.NewSlider(op, "precision", 5, 1, 200, true),
			outputHDR: engine.NewToggle(op, "output_hdr", true),
		}
	})
}

// intensity returns the normalized Airy intensity at x = D sinθ / λ.
func intensity(x float64) float64 {
	if x == 0 {
		return 1
	}
	v := 2 * math.J1(math.Pi*x) / (math.Pi * x)
	return v * v
}

func (a *airyDisk) Play(w *engine.Worker) {
	var (
		diam   = a.diameter.Float() / 1000
		f      = a.focal.Float() / 1000
		pixSz  = a.pixelSize.Float() / 1e6
		offset = a.offset.Float()
		prec   = a.precision.Int()
		hdr    = a.outputHDR.Bool()
		size   = a.width.Int()
	)

	photo := core.NewPhoto(a.op.ID(), core.Linear)
	if err := photo.CreateImage(size, size); err != nil {
		w.SetError(photo, err)
		w.EmitFailure()
		return
	}
	h, sq := size, float64(prec*prec)
	values := make([]float64, 3*size*h)

	// first phase: integrate each pixel over prec² sub-samples
	var (
		rows    atomic.Int64
		mu      sync.Mutex
		maximum float64
	)
	err := w.Kernel().Run(w.Context(), h, func(y int) error {
		rowMax := 0.
		for x := 0; x < size; x++ {
			var rgb [3]float64
			for jy := 0; jy < prec; jy++ {
				for jx := 0; jx < prec; jx++ {
					dx := float64(x) + float64(jx)/float64(prec) + offset - float64(size)/2
					dy := float64(y) + float64(jy)/float64(prec) + offset - float64(h)/2
					sinTheta := pixSz * math.Hypot(dx, dy) / f
					for c := range rgb {
						rgb[c] += core.QuantumRange * intensity(diam*sinTheta/wavelengths[c])
					}
				}
			}
			for c := range rgb {
				rgb[c] /= sq
				values[3*(y*size+x)+c] = rgb[c]
				rowMax = max(rowMax, rgb[c])
			}
		}
		mu.Lock()
		maximum = max(maximum, rowMax)
		mu.Unlock()
		w.EmitProgress(int(rows.Add(1))/2, h)
		return nil
	})
	if err != nil {
		a.fail(w, photo, err)
		return
	}

	// second phase: normalize the peak to the quantum range
	cor := 0.
	if maximum > 0 {
		cor = core.QuantumRange / maximum
	}
	buf := pixels.NewMatBuffer(photo.Image)
	k := w.Kernel()
	k.Sync = buf.Sync
	rows.Store(0)
	err = k.Run(w.Context(), h, func(y int) error {
		px := buf.MutableRows(y, 1)
		if px == nil {
			return pixels.ErrUnavailable
		}
		for i := range px {
			v := cor * values[3*y*size+i]
			if hdr {
				px[i] = core.ToHDR(v)
			} else {
				px[i] = core.Clamp(v)
			}
		}
		w.EmitProgress(h/2+int(rows.Add(1))/2, h)
		return nil
	})
	if err != nil {
		a.fail(w, photo, err)
		return
	}

	photo.SetTag(core.TagName, "Airy Disk")
	if hdr {
		photo.Scale = core.HDR
	}
	w.Push(0, photo)
	w.EmitSuccess()
}

func (a *airyDisk) fail(w *engine.Worker, photo *core.Photo, err error) {
	if !w.Aborted() {
		w.SetError(photo, err)
	}
	photo.Close()
	w.EmitFailure()
}
