package operators

import (
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/pixels"
)

var DebayerDef = engine.Definition{
	Type:     "debayer",
	Name:     "Debayer",
	Inputs:   []string{"Images"},
	Outputs:  []string{"Images"},
	Strategy: engine.Parallel,
}

var (
	debayerModes      = []string{"none", "half_size", "simple", "bilinear", "hq_linear", "vng"}
	bayerPatterns     = []string{"rggb", "bggr", "grbg", "gbrg"}
	errMosaicTooSmall = errors.New("mosaic smaller than one 2x2 cell")
)

// cfa locates the red and blue sites of a 2×2 cell; greens sit on the
// other diagonal.
type cfa struct {
	rx, ry, bx, by int
	plain, vng, ea gocv.ColorConversionCode
}

// OpenCV names a pattern by the second row, so RGGB is BayerBG.
var cfas = map[string]cfa{
	"rggb": {0, 0, 1, 1, gocv.ColorBayerBGToRGB, gocv.ColorBayerBGToRGBVNG, gocv.ColorBayerBGToRGBEA},
	"bggr": {1, 1, 0, 0, gocv.ColorBayerRGToRGB, gocv.ColorBayerRGToRGBVNG, gocv.ColorBayerRGToRGBEA},
	"grbg": {1, 0, 0, 1, gocv.ColorBayerGBToRGB, gocv.ColorBayerGBToRGBVNG, gocv.ColorBayerGBToRGBEA},
	"gbrg": {0, 1, 1, 0, gocv.ColorBayerGRToRGB, gocv.ColorBayerGRToRGBVNG, gocv.ColorBayerGRToRGBEA},
}

// debayer reconstructs RGB photos from a color filter array mosaic stored
// in the first channel.
type debayer struct {
	mode    *engine.DropDown
	pattern *engine.DropDown
}

func NewDebayer(opts engine.Options) *engine.Operator {
	return engine.NewOperator(DebayerDef, opts, func(op *engine.Operator) engine.Kernel {
		return &debayer{
			mode:    engine.NewDropDown(op, "mode", debayerModes, 3),
			pattern: engine.NewDropDown(op, "pattern", bayerPatterns, 0),
		}
	})
}

func (d *debayer) Process(w *engine.Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	mode := d.mode.Selected()
	if mode == "none" {
		return photo, nil
	}
	if photo.Image.Width() < 2 || photo.Image.Height() < 2 {
		return nil, fmt.Errorf("debayer: %w", errMosaicTooSmall)
	}
	pat := cfas[d.pattern.Selected()]

	var err error
	switch mode {
	case "half_size":
		err = d.cells(w, photo, pat, true)
	case "simple":
		err = d.cells(w, photo, pat, false)
	default:
		err = d.demosaic(w, photo, pat, mode)
	}
	if err != nil {
		return nil, fmt.Errorf("debayer %s: %w", mode, err)
	}
	photo.SetTag(core.TagTreatment, "debayer "+mode)
	return photo, nil
}

// cells gives each 2×2 cell its red, mean green and blue. Half size makes a
// cell one pixel; otherwise the cell color fills all four pixels.
func (d *debayer) cells(w *engine.Worker, photo *core.Photo, pat cfa, half bool) error {
	width, height := photo.Image.Width(), photo.Image.Height()
	cw, ch := width/2, height/2
	ow, oh := width, height
	if half {
		ow, oh = cw, ch
	}
	img, err := core.NewImage(ow, oh)
	if err != nil {
		return err
	}
	src := pixels.NewMatBuffer(photo.Image)
	dst := pixels.NewMatBuffer(img)
	stride := 3 * width

	k := w.Kernel()
	k.Sync = dst.Sync
	err = k.Run(w.Context(), oh, func(y int) error {
		cy := y
		if !half {
			cy = min(y/2, ch-1)
		}
		in := src.ConstRows(2*cy, 2)
		out := dst.MutableRows(y, 1)
		if in == nil || out == nil {
			return pixels.ErrUnavailable
		}
		at := func(x, y int) uint16 { return in[y*stride+3*x] }
		for x := 0; x < ow; x++ {
			cx := x
			if !half {
				cx = min(x/2, cw-1)
			}
			x0 := 2 * cx
			r := at(x0+pat.rx, pat.ry)
			b := at(x0+pat.bx, pat.by)
			g := (uint32(at(x0+pat.rx, pat.by)) + uint32(at(x0+pat.bx, pat.ry)) + 1) / 2
			out[3*x], out[3*x+1], out[3*x+2] = r, uint16(g), b
		}
		return nil
	})
	if err != nil {
		img.Close()
		return err
	}
	photo.Image.Close()
	photo.Image = img
	return nil
}

// demosaic interpolates the missing colors with OpenCV. VNG only exists for
// 8-bit data, so it runs on a reduced copy.
func (d *debayer) demosaic(w *engine.Worker, photo *core.Photo, pat cfa, mode string) error {
	width, height := photo.Image.Width(), photo.Image.Height()
	mono := gocv.NewMatWithSize(height, width, gocv.MatTypeCV16UC1)
	defer mono.Close()
	plane, err := mono.DataPtrUint16()
	if err != nil {
		return err
	}
	src := pixels.NewMatBuffer(photo.Image)
	err = w.Kernel().Run(w.Context(), height, func(y int) error {
		in := src.ConstRows(y, 1)
		if in == nil {
			return pixels.ErrUnavailable
		}
		row := plane[y*width : (y+1)*width]
		for x := range row {
			row[x] = in[3*x]
		}
		return nil
	})
	if err != nil {
		return err
	}

	dst := gocv.NewMat()
	switch mode {
	case "vng":
		m8 := gocv.NewMat()
		defer m8.Close()
		rgb8 := gocv.NewMat()
		defer rgb8.Close()
		if err := mono.ConvertToWithParams(&m8, gocv.MatTypeCV8UC1, 1./257, 0); err != nil {
			dst.Close()
			return err
		}
		if err := gocv.CvtColor(m8, &rgb8, pat.vng); err != nil {
			dst.Close()
			return err
		}
		if err := rgb8.ConvertToWithParams(&dst, core.ImageType, 257, 0); err != nil {
			dst.Close()
			return err
		}
	case "hq_linear":
		if err := gocv.CvtColor(mono, &dst, pat.ea); err != nil {
			dst.Close()
			return err
		}
	default:
		if err := gocv.CvtColor(mono, &dst, pat.plain); err != nil {
			dst.Close()
			return err
		}
	}
	if err := photo.Image.Replace(dst); err != nil {
		dst.Close()
		return err
	}
	return nil
}
