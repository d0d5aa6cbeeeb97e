package operators

import (
	"errors"
	"fmt"
	"sync/atomic"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/pixels"
)

var FlatFieldDef = engine.Definition{
	Type:    "flat_field",
	Name:    "Flat-Field Correction",
	Inputs:  []string{"Uneven images", "Flat-field"},
	Outputs: []string{"Flattened", "Overflow"},
}

var errSizeMismatch = errors.New("size mismatch")

// subSteps divides the progress of one photo.
const subSteps = 100

// flatField divides every uneven photo by every flat-field, scaled by the
// flat's per-channel maximum. Output 1 marks pixels that overflowed or fell
// on a zero of the flat.
type flatField struct {
	engine.PlayerBase
	outputHDR *engine.Toggle
}

func NewFlatField(opts engine.Options) *engine.Operator {
	return engine.NewOperator(FlatFieldDef, opts, func(op *engine.Operator) engine.Kernel {
		return &flatField{outputHDR: engine.NewToggle(op, "output_hdr", false)}
	})
}

// channelMax returns the linear maximum of each channel of photo.
func channelMax(photo *core.Photo) ([3]float64, error) {
	var m [3]float64
	if !photo.IsComplete() {
		return m, pixels.ErrUnavailable
	}
	buf := pixels.NewMatBuffer(photo.Image)
	px := buf.ConstRows(0, buf.Rows())
	if px == nil {
		return m, pixels.ErrUnavailable
	}
	for i, v := range px {
		m[i%3] = max(m[i%3], float64(v))
	}
	if photo.Scale == core.HDR {
		for c := range m {
			m[c] = core.FromHDR(m[c])
		}
	}
	return m, nil
}

func (f *flatField) Play(w *engine.Worker) {
	uneven, flats := w.Input(0), w.Input(1)
	if len(flats) == 0 {
		for i, photo := range uneven {
			photo.Sequence = i
			w.Push(0, photo)
		}
		w.EmitSuccess()
		return
	}

	maxima := make([][3]float64, len(flats))
	for i, flat := range flats {
		m, err := channelMax(flat)
		if err != nil {
			w.SetError(flat, err)
			w.EmitFailure()
			return
		}
		maxima[i] = m
	}

	hdr := f.outputHDR.Bool()
	n, done := len(uneven)*len(flats), 0
	for fi, flat := range flats {
		for _, photo := range uneven {
			if w.Failed() || w.Aborted() {
				w.EmitFailure()
				return
			}
			out, overflow, err := correct(w, photo, flat, maxima[fi], hdr, done, n)
			if err != nil {
				if !w.Aborted() {
					w.SetError(photo, fmt.Errorf("flat %s: %w", flat.Identity, err))
				}
				w.EmitFailure()
				return
			}
			out.Sequence, overflow.Sequence = done, done
			w.Push(0, out)
			w.Push(1, overflow)
			done++
			if done < n {
				w.EmitSubProgress(done, n, 0, subSteps)
			}
		}
	}
	w.EmitSuccess()
}

// correct returns the flattened copy of photo and its overflow mask.
func correct(w *engine.Worker, photo, flat *core.Photo, m [3]float64, hdr bool, p, c int) (*core.Photo, *core.Photo, error) {
	if !photo.IsComplete() || !flat.IsComplete() {
		return nil, nil, pixels.ErrUnavailable
	}
	width, height := photo.Image.Width(), photo.Image.Height()
	if width != flat.Image.Width() || height != flat.Image.Height() {
		return nil, nil, fmt.Errorf("%w: %dx%d vs flat %dx%d", errSizeMismatch,
			width, height, flat.Image.Width(), flat.Image.Height())
	}

	out := photo.Copy()
	overflow := photo.Copy()
	overflow.Scale = core.Linear
	if hdr {
		out.Scale = core.HDR
	} else {
		out.Scale = core.Linear
	}

	src := pixels.NewMatBuffer(photo.Image)
	ff := pixels.NewMatBuffer(flat.Image)
	dst := pixels.NewMatBuffer(out.Image)
	ovf := pixels.NewMatBuffer(overflow.Image)
	srcHDR, flatHDR := photo.Scale == core.HDR, flat.Scale == core.HDR

	var lines atomic.Int64
	k := w.Kernel()
	k.Sync = func() error { return errors.Join(dst.Sync(), ovf.Sync()) }
	err := k.Run(w.Context(), height, func(y int) error {
		in, fl := src.ConstRows(y, 1), ff.ConstRows(y, 1)
		o, ov := dst.MutableRows(y, 1), ovf.MutableRows(y, 1)
		if in == nil || fl == nil || o == nil || ov == nil {
			return pixels.ErrUnavailable
		}
		for x := 0; x < width; x++ {
			singular, over := false, false
			var v [3]float64
			for ch := 0; ch < 3; ch++ {
				d := float64(fl[3*x+ch])
				if d == 0 {
					d, singular = 1, true
				}
				if flatHDR {
					d = core.FromHDR(d)
				}
				s := float64(in[3*x+ch])
				if srcHDR {
					s = core.FromHDR(s)
				}
				v[ch] = s * m[ch] / d
				over = over || v[ch] > core.QuantumRange
			}
			mark := uint16(0)
			if singular || over {
				mark = core.QuantumRange
			}
			for ch := 0; ch < 3; ch++ {
				ov[3*x+ch] = mark
				if hdr {
					o[3*x+ch] = core.ToHDR(v[ch])
				} else {
					o[3*x+ch] = core.Clamp(v[ch])
				}
			}
		}
		if line := int(lines.Add(1)); line%100 == 0 {
			w.EmitSubProgress(p, c, line*subSteps/height, subSteps)
		}
		return nil
	})
	if err != nil {
		out.Close()
		overflow.Close()
		return nil, nil, err
	}
	return out, overflow, nil
}
