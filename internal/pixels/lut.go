package pixels

import (
	"context"
	"math"

	"photoflow/internal/core"
)

// LUT maps every channel level to a new level.
type LUT []uint16

// NewLUT precomputes f for every level.
func NewLUT(f func(level float64) float64) LUT {
	lut := make(LUT, core.Levels)
	for i := range lut {
		lut[i] = core.Clamp(f(float64(i)))
	}
	return lut
}

// Identity returns the table that leaves every level unchanged.
func Identity() LUT {
	lut := make(LUT, core.Levels)
	for i := range lut {
		lut[i] = uint16(i)
	}
	return lut
}

// Level stretches [black, white] to the full range with a gamma correction.
func Level(black, white, gamma float64) LUT {
	if white <= black {
		white = black + 1
	}
	return NewLUT(func(x float64) float64 {
		v := (x - black) / (white - black)
		if v <= 0 {
			return 0
		}
		if v >= 1 {
			return core.QuantumRange
		}
		return core.QuantumRange * math.Pow(v, 1/gamma)
	})
}

// ApplyOn rewrites buf in place with dest = lut[src] for each channel.
func (lut LUT) ApplyOn(ctx context.Context, k Kernel, buf Buffer) error {
	w := buf.Columns()
	k.Sync = buf.Sync
	return k.Run(ctx, buf.Rows(), func(y int) error {
		px := buf.MutableRows(y, 1)
		if px == nil {
			return ErrUnavailable
		}
		for i := range 3 * w {
			px[i] = lut[px[i]]
		}
		return nil
	})
}
