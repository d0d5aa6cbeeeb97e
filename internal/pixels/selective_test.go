package pixels

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoflow/internal/core"
)

// chroma returns a,b of the given Lab hue angle in degrees.
func chroma(hue float64) (a, b float64) {
	r := hue * math.Pi / 180
	return 50 * math.Cos(r), 50 * math.Sin(r)
}

func TestSelectionWeight(t *testing.T) {
	s := NewSelection(120, 60)
	a, b := chroma(120)
	assert.InDelta(t, 1, s.Weight(Angle(a, b)), 1e-9)

	// half the coverage away from the target
	a, b = chroma(150)
	assert.InDelta(t, .5, s.Weight(Angle(a, b)), 1e-9)
	a, b = chroma(90)
	assert.InDelta(t, .5, s.Weight(Angle(a, b)), 1e-9)

	a, b = chroma(300)
	assert.InDelta(t, 0, s.Weight(Angle(a, b)), 1e-9)
}

func TestSelectionBoundaries(t *testing.T) {
	for hue := 0.; hue < 360; hue += 15 {
		a, b := chroma(hue)
		assert.Zero(t, NewSelection(40, 0).Weight(Angle(a, b)))
		assert.Equal(t, 1., NewSelection(40, 360).Weight(Angle(a, b)))
	}
}

func TestSelectiveWeightsInversion(t *testing.T) {
	a, b := chroma(200)

	sat, val := SelectiveLab{Hue: 10, Coverage: 0, InsideSelection: true}.Weights(a, b)
	assert.Zero(t, sat)
	assert.Zero(t, val)

	// outside of an empty selection covers the whole image
	_, val = SelectiveLab{Hue: 10, Coverage: 0}.Weights(a, b)
	assert.Equal(t, 1., val)

	for hue := 0.; hue < 360; hue += 30 {
		a, b := chroma(hue)
		s1, v1 := SelectiveLab{Hue: 60, Coverage: -90, InsideSelection: true}.Weights(a, b)
		s2, v2 := SelectiveLab{Hue: 60, Coverage: 90, OutsideSaturation: true}.Weights(a, b)
		assert.InDelta(t, s2, s1, 1e-12)
		assert.InDelta(t, v2, v1, 1e-12)
	}
}

func gradient(rows, cols int) *memBuffer {
	buf := newMemBuffer(rows, cols)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			i := 3 * (y*cols + x)
			buf.data[i] = uint16(x * core.QuantumRange / cols)
			buf.data[i+1] = uint16(y * core.QuantumRange / rows)
			buf.data[i+2] = uint16((x + y) * core.QuantumRange / (rows + cols))
		}
	}
	return buf
}

func TestSelectiveLabNegativeCoverage(t *testing.T) {
	ctx := context.Background()
	src := gradient(12, 12)

	neg := newMemBuffer(12, 12)
	f := SelectiveLab{Hue: 30, Coverage: -100, Saturation: 1.6, Exposure: 1.3, InsideSelection: true}
	require.NoError(t, f.ApplyOn(ctx, Kernel{Threads: 3}, src, neg, false))

	pos := newMemBuffer(12, 12)
	g := SelectiveLab{Hue: 30, Coverage: 100, Saturation: 1.6, Exposure: 1.3, OutsideSaturation: true}
	require.NoError(t, g.ApplyOn(ctx, Kernel{Threads: 3}, src, pos, false))

	assert.Equal(t, pos.data, neg.data)
}

func TestSelectiveLabNeutralSettings(t *testing.T) {
	src := gradient(8, 8)
	dst := newMemBuffer(8, 8)
	f := SelectiveLab{Hue: 200, Coverage: 0, Saturation: 3, Exposure: 4, InsideSelection: true}
	require.NoError(t, f.ApplyOn(context.Background(), Kernel{Threads: 2}, src, dst, false))

	for i := range src.data {
		assert.InDelta(t, float64(src.data[i]), float64(dst.data[i]), 2, "channel %d", i)
	}
}

func TestSelectiveLabStrictDesaturatesOutside(t *testing.T) {
	src := newMemBuffer(1, 1)
	// saturated blue, far from a red selection
	copy(src.data, []uint16{2000, 3000, 40000})
	dst := newMemBuffer(1, 1)
	f := SelectiveLab{Hue: 40, Coverage: 30, Saturation: 1, Strict: true, Exposure: 1, InsideSelection: true}
	require.NoError(t, f.ApplyOn(context.Background(), Kernel{Threads: 1}, src, dst, false))

	px := dst.data
	assert.InDelta(t, float64(px[0]), float64(px[1]), 40)
	assert.InDelta(t, float64(px[1]), float64(px[2]), 40)
}

func TestSelectiveLabUnavailableSource(t *testing.T) {
	src := gradient(4, 4)
	src.broken = map[int]bool{2: true}
	dst := newMemBuffer(4, 4)
	err := SelectiveLab{Coverage: 90, Exposure: 1}.ApplyOn(context.Background(), Kernel{Threads: 1}, src, dst, true)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestLabRoundTrip(t *testing.T) {
	for _, rgb := range [][3]float64{
		{0, 0, 0},
		{65535, 65535, 65535},
		{65535, 0, 0},
		{1200, 30000, 64000},
		{10, 20, 30},
	} {
		back := LabToRGB(RGBToLab(rgb))
		for c := range rgb {
			assert.InDelta(t, rgb[c], back[c], 0.5, "%v", rgb)
		}
	}
	white := RGBToLab([3]float64{65535, 65535, 65535})
	assert.InDelta(t, 100, white[0], 1e-3)
	assert.InDelta(t, 0, white[1], 1e-2)
	assert.InDelta(t, 0, white[2], 1e-2)

	for _, l := range []float64{0, 5, 8, 50, 100} {
		assert.InDelta(t, l, LabGammaize(LabLinearize(l)), 1e-9)
	}
}
