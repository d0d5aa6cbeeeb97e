package operators

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/pixels"
)

func TestFlatField(t *testing.T) {
	h := newHarness(t)
	uneven := solid(t, "uneven", 2, 2, [3]uint16{1000, 2000, 3000})
	flat := solid(t, "flat", 2, 2, [3]uint16{500, 1000, 1500})
	// a dark corner in the flat doubles the correction there
	pixels.NewMatBuffer(flat.Image).MutableRows(1, 1)[3] = 250
	// and a dead pixel is a singularity
	pixels.NewMatBuffer(flat.Image).MutableRows(0, 1)[4] = 0

	op := h.make("flat_field", nil, h.feed(uneven), h.feed(flat))
	require.NoError(t, h.run(op))

	out := h.result(op, 0)
	overflow := h.result(op, 1)
	require.Len(t, out, 1)
	require.Len(t, overflow, 1)
	assert.Equal(t, "uneven", out[0].Identity)
	assert.Equal(t, core.Linear, out[0].Scale)

	px := values(t, out[0])
	assert.Equal(t, []uint16{1000, 2000, 3000}, px[0:3])
	assert.Equal(t, uint16(2000), px[9])
	// dead pixel: divided by one
	assert.Equal(t, uint16(core.QuantumRange), px[4])

	mask := values(t, overflow[0])
	assert.Equal(t, []uint16{0, 0, 0}, mask[0:3])
	assert.Equal(t, []uint16{core.QuantumRange, core.QuantumRange, core.QuantumRange}, mask[3:6])
	assert.Equal(t, []uint16{0, 0, 0}, mask[9:12])
}

func TestFlatFieldEveryPairAndHDR(t *testing.T) {
	h := newHarness(t)
	a := solid(t, "a", 2, 2, [3]uint16{100, 100, 100})
	b := solid(t, "b", 2, 2, [3]uint16{200, 200, 200})
	flats := []*core.Photo{
		solid(t, "f1", 2, 2, [3]uint16{10, 10, 10}),
		solid(t, "f2", 2, 2, [3]uint16{20, 20, 20}),
	}
	op := h.make("flat_field", map[string]cty.Value{"output_hdr": cty.True}, h.feed(a, b), h.feed(flats...))
	require.NoError(t, op.SetOutputStatus(1, engine.Disabled))

	require.NoError(t, h.run(op))
	out := h.result(op, 0)
	assert.Equal(t, []string{"a", "b", "a", "b"}, identities(out))
	assert.Equal(t, core.HDR, out[0].Scale)
	assert.Equal(t, core.ToHDR(100), values(t, out[0])[0])
	assert.Empty(t, h.result(op, 1))
}

func TestFlatFieldWithoutFlatPassesThrough(t *testing.T) {
	h := newHarness(t)
	in := solid(t, "a", 2, 2, [3]uint16{7, 8, 9})
	op := h.make("flat_field", nil, h.feed(in), h.feed())

	require.NoError(t, h.run(op))
	out := h.result(op, 0)
	require.Len(t, out, 1)
	assert.Equal(t, values(t, in), values(t, out[0]))
	assert.Empty(t, h.result(op, 1))
}

func TestFlatFieldSizeMismatch(t *testing.T) {
	h := newHarness(t)
	op := h.make("flat_field", nil,
		h.feed(solid(t, "a", 2, 2, [3]uint16{1, 1, 1})),
		h.feed(solid(t, "f", 3, 2, [3]uint16{1, 1, 1})))
	var failed []string
	op.Subscribe(engine.Listener{OnError: func(_ *engine.Operator, identity string, _ error) {
		failed = append(failed, identity)
	}})

	err := h.run(op)
	assert.ErrorIs(t, err, errSizeMismatch)
	assert.ErrorContains(t, err, "flat f")
	assert.Equal(t, []string{"a"}, failed)
	logged := 0
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && strings.Contains(e.Message, "a: flat f") {
			logged++
		}
	}
	assert.Equal(t, 1, logged)
}

func TestCompare(t *testing.T) {
	h := newHarness(t)
	ref := solid(t, "ref", 3, 3, [3]uint16{1000, 1000, 1000})
	same := solid(t, "same", 3, 3, [3]uint16{1000, 1000, 1000})
	off := solid(t, "off", 3, 3, [3]uint16{1010, 990, 1000})
	op := h.make("compare", nil, h.feed(same, off), h.feed(ref))

	require.NoError(t, h.run(op))
	out := h.result(op, 0)
	require.Len(t, out, 2)
	assert.Equal(t, "100.0000", out[0].Tag("PSNR"))
	assert.Equal(t, "0.0000", out[0].Tag("MSE"))
	assert.Equal(t, "66.6667", out[1].Tag("MSE"))
	assert.Equal(t, "6.6667", out[1].Tag("MAE"))
}

func TestCompareWithoutReferenceFails(t *testing.T) {
	h := newHarness(t)
	op := h.make("compare", nil, h.feed(solid(t, "a", 1, 1, [3]uint16{})), h.feed())
	assert.ErrorIs(t, h.run(op), errNoReference)
}

func TestSave(t *testing.T) {
	h := newHarness(t)
	dir := filepath.Join(t.TempDir(), "out")
	a := solid(t, "/in/shot.tif", 2, 2, [3]uint16{1, 2, 3})
	b := solid(t, "/other/shot.tif", 2, 2, [3]uint16{4, 5, 6})
	op := h.make("save", map[string]cty.Value{
		"directory": cty.StringVal(dir),
		"format":    cty.StringVal("png"),
	}, h.feed(a, b))

	require.NoError(t, h.run(op))
	out := h.result(op, 0)
	require.Len(t, out, 2)
	assert.Equal(t, filepath.Join(dir, "shot.png"), out[0].Tag(core.TagFilename))
	assert.Equal(t, filepath.Join(dir, "shot-1.png"), out[1].Tag(core.TagFilename))
	for _, p := range out {
		_, err := os.Stat(p.Tag(core.TagFilename))
		assert.NoError(t, err)
	}
	assert.Equal(t, values(t, b), values(t, out[1]))
}

func TestSaveUnwritableDirectoryFails(t *testing.T) {
	h := newHarness(t)
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	op := h.make("save", map[string]cty.Value{"directory": cty.StringVal(filepath.Join(file, "sub"))},
		h.feed(solid(t, "a", 1, 1, [3]uint16{})))

	assert.ErrorContains(t, h.run(op), "failed to create output directory")
}
