package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func newParamOwner(t *testing.T) *Operator {
	base, _ := newLogger()
	op := NewOperator(sourceDef, Options{Logger: base}, func(*Operator) Kernel { return &generator{} })
	t.Cleanup(op.Close)
	require.NoError(t, wait(t, op))
	return op
}

func TestSlider(t *testing.T) {
	op := newParamOwner(t)
	s := NewSlider(op, "radius", 3, 1, 10, true)
	assert.Same(t, Parameter(s), op.Parameter("radius"))

	require.NoError(t, s.Set(cty.NumberFloatVal(4.4)))
	assert.Equal(t, 4, s.Int())
	assert.True(t, op.OutOfDate())
	assert.True(t, s.Value().RawEquals(cty.NumberFloatVal(4)))

	require.NoError(t, s.Set(cty.StringVal("7")))
	assert.Equal(t, 7., s.Float())

	assert.Error(t, s.Set(cty.NumberIntVal(11)))
	assert.Error(t, s.Set(cty.StringVal("wide")))
	assert.Error(t, s.Set(cty.NullVal(cty.Number)))
	assert.Error(t, s.Set(cty.UnknownVal(cty.Number)))
	assert.Equal(t, 7., s.Float())
}

func TestToggleAndDropDown(t *testing.T) {
	op := newParamOwner(t)
	tg := NewToggle(op, "hdr", false)
	dd := NewDropDown(op, "curve", []string{"srgb", "bt709", "lab"}, 0)

	require.NoError(t, tg.Set(cty.True))
	assert.True(t, tg.Bool())
	assert.Equal(t, cty.True, tg.Value())

	require.NoError(t, dd.Set(cty.StringVal("lab")))
	assert.Equal(t, 2, dd.Index())
	require.NoError(t, dd.Set(cty.NumberIntVal(1)))
	assert.Equal(t, "bt709", dd.Selected())
	assert.Equal(t, cty.StringVal("bt709"), dd.Value())
	assert.ErrorContains(t, dd.Set(cty.StringVal("rec2020")), "srgb, bt709, lab")
	assert.Error(t, dd.Set(cty.NumberIntVal(3)))
	assert.Equal(t, 1, dd.Index())

	require.NoError(t, op.SetParameter("hdr", cty.False))
	assert.Error(t, op.SetParameter("missing", cty.False))
	assert.Len(t, op.Parameters(), 2)
}

func TestStrings(t *testing.T) {
	op := newParamOwner(t)
	s := NewStrings(op, "files")
	assert.Equal(t, cty.ListValEmpty(cty.String), s.Value())

	files := cty.TupleVal([]cty.Value{cty.StringVal("a.tif"), cty.StringVal("b.tif")})
	require.NoError(t, s.Set(files))
	assert.Equal(t, []string{"a.tif", "b.tif"}, s.Strings())
	assert.True(t, op.OutOfDate())
	assert.Error(t, s.Set(cty.StringVal("a.tif")))
}

func TestSelectiveLabParameter(t *testing.T) {
	op := newParamOwner(t)
	s := NewSelectiveLabParameter(op, "selection", Selection{Hue: 30, Coverage: 60})

	require.NoError(t, s.Set(cty.ObjectVal(map[string]cty.Value{
		"coverage": cty.NumberIntVal(-90),
	})))
	assert.Equal(t, Selection{Hue: 30, Coverage: -90}, s.Selection())
	assert.True(t, op.OutOfDate())

	require.NoError(t, s.Set(cty.ObjectVal(map[string]cty.Value{
		"hue":    cty.NumberIntVal(200),
		"strict": cty.True,
	})))
	assert.Equal(t, Selection{Hue: 200, Coverage: -90, Strict: true}, s.Selection())
	assert.True(t, s.Value().GetAttr("strict").True())

	assert.Error(t, s.Set(cty.ObjectVal(map[string]cty.Value{"coverage": cty.NumberIntVal(400)})))
	assert.Error(t, s.Set(cty.ObjectVal(map[string]cty.Value{"hue": cty.NumberFloatVal(1.5)})))
	assert.Error(t, s.Set(cty.StringVal("red")))
	assert.Equal(t, Selection{Hue: 200, Coverage: -90, Strict: true}, s.Selection())
}

func TestText(t *testing.T) {
	op := newParamOwner(t)
	txt := NewText(op, "directory", "out")

	require.NoError(t, txt.Set(cty.StringVal("out")))
	assert.False(t, op.OutOfDate())

	require.NoError(t, txt.Set(cty.StringVal("/tmp/run")))
	assert.Equal(t, "/tmp/run", txt.Text())
	assert.True(t, op.OutOfDate())
	assert.Error(t, txt.Set(cty.ListValEmpty(cty.String)))
}
