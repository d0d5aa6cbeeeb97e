package operators

import (
	"context"
	"slices"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/pixels"
	"photoflow/internal/process"
)

var feedDef = engine.Definition{Type: "feed", Name: "Feed", Outputs: []string{"Images"}}

// feeder publishes copies of fixed photos.
type feeder struct {
	engine.PlayerBase
	photos []*core.Photo
}

func (f *feeder) Play(w *engine.Worker) {
	for i, p := range f.photos {
		c := p.Copy()
		c.Sequence = i
		w.Push(0, c)
	}
	w.EmitSuccess()
}

type harness struct {
	t    *testing.T
	base *logrus.Logger
	hook *test.Hook
	proc *process.Process
}

func newHarness(t *testing.T) *harness {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	proc := process.New(base)
	t.Cleanup(proc.Close)
	return &harness{t: t, base: base, hook: hook, proc: proc}
}

func (h *harness) opts() engine.Options {
	return engine.Options{Logger: h.base, Threads: 3}
}

// feed adds a source publishing photos.
func (h *harness) feed(photos ...*core.Photo) *engine.Operator {
	op := engine.NewOperator(feedDef, h.opts(), func(*engine.Operator) engine.Kernel {
		return &feeder{photos: photos}
	})
	h.proc.Add(op)
	return op
}

// make creates an operator of typ with the given parameters, fed by srcs on
// its inputs in order.
func (h *harness) make(typ string, params map[string]cty.Value, srcs ...*engine.Operator) *engine.Operator {
	h.t.Helper()
	op, err := New(typ, h.opts())
	require.NoError(h.t, err)
	h.proc.Add(op)
	for name, v := range params {
		require.NoError(h.t, op.SetParameter(name, v), name)
	}
	for i, src := range srcs {
		require.NoError(h.t, h.proc.Connect(src, 0, op, i))
	}
	return op
}

func (h *harness) run(op *engine.Operator) error {
	h.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return h.proc.Run(ctx, op)
}

// result returns a copy of output idx of op, released at cleanup.
func (h *harness) result(op *engine.Operator, idx int) []*core.Photo {
	photos := op.Output(idx).Result()
	h.t.Cleanup(func() {
		for _, p := range photos {
			p.Close()
		}
	})
	return photos
}

// solid returns a w×h photo filled with rgb.
func solid(t *testing.T, id string, w, h int, rgb [3]uint16) *core.Photo {
	t.Helper()
	p := core.NewPhoto(id, core.Linear)
	require.NoError(t, p.CreateImage(w, h))
	t.Cleanup(p.Close)
	px := pixels.NewMatBuffer(p.Image).MutableRows(0, h)
	require.NotNil(t, px)
	for i := range px {
		px[i] = rgb[i%3]
	}
	return p
}

// ramp returns a w×h photo whose channel values grow by step.
func ramp(t *testing.T, id string, w, h int, step uint16) *core.Photo {
	t.Helper()
	p := solid(t, id, w, h, [3]uint16{})
	px := pixels.NewMatBuffer(p.Image).MutableRows(0, h)
	for i := range px {
		px[i] = uint16(i) * step
	}
	return p
}

// values copies the channel values of photo.
func values(t *testing.T, photo *core.Photo) []uint16 {
	t.Helper()
	require.True(t, photo.IsComplete())
	px := pixels.NewMatBuffer(photo.Image).ConstRows(0, photo.Image.Height())
	require.NotNil(t, px)
	return slices.Clone(px)
}
