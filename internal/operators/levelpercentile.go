package operators

import (
	"sync/atomic"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/pixels"
)

var LevelPercentileDef = engine.Definition{
	Type:    "level_percentile",
	Name:    "Level Percentile",
	Inputs:  []string{"Images"},
	Outputs: []string{"Images"},
}

// levelPercentile stretches the levels between two percentiles of the
// channel histogram.
type levelPercentile struct {
	black *engine.Slider
	white *engine.Slider
	gamma *engine.Slider
}

func NewLevelPercentile(opts engine.Options) *engine.Operator {
	return engine.NewOperator(LevelPercentileDef, opts, func(op *engine.Operator) engine.Kernel {
		return &levelPercentile{
			black: engine.NewSlider(op, "black_point", 0.05, 0, 1, false),
			white: engine.NewSlider(op, "white_point", 0.95, 0, 1, false),
			gamma: engine.NewSlider(op, "gamma", 1, 0.01, 10, false),
		}
	})
}

// Points returns the levels below which black of the channel values lie,
// and above which 1-white lie.
func Points(hist []int64, total int64, black, white float64) (bp, wp int) {
	percWP := (1 - white) * float64(total)
	percBP := black * float64(total)

	var sum int64
	for i := len(hist) - 1; i >= 0; i-- {
		sum += hist[i]
		if float64(sum) >= percWP {
			wp = i
			break
		}
	}
	sum = 0
	for i := range hist {
		sum += hist[i]
		if float64(sum) >= percBP {
			bp = i
			break
		}
	}
	return bp, wp
}

// histogram counts every channel value of buf.
func histogram(w *engine.Worker, buf pixels.Buffer) ([]int64, error) {
	counts := make([]atomic.Int64, core.Levels)
	cols := buf.Columns()
	err := w.Kernel().Run(w.Context(), buf.Rows(), func(y int) error {
		px := buf.ConstRows(y, 1)
		if px == nil {
			return pixels.ErrUnavailable
		}
		for i := range 3 * cols {
			counts[px[i]].Add(1)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	hist := make([]int64, core.Levels)
	for i := range counts {
		hist[i] = counts[i].Load()
	}
	return hist, nil
}

func (l *levelPercentile) Process(w *engine.Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	buf := pixels.NewMatBuffer(photo.Image)
	hist, err := histogram(w, buf)
	if err != nil {
		return nil, err
	}
	bp, wp := Points(hist, int64(3*buf.Columns()*buf.Rows()), l.black.Float(), l.white.Float())
	w.Logger().Debugf("%s: bp=%d, wp=%d", photo.Identity, bp, wp)

	if err := pixels.Level(float64(bp), float64(wp), l.gamma.Float()).ApplyOn(w.Context(), w.Kernel(), buf); err != nil {
		return nil, err
	}
	return photo, nil
}
