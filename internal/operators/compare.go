package operators

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/metrics"
)

var CompareDef = engine.Definition{
	Type:    "compare",
	Name:    "Compare",
	Inputs:  []string{"Images", "Reference"},
	Outputs: []string{"Images"},
}

var errNoReference = errors.New("no reference photo")

// compare tags every photo with its quality metrics against the first
// reference photo.
type compare struct {
	evaluator *metrics.Evaluator

	// the operator runs one worker at a time, so one reference suffices
	mu  sync.Mutex
	ref *core.Photo
}

func NewCompare(opts engine.Options) *engine.Operator {
	return engine.NewOperator(CompareDef, opts, func(op *engine.Operator) engine.Kernel {
		return &compare{evaluator: metrics.NewEvaluator()}
	})
}

func (c *compare) AnalyseSources(w *engine.Worker) error {
	refs := w.Input(1)
	if len(refs) == 0 || !refs[0].IsComplete() {
		return errNoReference
	}
	if len(refs) > 1 {
		w.Logger().Warningf("%d reference photos, comparing with %s", len(refs), refs[0].Identity)
	}
	c.mu.Lock()
	c.ref = refs[0]
	c.mu.Unlock()
	return nil
}

func (c *compare) Process(w *engine.Worker, photo *core.Photo, p, n int) (*core.Photo, error) {
	c.mu.Lock()
	ref := c.ref
	c.mu.Unlock()

	res, err := c.evaluator.Compare(w.Context(), w.Kernel(), ref, photo)
	if err != nil {
		return nil, err
	}
	for name, v := range res {
		photo.SetTag(strings.ToUpper(name), strconv.FormatFloat(v, 'f', 4, 64))
	}
	w.Logger().Infof("%s: mse=%.4f psnr=%.2f", photo.Identity, res["mse"], res["psnr"])
	return photo, nil
}
