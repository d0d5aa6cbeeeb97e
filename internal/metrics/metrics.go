// Quality metrics between two photos of the same size
package metrics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"photoflow/internal/core"
	"photoflow/internal/pixels"
)

// MaxPSNR caps the PSNR of identical images.
const MaxPSNR = 100.

var ErrSizeMismatch = errors.New("dimension mismatch")

// Metric compares a processed buffer to a reference.
type Metric interface {
	Calculate(ctx context.Context, k pixels.Kernel, original, processed pixels.Buffer) (float64, error)
	Name() string
	Description() string
	Range() (float64, float64)
	HigherIsBetter() bool
}

// Evaluator manages and calculates multiple metrics.
type Evaluator struct {
	mu      sync.RWMutex
	metrics map[string]Metric
}

// NewEvaluator returns an evaluator with MSE, MAE and PSNR registered.
func NewEvaluator() *Evaluator {
	e := &Evaluator{metrics: make(map[string]Metric)}
	e.Register("mse", MSE{})
	e.Register("mae", MAE{})
	e.Register("psnr", PSNR{})
	return e
}

func (e *Evaluator) Register(name string, m Metric) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.metrics[name] = m
}

// Names returns the registered metric names, sorted.
func (e *Evaluator) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	names := make([]string, 0, len(e.metrics))
	for n := range e.metrics {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func (e *Evaluator) Calculate(ctx context.Context, k pixels.Kernel, name string, original, processed pixels.Buffer) (float64, error) {
	e.mu.RLock()
	m, ok := e.metrics[name]
	e.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("metric not found: %s", name)
	}
	return m.Calculate(ctx, k, original, processed)
}

// CalculateAll calculates every registered metric. The first failure is
// returned along with the values computed so far.
func (e *Evaluator) CalculateAll(ctx context.Context, k pixels.Kernel, original, processed pixels.Buffer) (map[string]float64, error) {
	results := make(map[string]float64)
	for _, name := range e.Names() {
		v, err := e.Calculate(ctx, k, name, original, processed)
		if err != nil {
			return results, fmt.Errorf("%s: %w", name, err)
		}
		results[name] = v
	}
	return results, nil
}

// Compare calculates every registered metric between two photos.
func (e *Evaluator) Compare(ctx context.Context, k pixels.Kernel, original, processed *core.Photo) (map[string]float64, error) {
	if !original.IsComplete() || !processed.IsComplete() {
		return nil, errors.New("empty images")
	}
	return e.CalculateAll(ctx, k, pixels.NewMatBuffer(original.Image), pixels.NewMatBuffer(processed.Image))
}

// accumulate sums f over every channel pair of the two buffers.
func accumulate(ctx context.Context, k pixels.Kernel, a, b pixels.Buffer, f func(x, y float64) float64) (sum float64, n int, err error) {
	if a.Rows() != b.Rows() || a.Columns() != b.Columns() {
		return 0, 0, fmt.Errorf("%w: %dx%d vs %dx%d", ErrSizeMismatch, a.Columns(), a.Rows(), b.Columns(), b.Rows())
	}
	w := a.Columns()
	var mu sync.Mutex
	err = k.Run(ctx, a.Rows(), func(y int) error {
		pa, pb := a.ConstRows(y, 1), b.ConstRows(y, 1)
		if pa == nil || pb == nil {
			return pixels.ErrUnavailable
		}
		var row float64
		for i := range 3 * w {
			row += f(float64(pa[i]), float64(pb[i]))
		}
		mu.Lock()
		sum += row
		mu.Unlock()
		return nil
	})
	return sum, 3 * w * a.Rows(), err
}

// MSE is the mean squared channel difference.
type MSE struct{}

func (MSE) Calculate(ctx context.Context, k pixels.Kernel, original, processed pixels.Buffer) (float64, error) {
	sum, n, err := accumulate(ctx, k, original, processed, func(x, y float64) float64 {
		return (x - y) * (x - y)
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("empty images")
	}
	return sum / float64(n), nil
}

func (MSE) Name() string              { return "MSE" }
func (MSE) Description() string       { return "Mean Squared Error" }
func (MSE) Range() (float64, float64) { return 0, core.QuantumRange * core.QuantumRange }
func (MSE) HigherIsBetter() bool      { return false }

// MAE is the mean absolute channel difference.
type MAE struct{}

func (MAE) Calculate(ctx context.Context, k pixels.Kernel, original, processed pixels.Buffer) (float64, error) {
	sum, n, err := accumulate(ctx, k, original, processed, func(x, y float64) float64 {
		return math.Abs(x - y)
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, errors.New("empty images")
	}
	return sum / float64(n), nil
}

func (MAE) Name() string              { return "MAE" }
func (MAE) Description() string       { return "Mean Absolute Error" }
func (MAE) Range() (float64, float64) { return 0, core.QuantumRange }
func (MAE) HigherIsBetter() bool      { return false }

// PSNR is the peak signal to noise ratio in dB, against the quantum range.
type PSNR struct{}

func (PSNR) Calculate(ctx context.Context, k pixels.Kernel, original, processed pixels.Buffer) (float64, error) {
	mse, err := MSE{}.Calculate(ctx, k, original, processed)
	if err != nil {
		return 0, err
	}
	return FromMSE(mse), nil
}

func (PSNR) Name() string              { return "PSNR" }
func (PSNR) Description() string       { return "Peak Signal-to-Noise Ratio" }
func (PSNR) Range() (float64, float64) { return 0, MaxPSNR }
func (PSNR) HigherIsBetter() bool      { return true }

// FromMSE converts a mean squared error to PSNR, capped at MaxPSNR.
func FromMSE(mse float64) float64 {
	if mse <= 0 {
		return MaxPSNR
	}
	return min(10*math.Log10(core.QuantumRange*core.QuantumRange/mse), MaxPSNR)
}
