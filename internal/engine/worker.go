package engine

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"photoflow/internal/core"
	"photoflow/internal/logging"
	"photoflow/internal/pixels"
)

// Kernel is the per-photo transform of an operator. photo is the worker's
// private copy: the kernel may modify it and return it, or return a new photo.
// Process may be called concurrently under the Parallel strategy.
type Kernel interface {
	Process(w *Worker, photo *core.Photo, p, c int) (*core.Photo, error)
}

// KernelFunc adapts a function to Kernel.
type KernelFunc func(w *Worker, photo *core.Photo, p, c int) (*core.Photo, error)

func (f KernelFunc) Process(w *Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	return f(w, photo, p, c)
}

// Player is implemented by kernels that drive the whole run themselves:
// generators without input, joins over several inputs. Play must end with
// EmitSuccess or EmitFailure before returning.
type Player interface {
	Play(w *Worker)
}

// PlayerBase can be embedded by Player kernels, which never process single
// photos through a strategy.
type PlayerBase struct{}

func (PlayerBase) Process(w *Worker, photo *core.Photo, p, c int) (*core.Photo, error) {
	return nil, errors.New("operator plays its runs itself")
}

// SourceAnalyzer is implemented by kernels that inspect their inputs once
// before input 0 is iterated.
type SourceAnalyzer interface {
	AnalyseSources(w *Worker) error
}

type outcome int

const (
	pending outcome = iota
	succeeded
	failed
)

// events receives what a worker reports while it runs.
type events interface {
	progress(p, c int)
	photoError(identity string, err error)
}

type accumulator struct {
	mu     sync.Mutex
	status Status
	photos []*core.Photo
}

// Worker is a single run of an operator. It owns a snapshot of the inputs
// and the outputs being built; nothing it holds is visible to other
// operators until the run succeeds and its outputs are adopted.
type Worker struct {
	ctx     context.Context
	log     logging.Logger
	threads int
	// rowThreads sizes pixel kernels; the parallel strategy lowers it so
	// photos in flight times rows in flight stays within threads
	rowThreads int
	events     events

	inputs  [][]*core.Photo
	outputs []*accumulator
	sticky  core.Sticky

	signalled atomic.Bool

	// mu orders progress against the terminal signal
	mu      sync.Mutex
	outcome outcome
	cause   error
	lastP   int
	lastC   int

	trackMu sync.Mutex
	tracked []*core.Photo
}

func newWorker(ctx context.Context, log logging.Logger, threads int, ev events, inputs [][]*core.Photo, status []Status) *Worker {
	w := &Worker{
		ctx:        ctx,
		log:        log,
		threads:    threads,
		rowThreads: threads,
		events:     ev,
		inputs:     inputs,
	}
	for _, s := range status {
		w.outputs = append(w.outputs, &accumulator{status: s})
	}
	for _, in := range inputs {
		w.tracked = append(w.tracked, in...)
	}
	return w
}

// Context is cancelled when the run is aborted.
func (w *Worker) Context() context.Context { return w.ctx }

func (w *Worker) Logger() logging.Logger { return w.log }

// Threads bounds the goroutines a run may fan out to.
func (w *Worker) Threads() int { return w.threads }

// Aborted reports whether a cooperative abort was requested.
func (w *Worker) Aborted() bool { return w.ctx.Err() != nil }

// Failed reports whether the sticky error flag is set.
func (w *Worker) Failed() bool { return w.sticky.IsSet() }

// Err returns the first error recorded in the run.
func (w *Worker) Err() error { return w.sticky.Err() }

// InputCount returns the number of input ports.
func (w *Worker) InputCount() int { return len(w.inputs) }

// Input returns the snapshot of input idx. The photos belong to the worker.
func (w *Worker) Input(idx int) []*core.Photo {
	if idx < 0 || idx >= len(w.inputs) {
		return nil
	}
	return w.inputs[idx]
}

// OutputCount returns the number of output slots.
func (w *Worker) OutputCount() int { return len(w.outputs) }

// OutputEnabled reports whether slot idx is populated by this run.
func (w *Worker) OutputEnabled(idx int) bool {
	return idx >= 0 && idx < len(w.outputs) && w.outputs[idx].status == Enabled
}

// Push appends photo to output idx. Photos pushed to a disabled output are
// released at the end of the run.
func (w *Worker) Push(idx int, photo *core.Photo) {
	w.track(photo)
	if idx < 0 || idx >= len(w.outputs) {
		w.log.Warningf("push: output %d out of range", idx)
		return
	}
	if w.signalled.Load() {
		w.log.Criticalf("push to output %d after terminal signal dropped", idx)
		return
	}
	acc := w.outputs[idx]
	acc.mu.Lock()
	defer acc.mu.Unlock()
	if acc.status == Enabled {
		acc.photos = append(acc.photos, photo)
	}
}

// Sort restores the input order of output idx from the photo sequence numbers.
func (w *Worker) Sort(idx int) {
	if idx < 0 || idx >= len(w.outputs) {
		w.log.Warningf("sort: output %d out of range", idx)
		return
	}
	acc := w.outputs[idx]
	acc.mu.Lock()
	defer acc.mu.Unlock()
	slices.SortStableFunc(acc.photos, func(a, b *core.Photo) int {
		return cmp.Compare(a.Sequence, b.Sequence)
	})
}

// SetError records a failure attributed to photo and sets the sticky flag.
func (w *Worker) SetError(photo *core.Photo, err error) {
	identity := ""
	if photo != nil {
		identity = photo.Identity
	}
	perr := &ProcessingError{Identity: identity, Err: err}
	w.sticky.Set(perr)
	w.log.Errorf("%v", perr)
	w.events.photoError(identity, err)
}

// Kernel returns a pixel kernel sized to the threads left to each photo.
// Each call gets its own error flag, so a failing photo is never blamed for
// a sibling; the caller reports the returned error with SetError.
func (w *Worker) Kernel() pixels.Kernel {
	return pixels.Kernel{
		Threads: w.rowThreads,
		Sticky:  &core.Sticky{},
		OnError: func(err error) {
			w.log.Debugf("row failed: %v", err)
		},
	}
}

// EmitProgress reports p of c items done. Progress after the terminal signal
// and numerators going backwards are dropped.
func (w *Worker) EmitProgress(p, c int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.signalled.Load() {
		w.log.Debugf("progress %d/%d after terminal signal dropped", p, c)
		return
	}
	if c <= 0 || p < w.lastP {
		return
	}
	w.lastP, w.lastC = p, c
	w.events.progress(p, c)
}

// EmitSubProgress reports sp of sc steps done within item p of c.
func (w *Worker) EmitSubProgress(p, c, sp, sc int) {
	w.EmitProgress(p*sc+sp, c*sc)
}

// EmitSuccess ends the run successfully. Only the first terminal signal of a
// run counts.
func (w *Worker) EmitSuccess() {
	w.mu.Lock()
	if w.signalled.Load() {
		w.mu.Unlock()
		w.log.Criticalf("success emitted after the terminal signal, dropped")
		return
	}
	d := w.lastC
	if d <= 0 {
		d = 1
	}
	w.events.progress(d, d)
	w.outcome = succeeded
	w.signalled.Store(true)
	w.mu.Unlock()
	w.log.Infof("worker emitted success")
}

// EmitFailure ends the run with a failure. Only the first terminal signal of
// a run counts.
func (w *Worker) EmitFailure() {
	w.mu.Lock()
	if w.signalled.Load() {
		w.mu.Unlock()
		w.log.Criticalf("failure emitted after the terminal signal, dropped")
		return
	}
	switch {
	case w.cause != nil:
	case w.sticky.IsSet():
		w.cause = w.sticky.Err()
	case w.Aborted():
		w.cause = ErrAborted
	default:
		w.cause = ErrFailed
	}
	w.outcome = failed
	w.signalled.Store(true)
	cause := w.cause
	w.mu.Unlock()

	if errors.Is(cause, ErrAborted) {
		w.log.Infof("aborted")
	} else {
		w.log.Errorf("worker emitted failure: %v", cause)
	}
}

// fail ends the run with err as the reported cause.
func (w *Worker) fail(err error) {
	w.mu.Lock()
	if w.cause == nil && !w.signalled.Load() {
		w.cause = err
	}
	w.mu.Unlock()
	w.EmitFailure()
}

func (w *Worker) result() (outcome, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outcome, w.cause
}

func (w *Worker) results() [][]*core.Photo {
	res := make([][]*core.Photo, len(w.outputs))
	for i, acc := range w.outputs {
		acc.mu.Lock()
		if acc.status == Enabled {
			res[i] = slices.Clone(acc.photos)
		}
		acc.mu.Unlock()
	}
	return res
}

func (w *Worker) track(photo *core.Photo) {
	if photo == nil {
		return
	}
	w.trackMu.Lock()
	defer w.trackMu.Unlock()
	w.tracked = append(w.tracked, photo)
}

// release closes every photo the run touched except those in keep.
func (w *Worker) release(keep [][]*core.Photo) {
	kept := make(map[*core.Photo]struct{})
	for _, photos := range keep {
		for _, p := range photos {
			kept[p] = struct{}{}
		}
	}
	w.trackMu.Lock()
	defer w.trackMu.Unlock()
	for _, p := range w.tracked {
		if _, ok := kept[p]; !ok {
			p.Close()
		}
	}
	w.tracked = nil
}

// process calls the kernel, turning a panic into an error.
func (w *Worker) process(k Kernel, photo *core.Photo, p, c int) (out *core.Photo, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Criticalf("%s: panic in process: %v", photo.Identity, r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return k.Process(w, photo, p, c)
}

// isAbort reports whether err only reflects the run being aborted.
func (w *Worker) isAbort(err error) bool {
	if !w.Aborted() {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrAborted)
}
