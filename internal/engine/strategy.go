package engine

import (
	"sync"

	"golang.org/x/sync/errgroup"

	"photoflow/internal/core"
)

// checkPorts fails the run when the operator has nothing to iterate or
// nowhere to push.
func (w *Worker) checkPorts() bool {
	if len(w.inputs) == 0 {
		w.log.Criticalf("no input: the kernel must play the run itself")
		w.fail(ErrNoInputs)
		return false
	}
	if len(w.outputs) == 0 {
		w.log.Criticalf("no output: the kernel must play the run itself")
		w.fail(ErrNoOutputs)
		return false
	}
	return true
}

// checkEmpty handles an empty input 0. It reports whether the run is over.
func (w *Worker) checkEmpty(allowEmpty bool) bool {
	if len(w.inputs[0]) > 0 {
		return false
	}
	if allowEmpty {
		w.EmitSuccess()
		return true
	}
	w.log.Warningf("0 photos in input[0]")
	w.fail(ErrEmptyInput)
	return true
}

// runSequential maps input 0 onto output 0 one photo at a time. Output order
// is input order; the first failure stops the run.
func (w *Worker) runSequential(k Kernel, allowEmpty bool) {
	if w.checkEmpty(allowEmpty) {
		return
	}
	photos := w.inputs[0]
	c := len(photos)
	for p, photo := range photos {
		if w.Failed() {
			w.log.Errorf("worker in error, sending failure")
			w.EmitFailure()
			return
		}
		if w.Aborted() {
			w.EmitFailure()
			return
		}
		w.EmitProgress(p, c)
		out, err := w.process(k, photo, p, c)
		if err != nil {
			if !w.isAbort(err) {
				w.SetError(photo, err)
			}
			w.EmitFailure()
			return
		}
		if !out.IsComplete() {
			w.track(out)
			w.log.Criticalf("%s: result is not complete, sending failure", photo.Identity)
			w.fail(&ProcessingError{Identity: photo.Identity, Err: ErrIncomplete})
			return
		}
		out.Sequence = p
		if w.Failed() {
			w.track(out)
			continue
		}
		w.Push(0, out)
	}
	if w.Failed() || w.Aborted() {
		w.EmitFailure()
		return
	}
	w.EmitSuccess()
}

// runParallel maps input 0 onto output 0 with up to Threads photos in
// flight. A failing photo does not stop its siblings already running, but
// photos not started yet are skipped and the run fails.
func (w *Worker) runParallel(k Kernel, allowEmpty bool) {
	if w.checkEmpty(allowEmpty) {
		return
	}
	photos := w.inputs[0]
	c := len(photos)
	w.EmitProgress(0, c)
	// set before any goroutine starts
	w.rowThreads = max(1, w.threads/min(w.threads, c))

	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	g.SetLimit(w.threads)
	for i, photo := range photos {
		g.Go(func() error {
			if w.Failed() || w.Aborted() {
				return nil
			}
			out, err := w.process(k, photo, i, c)
			if err != nil {
				if !w.isAbort(err) {
					w.SetError(photo, err)
				}
				return nil
			}
			if !out.IsComplete() {
				w.track(out)
				w.log.Criticalf("%s: result is not complete", photo.Identity)
				w.SetError(photo, ErrIncomplete)
				return nil
			}
			out.Sequence = i

			mu.Lock()
			defer mu.Unlock()
			if w.Failed() {
				w.track(out)
				return nil
			}
			w.Push(0, out)
			done++
			if done < c {
				w.EmitProgress(done, c)
			}
			return nil
		})
	}
	_ = g.Wait()

	if w.Failed() {
		w.log.Errorf("worker in error, sending failure")
		w.EmitFailure()
		return
	}
	if w.Aborted() {
		w.EmitFailure()
		return
	}
	w.Sort(0)
	w.EmitSuccess()
}

// sequenced returns the identities of photos, in order.
func sequenced(photos []*core.Photo) []string {
	ids := make([]string, len(photos))
	for i, p := range photos {
		ids[i] = p.Identity
	}
	return ids
}
