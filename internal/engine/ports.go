package engine

import (
	"slices"
	"sync"

	"photoflow/internal/core"
)

// Status tells whether an output slot is populated by runs.
type Status int

const (
	Enabled Status = iota
	Disabled
)

// Output is a named, ordered result slot of an operator.
type Output struct {
	Name string

	mu     sync.RWMutex
	status Status
	result []*core.Photo
}

// Status returns the slot status.
func (o *Output) Status() Status {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.status
}

// Result returns the photos of the last successful run. They must not be
// modified; copy them first.
func (o *Output) Result() []*core.Photo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return slices.Clone(o.result)
}

func (o *Output) setStatus(s Status) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status = s
}

// adopt replaces the result and releases the previous photos. They are
// closed under the lock, so a concurrent snapshot never copies a released
// photo.
func (o *Output) adopt(result []*core.Photo) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, p := range o.result {
		if !slices.Contains(result, p) {
			p.Close()
		}
	}
	o.result = result
}

// copies deep copies the result under the read lock.
func (o *Output) copies() []*core.Photo {
	o.mu.RLock()
	defer o.mu.RUnlock()
	photos := make([]*core.Photo, len(o.result))
	for i, p := range o.result {
		photos[i] = p.Copy()
	}
	return photos
}

// Source is one upstream output bound to an input.
type Source struct {
	Operator *Operator
	Output   int
}

// Input is a named port bound to zero or more upstream outputs.
type Input struct {
	Name string

	mu      sync.RWMutex
	sources []Source
}

// Sources returns the bound outputs, in connection order.
func (in *Input) Sources() []Source {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return slices.Clone(in.sources)
}

func (in *Input) connect(src Source) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if slices.Contains(in.sources, src) {
		return false
	}
	in.sources = append(in.sources, src)
	return true
}

func (in *Input) disconnect(src Source) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	i := slices.Index(in.sources, src)
	if i < 0 {
		return false
	}
	in.sources = slices.Delete(in.sources, i, i+1)
	return true
}

// ready reports whether every bound output holds a materialized result.
func (in *Input) ready() bool {
	for _, src := range in.Sources() {
		if src.Operator.Running() || src.Operator.OutOfDate() {
			return false
		}
	}
	return true
}

// snapshot deep copies the photos of every bound output.
func (in *Input) snapshot() []*core.Photo {
	var photos []*core.Photo
	for _, src := range in.Sources() {
		photos = append(photos, src.Operator.Output(src.Output).copies()...)
	}
	return photos
}
