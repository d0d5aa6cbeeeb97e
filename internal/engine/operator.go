package engine

import (
	"context"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/zclconf/go-cty/cty"

	"photoflow/internal/core"
	"photoflow/internal/logging"
)

// Options configures a new operator.
type Options struct {
	Logger  *logrus.Logger
	Threads int    // zero means runtime.NumCPU()
	Name    string // display name; the definition name when empty
}

// Factory builds the kernel of an operator. It runs once, inside
// NewOperator, and is where parameters are declared.
type Factory func(op *Operator) Kernel

// Requester materializes the inputs of an operator and then plays it. It is
// installed by whoever owns the graph.
type Requester interface {
	Request(ctx context.Context, op *Operator) <-chan error
}

// Listener receives operator notifications. Any field may be nil. Progress
// may be delivered on any goroutine.
type Listener struct {
	OnProgress  func(op *Operator, p, c int)
	OnSuccess   func(op *Operator, results [][]*core.Photo)
	OnFailure   func(op *Operator, err error)
	OnError     func(op *Operator, identity string, err error)
	OnOutOfDate func(op *Operator)
	OnUpToDate  func(op *Operator)
}

type job struct {
	inputs [][]*core.Photo
	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

// Operator is a graph node: a configured processing step with input ports,
// output slots and parameters. It runs at most one worker at a time, on a
// goroutine that lives as long as the operator.
type Operator struct {
	def     Definition
	id      string
	name    string
	log     *logging.Entry
	threads int
	kernel  Kernel

	inputs  []*Input
	outputs []*Output
	params  []Parameter

	mu        sync.Mutex
	running   bool
	outOfDate bool
	dirty     bool // invalidated while running
	closed    bool
	cancel    context.CancelFunc
	requester Requester
	listeners map[int]Listener
	nextID    int

	jobs chan job
}

// NewOperator creates an operator of type def and starts its goroutine.
func NewOperator(def Definition, opts Options, factory Factory) *Operator {
	name := opts.Name
	if name == "" {
		name = def.Name
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	o := &Operator{
		def:       def,
		id:        uuid.NewString(),
		name:      name,
		log:       logging.For(opts.Logger, name),
		threads:   threads,
		outOfDate: true,
		listeners: make(map[int]Listener),
		jobs:      make(chan job, 1),
	}
	for _, n := range def.Inputs {
		o.inputs = append(o.inputs, &Input{Name: n})
	}
	for _, n := range def.Outputs {
		o.outputs = append(o.outputs, &Output{Name: n})
	}
	o.kernel = factory(o)
	go o.loop()
	return o
}

func (o *Operator) ID() string             { return o.id }
func (o *Operator) Type() string           { return o.def.Type }
func (o *Operator) Name() string           { return o.name }
func (o *Operator) Definition() Definition { return o.def }
func (o *Operator) Threads() int           { return o.threads }
func (o *Operator) Kernel() Kernel         { return o.kernel }

// Logger returns the operator's diagnostic sink.
func (o *Operator) Logger() logging.Logger { return o.log }

func (o *Operator) Inputs() []*Input   { return o.inputs }
func (o *Operator) Outputs() []*Output { return o.outputs }

// Input returns port idx, or nil.
func (o *Operator) Input(idx int) *Input {
	if idx < 0 || idx >= len(o.inputs) {
		return nil
	}
	return o.inputs[idx]
}

// Output returns slot idx, or nil.
func (o *Operator) Output(idx int) *Output {
	if idx < 0 || idx >= len(o.outputs) {
		return nil
	}
	return o.outputs[idx]
}

// SetOutputStatus enables or disables slot idx. Enabling a slot makes the
// operator out of date since the slot holds no result yet.
func (o *Operator) SetOutputStatus(idx int, s Status) error {
	out := o.Output(idx)
	if out == nil {
		return fmt.Errorf("output %d out of range", idx)
	}
	prev := out.Status()
	out.setStatus(s)
	if prev == Disabled && s == Enabled {
		o.SetOutOfDate()
	}
	return nil
}

// Running reports whether a worker is active.
func (o *Operator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// OutOfDate reports whether the outputs lag behind parameters or inputs.
func (o *Operator) OutOfDate() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.outOfDate
}

// SetOutOfDate marks the outputs stale. Listeners are notified on the
// transition only. When called during a run, the operator stays out of date
// after that run succeeds.
func (o *Operator) SetOutOfDate() {
	o.mu.Lock()
	if o.running {
		o.dirty = true
	}
	changed := !o.outOfDate
	o.outOfDate = true
	o.mu.Unlock()
	if changed {
		o.log.Debugf("out of date")
		o.each(func(l Listener) {
			if l.OnOutOfDate != nil {
				l.OnOutOfDate(o)
			}
		})
	}
}

// SetRequester installs the collaborator Play delegates to when inputs are
// not materialized.
func (o *Operator) SetRequester(r Requester) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requester = r
}

// Subscribe registers l and returns a function removing it.
func (o *Operator) Subscribe(l Listener) (unsubscribe func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.nextID
	o.nextID++
	o.listeners[id] = l
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.listeners, id)
	}
}

func (o *Operator) each(fn func(Listener)) {
	o.mu.Lock()
	ls := make([]Listener, 0, len(o.listeners))
	for i := 0; i < o.nextID; i++ {
		if l, ok := o.listeners[i]; ok {
			ls = append(ls, l)
		}
	}
	o.mu.Unlock()
	for _, l := range ls {
		fn(l)
	}
}

// Connect binds output out of src to input in.
func (o *Operator) Connect(in int, src *Operator, out int) error {
	port := o.Input(in)
	if port == nil {
		return fmt.Errorf("%s: input %d out of range", o.name, in)
	}
	if src.Output(out) == nil {
		return fmt.Errorf("%s: output %d out of range", src.name, out)
	}
	if port.connect(Source{Operator: src, Output: out}) {
		o.SetOutOfDate()
	}
	return nil
}

// Disconnect removes a binding made by Connect. It reports whether one existed.
func (o *Operator) Disconnect(in int, src *Operator, out int) bool {
	port := o.Input(in)
	if port == nil || !port.disconnect(Source{Operator: src, Output: out}) {
		return false
	}
	o.SetOutOfDate()
	return true
}

// InputsReady reports whether every bound upstream output is materialized.
func (o *Operator) InputsReady() bool {
	for _, in := range o.inputs {
		if !in.ready() {
			return false
		}
	}
	return true
}

// Play starts a run. The returned channel receives the run outcome, nil on
// success, and is then closed. While a run is active Play returns
// ErrAlreadyRunning. When inputs are not materialized the run is delegated
// to the requester, or ErrInputsNotReady is returned if there is none.
func (o *Operator) Play(ctx context.Context) (<-chan error, error) {
	ready := o.InputsReady()

	o.mu.Lock()
	switch {
	case o.closed:
		o.mu.Unlock()
		return nil, ErrClosed
	case o.running:
		o.mu.Unlock()
		o.log.Warningf("already running, play ignored")
		return nil, ErrAlreadyRunning
	case !ready:
		req := o.requester
		o.mu.Unlock()
		if req == nil {
			return nil, ErrInputsNotReady
		}
		o.log.Debugf("inputs not ready, requesting upstream")
		return req.Request(ctx, o), nil
	}
	defer o.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.dirty = false
	o.cancel = cancel
	done := make(chan error, 1)
	// no run is active, so the buffer is free
	o.jobs <- job{inputs: o.snapshot(), ctx: runCtx, cancel: cancel, done: done}
	return done, nil
}

// Stop requests a cooperative abort of the current run.
func (o *Operator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cancel != nil {
		o.log.Debugf("stop requested")
		o.cancel()
	}
}

// Close aborts the current run, stops the operator goroutine and releases
// the outputs.
func (o *Operator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	if o.cancel != nil {
		o.cancel()
	}
	close(o.jobs)
	o.mu.Unlock()
}

func (o *Operator) loop() {
	for j := range o.jobs {
		o.run(j)
	}
	for _, out := range o.outputs {
		out.adopt(nil)
	}
}

// snapshot copies the inputs at run start. Play calls it while the readiness
// check still holds, so an upstream run finishing later cannot release them.
func (o *Operator) snapshot() [][]*core.Photo {
	inputs := make([][]*core.Photo, len(o.inputs))
	for i, in := range o.inputs {
		inputs[i] = in.snapshot()
	}
	return inputs
}

func (o *Operator) run(j job) {
	defer j.cancel()

	status := make([]Status, len(o.outputs))
	for i, out := range o.outputs {
		status[i] = out.Status()
	}

	w := newWorker(j.ctx, o.log, o.threads, o, j.inputs, status)
	o.log.Debugf("run started")
	o.execute(w)
	if !w.signalled.Load() {
		o.log.Criticalf("worker finished without a terminal signal, sending failure")
		w.fail(ErrNoSignal)
	}

	err := o.finish(w)
	j.done <- err
	close(j.done)
}

// execute drives one run: the kernel's own Play, or the definition strategy.
func (o *Operator) execute(w *Worker) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Criticalf("panic during run: %v\n%s", r, debug.Stack())
			w.fail(fmt.Errorf("panic: %v", r))
		}
	}()

	if p, ok := o.kernel.(Player); ok {
		p.Play(w)
		return
	}
	if !w.checkPorts() {
		return
	}
	if a, ok := o.kernel.(SourceAnalyzer); ok {
		if err := a.AnalyseSources(w); err != nil {
			if w.isAbort(err) {
				w.EmitFailure()
			} else {
				o.log.Errorf("analysing sources: %v", err)
				w.fail(err)
			}
			return
		}
	}
	switch o.def.Strategy {
	case Parallel:
		w.runParallel(o.kernel, o.def.AllowEmpty)
	default:
		w.runSequential(o.kernel, o.def.AllowEmpty)
	}
}

// finish consumes the terminal signal of w.
func (o *Operator) finish(w *Worker) error {
	res, cause := w.result()
	if res != succeeded {
		w.release(nil)
		o.mu.Lock()
		o.running = false
		o.cancel = nil
		o.mu.Unlock()
		o.each(func(l Listener) {
			if l.OnFailure != nil {
				l.OnFailure(o, cause)
			}
		})
		return cause
	}

	results := w.results()
	w.release(results)
	for i, out := range o.outputs {
		out.adopt(results[i])
		o.log.Debugf("output %s: %v", out.Name, sequenced(results[i]))
	}

	o.mu.Lock()
	o.running = false
	o.cancel = nil
	o.outOfDate = o.dirty
	o.dirty = false
	upToDate := !o.outOfDate
	o.mu.Unlock()

	o.each(func(l Listener) {
		if l.OnSuccess != nil {
			l.OnSuccess(o, results)
		}
	})
	if upToDate {
		o.each(func(l Listener) {
			if l.OnUpToDate != nil {
				l.OnUpToDate(o)
			}
		})
	}
	return nil
}

func (o *Operator) progress(p, c int) {
	o.each(func(l Listener) {
		if l.OnProgress != nil {
			l.OnProgress(o, p, c)
		}
	})
}

func (o *Operator) photoError(identity string, err error) {
	o.each(func(l Listener) {
		if l.OnError != nil {
			l.OnError(o, identity, err)
		}
	})
}

// Parameters returns the declared parameters, in declaration order.
func (o *Operator) Parameters() []Parameter { return o.params }

// Parameter returns the parameter called name, or nil.
func (o *Operator) Parameter(name string) Parameter {
	for _, p := range o.params {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// SetParameter sets the parameter called name.
func (o *Operator) SetParameter(name string, v cty.Value) error {
	p := o.Parameter(name)
	if p == nil {
		return fmt.Errorf("%s: unknown parameter %q", o.name, name)
	}
	return p.Set(v)
}

func (o *Operator) addParameter(p Parameter) {
	o.params = append(o.params, p)
}

func (o *Operator) String() string {
	return fmt.Sprintf("%s(%s)", o.name, o.id)
}
