package process

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"photoflow/internal/core"
	"photoflow/internal/engine"
	"photoflow/internal/logging"
)

var (
	ErrCycle   = errors.New("connection would create a cycle")
	ErrUnknown = errors.New("operator is not part of the process")
)

// Edge binds output Output of From to input Input of To.
type Edge struct {
	From   *engine.Operator
	Output int
	To     *engine.Operator
	Input  int
}

// Process is a graph of operators. It is safe for concurrent use.
type Process struct {
	log *logging.Entry

	mu    sync.Mutex
	ops   []*engine.Operator
	unsub map[*engine.Operator]func()
	edges []Edge
}

// New returns an empty process.
func New(logger *logrus.Logger) *Process {
	return &Process{
		log:   logging.New(logger).With("component", "process"),
		unsub: make(map[*engine.Operator]func()),
	}
}

// Add puts op in the graph and installs the process as its requester.
func (p *Process) Add(op *engine.Operator) {
	p.mu.Lock()
	if _, ok := p.unsub[op]; ok {
		p.mu.Unlock()
		return
	}
	p.ops = append(p.ops, op)
	p.mu.Unlock()

	unsub := op.Subscribe(engine.Listener{
		OnOutOfDate: p.invalidateDownstream,
		OnSuccess: func(op *engine.Operator, _ [][]*core.Photo) {
			p.invalidateDownstream(op)
		},
	})
	op.SetRequester(p)

	p.mu.Lock()
	p.unsub[op] = unsub
	p.mu.Unlock()
	p.log.Debugf("added %s", op)
}

// Remove disconnects op, takes it out of the graph and closes it.
func (p *Process) Remove(op *engine.Operator) error {
	p.mu.Lock()
	unsub, ok := p.unsub[op]
	if !ok {
		p.mu.Unlock()
		return ErrUnknown
	}
	var touching []Edge
	p.edges = slices.DeleteFunc(p.edges, func(e Edge) bool {
		if e.From == op || e.To == op {
			touching = append(touching, e)
			return true
		}
		return false
	})
	delete(p.unsub, op)
	p.ops = slices.DeleteFunc(p.ops, func(o *engine.Operator) bool { return o == op })
	p.mu.Unlock()

	unsub()
	op.SetRequester(nil)
	for _, e := range touching {
		e.To.Disconnect(e.Input, e.From, e.Output)
	}
	op.Close()
	p.log.Debugf("removed %s", op)
	return nil
}

// Operators returns the operators in insertion order.
func (p *Process) Operators() []*engine.Operator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.ops)
}

// Edges returns every connection.
func (p *Process) Edges() []Edge {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.edges)
}

// Connect binds output out of src to input in of dst. Connections that would
// close a cycle are refused.
func (p *Process) Connect(src *engine.Operator, out int, dst *engine.Operator, in int) error {
	p.mu.Lock()
	_, okSrc := p.unsub[src]
	_, okDst := p.unsub[dst]
	if !okSrc || !okDst {
		p.mu.Unlock()
		return ErrUnknown
	}
	if src == dst || slices.Contains(p.descendantsLocked(dst), src) {
		p.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", src.Name(), dst.Name(), ErrCycle)
	}
	p.mu.Unlock()

	if err := dst.Connect(in, src, out); err != nil {
		return err
	}

	e := Edge{From: src, Output: out, To: dst, Input: in}
	p.mu.Lock()
	if !slices.Contains(p.edges, e) {
		p.edges = append(p.edges, e)
	}
	p.mu.Unlock()
	return nil
}

// Disconnect removes a connection made by Connect.
func (p *Process) Disconnect(src *engine.Operator, out int, dst *engine.Operator, in int) bool {
	e := Edge{From: src, Output: out, To: dst, Input: in}
	p.mu.Lock()
	i := slices.Index(p.edges, e)
	if i >= 0 {
		p.edges = slices.Delete(p.edges, i, i+1)
	}
	p.mu.Unlock()
	if i < 0 {
		return false
	}
	return dst.Disconnect(in, src, out)
}

// Upstream returns the operators feeding op directly.
func (p *Process) Upstream(op *engine.Operator) []*engine.Operator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.upstreamLocked(op)
}

// Downstream returns the operators fed by op directly.
func (p *Process) Downstream(op *engine.Operator) []*engine.Operator {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.downstreamLocked(op)
}

// Sinks returns the operators whose outputs nothing consumes.
func (p *Process) Sinks() []*engine.Operator {
	p.mu.Lock()
	defer p.mu.Unlock()
	var sinks []*engine.Operator
	for _, op := range p.ops {
		if len(p.downstreamLocked(op)) == 0 {
			sinks = append(sinks, op)
		}
	}
	return sinks
}

func (p *Process) upstreamLocked(op *engine.Operator) []*engine.Operator {
	var ups []*engine.Operator
	for _, e := range p.edges {
		if e.To == op && !slices.Contains(ups, e.From) {
			ups = append(ups, e.From)
		}
	}
	return ups
}

func (p *Process) downstreamLocked(op *engine.Operator) []*engine.Operator {
	var downs []*engine.Operator
	for _, e := range p.edges {
		if e.From == op && !slices.Contains(downs, e.To) {
			downs = append(downs, e.To)
		}
	}
	return downs
}

// descendantsLocked walks the graph forward from op, breadth first.
func (p *Process) descendantsLocked(op *engine.Operator) []*engine.Operator {
	seen := map[*engine.Operator]bool{op: true}
	var out []*engine.Operator
	queue := []*engine.Operator{op}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, d := range p.downstreamLocked(cur) {
			if !seen[d] {
				seen[d] = true
				out = append(out, d)
				queue = append(queue, d)
			}
		}
	}
	return out
}

// invalidateDownstream marks every operator reachable from op out of date.
func (p *Process) invalidateDownstream(op *engine.Operator) {
	p.mu.Lock()
	descendants := p.descendantsLocked(op)
	p.mu.Unlock()
	for _, d := range descendants {
		d.SetOutOfDate()
	}
}

// lineage returns op and its ancestors, each after all of its own inputs.
func (p *Process) lineage(op *engine.Operator) []*engine.Operator {
	p.mu.Lock()
	defer p.mu.Unlock()
	var order []*engine.Operator
	seen := make(map[*engine.Operator]bool)
	var visit func(o *engine.Operator)
	visit = func(o *engine.Operator) {
		if seen[o] {
			return
		}
		seen[o] = true
		for _, up := range p.upstreamLocked(o) {
			visit(up)
		}
		order = append(order, o)
	}
	visit(op)
	return order
}

// Run plays every out-of-date ancestor of op, then op itself, and waits for
// them. It stops at the first failure.
func (p *Process) Run(ctx context.Context, op *engine.Operator) error {
	for _, o := range p.lineage(op) {
		if !o.OutOfDate() {
			continue
		}
		if !o.InputsReady() {
			return fmt.Errorf("%s: %w", o.Name(), engine.ErrInputsNotReady)
		}
		p.log.Debugf("playing %s", o.Name())
		done, err := o.Play(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", o.Name(), err)
		}
		if err := <-done; err != nil {
			return fmt.Errorf("%s: %w", o.Name(), err)
		}
	}
	return nil
}

// RunAll runs every sink of the graph.
func (p *Process) RunAll(ctx context.Context) error {
	var errs []error
	for _, sink := range p.Sinks() {
		if err := p.Run(ctx, sink); err != nil {
			p.log.Errorf("%v", err)
			errs = append(errs, err)
			if ctx.Err() != nil {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// Request runs the lineage of op in the background. It implements
// engine.Requester.
func (p *Process) Request(ctx context.Context, op *engine.Operator) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, op)
		close(done)
	}()
	return done
}

// Close removes and closes every operator.
func (p *Process) Close() {
	for _, op := range p.Operators() {
		_ = p.Remove(op)
	}
}
