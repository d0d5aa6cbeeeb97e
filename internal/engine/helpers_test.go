package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"photoflow/internal/core"
	"photoflow/internal/logging"
)

func newPhoto(t *testing.T, id string) *core.Photo {
	t.Helper()
	p := core.NewPhoto(id, core.Linear)
	require.NoError(t, p.CreateImage(2, 2))
	return p
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("p%d", i)
	}
	return out
}

// generator pushes one photo per identity to output 0.
type generator struct {
	PlayerBase
	ids []string
}

func (g *generator) Play(w *Worker) {
	for i, id := range g.ids {
		p := core.NewPhoto(id, core.Linear)
		if err := p.CreateImage(2, 2); err != nil {
			w.SetError(p, err)
			w.EmitFailure()
			return
		}
		p.Sequence = i
		w.Push(0, p)
	}
	w.EmitSuccess()
}

var (
	sourceDef = Definition{Type: "source", Name: "Source", Outputs: []string{"Images"}}
	mapDef    = Definition{Type: "map", Name: "Map", Inputs: []string{"Images"}, Outputs: []string{"Images"}}
)

func newLogger() (*logrus.Logger, *test.Hook) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	return base, hook
}

func newSource(t *testing.T, base *logrus.Logger, n int) *Operator {
	t.Helper()
	op := NewOperator(sourceDef, Options{Logger: base, Threads: 2}, func(*Operator) Kernel {
		return &generator{ids: ids(n)}
	})
	t.Cleanup(op.Close)
	require.NoError(t, wait(t, op))
	return op
}

func newMap(t *testing.T, base *logrus.Logger, def Definition, k Kernel, src *Operator) *Operator {
	t.Helper()
	op := NewOperator(def, Options{Logger: base, Threads: 4}, func(*Operator) Kernel { return k })
	t.Cleanup(op.Close)
	if src != nil {
		require.NoError(t, op.Connect(0, src, 0))
	}
	return op
}

func wait(t *testing.T, op *Operator) error {
	t.Helper()
	return waitCtx(t, context.Background(), op)
}

func waitCtx(t *testing.T, ctx context.Context, op *Operator) error {
	t.Helper()
	done, err := op.Play(ctx)
	require.NoError(t, err)
	return await(t, done)
}

func await(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(10 * time.Second):
		t.Fatal("run did not finish")
		return nil
	}
}

func identities(photos []*core.Photo) []string {
	return sequenced(photos)
}

// recorder keeps the notifications of one operator in arrival order.
type recorder struct {
	mu        sync.Mutex
	events    []string
	progress  [][2]int
	errors    []string
	successes int
	failures  int
}

func (r *recorder) listener() Listener {
	add := func(e string) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	}
	return Listener{
		OnProgress: func(_ *Operator, p, c int) {
			r.mu.Lock()
			r.progress = append(r.progress, [2]int{p, c})
			r.mu.Unlock()
			add(fmt.Sprintf("progress %d/%d", p, c))
		},
		OnSuccess: func(*Operator, [][]*core.Photo) {
			r.mu.Lock()
			r.successes++
			r.mu.Unlock()
			add("success")
		},
		OnFailure: func(*Operator, error) {
			r.mu.Lock()
			r.failures++
			r.mu.Unlock()
			add("failure")
		},
		OnError: func(_ *Operator, identity string, _ error) {
			r.mu.Lock()
			r.errors = append(r.errors, identity)
			r.mu.Unlock()
		},
		OnOutOfDate: func(*Operator) { add("out of date") },
		OnUpToDate:  func(*Operator) { add("up to date") },
	}
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// afterTerminal returns the events from the first terminal signal on.
func (r *recorder) afterTerminal() []string {
	events := r.snapshot()
	for i, e := range events {
		if e == "success" || e == "failure" {
			return events[i:]
		}
	}
	return nil
}

// fakeEvents collects what a bare worker reports.
type fakeEvents struct {
	mu     sync.Mutex
	steps  [][2]int
	errors []string
}

func (f *fakeEvents) progress(p, c int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, [2]int{p, c})
}

func (f *fakeEvents) photoError(identity string, _ error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, identity)
}

func newBareWorker(ctx context.Context, base *logrus.Logger, ev events, inputs [][]*core.Photo, outputs int) *Worker {
	status := make([]Status, outputs)
	return newWorker(ctx, newEntry(base), 4, ev, inputs, status)
}

func newEntry(base *logrus.Logger) logging.Logger {
	return logging.For(base, "bare")
}

func countLogged(hook *test.Hook, level logrus.Level, substr string) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level == level && strings.Contains(e.Message, substr) {
			n++
		}
	}
	return n
}

func countExact(hook *test.Hook, level logrus.Level, msg string) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Level == level && e.Message == msg {
			n++
		}
	}
	return n
}

func countCritical(hook *test.Hook) int {
	n := 0
	for _, e := range hook.AllEntries() {
		if e.Data[logging.CriticalField] == true {
			n++
		}
	}
	return n
}
