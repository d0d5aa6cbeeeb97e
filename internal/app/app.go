package app

import (
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/zclconf/go-cty/cty"

	"photoflow/internal/config"
	"photoflow/internal/engine"
	"photoflow/internal/operators"
	"photoflow/internal/process"
)

// ErrPort reports a pipeline port that the operator type does not have.
var ErrPort = errors.New("no such port")

// App holds a built pipeline.
type App struct {
	logger   *logrus.Logger
	settings config.Settings
	pipeline *config.Pipeline
	proc     *process.Process
	ops      map[string]*engine.Operator
}

// New builds every operator of pipeline and connects them. On error the
// operators built so far are closed.
func New(logger *logrus.Logger, settings config.Settings, pipeline *config.Pipeline) (*App, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	a := &App{
		logger:   logger,
		settings: settings,
		pipeline: pipeline,
		proc:     process.New(logger),
		ops:      make(map[string]*engine.Operator),
	}
	if err := a.build(); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Process returns the graph built from the pipeline.
func (a *App) Process() *process.Process { return a.proc }

// Operator returns the operator named name, or nil.
func (a *App) Operator(name string) *engine.Operator { return a.ops[name] }

// Close stops and releases every operator.
func (a *App) Close() { a.proc.Close() }

func (a *App) threads(spec *config.OperatorSpec) int {
	switch {
	case spec.Threads > 0:
		return spec.Threads
	case a.pipeline.Threads > 0:
		return a.pipeline.Threads
	default:
		return a.settings.Threads
	}
}

func (a *App) build() error {
	for _, spec := range a.pipeline.Operators {
		op, err := operators.New(spec.Type, engine.Options{
			Logger:  a.logger,
			Threads: a.threads(spec),
			Name:    spec.Name,
		})
		if err != nil {
			return fmt.Errorf("%s: %w", spec.Range, err)
		}
		a.proc.Add(op)
		a.ops[spec.Name] = op

		if err := a.configure(op, spec); err != nil {
			return fmt.Errorf("operator %q: %w", spec.Name, err)
		}
	}
	for _, spec := range a.pipeline.Operators {
		if err := a.connect(spec); err != nil {
			return fmt.Errorf("operator %q: %w", spec.Name, err)
		}
	}
	a.logger.WithFields(logrus.Fields{
		"operators": len(a.ops),
		"edges":     len(a.proc.Edges()),
	}).Debug("Pipeline built")
	return nil
}

// configure sets the parameters and output status of op.
func (a *App) configure(op *engine.Operator, spec *config.OperatorSpec) error {
	names := make([]string, 0, len(spec.Params))
	for name := range spec.Params {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := op.SetParameter(name, spec.Params[name]); err != nil {
			return err
		}
	}
	if _, ok := spec.Params["directory"]; !ok && op.Parameter("directory") != nil && a.settings.OutputDir != "" {
		if err := op.SetParameter("directory", cty.StringVal(a.settings.OutputDir)); err != nil {
			return err
		}
	}
	for _, name := range spec.DisabledOutputs {
		idx, err := outputIndex(op, name)
		if err != nil {
			return err
		}
		if err := op.SetOutputStatus(idx, engine.Disabled); err != nil {
			return err
		}
	}
	return nil
}

// connect binds the declared inputs in sorted port order, sources in file order.
func (a *App) connect(spec *config.OperatorSpec) error {
	dst := a.ops[spec.Name]
	ports := make([]string, 0, len(spec.Inputs))
	for port := range spec.Inputs {
		ports = append(ports, port)
	}
	slices.Sort(ports)
	for _, port := range ports {
		in, err := inputIndex(dst, port)
		if err != nil {
			return err
		}
		for _, ref := range spec.Inputs[port] {
			name, output := config.SplitSource(ref)
			src := a.ops[name]
			if src == nil {
				return fmt.Errorf("input %q: unknown operator %q", port, name)
			}
			out, err := outputIndex(src, output)
			if err != nil {
				return fmt.Errorf("input %q: %w", port, err)
			}
			if err := a.proc.Connect(src, out, dst, in); err != nil {
				return fmt.Errorf("input %q from %s: %w", port, ref, err)
			}
		}
	}
	return nil
}

func inputIndex(op *engine.Operator, port string) (int, error) {
	key := config.PortKey(port)
	for i, in := range op.Inputs() {
		if config.PortKey(in.Name) == key {
			return i, nil
		}
	}
	if i, err := strconv.Atoi(port); err == nil && i >= 0 && i < len(op.Inputs()) {
		return i, nil
	}
	return 0, fmt.Errorf("input %q of %s: %w", port, op.Type(), ErrPort)
}

// outputIndex resolves an output by name or index; empty means the first.
func outputIndex(op *engine.Operator, output string) (int, error) {
	if output == "" && len(op.Outputs()) > 0 {
		return 0, nil
	}
	key := config.PortKey(output)
	for i, out := range op.Outputs() {
		if config.PortKey(out.Name) == key {
			return i, nil
		}
	}
	if i, err := strconv.Atoi(output); err == nil && i >= 0 && i < len(op.Outputs()) {
		return i, nil
	}
	return 0, fmt.Errorf("output %q of %s: %w", output, op.Type(), ErrPort)
}
