package app

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"photoflow/internal/core"
	"photoflow/internal/engine"
)

// Run plays every sink of the pipeline, and the operators they depend on,
// logging each operator as it progresses.
func (a *App) Run(ctx context.Context) error {
	if len(a.ops) == 0 {
		a.logger.Warn("No operators in pipeline, nothing to run")
		return nil
	}

	var unsubs []func()
	defer func() {
		for _, u := range unsubs {
			u()
		}
	}()
	for _, op := range a.proc.Operators() {
		unsubs = append(unsubs, op.Subscribe(a.listener()))
	}

	start := time.Now()
	a.logger.WithFields(logrus.Fields{
		"operators": len(a.ops),
		"sinks":     len(a.proc.Sinks()),
	}).Info("Starting pipeline")

	if err := a.proc.RunAll(ctx); err != nil {
		a.logger.WithError(err).WithField("elapsed", time.Since(start).String()).Error("Pipeline failed")
		return fmt.Errorf("pipeline failed: %w", err)
	}
	a.logger.WithField("elapsed", time.Since(start).String()).Info("Pipeline finished")
	return nil
}

func (a *App) listener() engine.Listener {
	return engine.Listener{
		OnProgress: func(op *engine.Operator, p, c int) {
			a.logger.WithFields(logrus.Fields{
				"operator": op.Name(),
				"done":     p,
				"total":    c,
			}).Debug("Progress")
		},
		OnSuccess: func(op *engine.Operator, results [][]*core.Photo) {
			fields := logrus.Fields{"operator": op.Name()}
			for i, out := range op.Outputs() {
				if i < len(results) {
					fields[out.Name] = len(results[i])
				}
			}
			a.logger.WithFields(fields).Info("Operator succeeded")
		},
		OnFailure: func(op *engine.Operator, err error) {
			a.logger.WithFields(logrus.Fields{
				"operator": op.Name(),
			}).WithError(err).Error("Operator failed")
		},
		OnError: func(op *engine.Operator, identity string, err error) {
			a.logger.WithFields(logrus.Fields{
				"operator": op.Name(),
				"photo":    identity,
			}).WithError(err).Warn("Photo failed")
		},
	}
}
