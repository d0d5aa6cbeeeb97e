// Command photoflow runs an image processing pipeline described in HCL.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"

	"photoflow/internal/app"
	"photoflow/internal/config"
	"photoflow/internal/logging"
)

const (
	AppName    = "photoflow"
	AppVersion = "1.0.0"
)

// exitError carries the exit code of a usage problem.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.msg != "" {
				fmt.Fprintln(os.Stderr, exit.msg)
			}
			os.Exit(exit.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses args, builds the pipeline and runs it. Logs go to logW, usage to
// errW.
func run(ctx context.Context, args []string, logW, errW io.Writer) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return &exitError{code: 2, msg: err.Error()}
	}

	flags := flag.NewFlagSet(AppName, flag.ContinueOnError)
	flags.SetOutput(errW)
	flags.Usage = func() {
		fmt.Fprintf(errW, "Usage:\n  %s [options] PIPELINE.hcl\n\nOptions:\n", AppName)
		flags.PrintDefaults()
	}
	debugMode := flags.Bool("debug", false, "Enable debug mode with verbose logging")
	threads := flags.Int("threads", settings.Threads, "Goroutines per operator, 0 is one per CPU")
	logFormat := flags.String("log-format", settings.LogFormat, "Log output format: text or json")
	logLevel := flags.String("log-level", settings.LogLevel, "Log level: debug, info, warn or error")
	output := flags.String("output", settings.OutputDir, "Default directory of save operators")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return &exitError{code: 2, msg: err.Error()}
	}
	if flags.NArg() != 1 {
		flags.Usage()
		return &exitError{code: 2}
	}

	format := strings.ToLower(*logFormat)
	if format != "text" && format != "json" {
		return &exitError{code: 2, msg: "invalid log-format: must be 'text' or 'json'"}
	}
	level := strings.ToLower(*logLevel)
	if _, err := logrus.ParseLevel(level); err != nil {
		return &exitError{code: 2, msg: "invalid log-level: must be 'debug', 'info', 'warn' or 'error'"}
	}
	if *threads < 0 {
		return &exitError{code: 2, msg: "invalid threads: must not be negative"}
	}
	settings.Threads = *threads
	settings.LogFormat = format
	settings.LogLevel = level
	settings.OutputDir = *output

	logger := logging.NewLogrus(logging.Options{
		Level:  settings.LogLevel,
		Format: settings.LogFormat,
		Debug:  *debugMode,
		Output: logW,
	})
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": *debugMode,
		"pipeline":   flags.Arg(0),
		"threads":    settings.Threads,
	}).Info("Starting photoflow")

	pipeline, err := config.LoadPipeline(flags.Arg(0))
	if err != nil {
		logger.WithError(err).Error("Failed to load pipeline")
		return err
	}
	a, err := app.New(logger, settings, pipeline)
	if err != nil {
		logger.WithError(err).Error("Failed to build pipeline")
		return err
	}
	defer a.Close()

	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info("Shutting down gracefully")
	return nil
}
