// Package logging carries severity-tagged diagnostics from operators to logrus.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// CriticalField marks entries that report a broken invariant.
const CriticalField = "critical"

// OperatorField names the operator an entry comes from.
const OperatorField = "operator"

// Logger is the diagnostic sink injected into operators and workers.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warningf(format string, args ...any)
	Errorf(format string, args ...any)
	// Criticalf reports a defect: a protocol violation or a recovered panic.
	Criticalf(format string, args ...any)
}

// Entry adapts a logrus entry to Logger.
type Entry struct {
	entry *logrus.Entry
}

// New wraps base. A nil base discards everything.
func New(base *logrus.Logger) *Entry {
	if base == nil {
		base = Discard()
	}
	return &Entry{entry: logrus.NewEntry(base)}
}

// For returns a logger whose entries are tagged with the operator name.
func For(base *logrus.Logger, operator string) *Entry {
	return New(base).With(OperatorField, operator)
}

// With returns a copy carrying one more field.
func (e *Entry) With(key string, value any) *Entry {
	return &Entry{entry: e.entry.WithField(key, value)}
}

func (e *Entry) Debugf(format string, args ...any)   { e.entry.Debugf(format, args...) }
func (e *Entry) Infof(format string, args ...any)    { e.entry.Infof(format, args...) }
func (e *Entry) Warningf(format string, args ...any) { e.entry.Warnf(format, args...) }
func (e *Entry) Errorf(format string, args ...any)   { e.entry.Errorf(format, args...) }

// Criticalf logs at error level with the critical field set; logrus has no
// level between error and fatal that does not exit.
func (e *Entry) Criticalf(format string, args ...any) {
	e.entry.WithField(CriticalField, true).Errorf(format, args...)
}

// Discard returns a logrus logger that writes nowhere.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// Options configures NewLogrus.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // json or text
	Debug  bool
	Output io.Writer
}

// NewLogrus builds the process logger: JSON entries by default, colored text
// with full timestamps in debug mode.
func NewLogrus(opts Options) *logrus.Logger {
	logger := logrus.New()
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	level, err := logrus.ParseLevel(opts.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	if opts.Debug {
		level = logrus.DebugLevel
	}
	logger.SetLevel(level)

	if opts.Debug || opts.Format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   opts.Debug,
		})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger
}
