package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photoflow/internal/config"
	"photoflow/internal/engine"
	"photoflow/internal/process"
)

func build(t *testing.T, settings config.Settings, src string) (*App, *test.Hook, error) {
	t.Helper()
	pipeline, err := config.ParsePipeline([]byte(src), "test.hcl")
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	a, err := New(logger, settings, pipeline)
	if a != nil {
		t.Cleanup(a.Close)
	}
	return a, hook, err
}

func run(t *testing.T, a *App) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Run(ctx)
}

// messages returns the entries logged with msg, keyed by operator.
func messages(hook *test.Hook, msg string) map[string]*logrus.Entry {
	found := make(map[string]*logrus.Entry)
	for _, e := range hook.AllEntries() {
		if e.Message == msg {
			if name, ok := e.Data["operator"].(string); ok {
				found[name] = e
			}
		}
	}
	return found
}

func TestRunSavesIntoOutputDir(t *testing.T) {
	dir := t.TempDir()
	a, hook, err := build(t, config.Settings{Threads: 2, OutputDir: dir}, `
operator "color" "red" {
  green = 0.5
  blue  = 0.25
}

operator "gamma" "encode" {
  inputs = { images = ["red"] }
  preset = "srgb"
}

operator "save" "out" {
  inputs = { images = ["encode"] }
  format = "png"
}
`)
	require.NoError(t, err)
	require.NoError(t, run(t, a))

	_, err = os.Stat(filepath.Join(dir, "Color.png"))
	assert.NoError(t, err)

	ok := messages(hook, "Operator succeeded")
	assert.Len(t, ok, 3)
	assert.Equal(t, 1, ok["out"].Data["Images"])
	assert.Empty(t, messages(hook, "Operator failed"))

	// a second run has nothing out of date
	hook.Reset()
	require.NoError(t, run(t, a))
	assert.Empty(t, messages(hook, "Operator succeeded"))
}

func TestNewResolvesPorts(t *testing.T) {
	a, _, err := build(t, config.Settings{}, `
operator "color" "light" {}
operator "color" "flat" {
  red = 0.5
}

operator "flat_field" "ff" {
  inputs = {
    uneven_images = ["light"]
    "Flat-field"  = ["flat.Color"]
  }
  disabled_outputs = ["Overflow"]
}

operator "compare" "cmp" {
  inputs = {
    images    = ["ff.flattened"]
    reference = ["light.0"]
  }
}
`)
	require.NoError(t, err)

	light, flat, ff, cmp := a.Operator("light"), a.Operator("flat"), a.Operator("ff"), a.Operator("cmp")
	require.NotNil(t, light)
	assert.ElementsMatch(t, []process.Edge{
		{From: light, Output: 0, To: ff, Input: 0},
		{From: flat, Output: 0, To: ff, Input: 1},
		{From: ff, Output: 0, To: cmp, Input: 0},
		{From: light, Output: 0, To: cmp, Input: 1},
	}, a.Process().Edges())
	assert.Equal(t, engine.Disabled, ff.Output(1).Status())
	assert.Equal(t, engine.Enabled, ff.Output(0).Status())
	assert.Equal(t, []*engine.Operator{cmp}, a.Process().Sinks())

	require.NoError(t, run(t, a))
	require.Len(t, ff.Output(0).Result(), 1)
	assert.Empty(t, ff.Output(1).Result())
	assert.NotEmpty(t, cmp.Output(0).Result()[0].Tag("PSNR"))
}

func TestThreadsPrecedence(t *testing.T) {
	a, _, err := build(t, config.Settings{Threads: 5}, `
settings {
  threads = 3
}

operator "color" "a" {
  threads = 2
}
operator "color" "b" {}
`)
	require.NoError(t, err)
	assert.Equal(t, 2, a.Operator("a").Threads())
	assert.Equal(t, 3, a.Operator("b").Threads())

	a, _, err = build(t, config.Settings{Threads: 5}, `operator "color" "c" {}`)
	require.NoError(t, err)
	assert.Equal(t, 5, a.Operator("c").Threads())
}

func TestExplicitDirectoryWins(t *testing.T) {
	dir := t.TempDir()
	a, _, err := build(t, config.Settings{OutputDir: "ignored"}, `
operator "color" "c" {}
operator "save" "s" {
  inputs    = { images = ["c"] }
  directory = "`+filepath.ToSlash(dir)+`"
}
`)
	require.NoError(t, err)
	assert.Equal(t, filepath.ToSlash(dir), a.Operator("s").Parameter("directory").Value().AsString())
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "unknown type",
			src:  `operator "sharpen" "b" {}`,
			want: "operator type not found: sharpen",
		},
		{
			name: "unknown parameter",
			src:  `operator "color" "c" { alpha = 1 }`,
			want: `unknown parameter "alpha"`,
		},
		{
			name: "out of range",
			src:  `operator "color" "c" { red = 2 }`,
			want: "out of range",
		},
		{
			name: "unknown input port",
			src: `
operator "color" "c" {}
operator "gamma" "g" { inputs = { pictures = ["c"] } }`,
			want: "no such port",
		},
		{
			name: "unknown output",
			src: `
operator "color" "c" {}
operator "gamma" "g" { inputs = { images = ["c.missing"] } }`,
			want: `output "missing" of color`,
		},
		{
			name: "unknown disabled output",
			src:  `operator "color" "c" { disabled_outputs = ["Nope"] }`,
			want: "no such port",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, _, err := build(t, config.Settings{}, tt.src)
			assert.Nil(t, a)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestNewRefusesCycles(t *testing.T) {
	_, _, err := build(t, config.Settings{}, `
operator "gamma" "a" { inputs = { images = ["b"] } }
operator "gamma" "b" { inputs = { images = ["a"] } }
`)
	assert.ErrorIs(t, err, process.ErrCycle)
}

func TestRunReportsFailure(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	a, hook, err := build(t, config.Settings{OutputDir: filepath.Join(file, "sub")}, `
operator "color" "c" {}
operator "save" "s" {
  inputs = { images = ["c"] }
}
`)
	require.NoError(t, err)

	err = run(t, a)
	assert.ErrorContains(t, err, "failed to create output directory")
	failed := messages(hook, "Operator failed")
	require.Contains(t, failed, "s")
	assert.Equal(t, logrus.ErrorLevel, failed["s"].Level)
	assert.Contains(t, messages(hook, "Operator succeeded"), "c")
}

func TestRunEmptyPipeline(t *testing.T) {
	a, hook, err := build(t, config.Settings{}, ``)
	require.NoError(t, err)
	require.NoError(t, run(t, a))
	assert.Equal(t, "No operators in pipeline, nothing to run", hook.LastEntry().Message)
}
