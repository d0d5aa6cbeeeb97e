package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForTagsOperator(t *testing.T) {
	base, hook := test.NewNullLogger()
	base.SetLevel(logrus.DebugLevel)
	log := For(base, "gamma")

	log.Debugf("d %d", 1)
	log.Infof("i")
	log.Warningf("w")
	log.Errorf("e")

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	levels := []logrus.Level{logrus.DebugLevel, logrus.InfoLevel, logrus.WarnLevel, logrus.ErrorLevel}
	for i, e := range entries {
		assert.Equal(t, levels[i], e.Level)
		assert.Equal(t, "gamma", e.Data[OperatorField])
		assert.NotContains(t, e.Data, CriticalField)
	}
	assert.Equal(t, "d 1", entries[0].Message)
}

func TestCriticalf(t *testing.T) {
	base, hook := test.NewNullLogger()
	For(base, "load").Criticalf("signalled %s twice", "success")

	e := hook.LastEntry()
	require.NotNil(t, e)
	assert.Equal(t, logrus.ErrorLevel, e.Level)
	assert.Equal(t, true, e.Data[CriticalField])
	assert.Equal(t, "signalled success twice", e.Message)
}

func TestNilBaseDiscards(t *testing.T) {
	assert.NotPanics(t, func() { New(nil).Errorf("nothing") })
}

func TestNewLogrus(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogrus(Options{Level: "warn", Output: &buf})
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.WithField("k", "v").Warn("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "v", entry["k"])

	debug := NewLogrus(Options{Level: "error", Debug: true, Output: &buf})
	assert.Equal(t, logrus.DebugLevel, debug.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, debug.Formatter)

	fallback := NewLogrus(Options{Level: "loud", Format: "text", Output: &buf})
	assert.Equal(t, logrus.InfoLevel, fallback.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, fallback.Formatter)
}
