package logx

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	require.True(t, l.IsZero())
	l.Info("nothing happens", String("k", "v"))
	assert.False(t, l.With(String("a", "b")).IsZero())
}

func TestWriterLoggerFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").With(String("comp", "test"))
	l.Info("hello", Int("n", 3))

	out := buf.String()
	assert.Contains(t, out, `"comp":"test"`)
	assert.Contains(t, out, `"n":3`)
	assert.Contains(t, out, `"message":"hello"`)
}

func TestLevelFilter(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "warn")
	l.Debug("hidden")
	l.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestThrottledDropsOverBudget(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "debug").Throttled(rate.NewLimiter(0, 2))
	for i := 0; i < 5; i++ {
		l.Warn("noisy")
	}
	assert.Equal(t, 2, strings.Count(buf.String(), "noisy"))
}

func TestThrottledIgnoresDisabledLevels(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := NewWriter(&buf, "info").Throttled(rate.NewLimiter(0, 1))
	l.Debug("skipped")
	l.Info("kept")
	assert.Contains(t, buf.String(), "kept")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, LevelWarn, parseLevel(" warning ", LevelInfo))
	assert.Equal(t, LevelInfo, parseLevel("bogus", LevelInfo))
	assert.Equal(t, LevelTrace, parseLevel("TRACE", LevelInfo))
}

func TestServiceApplyFileSink(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tkd.log")
	svc, log := New(Config{Level: "info", File: FileConfig{Enabled: true, Path: path}})
	log.With(String("comp", "test")).Info("to file")
	log.Debug("below level")

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	log.Debug("after apply")
	require.NoError(t, svc.Close())
	require.NoError(t, svc.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.Contains(t, out, `"message":"to file"`)
	assert.Contains(t, out, `"comp":"test"`)
	assert.NotContains(t, out, "below level")
	assert.Contains(t, out, "after apply")
	assert.Equal(t, "debug", svc.Config().Level)
}

func TestStdoutSinkFormat(t *testing.T) {
	t.Parallel()
	_, isConsole := stdoutSink("console").(zerolog.ConsoleWriter)
	assert.True(t, isConsole)
	_, isConsole = stdoutSink(" JSON ").(zerolog.ConsoleWriter)
	assert.False(t, isConsole)
	assert.False(t, isTerminal(&bytes.Buffer{}))
}

func TestErrNilAddsNothing(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	NewWriter(&buf, "debug").Info("ok", Err(nil))
	assert.NotContains(t, buf.String(), `"err"`)
}
