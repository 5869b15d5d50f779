package log

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerWritesTypedFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(core), LevelDebug)

	l.With(String("loop", "main")).Error("updatable panicked",
		Int64("tick", 42),
		Error(errors.New("boom")),
		Float64("time_scale", 0.5),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "updatable panicked", entry.Message)
	ctx := entry.ContextMap()
	assert.Equal(t, "main", ctx["loop"])
	assert.Equal(t, int64(42), ctx["tick"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, 0.5, ctx["time_scale"])
}

func TestNilErrorFieldIsSkipped(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(core), LevelDebug)

	l.Info("no error", Error(nil))

	require.Equal(t, 1, logs.Len())
	_, ok := logs.All()[0].ContextMap()["error"]
	assert.False(t, ok)
}

func TestLogRespectsLevel(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewFromZap(zap.New(core), LevelWarn)

	l.Log(LevelInfo, "dropped")
	l.Log(LevelError, "kept")
	assert.Equal(t, 1, logs.Len())

	l.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, l.GetLevel())
	l.Log(LevelDebug, "kept too")
	assert.Equal(t, 2, logs.Len())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("debug"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel("ERROR"))
	assert.Equal(t, LevelInfo, ParseLevel("bogus"))
	assert.Equal(t, "warn", LevelWarn.String())
}
