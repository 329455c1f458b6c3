package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/ygulsen/applypilot/internal/config"
)

// memorySink lets tests capture console output.
type memorySink struct{ bytes.Buffer }

func (m *memorySink) Sync() error { return nil }

func TestInitializeWritesNamedConsoleOutput(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memorySink{}
	Initialize(config.LoggerConfig{Level: "debug", Format: "console", ServiceName: "applypilot"}, zapcore.Lock(sink))

	GetLogger().Named("walker").Info("focused control")

	out := sink.String()
	assert.Contains(t, out, "applypilot.walker.")
	assert.Contains(t, out, "focused control")
}

func TestInitializeJSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memorySink{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "applypilot"}, zapcore.Lock(sink))

	GetLogger().Info("queue loaded")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(sink.Bytes(), &entry))
	assert.Equal(t, "INFO", entry["level"])
	assert.Equal(t, "queue loaded", entry["msg"])
}

func TestInitializeRunsOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	first := &memorySink{}
	second := &memorySink{}
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "a"}, zapcore.Lock(first))
	Initialize(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "b"}, zapcore.Lock(second))

	GetLogger().Info("only the first sink sees this")
	assert.NotEmpty(t, first.String())
	assert.Empty(t, second.String())
}

func TestBadLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	sink := &memorySink{}
	Initialize(config.LoggerConfig{Level: "shouty", Format: "json", ServiceName: "applypilot"}, zapcore.Lock(sink))

	GetLogger().Debug("suppressed")
	assert.Empty(t, sink.String())
	GetLogger().Info("visible")
	assert.Contains(t, sink.String(), "visible")
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)
	assert.NotNil(t, GetLogger())
}
