package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/lancet/internal/config"
)

// syncBuffer adapts a bytes.Buffer to zapcore.WriteSyncer for capturing
// console output.
type syncBuffer struct {
	bytes.Buffer
}

func (b *syncBuffer) Sync() error { return nil }

func TestInitializeConsoleColors(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "lancet-test",
		Colors:      config.ColorConfig{Info: "green"},
	}, buf)

	GetLogger().Info("scan starting")
	Sync()

	out := buf.String()
	assert.Contains(t, out, "INFO")
	assert.Contains(t, out, "scan starting")
	assert.Contains(t, out, colorGreen)
	assert.Contains(t, out, colorReset)
}

func TestInitializeJSONFormat(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{
		Level:       "info",
		Format:      "json",
		ServiceName: "lancet-test",
	}, buf)

	GetLogger().Warn("flows detected", zap.Int("count", 3))
	Sync()

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "lancet-test", entry["logger"])
	assert.Equal(t, "flows detected", entry["msg"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestInitializeLogFile(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	path := filepath.Join(t.TempDir(), "lancet.log")
	Initialize(config.LoggerConfig{
		Level:   "debug",
		Format:  "json",
		LogFile: path,
		MaxSize: 1,
	}, zapcore.AddSync(&syncBuffer{}))

	GetLogger().Error("report write failed")
	Sync()

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "report write failed",
		"the file core receives every entry as JSON")
}

func TestInitializeOnce(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "info", ServiceName: "first"}, buf)
	first := GetLogger()

	Initialize(config.LoggerConfig{Level: "debug", ServiceName: "second"}, buf)
	second := GetLogger()
	assert.Same(t, first, second)

	second.Info("ready")
	Sync()
	assert.True(t, strings.Contains(buf.String(), "first"))
	assert.False(t, strings.Contains(buf.String(), "second"))
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "shouting", Format: "json"}, buf)

	GetLogger().Debug("hidden")
	GetLogger().Info("visible")
	Sync()

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "visible")
}

func TestGetLoggerFallback(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger, "an uninitialized logger still logs somewhere")

	Initialize(config.LoggerConfig{Level: "info"}, &syncBuffer{})
	assert.Same(t, globalLogger.Load(), GetLogger())
}
