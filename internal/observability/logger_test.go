// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/dualview/internal/config"
)

// initBuffered initializes the global logger against an in-memory writer.
func initBuffered(t *testing.T, cfg config.LoggerConfig) *bytes.Buffer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	var buf bytes.Buffer
	Initialize(cfg, zapcore.AddSync(&buf))
	return &buf
}

func TestInitialize(t *testing.T) {
	t.Run("console logger with colors", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "dualview",
			Colors:      config.ColorConfig{Info: "green"},
		})
		GetLogger().Named("coordinator").Info("Frame mirroring enabled.")
		Sync()

		out := buf.String()
		assert.Contains(t, out, "INFO")
		assert.Contains(t, out, "Frame mirroring enabled.")
		assert.Contains(t, out, colorMap["green"])
		assert.Contains(t, out, colorReset)
		assert.Contains(t, out, "dualview.coordinator.")
	})

	t.Run("console level without a color stays plain", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "debug", Format: "console"})
		GetLogger().Warn("plain")
		Sync()
		assert.Contains(t, buf.String(), "WARN")
		assert.NotContains(t, buf.String(), colorReset)
	})

	t.Run("json logger", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "JSONTest"})
		GetLogger().Warn("Frame status changed.", zap.String("frame", "mobile"))
		Sync()

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "output should be valid JSON")
		assert.Equal(t, "WARN", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "Frame status changed.", entry["msg"])
		assert.Equal(t, "mobile", entry["frame"])
	})

	t.Run("level filtering and bad level fallback", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "loud", Format: "json"})
		GetLogger().Debug("hidden")
		GetLogger().Info("shown")
		Sync()
		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("writes to a rotating log file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "dualview.log")
		initBuffered(t, config.LoggerConfig{Level: "debug", Format: "console", LogFile: path, MaxSize: 1})
		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(content), `"msg":"This should go to the file."`)
	})

	t.Run("only the first call counts", func(t *testing.T) {
		buf := initBuffered(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "First"})
		first := GetLogger()

		var other bytes.Buffer
		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, zapcore.AddSync(&other))
		second := GetLogger()

		assert.Same(t, first, second)
		second.Info("test")
		Sync()
		assert.Contains(t, buf.String(), "First")
		assert.NotContains(t, buf.String(), "Second")
		assert.Zero(t, other.Len())
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("fallback before initialization", func(t *testing.T) {
		ResetForTest()
		assert.NotNil(t, GetLogger())
		assert.NotPanics(t, Sync)
	})

	t.Run("global logger after initialization", func(t *testing.T) {
		initBuffered(t, config.LoggerConfig{Level: "info", Format: "json"})
		assert.Same(t, globalLogger.Load(), GetLogger())
	})
}
