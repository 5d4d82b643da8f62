// internal/observability/logger_test.go
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

	"github.com/xkilldash9x/uiharness/internal/config"
)

// -- Test Helper Functions --

// bufferSyncer adapts a bytes.Buffer for use as a console writer.
type bufferSyncer struct {
	bytes.Buffer
}

func (b *bufferSyncer) Sync() error { return nil }

func initWithBuffer(t *testing.T, cfg config.LoggerConfig) *bufferSyncer {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	buf := &bufferSyncer{}
	Initialize(cfg, buf)
	return buf
}

// -- Test Cases --

func TestInitialize(t *testing.T) {
	t.Run("should initialize console logger with colors", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Info("This is a test message.")

		output := buf.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen, "Info level should be colorized green")
		assert.Contains(t, output, colorReset)
		assert.Contains(t, output, "TestService.")
	})

	t.Run("should initialize json logger", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry), "Log output should be valid JSON")
		assert.Equal(t, "warn", logEntry["level"])
		assert.Equal(t, "JSONTest", logEntry["logger"])
		assert.Equal(t, "This is a JSON message.", logEntry["msg"])
		assert.Equal(t, "value", logEntry["key"])
	})

	t.Run("should write to a log file if configured", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "harness.log")
		initWithBuffer(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		})

		GetLogger().Error("This should go to the file.")
		Sync()

		content, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(content), "This should go to the file.")
	})

	t.Run("should only initialize once", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "First"})
		logger1 := GetLogger()

		Initialize(config.LoggerConfig{Level: "debug", ServiceName: "Second"}, &bufferSyncer{})
		logger2 := GetLogger()

		assert.Equal(t, logger1, logger2)
		logger2.Info("test")

		assert.True(t, strings.Contains(buf.String(), "First"))
		assert.False(t, strings.Contains(buf.String(), "Second"))
	})
}

func TestForRun(t *testing.T) {
	t.Run("names the logger after client and environment", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "info", Format: "json", ServiceName: "uiharness"})

		logger := ForRun("levelup", "stage1", zapcore.DebugLevel)
		logger.Debug("Loaded env file.")

		var logEntry map[string]interface{}
		require.NoError(t, json.Unmarshal(buf.Bytes(), &logEntry))
		assert.Equal(t, "uiharness.levelup-stage1", logEntry["logger"])
		assert.Equal(t, "debug", logEntry["level"])
	})

	t.Run("level applies to the global logger too", func(t *testing.T) {
		buf := initWithBuffer(t, config.LoggerConfig{Level: "debug", Format: "json", ServiceName: "uiharness"})

		ForRun("levelup", "production", zapcore.ErrorLevel)
		assert.Equal(t, zapcore.ErrorLevel, Level())

		GetLogger().Warn("suppressed")
		assert.Empty(t, buf.String())
	})
}

func TestGetLogger(t *testing.T) {
	t.Run("should return a fallback logger if not initialized", func(t *testing.T) {
		ResetForTest()
		require.NotNil(t, GetLogger())
	})

	t.Run("should return the global logger after initialization", func(t *testing.T) {
		initWithBuffer(t, config.LoggerConfig{Level: "info", ServiceName: "GlobalTest"})
		assert.Equal(t, globalLogger.Load(), GetLogger())
	})
}
