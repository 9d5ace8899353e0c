package utils

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected LogLevel
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{"unknown", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLogLevel(tt.input))
		})
	}
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", LogLevel(99).String())
}

func TestDefaultLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelWarn, &buf)

	logger.Debug("debug message")
	logger.Info("info message")
	logger.Warn("warn %d", 1)
	logger.Error("error %s", "two")

	out := buf.String()
	assert.NotContains(t, out, "debug message")
	assert.NotContains(t, out, "info message")
	assert.Contains(t, out, "[WARN] warn 1")
	assert.Contains(t, out, "[ERROR] error two")
}

func TestDefaultLogger_WithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelDebug, &buf)

	child := logger.WithField("worker", 3).WithFields(map[string]interface{}{"phase": "init-update-refs"})
	child.Info("claimed %s", "thread-roots")

	line := buf.String()
	assert.Contains(t, line, "phase=init-update-refs worker=3 claimed thread-roots")

	buf.Reset()
	logger.Info("parent")
	assert.False(t, strings.Contains(buf.String(), "worker="))
}

func TestDefaultLogger_PercentWithoutArgs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDefaultLogger(LevelInfo, &buf)

	logger.Info("100% done")
	assert.Contains(t, buf.String(), "100% done")
}

func TestNullLogger(t *testing.T) {
	var logger Logger = &NullLogger{}
	logger.Info("ignored")
	assert.Same(t, logger, logger.WithField("k", "v"))
}
