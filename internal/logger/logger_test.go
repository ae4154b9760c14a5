package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"debug", LevelDebug},
		{"DEBUG", LevelDebug},
		{"info", LevelInfo},
		{"warn", LevelWarn},
		{"warning", LevelWarn},
		{"ERROR", LevelError},
		{" Warn ", LevelWarn},
		{"none", LevelNone},
		{"invalid", LevelInfo}, // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "NONE", LevelNone.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(content)
}

func TestNewLoggerWritesPrefixedLines(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "turingd.log")

	l, err := New(LevelInfo, logPath, "state")
	require.NoError(t, err)

	l.Info("user %s registered", "alice")
	l.Debug("should not appear")
	require.NoError(t, l.Close())

	content := readLog(t, logPath)
	assert.Contains(t, content, "[state] user alice registered")
	assert.Contains(t, content, "INFO")
	assert.NotContains(t, content, "should not appear")
}

func TestLoggerWithPrefix(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	l, err := New(LevelInfo, logPath, "server")
	require.NoError(t, err)

	l.WithPrefix("conn-1").Warn("bad frame")
	require.NoError(t, l.Close())

	assert.Contains(t, readLog(t, logPath), "[server:conn-1] bad frame")
}

func TestSetLevelAppliesToChildren(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "test.log")

	l, err := New(LevelInfo, logPath, "")
	require.NoError(t, err)
	child := l.WithPrefix("child")

	child.Debug("debug1")
	l.SetLevel(LevelDebug)
	child.Debug("debug2")
	assert.Equal(t, LevelDebug, child.GetLevel())
	require.NoError(t, l.Close())

	content := readLog(t, logPath)
	assert.NotContains(t, content, "debug1")
	assert.Contains(t, content, "debug2")
}

func TestLoggerDisabled(t *testing.T) {
	l, err := New(LevelNone, "", "test")
	require.NoError(t, err)

	// None of these may panic
	l.Debug("debug")
	l.Info("info")
	l.Warn("warn")
	l.Error("error")
	assert.NoError(t, l.Close())
}

func TestGlobalLogger(t *testing.T) {
	require.NotNil(t, Global())

	Debug("debug")
	Info("info")
	Warn("warn")
	Error("error")
}
