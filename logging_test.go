package reactor

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	l := NewNoOpLogger()
	assert.False(t, l.IsEnabled(LevelError))
	l.Log(LogEntry{Level: LevelError, Message: "should not panic"})
}

func TestWriterLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWriterLogger(&buf, LevelWarn)

	assert.False(t, l.IsEnabled(LevelDebug))
	assert.True(t, l.IsEnabled(LevelWarn))

	l.Log(LogEntry{Level: LevelDebug, Message: "dropped"})
	assert.Empty(t, buf.String())

	l.Log(LogEntry{Level: LevelError, Message: "fd upsert failed", FD: 4})
	assert.Contains(t, buf.String(), "fd upsert failed")
	assert.Contains(t, buf.String(), "fd=4")
}

func TestSetStructuredLoggerChangesGlobal(t *testing.T) {
	var buf bytes.Buffer
	custom := NewWriterLogger(&buf, LevelDebug)

	SetStructuredLogger(custom)
	t.Cleanup(func() { SetStructuredLogger(nil) })

	logInfo(nil, "test", "hello from global logger")
	assert.Contains(t, buf.String(), "hello from global logger")
}

func TestLogLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
}
