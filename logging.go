// logging.go - structured logging interface for the reactor package.
//
// Package-level configuration for structured logging, mirroring the
// pattern used throughout this pack: a small Logger interface that
// external code can satisfy with zerolog/zap/slog, plus a low-overhead
// built-in implementation for programs that don't want the dependency.
//
// Usage:
//
//	reactor.SetStructuredLogger(reactor.NewDefaultLogger(reactor.LevelInfo))
//
// Design decision: package-level global is appropriate here because
// logging is an infrastructure cross-cutting concern, every Reactor and
// Resolver in a process shares logging semantics, and it avoids bloating
// every constructor's option surface with a mandatory logger argument.
package reactor

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

var globalLogger struct {
	sync.RWMutex
	logger Logger
}

// SetStructuredLogger sets the global structured logger used when no
// per-instance logger is configured via WithLogger: a Reactor picks it up
// when New runs, the dns package at each log call.
func SetStructuredLogger(logger Logger) {
	globalLogger.Lock()
	defer globalLogger.Unlock()
	globalLogger.logger = logger
}

func getGlobalLogger() Logger {
	globalLogger.RLock()
	defer globalLogger.RUnlock()
	if globalLogger.logger != nil {
		return globalLogger.logger
	}
	return NewNoOpLogger()
}

// GlobalLogger returns the logger set by SetStructuredLogger, or a no-op
// logger if none has been set. Other packages in this module (e.g. dns)
// that accept a per-instance Logger fall back to this so a single
// SetStructuredLogger call produces consistent logs everywhere.
func GlobalLogger() Logger {
	return getGlobalLogger()
}

// LogLevel represents the severity of a log message.
type LogLevel int32

const (
	// LevelDebug is for per-fd/per-timer diagnostic detail (e.g. collapsed
	// DNS engine error codes per §7, "detail is logged at debug level only").
	LevelDebug LogLevel = iota
	// LevelInfo is for lifecycle events: reactor init, channel init/reinit.
	LevelInfo
	// LevelWarn is for recoverable conditions: an interrupted wait, a channel went dirty.
	LevelWarn
	// LevelError is for operation failures: backend syscalls, submission failures.
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", int32(l))
	}
}

// LogEntry is a single structured log record.
type LogEntry struct {
	Level     LogLevel
	Category  string // "reactor", "fd", "backend", "dns"
	FD        int    // 0 if not fd-related; 0 is also a valid fd so callers must check Category
	TimerID   int32
	Message   string
	Context   map[string]any
	Err       error
	Timestamp time.Time
}

// Logger is the structured logging interface. Implement this to bridge
// into zerolog, zap, slog, or any other framework.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// NewNoOpLogger returns a Logger that discards everything. This is the
// default when no logger has been configured.
func NewNoOpLogger() Logger { return noOpLogger{} }

type noOpLogger struct{}

func (noOpLogger) Log(LogEntry)          {}
func (noOpLogger) IsEnabled(LogLevel) bool { return false }

// DefaultLogger is a minimal built-in Logger writing to an io.Writer.
// It prints plain, single-line records; programs that need structured
// JSON or log aggregation should supply their own Logger.
type DefaultLogger struct {
	mu    sync.Mutex
	level LogLevel
	out   io.Writer
}

// NewDefaultLogger creates a Logger writing to os.Stderr at the given
// minimum level.
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return &DefaultLogger{level: level, out: os.Stderr}
}

// NewWriterLogger creates a Logger writing to an arbitrary io.Writer.
func NewWriterLogger(w io.Writer, level LogLevel) *DefaultLogger {
	return &DefaultLogger{level: level, out: w}
}

// IsEnabled reports whether level would be logged.
func (l *DefaultLogger) IsEnabled(level LogLevel) bool {
	return level >= l.level
}

// Log writes a structured log entry as a single line.
func (l *DefaultLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	fmt.Fprintf(l.out, "%s %-5s [%s] %s",
		entry.Timestamp.Format("15:04:05.000"),
		entry.Level,
		entry.Category,
		entry.Message,
	)
	if entry.Category == "fd" || entry.FD != 0 {
		fmt.Fprintf(l.out, " fd=%d", entry.FD)
	}
	if entry.TimerID != 0 {
		fmt.Fprintf(l.out, " timer=%d", entry.TimerID)
	}
	for k, v := range entry.Context {
		fmt.Fprintf(l.out, " %s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.out, " err=%v", entry.Err)
	}
	fmt.Fprintln(l.out)
}

func logDebug(l Logger, category, message string, kv ...any) {
	logAt(l, LevelDebug, category, message, nil, kv...)
}

func logInfo(l Logger, category, message string, kv ...any) {
	logAt(l, LevelInfo, category, message, nil, kv...)
}

func logWarn(l Logger, category, message string, err error, kv ...any) {
	logAt(l, LevelWarn, category, message, err, kv...)
}

func logError(l Logger, category, message string, err error, kv ...any) {
	logAt(l, LevelError, category, message, err, kv...)
}

func logAt(l Logger, level LogLevel, category, message string, err error, kv ...any) {
	if l == nil {
		l = getGlobalLogger()
	}
	if !l.IsEnabled(level) {
		return
	}
	var ctx map[string]any
	if len(kv) > 0 {
		ctx = make(map[string]any, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, _ := kv[i].(string)
			ctx[key] = kv[i+1]
		}
	}
	l.Log(LogEntry{
		Level:    level,
		Category: category,
		Message:  message,
		Context:  ctx,
		Err:      err,
	})
}
