package dns

import "github.com/nat-halliday/go-reactor"

// Logging here reuses the reactor package's Logger/LogEntry types rather
// than defining a second logging contract: a process wiring
// reactor.SetStructuredLogger once gets consistent logs from both the
// reactor and its resolvers.

func logAt(l reactor.Logger, level reactor.LogLevel, message string, err error, kv ...any) {
	if l == nil {
		l = reactor.GlobalLogger()
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
	l.Log(reactor.LogEntry{
		Level:    level,
		Category: "dns",
		Message:  message,
		Context:  ctx,
		Err:      err,
	})
}

func logDebug(l reactor.Logger, message string, kv ...any) {
	logAt(l, reactor.LevelDebug, message, nil, kv...)
}

func logInfo(l reactor.Logger, message string, kv ...any) {
	logAt(l, reactor.LevelInfo, message, nil, kv...)
}

func logWarn(l reactor.Logger, message string, err error, kv ...any) {
	logAt(l, reactor.LevelWarn, message, err, kv...)
}

func logError(l reactor.Logger, message string, err error, kv ...any) {
	logAt(l, reactor.LevelError, message, err, kv...)
}
