package logger

// Logger is the minimal structured logging surface the authorization
// engine needs. Keyvals alternate key, value.
type Logger interface {
	Error(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Debug(msg string, keyvals ...any)
}

// TraceIDFunc produces a correlation ID attached to every decision log.
// Implementations must be safe for concurrent use.
type TraceIDFunc func() string
