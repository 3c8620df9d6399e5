package log

import (
	"context"
	"log/slog"
	"time"
)

// Level is the severity of a log entry, ordered so a numeric comparison
// against a configured minimum decides whether to emit.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String renders the level the way it appears in log output.
func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Fields is a bag of structured attributes attached to a log entry.
type Fields map[string]interface{}

// Context keys ContextExtractor looks up to attach request/trace identity
// and the current component/operation to a request-scoped Logger (see
// WithContext). WithComponent sets the ComponentKey field.
const (
	RequestIDKey = "request_id"
	TraceIDKey   = "trace_id"
	SpanIDKey    = "span_id"
	ComponentKey = "component"
	OperationKey = "operation"
)

// Entry is one fully-assembled log record, handed to a Formatter and then
// every configured Output.
type Entry struct {
	Level     Level
	Message   string
	Fields    Fields
	Timestamp time.Time
	Caller    string
	Error     error
}

// Logger is the logging surface Base, Manager, and Projector depend on.
// Everything is returned as a new Logger (WithField, WithComponent, ...) so
// a call chain can layer context without mutating a shared instance.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Fatal(msg string, fields ...Field)

	Debugf(msg string, args ...interface{})
	Infof(msg string, args ...interface{})
	Warnf(msg string, args ...interface{})
	Errorf(msg string, args ...interface{})
	Fatalf(msg string, args ...interface{})

	WithField(key string, value interface{}) Logger
	WithFields(fields Fields) Logger
	WithError(err error) Logger

	With(fields ...Field) Logger

	WithContext(ctx context.Context) Logger

	WithComponent(component string) Logger

	SetLevel(level Level)
	GetLevel() Level
}

// Formatter renders an Entry into the bytes an Output writes.
type Formatter interface {
	Format(entry *Entry) ([]byte, error)
}

// Output is a destination for formatted log entries: stdout, a file, a
// test buffer.
type Output interface {
	Write(entry *Entry, formattedEntry []byte) error
	Close() error
}

// LoggerOption configures a BaseLogger built by NewLogger.
type LoggerOption func(*BaseLogger)

// BaseLogger is the only Logger implementation basekv ships. It fans every
// call out through a Formatter and one or more Outputs. Its leveled calls go
// through an internal log/slog.Logger (slogLogger) backed by bridgeHandler;
// that slog.Logger is not handed to any dependency.
type BaseLogger struct {
	level      Level
	fields     Fields
	formatter  Formatter
	outputs    []Output
	slogLogger *slog.Logger
}

// ContextExtractor pulls the well-known logging keys out of ctx so a
// request-scoped Logger (see WithContext) can attach them automatically.
func ContextExtractor(ctx context.Context) Fields {
	if ctx == nil {
		return Fields{}
	}

	fields := Fields{}

	if v := ctx.Value(RequestIDKey); v != nil {
		fields[RequestIDKey] = v
	}
	if v := ctx.Value(TraceIDKey); v != nil {
		fields[TraceIDKey] = v
	}
	if v := ctx.Value(SpanIDKey); v != nil {
		fields[SpanIDKey] = v
	}
	if v := ctx.Value(ComponentKey); v != nil {
		fields[ComponentKey] = v
	}
	if v := ctx.Value(OperationKey); v != nil {
		fields[OperationKey] = v
	}

	return fields
}

// NewLogger builds a Logger from options, defaulting to JSON output on the
// console at InfoLevel. cmd/basekv sets WithLevel from the BASEKV_LOG_LEVEL
// environment variable; every other package just receives the resulting
// Logger.
func NewLogger(options ...LoggerOption) Logger {
	logger := &BaseLogger{
		level:     InfoLevel,
		fields:    Fields{},
		formatter: &JSONFormatter{},
		outputs:   []Output{},
	}

	for _, option := range options {
		option(logger)
	}

	if len(logger.outputs) == 0 {
		logger.outputs = append(logger.outputs, &ConsoleOutput{})
	}

	logger.slogLogger = slog.New(newBridgeHandler(logger))

	return logger
}

// WithLevel sets the minimum level NewLogger's Logger emits.
func WithLevel(level Level) LoggerOption {
	return func(l *BaseLogger) {
		l.level = level
	}
}

// WithFormatter overrides the default JSON formatter.
func WithFormatter(formatter Formatter) LoggerOption {
	return func(l *BaseLogger) {
		l.formatter = formatter
	}
}

// WithOutput appends a destination; entries are written to every configured
// Output.
func WithOutput(output Output) LoggerOption {
	return func(l *BaseLogger) {
		l.outputs = append(l.outputs, output)
	}
}
