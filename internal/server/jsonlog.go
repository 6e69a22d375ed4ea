// jsonlog.go - Structured logging for mediadrop, backed by zap.
package server

import (
	"context"
	"io"
	"os"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Logger provides structured logging with a field map per entry.
type Logger struct {
	z *zap.Logger
}

var (
	// DefaultLogger is the global logger instance
	DefaultLogger = NewLogger(os.Stdout, LogLevelInfo, false)
)

// NewLogger builds a logger writing to out. JSON output is meant for
// production; the console encoder is easier to read locally.
func NewLogger(out io.Writer, minLevel LogLevel, enableJSON bool) *Logger {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(minLevel)); err != nil {
		lvl = zapcore.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.MessageKey = "msg"
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder

	var enc zapcore.Encoder
	if enableJSON {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), lvl)
	// Skip Logger.log and its public wrapper so the caller is reported.
	return &Logger{z: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))}
}

// SetDefaultLogger replaces DefaultLogger.
func SetDefaultLogger(l *Logger) {
	if l != nil {
		DefaultLogger = l
	}
}

// With returns a logger that adds fields to every entry.
func (l *Logger) With(fields map[string]any) *Logger {
	return &Logger{z: l.z.With(zapFields(fields, nil)...)}
}

// ForRequest returns a logger tagged with the request id found in ctx.
func (l *Logger) ForRequest(ctx context.Context) *Logger {
	rid := RequestIDFromContext(ctx)
	if rid == "" {
		return l
	}
	return &Logger{z: l.z.With(zap.String("request_id", rid))}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.z.Sync()
}

func zapFields(fields map[string]any, err error) []zap.Field {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys)+1)
	for _, k := range keys {
		out = append(out, zap.Any(k, fields[k]))
	}
	if err != nil {
		out = append(out, zap.Error(err))
	}
	return out
}

// log writes a log entry
func (l *Logger) log(level LogLevel, msg string, fields map[string]any, err error) {
	zf := zapFields(fields, err)
	switch level {
	case LogLevelDebug:
		l.z.Debug(msg, zf...)
	case LogLevelWarn:
		l.z.Warn(msg, zf...)
	case LogLevelError:
		l.z.Error(msg, zf...)
	default:
		l.z.Info(msg, zf...)
	}
}

// Debug logs a debug message
func (l *Logger) Debug(msg string, fields map[string]any) {
	l.log(LogLevelDebug, msg, fields, nil)
}

// Info logs an info message
func (l *Logger) Info(msg string, fields map[string]any) {
	l.log(LogLevelInfo, msg, fields, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(msg string, fields map[string]any) {
	l.log(LogLevelWarn, msg, fields, nil)
}

// Error logs an error message
func (l *Logger) Error(msg string, fields map[string]any, err error) {
	l.log(LogLevelError, msg, fields, err)
}

// Global logging functions

// Debug logs a debug message
func Debug(msg string, fields map[string]any) {
	DefaultLogger.log(LogLevelDebug, msg, fields, nil)
}

// Info logs an info message
func Info(msg string, fields map[string]any) {
	DefaultLogger.log(LogLevelInfo, msg, fields, nil)
}

// Warn logs a warning message
func Warn(msg string, fields map[string]any) {
	DefaultLogger.log(LogLevelWarn, msg, fields, nil)
}

// Error logs an error message
func Error(msg string, fields map[string]any, err error) {
	DefaultLogger.log(LogLevelError, msg, fields, err)
}
