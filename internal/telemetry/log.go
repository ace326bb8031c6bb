// Package telemetry provides the structured logger, OTel meter/tracer
// accessors, and metric instrument set used across the engine.
package telemetry

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the narrow logging interface every component depends on. It
// mirrors the shape strategies and executors are handed at construction
// time, never the concrete zap type, so tests can substitute a no-op or
// recording logger.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// ZapLogger implements Logger on top of go.uber.org/zap.
type ZapLogger struct {
	logger *zap.Logger
}

// NewLogger builds a console-encoded zap logger at the given level
// ("DEBUG", "INFO", "WARN", "ERROR").
func NewLogger(levelStr string) *ZapLogger {
	var level zapcore.Level
	switch strings.ToUpper(levelStr) {
	case "DEBUG":
		level = zap.DebugLevel
	case "WARN":
		level = zap.WarnLevel
	case "ERROR":
		level = zap.ErrorLevel
	default:
		level = zap.InfoLevel
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stderr),
		level,
	)

	return &ZapLogger{logger: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1))}
}

func (l *ZapLogger) fields(kv []interface{}) []zap.Field {
	out := make([]zap.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kv[i])
		}
		out = append(out, zap.Any(key, kv[i+1]))
	}
	return out
}

func (l *ZapLogger) Debug(msg string, fields ...interface{}) { l.logger.Debug(msg, l.fields(fields)...) }
func (l *ZapLogger) Info(msg string, fields ...interface{})  { l.logger.Info(msg, l.fields(fields)...) }
func (l *ZapLogger) Warn(msg string, fields ...interface{})  { l.logger.Warn(msg, l.fields(fields)...) }
func (l *ZapLogger) Error(msg string, fields ...interface{}) { l.logger.Error(msg, l.fields(fields)...) }

func (l *ZapLogger) WithField(key string, value interface{}) Logger {
	return &ZapLogger{logger: l.logger.With(zap.Any(key, value))}
}

func (l *ZapLogger) WithFields(fields map[string]interface{}) Logger {
	zfs := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zfs = append(zfs, zap.Any(k, v))
	}
	return &ZapLogger{logger: l.logger.With(zfs...)}
}

// Sync flushes buffered log entries; call before process exit.
func (l *ZapLogger) Sync() error { return l.logger.Sync() }

// NopLogger discards everything; handy for unit tests that don't assert on
// log output.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{})          {}
func (NopLogger) Info(string, ...interface{})           {}
func (NopLogger) Warn(string, ...interface{})           {}
func (NopLogger) Error(string, ...interface{})          {}
func (n NopLogger) WithField(string, interface{}) Logger { return n }
func (n NopLogger) WithFields(map[string]interface{}) Logger { return n }
