package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger represents a leveled key/value logger
type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	With(keyvals ...interface{}) Logger
	Sync() error
}

type zapLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with the specified level. Production
// environments get JSON output, everything else the console encoder.
func NewLogger(level string, env string) Logger {
	var cfg zap.Config

	if env == "production" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	l, err := cfg.Build(zap.AddCallerSkip(1))

	if err != nil {
		// The config above is static, Build only fails on broken sinks.
		l = zap.NewExample()
	}

	return &zapLogger{sugar: l.Sugar()}
}

// NewNop returns a logger that discards everything
func NewNop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar()}
}

// FromZap wraps an existing zap logger
func FromZap(l *zap.Logger) Logger {
	return &zapLogger{sugar: l.Sugar()}
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func (l *zapLogger) Debug(msg string, keyvals ...interface{}) {
	l.sugar.Debugw(msg, keyvals...)
}

func (l *zapLogger) Info(msg string, keyvals ...interface{}) {
	l.sugar.Infow(msg, keyvals...)
}

func (l *zapLogger) Warn(msg string, keyvals ...interface{}) {
	l.sugar.Warnw(msg, keyvals...)
}

func (l *zapLogger) Error(msg string, keyvals ...interface{}) {
	l.sugar.Errorw(msg, keyvals...)
}

// With returns a child logger that always carries the given pairs
func (l *zapLogger) With(keyvals ...interface{}) Logger {
	return &zapLogger{sugar: l.sugar.With(keyvals...)}
}

// Sync flushes buffered entries
func (l *zapLogger) Sync() error {
	return l.sugar.Sync()
}
