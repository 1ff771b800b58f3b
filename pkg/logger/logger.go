package logger

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.RWMutex
	log   *zap.Logger
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

func init() {
	cfg := zap.NewProductionConfig()
	cfg.Level = level
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	built, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		built = zap.NewNop()
	}
	log = built
}

// SetDebug switches the global level between debug and info.
func SetDebug(debug bool) {
	if debug {
		level.SetLevel(zapcore.DebugLevel)
	} else {
		level.SetLevel(zapcore.InfoLevel)
	}
}

// SetNop silences all logging output. Used by tests.
func SetNop() {
	mu.Lock()
	defer mu.Unlock()
	log = zap.NewNop()
}

func logger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return log
}

func zapFields(component string, fields map[string]any) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	out = append(out, zap.String("component", component))
	for k, v := range fields {
		out = append(out, zap.Any(k, v))
	}
	return out
}

// InfoCF logs at info level with a component tag and structured fields.
func InfoCF(component, msg string, fields map[string]any) {
	logger().Info(msg, zapFields(component, fields)...)
}

// WarnCF logs at warn level with a component tag and structured fields.
func WarnCF(component, msg string, fields map[string]any) {
	logger().Warn(msg, zapFields(component, fields)...)
}

// ErrorCF logs at error level with a component tag and structured fields.
func ErrorCF(component, msg string, fields map[string]any) {
	logger().Error(msg, zapFields(component, fields)...)
}

// DebugCF logs at debug level with a component tag and structured fields.
func DebugCF(component, msg string, fields map[string]any) {
	logger().Debug(msg, zapFields(component, fields)...)
}

// Sync flushes buffered log entries. Safe to call on shutdown.
func Sync() {
	_ = logger().Sync()
}
