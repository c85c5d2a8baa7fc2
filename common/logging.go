package common

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds a zap logger honoring the LOG_LEVEL environment
// variable (info|debug|trace, per the directory/worker CLI contract).
// zap has no Trace level; trace is mapped to Debug with a trace=true
// field so log consumers can still filter on it.
func NewLogger(component string) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	trace := false
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = zapcore.DebugLevel
	case "trace":
		level = zapcore.DebugLevel
		trace = true
	case "", "info":
		level = zapcore.InfoLevel
	default:
		level = zapcore.InfoLevel
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("component", component))
	if trace {
		logger = logger.With(zap.Bool("trace", true))
	}
	return logger, nil
}
