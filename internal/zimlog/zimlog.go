// Package zimlog constructs the structured logger shared by the reader,
// writer, CLI, and reference server.
package zimlog

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a *zap.SugaredLogger. The level is taken from the
// ZIM_LOG_LEVEL environment variable (debug/info/warn/error, default
// info); NewWithLevel takes an explicit level instead.
func New() *zap.SugaredLogger {
	return NewWithLevel(levelFromEnv())
}

// NewWithLevel builds a logger at an explicit level, development-style
// (console encoder, caller info) when level is debug, production-style
// (JSON encoder) otherwise.
func NewWithLevel(level zapcore.Level) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := cfg.Build()
	if err != nil {
		// Logging must never be the reason construction fails; fall
		// back to a no-op logger.
		logger = zap.NewNop()
	}
	return logger.Sugar()
}

func levelFromEnv() zapcore.Level {
	switch strings.ToLower(os.Getenv("ZIM_LOG_LEVEL")) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Nop returns a logger that discards everything, for tests and library
// callers that don't want zimlog's environment-variable behavior.
func Nop() *zap.SugaredLogger {
	return zap.NewNop().Sugar()
}
