// Package logger builds the zap loggers shared by the ledger binaries.
package logger

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tbill-ledger-go/internal/config"
)

// New builds the logger for the binary named service. Console output is meant for
// a terminal, JSON output for log shipping. Output is a file path or "stdout".
func New(cfg config.Logger, service string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	var zc zap.Config
	switch strings.ToLower(cfg.Format) {
	case "json":
		zc = zap.NewProductionConfig()
	case "", "console":
		zc = zap.NewDevelopmentConfig()
		zc.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zc.DisableStacktrace = level > zapcore.DebugLevel
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.Format)
	}

	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.EncoderConfig.TimeKey = "ts"
	if cfg.Output != "" {
		zc.OutputPaths = []string{cfg.Output}
	}
	zc.InitialFields = map[string]any{"service": service}

	return zc.Build()
}
