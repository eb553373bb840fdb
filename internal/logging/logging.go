// Package logging builds the process-wide zap logger.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and destination.
type Config struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string
	// Format is "json" (production) or "console" (development). Empty means
	// json, except that the debug level defaults to console.
	Format string
	// Output is a zap sink URL or path; empty means stderr.
	Output string
}

// New builds a logger for cfg.
func New(cfg Config) (*zap.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var zc zap.Config
	format := strings.ToLower(strings.TrimSpace(cfg.Format))
	switch {
	case format == "console", format == "" && level.Level() == zap.DebugLevel:
		zc = zap.NewDevelopmentConfig()
	case format == "json", format == "":
		zc = zap.NewProductionConfig()
		zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, fmt.Errorf("logging: unknown format %q (want json or console)", cfg.Format)
	}
	zc.Level = level

	if cfg.Output != "" {
		zc.OutputPaths = []string{cfg.Output}
	}
	return zc.Build()
}

// parseLevel maps a level name to an atomic level.
func parseLevel(level string) (zap.AtomicLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.NewAtomicLevelAt(zap.DebugLevel), nil
	case "", "info":
		return zap.NewAtomicLevelAt(zap.InfoLevel), nil
	case "warn", "warning":
		return zap.NewAtomicLevelAt(zap.WarnLevel), nil
	case "error":
		return zap.NewAtomicLevelAt(zap.ErrorLevel), nil
	default:
		return zap.AtomicLevel{}, fmt.Errorf("logging: unknown level %q", level)
	}
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
