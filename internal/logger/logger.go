// Package logger builds the zap loggers used across lazysearch and defines the
// structured field names they share.
package logger

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Standard field names. Use these instead of raw strings so log queries work
// across packages.
const (
	FieldRunID       = "run_id"
	FieldStrategy    = "strategy"
	FieldNodeID      = "node_id"
	FieldCount       = "count"
	FieldFrontier    = "frontier"
	FieldScore       = "score"
	FieldLength      = "length"
	FieldReason      = "reason"
	FieldExpansions  = "expansions"
	FieldSolutions   = "solutions"
	FieldParallelism = "parallelism"
	FieldTimeout     = "timeout"
	FieldDuplicates  = "duplicates"
	FieldDelay       = "delay"
	FieldTopic       = "topic"
	FieldAddress     = "address"
	FieldComponent   = "component"
)

// New builds a logger. level is a zap level name ("debug", "info", ...); an
// empty level means info. jsonOutput selects the production JSON encoder,
// otherwise a console encoder writing to stderr is used.
func New(level string, jsonOutput bool) (*zap.Logger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, err
		}
	}

	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(lvl)
		return cfg.Build()
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encCfg),
		zapcore.AddSync(os.Stderr),
		lvl,
	)
	return zap.New(core), nil
}

// Component returns l tagged with a component name.
func Component(l *zap.Logger, name string) *zap.Logger {
	return l.With(zap.String(FieldComponent, name))
}
