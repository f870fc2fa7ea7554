package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/craftcv/craftcv/internal/config"
)

// New builds the process-wide zap.Logger. Every entry carries the
// service identity so aggregated logs can be filtered per deployment.
func New(cfg config.Config) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	zc.Encoding = "json"
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.InitialFields = map[string]any{
		"service": cfg.AppName,
		"version": cfg.AppVersion,
		"env":     cfg.Environment,
	}
	if cfg.Environment == "development" {
		// Sampling hides repeated entries, which is exactly what you
		// want to see when debugging locally.
		zc.Sampling = nil
	}

	level := cfg.LogLevel
	if level == "" {
		level = "info"
	}
	if err := zc.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	log, err := zc.Build()
	if err != nil {
		return nil, err
	}

	zap.ReplaceGlobals(log)
	return log, nil
}
