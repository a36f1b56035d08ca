package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"portfolio/internal/models"
)

// New builds the process logger. Development mode switches to the console
// encoder with stack traces on warnings.
func New(cfg models.LogConfig) (*zap.Logger, error) {
	const op = "logger.New"

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.EncoderConfig.TimeKey = "ts"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	log, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return log, nil
}
