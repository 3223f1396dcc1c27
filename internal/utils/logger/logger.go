package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.Logger = zap.NewNop()

// Init configures the package-level logger. Mode is "prod", "dev" or "test".
func Init(mode string) error {
	var (
		l   *zap.Logger
		err error
	)

	switch mode {
	case "prod", "production", "":
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		l, err = cfg.Build(zap.AddCallerSkip(1))
	case "dev", "development":
		l, err = zap.NewDevelopment(zap.AddCallerSkip(1))
	case "test":
		l = zap.NewNop()
	default:
		return fmt.Errorf("unknown log mode: %q", mode)
	}
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	log = l
	return nil
}

// InitTestLogger installs a no-op logger for tests.
func InitTestLogger() {
	log = zap.NewNop()
}

func Sync() {
	_ = log.Sync()
}

func Debug(msg string, fields ...zap.Field) {
	log.Debug(msg, fields...)
}

func Info(msg string, fields ...zap.Field) {
	log.Info(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	log.Warn(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	log.Error(msg, fields...)
}
