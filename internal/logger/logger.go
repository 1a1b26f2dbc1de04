package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New creates a zap logger configured from the environment.
// LOG_ENV (or APP_ENV) set to "production" gives JSON output at info level;
// anything else gives a colored development logger at debug level.
func New() (*zap.Logger, error) {
	env := os.Getenv("LOG_ENV")
	if env == "" {
		env = os.Getenv("APP_ENV")
	}

	if env == "production" {
		cfg := zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "ts"
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
		return cfg.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	return cfg.Build(zap.AddCaller())
}
