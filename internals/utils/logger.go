package utils

import (
	"go.uber.org/zap"

	"github.com/loopline/realtime/internals/config"
)

// Logger is the process-wide logger, set once at startup by InitLogger.
var Logger *zap.Logger

// InitLogger builds the global logger from the logging config. An
// unrecognized level keeps the encoder preset's default rather than
// failing startup.
func InitLogger(cfg config.LoggingConfig) error {
	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zapCfg.Level = level
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return err
	}

	Logger = logger
	return nil
}

func GetLogger() *zap.Logger {
	if Logger == nil {
		// Fallback logger
		Logger, _ = zap.NewProduction()
	}
	return Logger
}
