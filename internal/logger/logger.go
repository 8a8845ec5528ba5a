package logger

import (
	"go.uber.org/zap"

	"study-ai/internal/config"
)

// New returns a production JSON logger when APP_ENV is "production" and a
// human-readable development logger otherwise.
func New(cfg config.Config) (*zap.Logger, error) {
	if cfg.Env == "production" {
		return zap.NewProduction()
	}

	return zap.NewDevelopment()
}
