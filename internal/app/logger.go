package app

import (
	"time"

	"github.com/hupe1980/nablmesh/config"
	"github.com/hupe1980/nablmesh/logging"
)

const readHeaderTimeout = 10 * time.Second

// NewLogger builds the zap logger described by cfg.
func NewLogger(cfg config.LogConfig) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewZapLogger(logging.ZapConfig{Level: level, Format: cfg.Format}), nil
}
