package config

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the daemon logger from the configured level and
// environment. Production gets the JSON encoder; anything else gets the
// development console encoder.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zap.ParseAtomicLevel(c.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level %q: %w", c.Log.Level, err)
	}

	var zapCfg zap.Config
	if c.Service.Environment == "production" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = level

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	if c.Service.Name != "" {
		logger = logger.With(zap.String("service", c.Service.Name))
	}
	return logger, nil
}
