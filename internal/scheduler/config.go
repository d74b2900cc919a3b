package scheduler

import (
	"time"

	"github.com/extractolabs/conversor/internal/config"
)

// Config controls the reconcile loop interval and per-run timeout.
type Config struct {
	Enabled     bool
	RunInterval time.Duration
	JobTimeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Enabled:     true,
		RunInterval: time.Hour,
		JobTimeout:  5 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		Enabled:     cfg.SchedulerEnabled,
		RunInterval: time.Duration(cfg.SchedulerInterval) * time.Second,
	}.withDefaults()
}
