package config

import (
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PlanLimits is the page allowance for one tier.
type PlanLimits struct {
	DailyPages   int `mapstructure:"dailyPages"`
	MonthlyPages int `mapstructure:"monthlyPages"`
}

// PlansConfig holds the per-tier allowances and the payment grace window.
// Daily limits are rolling 24h windows, monthly limits rolling 30d windows.
type PlansConfig struct {
	Anonymous  PlanLimits `mapstructure:"anonymous"`
	Free       PlanLimits `mapstructure:"free"`
	Pro        PlanLimits `mapstructure:"pro"`
	Premium    PlanLimits `mapstructure:"premium"`
	GraceHours int        `mapstructure:"graceHours"`
}

func DefaultPlansConfig() PlansConfig {
	return PlansConfig{
		Anonymous:  PlanLimits{DailyPages: 1},
		Free:       PlanLimits{DailyPages: 3},
		Pro:        PlanLimits{MonthlyPages: 120},
		Premium:    PlanLimits{MonthlyPages: 300},
		GraceHours: 72,
	}
}

func (c PlansConfig) GracePeriod() time.Duration {
	hours := c.GraceHours
	if hours <= 0 {
		hours = DefaultPlansConfig().GraceHours
	}
	return time.Duration(hours) * time.Hour
}

// PlansHolder exposes the current PlansConfig and follows file changes.
type PlansHolder struct {
	current atomic.Value // holds PlansConfig
}

func (h *PlansHolder) Get() PlansConfig {
	if v, ok := h.current.Load().(PlansConfig); ok {
		return v
	}
	return DefaultPlansConfig()
}

// NewPlansHolder reads plans.yml (volume mount, /etc, or cwd) and watches it
// for changes. A missing file falls back to the built-in defaults.
func NewPlansHolder(log *zap.Logger) (*PlansHolder, error) {
	v := viper.New()

	v.SetConfigName("plans")
	v.SetConfigType("yml")
	v.AddConfigPath("/var/lib/conversor/config")
	v.AddConfigPath("/etc/conversor")
	v.AddConfigPath(".")

	v.SetEnvPrefix("CONVERSOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &PlansHolder{}

	load := func() PlansConfig {
		cfg := DefaultPlansConfig()
		if err := v.UnmarshalKey("plans", &cfg); err != nil {
			log.Warn("plans config unmarshal failed, keeping defaults", zap.Error(err))
			return DefaultPlansConfig()
		}
		return normalizePlans(cfg)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		holder.current.Store(DefaultPlansConfig())
		return holder, nil
	}

	holder.current.Store(load())

	v.OnConfigChange(func(_ fsnotify.Event) {
		holder.current.Store(load())
	})
	v.WatchConfig()

	return holder, nil
}

func normalizePlans(cfg PlansConfig) PlansConfig {
	defaults := DefaultPlansConfig()
	if cfg.Anonymous.DailyPages <= 0 {
		cfg.Anonymous = defaults.Anonymous
	}
	if cfg.Free.DailyPages <= 0 {
		cfg.Free = defaults.Free
	}
	if cfg.Pro.MonthlyPages <= 0 {
		cfg.Pro = defaults.Pro
	}
	if cfg.Premium.MonthlyPages <= 0 {
		cfg.Premium = defaults.Premium
	}
	if cfg.GraceHours <= 0 {
		cfg.GraceHours = defaults.GraceHours
	}
	return cfg
}
