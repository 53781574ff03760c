package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// AnalyticsConfig holds dashboard tunables that can change without a restart.
type AnalyticsConfig struct {
	DefaultWindowDays     int           `mapstructure:"default_window_days"`
	BreakdownDefaultLimit int           `mapstructure:"breakdown_default_limit"`
	BreakdownMaxLimit     int           `mapstructure:"breakdown_max_limit"`
	DrilldownMaxLimit     int           `mapstructure:"drilldown_max_limit"`
	ExportMaxRows         int           `mapstructure:"export_max_rows"`
	CacheTTL              time.Duration `mapstructure:"cache_ttl"`
}

func DefaultAnalyticsConfig() AnalyticsConfig {
	return AnalyticsConfig{
		DefaultWindowDays:     30,
		BreakdownDefaultLimit: 10,
		BreakdownMaxLimit:     100,
		DrilldownMaxLimit:     500,
		ExportMaxRows:         10000,
		CacheTTL:              5 * time.Minute,
	}
}

type AnalyticsConfigHolder struct {
	current atomic.Value // holds AnalyticsConfig
}

// StaticAnalyticsConfig returns a holder that never reloads.
func StaticAnalyticsConfig(cfg AnalyticsConfig) *AnalyticsConfigHolder {
	holder := &AnalyticsConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewAnalyticsConfigHolder(cfg Config, log *zap.Logger) (*AnalyticsConfigHolder, error) {
	log = log.Named("config.analytics")
	v := viper.New()

	if cfg.AnalyticsConfigFile != "" {
		v.SetConfigFile(cfg.AnalyticsConfigFile)
	} else {
		v.SetConfigName("analytics")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/stitchboard")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("STITCHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultAnalyticsConfig()
	v.SetDefault("analytics.default_window_days", defaults.DefaultWindowDays)
	v.SetDefault("analytics.breakdown_default_limit", defaults.BreakdownDefaultLimit)
	v.SetDefault("analytics.breakdown_max_limit", defaults.BreakdownMaxLimit)
	v.SetDefault("analytics.drilldown_max_limit", defaults.DrilldownMaxLimit)
	v.SetDefault("analytics.export_max_rows", defaults.ExportMaxRows)
	v.SetDefault("analytics.cache_ttl", defaults.CacheTTL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	var current AnalyticsConfig
	if err := v.UnmarshalKey("analytics", &current); err != nil {
		return nil, err
	}
	if err := validateAnalyticsConfig(current); err != nil {
		return nil, err
	}

	holder := StaticAnalyticsConfig(current)
	if !fileLoaded {
		log.Info("analytics config file not found, using defaults")
		return holder, nil
	}

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		var updated AnalyticsConfig
		if err := v.UnmarshalKey("analytics", &updated); err != nil {
			log.Warn("analytics config reload failed", zap.Error(err))
			return
		}
		if err := validateAnalyticsConfig(updated); err != nil {
			log.Warn("invalid analytics config ignored", zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("analytics config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

func (h *AnalyticsConfigHolder) Get() AnalyticsConfig {
	if h == nil {
		return DefaultAnalyticsConfig()
	}
	return h.current.Load().(AnalyticsConfig)
}

func validateAnalyticsConfig(cfg AnalyticsConfig) error {
	if cfg.DefaultWindowDays <= 0 {
		return errors.New("analytics.default_window_days must be positive")
	}
	if cfg.BreakdownDefaultLimit <= 0 || cfg.BreakdownMaxLimit < cfg.BreakdownDefaultLimit {
		return errors.New("analytics.breakdown limits are inconsistent")
	}
	if cfg.DrilldownMaxLimit <= 0 {
		return errors.New("analytics.drilldown_max_limit must be positive")
	}
	if cfg.ExportMaxRows <= 0 {
		return errors.New("analytics.export_max_rows must be positive")
	}
	if cfg.CacheTTL < 0 {
		return errors.New("analytics.cache_ttl cannot be negative")
	}
	return nil
}
