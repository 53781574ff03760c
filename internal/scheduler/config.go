package scheduler

import (
	"time"

	"github.com/smallbiznis/stitchboard/internal/config"
)

// Config controls the scheduler loop and job timeouts.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// LookbackDays is how many days before today the rollup rebuilds, so
	// late corrections to yesterday's records land on the next tick. At
	// least one.
	LookbackDays int
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  time.Hour,
		JobTimeout:   30 * time.Minute,
		LookbackDays: 1,
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
	if c.LookbackDays <= 0 {
		c.LookbackDays = defaults.LookbackDays
	}
	return c
}

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:  cfg.Scheduler.Interval,
		JobTimeout:   DefaultConfig().JobTimeout,
		LookbackDays: DefaultConfig().LookbackDays,
	}
}
