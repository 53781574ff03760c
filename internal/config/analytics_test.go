package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAnalyticsConfigHolderExplicitMissingFile(t *testing.T) {
	dir := t.TempDir()
	holder, err := NewAnalyticsConfigHolder(Config{AnalyticsConfigFile: filepath.Join(dir, "missing.yml")}, zap.NewNop())
	if err == nil {
		t.Fatalf("expected error for explicit missing file, got holder %+v", holder.Get())
	}
}

func TestAnalyticsConfigHolderReadsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "analytics.yml")
	content := "analytics:\n  default_window_days: 14\n  breakdown_max_limit: 25\n  cache_ttl: 30s\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	holder, err := NewAnalyticsConfigHolder(Config{AnalyticsConfigFile: path}, zap.NewNop())
	require.NoError(t, err)

	got := holder.Get()
	assert.Equal(t, 14, got.DefaultWindowDays)
	assert.Equal(t, 25, got.BreakdownMaxLimit)
	assert.Equal(t, 10, got.BreakdownDefaultLimit)
	assert.Equal(t, 30*time.Second, got.CacheTTL)
}

func TestAnalyticsConfigValidation(t *testing.T) {
	cfg := DefaultAnalyticsConfig()
	assert.NoError(t, validateAnalyticsConfig(cfg))

	cfg.BreakdownMaxLimit = 5
	assert.Error(t, validateAnalyticsConfig(cfg))
}

func TestNilHolderReturnsDefaults(t *testing.T) {
	var holder *AnalyticsConfigHolder
	assert.Equal(t, DefaultAnalyticsConfig(), holder.Get())
}

func TestLoadReadsEnvironment(t *testing.T) {
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("SCHEDULER_INTERVAL", "15m")
	t.Setenv("ETL_SHARED_SECRET", " s3cret ")

	cfg := Load()
	assert.True(t, cfg.Redis.Enabled())
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "s3cret", cfg.ETLSharedSecret)
}
