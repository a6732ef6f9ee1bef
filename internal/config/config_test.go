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

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "http", cfg.Source.Driver)
	assert.Equal(t, 1000, cfg.Source.PageSize)
	assert.Equal(t, "sqlite", cfg.Cache.Driver)
	assert.Equal(t, "production", cfg.Cache.Profile)
	assert.Equal(t, 7, cfg.Rules.OnTimeWindowDays)
	assert.Equal(t, 5, cfg.Rules.GracePeriodDays)
	assert.InDelta(t, 5.0, cfg.Rules.GPSFlagThresholdKM, 0.001)
	assert.Equal(t, 80, cfg.Rules.Colors.Good)
	assert.Equal(t, 60, cfg.Rules.Colors.Warning)
	assert.Equal(t, 5, cfg.Rules.OnTrack.MinCompleted)
	assert.Equal(t, 1, cfg.Rules.OnTrack.MaxMissed)
	assert.Equal(t, []string{"anc", "postnatal"}, cfg.Rules.SameDayPair)

	name, p, err := cfg.Cache.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, "production", name)
	assert.InDelta(t, 0.98, p.PercentTolerance, 0.0001)
	assert.Equal(t, 30*time.Minute, p.TimeTolerance())

	relaxed := cfg.Cache.Profiles["relaxed"]
	assert.InDelta(t, 0.85, relaxed.PercentTolerance, 0.0001)
	assert.Equal(t, 90*time.Minute, relaxed.TimeTolerance())
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
source:
  driver: fixture
  fixture_path: testdata/feed.yaml
cache:
  driver: memory
  profile: relaxed
log:
  level: debug
  format: console
rules:
  grace_period_days: 3
  colors:
    good: 90
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "fixture", cfg.Source.Driver)
	assert.Equal(t, "memory", cfg.Cache.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 3, cfg.Rules.GracePeriodDays)
	assert.Equal(t, 90, cfg.Rules.Colors.Good)
	// Defaults still apply for unset values
	assert.Equal(t, 60, cfg.Rules.Colors.Warning)
	assert.Equal(t, 7, cfg.Rules.OnTimeWindowDays)

	name, p, err := cfg.Cache.ActiveProfile()
	require.NoError(t, err)
	assert.Equal(t, "relaxed", name)
	assert.Equal(t, 90, p.TimeToleranceMins)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
cache:
  driver: memory
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("FLWAUDIT_CACHE_DRIVER", "postgres")
	t.Setenv("FLWAUDIT_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Cache.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("FLWAUDIT_SERVER_PORT", "3000")
	t.Setenv("FLWAUDIT_RULES_GRACE_PERIOD_DAYS", "10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 10, cfg.Rules.GracePeriodDays)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Source.Driver = "http"
	cfg.Source.BaseURL = "https://hq.example.org"
	cfg.Source.APIKey = "key"
	cfg.Server.Port = 8080
	cfg.Cache.Profile = "production"
	cfg.Cache.Profiles = map[string]CacheProfileConfig{
		"production": {PercentTolerance: 0.98, TimeToleranceMins: 30},
	}
	cfg.Rules.GPSFlagThresholdKM = 5
	cfg.Rules.Colors = ColorConfig{Good: 80, Warning: 60}
	return cfg
}

func TestValidateAnalyze_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("analyze"))
}

func TestValidateAnalyze_MissingSource(t *testing.T) {
	cfg := validDefaults()
	cfg.Source.BaseURL = ""
	cfg.Source.APIKey = ""

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source.base_url is required")
	assert.Contains(t, err.Error(), "source.api_key is required")
}

func TestValidateFixtureDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Source.Driver = "fixture"

	err := cfg.Validate("analyze")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fixture_path")

	cfg.Source.FixturePath = "feed.yaml"
	assert.NoError(t, cfg.Validate("analyze"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateUnknownProfile(t *testing.T) {
	cfg := validDefaults()
	cfg.Cache.Profile = "staging"

	err := cfg.Validate("cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown cache profile "staging"`)
}

func TestValidateRules(t *testing.T) {
	cfg := validDefaults()
	cfg.Rules.Colors = ColorConfig{Good: 50, Warning: 70}
	cfg.Rules.SameDayPair = []string{"anc"}
	cfg.Cache.Profiles["production"] = CacheProfileConfig{PercentTolerance: 1.5}

	err := cfg.Validate("cache")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rules.colors.warning")
	assert.Contains(t, err.Error(), "same_day_pair")
	assert.Contains(t, err.Error(), "percent_tolerance")
}
