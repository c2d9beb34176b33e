package config

import (
	"math"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/medintel/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int{2019, 2020, 2021, 2022, 2023}, cfg.Engine.ConfirmedYears)
	assert.Equal(t, []int{2024}, cfg.Engine.PotentialYears)
	assert.Equal(t, []int{2025, 2026, 2027, 2028, 2029, 2030}, cfg.Engine.SimulationYears)
	assert.InDelta(t, 5.0, cfg.Engine.DefaultGrowth["services"], 0.001)
	assert.InDelta(t, 7.0, cfg.Engine.DefaultGrowth["claims"], 0.001)
	assert.InDelta(t, 1.5, cfg.Engine.CostOffsets.VolumeByCode, 0.001)
	assert.InDelta(t, 2.0, cfg.Engine.CostOffsets.CostByName, 0.001)
	assert.Equal(t, 200, cfg.Engine.CacheCapacity)
	assert.Equal(t, 10, cfg.Engine.FirstPageSize)
	assert.Equal(t, 500, cfg.Engine.PageSize)
	assert.Equal(t, 5000, cfg.Engine.MaxRecords)
	assert.Equal(t, 250, cfg.Engine.PageDelayMillis)
	assert.Equal(t, 20*time.Second, cfg.Timeout())
	assert.Equal(t, 4, cfg.Engine.Concurrency)
	assert.InDelta(t, 1e9, cfg.Engine.MaxVolume, 1)
	assert.False(t, cfg.Engine.ClearCachePerRun)

	assert.Equal(t, "HCPCS_Cd", cfg.Sources.VolumeByCode.FilterField)
	assert.Equal(t, "Brnd_Name", cfg.Sources.CostByName.FilterField)
	assert.Contains(t, cfg.Sources.CostByName.PrimaryURL, "{id}")
	assert.Equal(t, "keyword", cfg.Sources.VolumeByCode.FallbackQueryParam)

	assert.Equal(t, "tracking.yaml", cfg.TrackingFile)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)

	// No dataset ids ship with the defaults; every fetched year must be named.
	err = cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.volume_by_code.dataset_ids has no id for 2019, 2020, 2021, 2022, 2023, 2024")
	assert.Contains(t, err.Error(), "sources.cost_by_name.dataset_ids has no id for 2019")

	for y := 2019; y <= 2024; y++ {
		k := strconv.Itoa(y)
		cfg.Sources.VolumeByCode.DatasetIDs = setID(cfg.Sources.VolumeByCode.DatasetIDs, k, "b-"+k)
		cfg.Sources.CostByName.DatasetIDs = setID(cfg.Sources.CostByName.DatasetIDs, k, "d-"+k)
	}
	require.NoError(t, cfg.Validate("serve"))
}

func setID(ids map[string]string, year, id string) map[string]string {
	if ids == nil {
		ids = map[string]string{}
	}
	ids[year] = id
	return ids
}

func TestValidate_MissingDatasetIDs(t *testing.T) {
	cfg := validDefaults()
	cfg.Sources.VolumeByCode = SourceConfig{
		PrimaryURL:  "https://data.cms.gov/data-api/v1/dataset/{id}/data",
		DatasetIDs:  map[string]string{"2019": "a", "2020": " "},
		FallbackURL: "https://search.test/q",
	}

	err := cfg.Validate("engine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.volume_by_code.dataset_ids has no id for 2020, 2021")

	cfg.Sources.VolumeByCode.DatasetIDs["2020"] = "b"
	cfg.Sources.VolumeByCode.DatasetIDs["2021"] = "c"
	assert.NoError(t, cfg.Validate("engine"))

	// A fallback template that needs an id is checked too.
	cfg.Sources.CostByName = SourceConfig{FallbackURL: "https://data.cms.gov/data-api/v1/dataset/{id}/data"}
	err = cfg.Validate("engine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.cost_by_name.dataset_ids has no id for 2019, 2020, 2021")
}

func TestValidate_DefaultGrowthFinite(t *testing.T) {
	cfg := validDefaults()
	cfg.Engine.DefaultGrowth = map[string]float64{"services": math.NaN()}

	err := cfg.Validate("engine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.default_growth.services must be a finite rate above -100")
}

func TestEndpoints_SkipsBlankIDs(t *testing.T) {
	cfg := validDefaults()
	cfg.Sources.VolumeByCode.DatasetIDs = map[string]string{"2019": " a ", "2020": ""}

	eps := cfg.Endpoints()
	assert.Equal(t, map[int]string{2019: "a"}, eps[model.VolumeByCode].DatasetIDs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
engine:
  confirmed_years: [2020, 2021]
  potential_years: [2022]
  simulation_years: [2023, 2024]
  cost_offsets:
    cost_by_name: 3.5
  clear_cache_per_run: true
sources:
  volume_by_code:
    dataset_ids:
      "2020": "aaa-2020"
      "2021": "bbb-2021"
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int{2020, 2021}, cfg.Engine.ConfirmedYears)
	assert.InDelta(t, 3.5, cfg.Engine.CostOffsets.CostByName, 0.001)
	// Defaults still apply for unset values
	assert.InDelta(t, 1.5, cfg.Engine.CostOffsets.VolumeByCode, 0.001)
	assert.Equal(t, 500, cfg.Engine.PageSize)
	assert.True(t, cfg.Engine.ClearCachePerRun)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 9090, cfg.Server.Port)

	eps := cfg.Endpoints()
	assert.Equal(t, map[int]string{2020: "aaa-2020", 2021: "bbb-2021"}, eps[model.VolumeByCode].DatasetIDs)
	assert.Equal(t, "HCPCS_Cd", eps[model.VolumeByCode].FilterField)
	assert.Empty(t, eps[model.CostByName].DatasetIDs)

	yc, err := cfg.YearConfig()
	require.NoError(t, err)
	assert.Equal(t, model.SourcePotential, yc.Classify(2022))
	assert.Equal(t, model.SourceInvalid, yc.Classify(2019))
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("engine: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("MEDINTEL_SERVER_PORT", "3000")
	t.Setenv("MEDINTEL_LOG_LEVEL", "warn")
	t.Setenv("MEDINTEL_ENGINE_CACHE_CAPACITY", "50")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, 50, cfg.Engine.CacheCapacity)
}

func TestSourceOptions(t *testing.T) {
	chdirTemp(t)
	cfg, err := Load()
	require.NoError(t, err)

	opts := cfg.SourceOptions()
	assert.Equal(t, 10, opts.FirstPageSize)
	assert.Equal(t, 250*time.Millisecond, opts.PageDelay)
	assert.Equal(t, 2, opts.Retry.MaxAttempts)
	assert.Equal(t, 5, opts.Breaker.FailureThreshold)
	assert.Equal(t, 30*time.Second, opts.Breaker.ResetTimeout)
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
	cfg.Engine.ConfirmedYears = []int{2019, 2020}
	cfg.Engine.PotentialYears = []int{2021}
	cfg.Engine.SimulationYears = []int{2022}
	cfg.Engine.CacheCapacity = 200
	cfg.Engine.FirstPageSize = 10
	cfg.Engine.PageSize = 500
	cfg.Engine.MaxRecords = 5000
	cfg.Engine.Concurrency = 4
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Valid(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("engine"))
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidate_OverlappingYears(t *testing.T) {
	cfg := validDefaults()
	cfg.Engine.PotentialYears = []int{2020}

	err := cfg.Validate("engine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both confirmed and potential")
}

func TestValidate_CollectsProblems(t *testing.T) {
	cfg := validDefaults()
	cfg.Engine.CacheCapacity = 0
	cfg.Engine.Concurrency = 0
	cfg.Sources.CostByName.PrimaryURL = "https://example.com/data"
	cfg.Sources.VolumeByCode.DatasetIDs = map[string]string{"latest": "x"}

	err := cfg.Validate("engine")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.cache_capacity must be > 0")
	assert.Contains(t, err.Error(), "engine.concurrency must be between 1 and 64")
	assert.Contains(t, err.Error(), "sources.cost_by_name.primary_url must contain {id}")
	assert.Contains(t, err.Error(), `dataset_ids key "latest" is not a year`)
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	assert.NoError(t, cfg.Validate("engine"))
	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
