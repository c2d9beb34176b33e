package config

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/medintel/internal/model"
	"github.com/sells-group/medintel/internal/resilience"
	"github.com/sells-group/medintel/internal/source"
	"github.com/sells-group/medintel/internal/years"
)

// Config holds the full application configuration.
type Config struct {
	Engine       EngineConfig  `yaml:"engine" mapstructure:"engine"`
	Sources      SourcesConfig `yaml:"sources" mapstructure:"sources"`
	TrackingFile string        `yaml:"tracking_file" mapstructure:"tracking_file"`
	Server       ServerConfig  `yaml:"server" mapstructure:"server"`
	Log          LogConfig     `yaml:"log" mapstructure:"log"`
}

// EngineConfig configures year classification, growth assumptions, caching,
// paging, and sanity bounds.
type EngineConfig struct {
	ConfirmedYears  []int `yaml:"confirmed_years" mapstructure:"confirmed_years"`
	PotentialYears  []int `yaml:"potential_years" mapstructure:"potential_years"`
	SimulationYears []int `yaml:"simulation_years" mapstructure:"simulation_years"`

	// DefaultGrowth maps a volume metric (services, claims) to an annual
	// growth percent.
	DefaultGrowth map[string]float64 `yaml:"default_growth" mapstructure:"default_growth"`
	// CostOffsets are percentage points added to volume growth for unit cost.
	CostOffsets DatasetFloats `yaml:"cost_offsets" mapstructure:"cost_offsets"`

	CacheCapacity    int  `yaml:"cache_capacity" mapstructure:"cache_capacity"`
	ClearCachePerRun bool `yaml:"clear_cache_per_run" mapstructure:"clear_cache_per_run"`
	FirstPageSize    int  `yaml:"first_page_size" mapstructure:"first_page_size"`
	PageSize         int  `yaml:"page_size" mapstructure:"page_size"`
	MaxRecords       int  `yaml:"max_records" mapstructure:"max_records"`
	PageDelayMillis  int  `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	TimeoutSecs      int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	PageRetries      int  `yaml:"page_retries" mapstructure:"page_retries"`
	BreakerThreshold int  `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs int  `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
	Concurrency      int  `yaml:"concurrency" mapstructure:"concurrency"`

	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxVolume         float64 `yaml:"max_volume" mapstructure:"max_volume"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// DatasetFloats holds one number per dataset type.
type DatasetFloats struct {
	VolumeByCode float64 `yaml:"volume_by_code" mapstructure:"volume_by_code"`
	CostByName   float64 `yaml:"cost_by_name" mapstructure:"cost_by_name"`
}

// Map returns the values keyed by dataset type.
func (d DatasetFloats) Map() map[model.DatasetType]float64 {
	return map[model.DatasetType]float64{
		model.VolumeByCode: d.VolumeByCode,
		model.CostByName:   d.CostByName,
	}
}

// SourcesConfig holds the endpoint configuration per dataset type.
type SourcesConfig struct {
	VolumeByCode SourceConfig `yaml:"volume_by_code" mapstructure:"volume_by_code"`
	CostByName   SourceConfig `yaml:"cost_by_name" mapstructure:"cost_by_name"`
}

// SourceConfig describes one dataset type's primary and fallback APIs.
type SourceConfig struct {
	// PrimaryURL contains "{id}", replaced by the year's dataset id.
	PrimaryURL string `yaml:"primary_url" mapstructure:"primary_url"`
	// DatasetIDs maps a year ("2023") to its dataset id.
	DatasetIDs         map[string]string `yaml:"dataset_ids" mapstructure:"dataset_ids"`
	FilterField        string            `yaml:"filter_field" mapstructure:"filter_field"`
	FallbackURL        string            `yaml:"fallback_url" mapstructure:"fallback_url"`
	FallbackQueryParam string            `yaml:"fallback_query_param" mapstructure:"fallback_query_param"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

const cmsDataAPI = "https://data.cms.gov/data-api/v1/dataset/{id}/data"

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("MEDINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("engine.confirmed_years", years.Range(2019, 2023))
	v.SetDefault("engine.potential_years", []int{2024})
	v.SetDefault("engine.simulation_years", years.Range(2025, 2030))
	v.SetDefault("engine.default_growth", map[string]float64{"services": 5.0, "claims": 7.0})
	v.SetDefault("engine.cost_offsets.volume_by_code", 1.5)
	v.SetDefault("engine.cost_offsets.cost_by_name", 2.0)
	v.SetDefault("engine.cache_capacity", 200)
	v.SetDefault("engine.clear_cache_per_run", false)
	v.SetDefault("engine.first_page_size", 10)
	v.SetDefault("engine.page_size", 500)
	v.SetDefault("engine.max_records", 5000)
	v.SetDefault("engine.page_delay_ms", 250)
	v.SetDefault("engine.timeout_secs", 20)
	v.SetDefault("engine.page_retries", 1)
	v.SetDefault("engine.breaker_threshold", 5)
	v.SetDefault("engine.breaker_reset_secs", 30)
	v.SetDefault("engine.concurrency", 4)
	v.SetDefault("engine.requests_per_second", 5.0)
	v.SetDefault("engine.max_volume", 1e9)
	v.SetDefault("engine.user_agent", "medintel/1.0")
	v.SetDefault("sources.volume_by_code.primary_url", cmsDataAPI)
	v.SetDefault("sources.volume_by_code.filter_field", "HCPCS_Cd")
	v.SetDefault("sources.volume_by_code.fallback_url", cmsDataAPI)
	v.SetDefault("sources.volume_by_code.fallback_query_param", "keyword")
	v.SetDefault("sources.cost_by_name.primary_url", cmsDataAPI)
	v.SetDefault("sources.cost_by_name.filter_field", "Brnd_Name")
	v.SetDefault("sources.cost_by_name.fallback_url", cmsDataAPI)
	v.SetDefault("sources.cost_by_name.fallback_query_param", "keyword")
	v.SetDefault("tracking_file", "tracking.yaml")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.timeout_secs", 120)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by mode: "engine" for the
// resolution engine, "serve" for the engine plus the HTTP API.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "engine", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if _, err := c.YearConfig(); err != nil {
		problems = append(problems, err.Error())
	}
	e := c.Engine
	if e.CacheCapacity <= 0 {
		problems = append(problems, "engine.cache_capacity must be > 0")
	}
	if e.FirstPageSize <= 0 || e.PageSize <= 0 || e.MaxRecords <= 0 {
		problems = append(problems, "engine.first_page_size, page_size and max_records must be > 0")
	}
	if e.PageDelayMillis < 0 || e.TimeoutSecs < 0 {
		problems = append(problems, "engine.page_delay_ms and timeout_secs must be >= 0")
	}
	if e.Concurrency < 1 || e.Concurrency > 64 {
		problems = append(problems, "engine.concurrency must be between 1 and 64")
	}
	for _, s := range []struct {
		name string
		cfg  SourceConfig
	}{
		{"volume_by_code", c.Sources.VolumeByCode},
		{"cost_by_name", c.Sources.CostByName},
	} {
		if s.cfg.PrimaryURL != "" && !strings.Contains(s.cfg.PrimaryURL, "{id}") {
			problems = append(problems, "sources."+s.name+".primary_url must contain {id}")
		}
		for y := range s.cfg.DatasetIDs {
			if _, err := strconv.Atoi(y); err != nil {
				problems = append(problems, "sources."+s.name+".dataset_ids key "+strconv.Quote(y)+" is not a year")
			}
		}
		if strings.Contains(s.cfg.PrimaryURL, "{id}") || strings.Contains(s.cfg.FallbackURL, "{id}") {
			if missing := missingDatasetIDs(s.cfg.DatasetIDs, e.ConfirmedYears, e.PotentialYears); len(missing) > 0 {
				problems = append(problems, "sources."+s.name+".dataset_ids has no id for "+strings.Join(missing, ", "))
			}
		}
	}
	for metric, pct := range e.DefaultGrowth {
		if math.IsNaN(pct) || math.IsInf(pct, 0) || pct <= -100 {
			problems = append(problems, "engine.default_growth."+metric+" must be a finite rate above -100")
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		problems = append(problems, "server.port must be > 0")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// missingDatasetIDs lists the fetched years with no dataset id, ascending.
func missingDatasetIDs(ids map[string]string, yearSets ...[]int) []string {
	var ys []int
	for _, set := range yearSets {
		for _, y := range set {
			if strings.TrimSpace(ids[strconv.Itoa(y)]) == "" {
				ys = append(ys, y)
			}
		}
	}
	slices.Sort(ys)
	out := make([]string, 0, len(ys))
	for _, y := range slices.Compact(ys) {
		out = append(out, strconv.Itoa(y))
	}
	return out
}

// YearConfig builds the immutable year classifier.
func (c *Config) YearConfig() (*years.Config, error) {
	yc, err := years.New(c.Engine.ConfirmedYears, c.Engine.PotentialYears, c.Engine.SimulationYears, c.Engine.DefaultGrowth)
	if err != nil {
		return nil, eris.Wrap(err, "config: engine years")
	}
	return yc, nil
}

// Endpoints converts the sources section for the source fetcher. Dataset id
// keys that are not years and blank ids are skipped; Validate reports them.
func (c *Config) Endpoints() map[model.DatasetType]source.Endpoint {
	conv := func(s SourceConfig) source.Endpoint {
		ids := make(map[int]string, len(s.DatasetIDs))
		for k, v := range s.DatasetIDs {
			if y, err := strconv.Atoi(k); err == nil && strings.TrimSpace(v) != "" {
				ids[y] = strings.TrimSpace(v)
			}
		}
		return source.Endpoint{
			PrimaryURL:    s.PrimaryURL,
			DatasetIDs:    ids,
			FilterField:   s.FilterField,
			FallbackURL:   s.FallbackURL,
			FallbackParam: s.FallbackQueryParam,
		}
	}
	return map[model.DatasetType]source.Endpoint{
		model.VolumeByCode: conv(c.Sources.VolumeByCode),
		model.CostByName:   conv(c.Sources.CostByName),
	}
}

// SourceOptions converts the engine paging settings.
func (c *Config) SourceOptions() source.Options {
	e := c.Engine
	retry := resilience.PageRetryConfig()
	retry.MaxAttempts = e.PageRetries + 1
	return source.Options{
		FirstPageSize: e.FirstPageSize,
		PageSize:      e.PageSize,
		MaxRecords:    e.MaxRecords,
		PageDelay:     time.Duration(e.PageDelayMillis) * time.Millisecond,
		MaxVolume:     e.MaxVolume,
		Retry:         retry,
		Breaker: resilience.BreakerConfig{
			FailureThreshold: e.BreakerThreshold,
			ResetTimeout:     time.Duration(e.BreakerResetSecs) * time.Second,
		},
	}
}

// Timeout is the per-request network timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Engine.TimeoutSecs) * time.Second
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
