package main

import (
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/medintel/internal/analysis"
	"github.com/sells-group/medintel/internal/cache"
	"github.com/sells-group/medintel/internal/config"
	"github.com/sells-group/medintel/internal/fetcher"
	"github.com/sells-group/medintel/internal/resolve"
	"github.com/sells-group/medintel/internal/simulate"
	"github.com/sells-group/medintel/internal/source"
	"github.com/sells-group/medintel/internal/years"
)

// engineEnv holds the wired engine components used by the resolve, report,
// and serve commands.
type engineEnv struct {
	Years    *years.Config
	Cache    *cache.ResultCache
	Source   *source.Fetcher
	Resolver *resolve.Resolver
	Analyzer *analysis.Analyzer
	Tracking *config.Tracking
}

// initEngine validates config for mode and wires the engine bottom-up:
// classifier, cache, HTTP client, source fetcher, simulator, resolver,
// analyzer.
func initEngine(mode string) (*engineEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	yc, err := cfg.YearConfig()
	if err != nil {
		return nil, err
	}

	tracking, err := config.LoadTracking(cfg.TrackingFile)
	if err != nil {
		return nil, err
	}

	rc, err := cache.New(cfg.Engine.CacheCapacity)
	if err != nil {
		return nil, eris.Wrap(err, "init cache")
	}

	limiters := fetcher.DefaultRateLimiters()
	if rps := cfg.Engine.RequestsPerSecond; rps > 0 {
		limiters["data.cms.gov"] = rate.NewLimiter(rate.Limit(rps), max(1, int(rps)))
	}
	client := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:    cfg.Engine.UserAgent,
		Timeout:      cfg.Timeout(),
		RateLimiters: limiters,
	})

	src := source.New(yc, rc, client, cfg.Endpoints(), cfg.SourceOptions())
	sim := simulate.New(cfg.Engine.CostOffsets.Map())
	res := resolve.New(src, sim, yc, tracking.EntityGrowth())
	an := analysis.New(res, rc, analysis.Options{
		Concurrency: cfg.Engine.Concurrency,
		ClearCache:  cfg.Engine.ClearCachePerRun,
		Companies:   tracking.Companies,
	})

	zap.L().Debug("engine initialized",
		zap.Ints("years", yc.All()),
		zap.Int("cache_capacity", cfg.Engine.CacheCapacity),
		zap.Int("companies", len(tracking.Companies)),
	)

	return &engineEnv{
		Years:    yc,
		Cache:    rc,
		Source:   src,
		Resolver: res,
		Analyzer: an,
		Tracking: tracking,
	}, nil
}
