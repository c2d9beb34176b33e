// Package source retrieves real reimbursement data for one entity and year:
// it pages through the primary CMS API, falls back to a secondary API when
// the primary yields nothing, normalizes schema variants, and caches results.
package source

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/medintel/internal/cache"
	"github.com/sells-group/medintel/internal/fetcher"
	"github.com/sells-group/medintel/internal/model"
	"github.com/sells-group/medintel/internal/resilience"
	"github.com/sells-group/medintel/internal/years"
)

// Endpoint describes where one dataset type's data lives.
type Endpoint struct {
	// PrimaryURL is a template; "{id}" is replaced by the year's dataset id.
	PrimaryURL  string
	DatasetIDs  map[int]string
	FilterField string

	// FallbackURL is queried once, with FallbackParam set to the entity id,
	// when the primary yields no records. "{year}" and "{id}" are expanded.
	FallbackURL   string
	FallbackParam string
}

// Options tunes paging and validation.
type Options struct {
	FirstPageSize int
	PageSize      int
	MaxRecords    int
	// PageDelay is the fixed pause between successive pages of one fetch.
	PageDelay time.Duration
	// MaxVolume is the plausibility bound on a result's total volume.
	MaxVolume float64
	Retry     resilience.RetryConfig
	Breaker   resilience.BreakerConfig
}

// DefaultOptions returns the paging defaults.
func DefaultOptions() Options {
	return Options{
		FirstPageSize: 10,
		PageSize:      500,
		MaxRecords:    5000,
		PageDelay:     250 * time.Millisecond,
		MaxVolume:     1e9,
		Retry:         resilience.PageRetryConfig(),
		Breaker:       resilience.BreakerConfig{FailureThreshold: 5, ResetTimeout: 30 * time.Second},
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.FirstPageSize <= 0 {
		o.FirstPageSize = d.FirstPageSize
	}
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.MaxRecords <= 0 {
		o.MaxRecords = d.MaxRecords
	}
	if o.PageDelay < 0 {
		o.PageDelay = 0
	}
	if o.MaxVolume <= 0 {
		o.MaxVolume = d.MaxVolume
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = d.Retry
	}
	return o
}

// Fetcher is the SourceFetcher. It is safe for concurrent use; identical
// in-flight (type, entity, year) requests share one upstream fetch.
type Fetcher struct {
	years     *years.Config
	cache     *cache.ResultCache
	client    fetcher.Fetcher
	endpoints map[model.DatasetType]Endpoint
	opts      Options
	breakers  *resilience.Breakers
	flight    singleflight.Group
}

// New wires a Fetcher.
func New(yc *years.Config, c *cache.ResultCache, client fetcher.Fetcher, endpoints map[model.DatasetType]Endpoint, opts Options) *Fetcher {
	opts = opts.withDefaults()
	return &Fetcher{
		years:     yc,
		cache:     c,
		client:    client,
		endpoints: endpoints,
		opts:      opts,
		breakers:  resilience.NewBreakers(opts.Breaker),
	}
}

// Years exposes the classifier the fetcher guards with.
func (f *Fetcher) Years() *years.Config { return f.years }

// Cache exposes the result cache.
func (f *Fetcher) Cache() *cache.ResultCache { return f.cache }

// Breakers exposes per-endpoint breaker state.
func (f *Fetcher) Breakers() *resilience.Breakers { return f.breakers }

// Fetch returns real data for (dt, entityID, year). Invalid and simulated
// years return immediately without network access. Data conditions never
// produce an error; errors mean an unknown dataset type or a done context.
//
// Identical concurrent requests share one fetch. The shared fetch runs
// detached from any single caller's cancellation and is bounded by the
// per-request timeouts; a caller whose context ends stops waiting for it.
func (f *Fetcher) Fetch(ctx context.Context, dt model.DatasetType, entityID string, year int) (model.Result, error) {
	ep, ok := f.endpoints[dt]
	if !ok {
		return model.Result{}, eris.Errorf("source: no endpoint configured for dataset %q", dt)
	}

	cls := f.years.Classify(year)
	switch cls {
	case model.SourceInvalid:
		return skipped(dt, entityID, year, cls,
			fmt.Sprintf("year %d is outside every configured year range", year)), nil
	case model.SourceSimulated:
		return skipped(dt, entityID, year, cls,
			fmt.Sprintf("year %d has no published data; simulation required", year)), nil
	}

	if err := ctx.Err(); err != nil {
		return model.Result{}, eris.Wrap(err, "source: fetch interrupted")
	}
	if r, ok := f.cache.Get(dt, entityID, year); ok {
		return r, nil
	}

	key := cache.NewKey(dt, entityID, year)
	flightCtx := context.WithoutCancel(ctx)
	ch := f.flight.DoChan(fmt.Sprintf("%s|%s|%d", key.DatasetType, key.EntityID, key.Year), func() (any, error) {
		// A flight that finished between our cache miss and DoChan has
		// already stored its result.
		if r, ok := f.cache.Peek(dt, entityID, year); ok {
			return r, nil
		}
		r := f.fetchRemote(flightCtx, ep, dt, entityID, year, cls)
		if r.Metadata.SuccessCount > 0 {
			f.cache.Put(dt, entityID, year, r)
		}
		return r, nil
	})

	select {
	case <-ctx.Done():
		return model.Result{}, eris.Wrap(ctx.Err(), "source: fetch interrupted")
	case res := <-ch:
		if res.Err != nil {
			return model.Result{}, res.Err
		}
		if res.Shared {
			zap.L().Debug("shared in-flight fetch",
				zap.String("dataset", string(dt)),
				zap.String("entity", entityID),
				zap.Int("year", year),
			)
		}
		return res.Val.(model.Result).Clone(), nil
	}
}

func skipped(dt model.DatasetType, entityID string, year int, cls model.SourceType, warning string) model.Result {
	return model.Result{
		Records: []model.Record{},
		Metadata: model.FetchMetadata{
			DatasetType:    dt,
			EntityID:       entityID,
			Year:           year,
			DataSourceType: cls,
			Classification: cls,
			Outcome:        model.OutcomeSkipped,
			Warnings:       []string{warning},
		},
	}
}

// fetchRemote runs primary paging, then the fallback if needed, then the
// aggregate sanity checks.
func (f *Fetcher) fetchRemote(ctx context.Context, ep Endpoint, dt model.DatasetType, entityID string, year int, cls model.SourceType) model.Result {
	log := zap.L().With(
		zap.String("dataset", string(dt)),
		zap.String("entity", entityID),
		zap.Int("year", year),
	)
	meta := model.FetchMetadata{
		DatasetType:    dt,
		EntityID:       entityID,
		Year:           year,
		DataSourceType: cls,
		Classification: cls,
		Warnings:       []string{},
	}

	records := f.fetchPrimary(ctx, ep, dt, entityID, year, cls, &meta)
	meta.Outcome = model.OutcomeFetched
	if len(records) == 0 {
		records = f.fetchFallback(ctx, ep, dt, entityID, year, cls, &meta)
		if len(records) > 0 {
			meta.Outcome = model.OutcomeFellBack
		} else {
			meta.Outcome = model.OutcomeEmpty
			meta.Warn(fmt.Sprintf("no %s records for %q in %d from primary or fallback source", dt, entityID, year))
		}
	}
	if records == nil {
		records = []model.Record{}
	}

	validateAggregate(records, f.opts.MaxVolume, &meta)
	meta.TotalRecords = len(records)

	log.Info("fetch complete",
		zap.String("outcome", string(meta.Outcome)),
		zap.Int("records", meta.TotalRecords),
		zap.Int("requests", meta.RequestCount),
		zap.Int("successes", meta.SuccessCount),
		zap.Int("warnings", len(meta.Warnings)),
	)
	return model.Result{Records: records, Metadata: meta}
}
