// Package analysis runs an analytical pass: it resolves every (entity, year)
// tuple concurrently and folds the results into a report with peer market
// shares and company rollups.
package analysis

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/medintel/internal/metrics"
	"github.com/sells-group/medintel/internal/model"
)

const defaultConcurrency = 4

// Resolver resolves one tuple. *resolve.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, dt model.DatasetType, entityID string, year int, growthOverride *float64) (model.Result, error)
}

// Clearer drops cached results. *cache.ResultCache satisfies it.
type Clearer interface {
	Clear()
}

// Options configures an Analyzer.
type Options struct {
	// Concurrency bounds in-flight resolutions.
	Concurrency int
	// ClearCache empties the cache at the start of every run.
	ClearCache bool
	// Companies is the tracked peer set.
	Companies []model.Company
	Now       func() time.Time
}

// Analyzer produces reports. Safe for concurrent use.
type Analyzer struct {
	resolver Resolver
	cache    Clearer
	opts     Options
}

// New creates an Analyzer. cache may be nil when ClearCache is unset.
func New(r Resolver, cache Clearer, opts Options) *Analyzer {
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Analyzer{resolver: r, cache: cache, opts: opts}
}

// Companies returns the tracked companies.
func (a *Analyzer) Companies() []model.Company { return a.opts.Companies }

// Request selects what a run covers.
type Request struct {
	DatasetType model.DatasetType
	// Entities defaults to every tracked entity for the dataset type.
	Entities []string
	Years    []int
	// Growth overrides the growth rate for every simulated year.
	Growth *float64
}

// CompanyYear is one company's summed position in one year.
type CompanyYear struct {
	Year   int             `json:"year" yaml:"year"`
	Volume metrics.Amount  `json:"volume" yaml:"volume"`
	Cost   metrics.Amount  `json:"cost" yaml:"cost"`
	Share  metrics.Percent `json:"share" yaml:"share"`
	// Simulated is set when any of the company's entities was projected.
	Simulated bool `json:"simulated" yaml:"simulated"`
}

// CompanyRollup sums a company's tracked entities.
type CompanyRollup struct {
	Name     string          `json:"name" yaml:"name"`
	Entities []string        `json:"entities" yaml:"entities"`
	Years    []CompanyYear   `json:"years" yaml:"years"`
	CostCAGR metrics.Percent `json:"costCagr" yaml:"costCagr"`
}

// Report is the output of one run.
type Report struct {
	ID          string            `json:"id" yaml:"id"`
	GeneratedAt time.Time         `json:"generatedAt" yaml:"generatedAt"`
	DatasetType model.DatasetType `json:"datasetType" yaml:"datasetType"`
	Years       []int             `json:"years" yaml:"years"`
	Entities    []metrics.Trend   `json:"entities" yaml:"entities"`
	Companies   []CompanyRollup   `json:"companies" yaml:"companies"`
	Warnings    []string          `json:"warnings" yaml:"warnings"`
}

// Trend returns the report's trend for entityID, ignoring case.
func (r *Report) Trend(entityID string) (metrics.Trend, bool) {
	for _, t := range r.Entities {
		if strings.EqualFold(t.EntityID, entityID) {
			return t, true
		}
	}
	return metrics.Trend{}, false
}

// Run resolves every requested entity and every tracked peer across the
// requested years, then builds the report. Market shares are computed
// against the whole peer set; only requested entities appear in Entities.
func (a *Analyzer) Run(ctx context.Context, req Request) (*Report, error) {
	if _, err := model.ParseDatasetType(string(req.DatasetType)); err != nil {
		return nil, eris.Wrap(err, "analysis: run")
	}
	yrs := slices.Clone(req.Years)
	slices.Sort(yrs)
	yrs = slices.Compact(yrs)
	if len(yrs) == 0 {
		return nil, eris.New("analysis: no years requested")
	}

	requested := dedupe(req.Entities)
	if len(requested) == 0 {
		requested = model.TrackedEntities(a.opts.Companies, req.DatasetType)
	}
	if len(requested) == 0 {
		return nil, eris.Errorf("analysis: no entities requested and none tracked for %s", req.DatasetType)
	}
	peers := dedupe(append(slices.Clone(requested), model.TrackedEntities(a.opts.Companies, req.DatasetType)...))

	if a.opts.ClearCache && a.cache != nil {
		a.cache.Clear()
	}

	log := zap.L().With(
		zap.String("dataset", string(req.DatasetType)),
		zap.Int("entities", len(peers)),
		zap.Int("years", len(yrs)),
	)
	log.Info("starting analysis run")
	start := a.opts.Now()

	results := make([][]model.Result, len(peers))
	for i := range results {
		results[i] = make([]model.Result, len(yrs))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.opts.Concurrency)
	for i, entity := range peers {
		for j, year := range yrs {
			g.Go(func() error {
				r, err := a.resolver.Resolve(gctx, req.DatasetType, entity, year, req.Growth)
				if err != nil {
					return eris.Wrapf(err, "analysis: resolve %s %d", entity, year)
				}
				results[i][j] = r
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trends := make([]metrics.Trend, len(peers))
	for i, entity := range peers {
		trends[i] = metrics.BuildTrend(req.DatasetType, entity, results[i])
	}
	metrics.ApplyMarketShare(trends)

	report := &Report{
		ID:          uuid.NewString(),
		GeneratedAt: start.UTC(),
		DatasetType: req.DatasetType,
		Years:       yrs,
		Entities:    make([]metrics.Trend, 0, len(requested)),
		Companies:   a.rollup(req.DatasetType, yrs, trends),
		Warnings:    []string{},
	}
	for _, t := range trends {
		if len(t.DataQuality.RealYears) == 0 && len(t.DataQuality.SimulatedYears) == 0 {
			report.Warnings = append(report.Warnings,
				fmt.Sprintf("no data available for %q in any requested year", t.EntityID))
		}
		if containsFold(requested, t.EntityID) {
			report.Entities = append(report.Entities, t)
		}
	}

	log.Info("analysis run complete",
		zap.String("report_id", report.ID),
		zap.Int("warnings", len(report.Warnings)),
		zap.Duration("elapsed", a.opts.Now().Sub(start)),
	)
	return report, nil
}

// rollup sums each company's entities per year. Company share is against
// the sum over every peer trend for the year.
func (a *Analyzer) rollup(dt model.DatasetType, yrs []int, trends []metrics.Trend) []CompanyRollup {
	peerCost := map[int]float64{}
	for _, t := range trends {
		for _, p := range t.Years {
			peerCost[p.Year] += float64(p.Summary.TotalCost)
		}
	}

	out := make([]CompanyRollup, 0, len(a.opts.Companies))
	for _, c := range a.opts.Companies {
		entities := c.Entities(dt)
		if len(entities) == 0 {
			continue
		}
		cr := CompanyRollup{Name: c.Name, Entities: entities, Years: make([]CompanyYear, 0, len(yrs))}
		var pts []metrics.Point
		for _, y := range yrs {
			cy := CompanyYear{Year: y}
			measured := true
			var volume, cost float64
			for _, t := range trends {
				if !c.Owns(dt, t.EntityID) {
					continue
				}
				p, ok := t.Point(y)
				if !ok {
					continue
				}
				volume += float64(p.Summary.TotalVolume)
				cost += float64(p.Summary.TotalCost)
				if p.Provenance == model.SourceSimulated {
					cy.Simulated = true
				}
				if !p.Provenance.IsReal() {
					measured = false
				}
			}
			cy.Volume = metrics.Amount(volume)
			cy.Cost = metrics.Amount(cost)
			cy.Share = metrics.MarketShare(cost, peerCost[y])
			cr.Years = append(cr.Years, cy)

			prov := model.SourceSimulated
			if measured {
				prov = model.SourceConfirmed
			}
			pts = append(pts, metrics.Point{Year: y, Value: cost, Provenance: prov})
		}
		cr.CostCAGR = metrics.CAGR(pts)
		out = append(out, cr)
	}
	return out
}

func dedupe(ids []string) []string {
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || containsFold(out, id) {
			continue
		}
		out = append(out, id)
	}
	return out
}

func containsFold(ids []string, id string) bool {
	return slices.ContainsFunc(ids, func(s string) bool { return strings.EqualFold(s, id) })
}
