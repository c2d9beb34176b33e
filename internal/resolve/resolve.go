// Package resolve decides, per requested year, whether data is fetched or
// projected, and hands off to the simulator when no real data exists.
package resolve

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/sells-group/medintel/internal/model"
	"github.com/sells-group/medintel/internal/simulate"
	"github.com/sells-group/medintel/internal/years"
)

// Fetcher retrieves real data for one tuple. *source.Fetcher satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, dt model.DatasetType, entityID string, year int) (model.Result, error)
}

// EntityGrowth holds entity-specific annual growth percents per dataset type.
type EntityGrowth map[model.DatasetType]map[string]float64

// Resolver is the YearDataResolver. It holds no per-request state and is safe
// for concurrent use.
type Resolver struct {
	fetcher Fetcher
	sim     *simulate.Simulator
	years   *years.Config
	growth  map[model.DatasetType]map[string]float64
}

// New creates a Resolver. Entity ids in growth are matched case-insensitively.
func New(f Fetcher, sim *simulate.Simulator, yc *years.Config, growth EntityGrowth) *Resolver {
	folded := make(map[model.DatasetType]map[string]float64, len(growth))
	for dt, rates := range growth {
		m := make(map[string]float64, len(rates))
		for id, rate := range rates {
			m[foldID(id)] = rate
		}
		folded[dt] = m
	}
	return &Resolver{fetcher: f, sim: sim, years: yc, growth: folded}
}

// Years returns the classifier used by the resolver.
func (r *Resolver) Years() *years.Config { return r.years }

// Resolve returns real data for the year when it exists, otherwise a
// projection from the nearest preceding confirmed year with data, otherwise
// an empty result tagged missing. Invalid years are returned as fetched.
// Errors come only from the fetcher (unknown dataset type, done context).
func (r *Resolver) Resolve(ctx context.Context, dt model.DatasetType, entityID string, year int, growthOverride *float64) (model.Result, error) {
	target, err := r.fetcher.Fetch(ctx, dt, entityID, year)
	if err != nil {
		return model.Result{}, err
	}

	cls := r.years.Classify(year)
	target.Metadata.Classification = cls
	if cls == model.SourceInvalid {
		return target, nil
	}
	if !target.Empty() && target.Metadata.DataSourceType.IsReal() {
		return target, nil
	}

	warnings := append([]string{}, target.Metadata.Warnings...)
	requests, successes := target.Metadata.RequestCount, target.Metadata.SuccessCount

	var base model.Result
	found := false
	for _, by := range r.years.ConfirmedBefore(year) {
		b, err := r.fetcher.Fetch(ctx, dt, entityID, by)
		if err != nil {
			return model.Result{}, err
		}
		requests += b.Metadata.RequestCount
		successes += b.Metadata.SuccessCount
		if !b.Empty() {
			base, found = b, true
			break
		}
		for _, w := range b.Metadata.Warnings {
			warnings = append(warnings, fmt.Sprintf("base year %d: %s", by, w))
		}
	}

	if !found {
		warnings = append(warnings, fmt.Sprintf(
			"no real %s data for %q in %d or any earlier confirmed year; nothing to simulate from", dt, entityID, year))
		return model.Result{
			Records: []model.Record{},
			Metadata: model.FetchMetadata{
				DatasetType:    dt,
				EntityID:       entityID,
				Year:           year,
				DataSourceType: model.SourceMissing,
				Classification: cls,
				RequestCount:   requests,
				SuccessCount:   successes,
				Warnings:       warnings,
			},
		}, nil
	}

	rate, origin := r.growthRate(dt, entityID, growthOverride)
	zap.L().Info("simulating from base year",
		zap.String("dataset", string(dt)),
		zap.String("entity", entityID),
		zap.Int("year", year),
		zap.Int("base_year", base.Metadata.Year),
		zap.Float64("growth", rate),
		zap.String("growth_origin", origin),
	)

	out := r.sim.Simulate(dt, entityID, base, year, rate)
	out.Metadata.Classification = cls
	out.Metadata.RequestCount = requests
	out.Metadata.SuccessCount = successes
	for _, w := range base.Metadata.Warnings {
		warnings = append(warnings, fmt.Sprintf("base year %d: %s", base.Metadata.Year, w))
	}
	out.Metadata.Warnings = append(warnings, out.Metadata.Warnings...)
	return out, nil
}

// GrowthRate reports the annual growth percent Resolve would use for the
// entity, and where it came from: "override", "entity", "default", or "none".
func (r *Resolver) GrowthRate(dt model.DatasetType, entityID string, override *float64) (float64, string) {
	return r.growthRate(dt, entityID, override)
}

func (r *Resolver) growthRate(dt model.DatasetType, entityID string, override *float64) (float64, string) {
	if override != nil {
		return *override, "override"
	}
	if rate, ok := r.growth[dt][foldID(entityID)]; ok {
		return rate, "entity"
	}
	if rate, ok := r.years.DefaultGrowth(dt.VolumeMetric()); ok {
		return rate, "default"
	}
	return 0, "none"
}

func foldID(id string) string {
	return cases.Fold().String(strings.TrimSpace(id))
}
