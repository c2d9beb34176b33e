// Package simulate projects a measured base year forward with compound
// annual growth.
package simulate

import (
	"fmt"
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medintel/internal/model"
)

// DefaultCostOffsets are the percentage points by which unit-cost growth
// runs ahead of volume growth, per dataset type. They are policy defaults,
// not fitted values.
func DefaultCostOffsets() map[model.DatasetType]float64 {
	return map[model.DatasetType]float64{
		model.VolumeByCode: 1.5,
		model.CostByName:   2.0,
	}
}

// Simulator projects results. It holds no mutable state.
type Simulator struct {
	costOffsets map[model.DatasetType]float64
}

// New creates a Simulator. Dataset types missing from costOffsets use the
// defaults.
func New(costOffsets map[model.DatasetType]float64) *Simulator {
	offsets := DefaultCostOffsets()
	for k, v := range costOffsets {
		offsets[k] = v
	}
	return &Simulator{costOffsets: offsets}
}

// ValidateGrowth rejects growth rates that cannot be compounded into finite
// values. Rates at or below -100% are accepted here and yield an empty
// projection.
func ValidateGrowth(pct float64) error {
	if math.IsNaN(pct) || math.IsInf(pct, 0) {
		return eris.Errorf("growth rate %v is not a finite number", pct)
	}
	return nil
}

// CostOffset returns the unit-cost growth offset for dt.
func (s *Simulator) CostOffset(dt model.DatasetType) float64 {
	return s.costOffsets[dt]
}

// Simulate projects base to targetYear. Volume grows at growthPct per year
// and unit cost at growthPct plus the dataset's cost offset, both
// compounded; totals are recomputed from the projected values. A target at
// or before the base year returns base unchanged.
func (s *Simulator) Simulate(dt model.DatasetType, entityID string, base model.Result, targetYear int, growthPct float64) model.Result {
	baseYear := base.Metadata.Year

	if len(base.Records) == 0 {
		return empty(dt, entityID, targetYear, "no base data to project from")
	}
	if !base.Metadata.DataSourceType.IsReal() {
		return empty(dt, entityID, targetYear,
			fmt.Sprintf("base data for %d is %s, not measured; nothing to project from", baseYear, base.Metadata.DataSourceType))
	}

	yearDiff := targetYear - baseYear
	if yearDiff <= 0 {
		return base.Clone()
	}
	costPct := growthPct + s.costOffsets[dt]
	if ValidateGrowth(growthPct) != nil || growthPct <= -100 || costPct <= -100 {
		return empty(dt, entityID, targetYear,
			fmt.Sprintf("growth rate %.2f%% cannot be compounded", growthPct))
	}

	volumeFactor := math.Pow(1+growthPct/100, float64(yearDiff))
	costFactor := math.Pow(1+costPct/100, float64(yearDiff))
	if math.IsInf(volumeFactor, 0) || math.IsInf(costFactor, 0) {
		return empty(dt, entityID, targetYear,
			fmt.Sprintf("growth rate %.2f%% over %d years overflows", growthPct, yearDiff))
	}

	records := make([]model.Record, len(base.Records))
	for i, r := range base.Records {
		p := r.Clone()
		p.Year = targetYear
		p.Volume = r.Volume * volumeFactor
		p.UnitCost = r.UnitCost * costFactor
		p.Recompute()
		p.Provenance = model.SourceSimulated
		records[i] = p
	}

	return model.Result{
		Records: records,
		Metadata: model.FetchMetadata{
			DatasetType:          dt,
			EntityID:             entityID,
			Year:                 targetYear,
			DataSourceType:       model.SourceSimulated,
			TotalRecords:         len(records),
			BaseYear:             &baseYear,
			GrowthRate:           &growthPct,
			CompoundGrowthFactor: &volumeFactor,
			CostGrowthRate:       &costPct,
			CostGrowthFactor:     &costFactor,
			Warnings: []string{fmt.Sprintf(
				"projected from %d over %d years at %.2f%% volume and %.2f%% unit-cost annual growth",
				baseYear, yearDiff, growthPct, costPct,
			)},
		},
	}
}

func empty(dt model.DatasetType, entityID string, year int, warning string) model.Result {
	return model.Result{
		Records: []model.Record{},
		Metadata: model.FetchMetadata{
			DatasetType:    dt,
			EntityID:       entityID,
			Year:           year,
			DataSourceType: model.SourceSimulated,
			Warnings:       []string{warning},
		},
	}
}
