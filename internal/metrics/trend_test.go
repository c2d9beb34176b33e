package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medintel/internal/model"
)

func result(year int, src model.SourceType, volume, cost float64, warnings ...string) model.Result {
	var recs []model.Record
	if volume > 0 {
		recs = append(recs, model.NewRecord(year, "64568", volume, cost, src))
	}
	return model.Result{
		Records: recs,
		Metadata: model.FetchMetadata{
			DatasetType:    model.VolumeByCode,
			EntityID:       "64568",
			Year:           year,
			DataSourceType: src,
			Classification: src,
			Warnings:       warnings,
		},
	}
}

func TestBuildTrend(t *testing.T) {
	tr := BuildTrend(model.VolumeByCode, "64568", []model.Result{
		result(2025, model.SourceSimulated, 200, 10),
		result(2022, model.SourceConfirmed, 100, 10, "page 2 failed"),
		result(2023, model.SourceConfirmed, 110, 10),
		result(2024, model.SourceMissing, 0, 0),
		result(1999, model.SourceInvalid, 0, 0),
	})

	years := make([]int, len(tr.Years))
	for i, p := range tr.Years {
		years[i] = p.Year
	}
	assert.Equal(t, []int{1999, 2022, 2023, 2024, 2025}, years)

	assert.Equal(t, []int{2022, 2023}, tr.DataQuality.RealYears)
	assert.Equal(t, []int{2025}, tr.DataQuality.SimulatedYears)
	assert.Equal(t, []int{2024}, tr.DataQuality.MissingYears)
	assert.Equal(t, []int{1999}, tr.DataQuality.InvalidYears)

	p, ok := tr.Point(2023)
	require.True(t, ok)
	assert.Equal(t, "10.00%", p.VolumeGrowth.String())
	p, _ = tr.Point(2025)
	assert.Equal(t, NA, p.VolumeGrowth.String(), "previous year had no volume")
	p, _ = tr.Point(1999)
	assert.False(t, p.VolumeGrowth.Defined())

	// CAGR over 2022 and 2023 only.
	assert.Equal(t, "10.00%", tr.VolumeCAGR.String())
	assert.Contains(t, tr.Warnings, "2022: page 2 failed")
}

func TestBuildTrend_IdenticalTotalsWarned(t *testing.T) {
	tr := BuildTrend(model.VolumeByCode, "64568", []model.Result{
		result(2021, model.SourceConfirmed, 100, 10),
		result(2022, model.SourceConfirmed, 100, 10),
		result(2026, model.SourceSimulated, 150, 12),
	})
	require.NotEmpty(t, tr.Warnings)
	assert.Contains(t, tr.Warnings[len(tr.Warnings)-1], "identical totals")
	// Data is still returned.
	assert.Len(t, tr.Years, 3)
	assert.Equal(t, Amount(1000), tr.Years[0].Summary.TotalCost)
}

func TestBuildTrend_DistinctTotalsNotWarned(t *testing.T) {
	tr := BuildTrend(model.VolumeByCode, "64568", []model.Result{
		result(2021, model.SourceConfirmed, 100, 10),
		result(2022, model.SourceConfirmed, 101, 10),
	})
	assert.Empty(t, tr.Warnings)
}

func TestApplyMarketShare(t *testing.T) {
	a := BuildTrend(model.VolumeByCode, "a", []model.Result{result(2022, model.SourceConfirmed, 30, 1), result(2023, model.SourceMissing, 0, 0)})
	b := BuildTrend(model.VolumeByCode, "b", []model.Result{result(2022, model.SourceConfirmed, 90, 1), result(2023, model.SourceMissing, 0, 0)})
	trends := []Trend{a, b}
	ApplyMarketShare(trends)

	p, _ := trends[0].Point(2022)
	assert.Equal(t, "25.00%", p.VolumeShare.String())
	assert.Equal(t, "25.00%", p.CostShare.String())
	p, _ = trends[1].Point(2022)
	assert.Equal(t, "75.00%", p.VolumeShare.String())

	p, _ = trends[0].Point(2023)
	assert.Equal(t, NA, p.VolumeShare.String())
}

func TestApplyMarketShare_SingleEntityZeroPeers(t *testing.T) {
	trends := []Trend{BuildTrend(model.VolumeByCode, "a", []model.Result{result(2022, model.SourceMissing, 0, 0)})}
	ApplyMarketShare(trends)
	assert.Equal(t, NA, trends[0].Years[0].CostShare.String())
}
