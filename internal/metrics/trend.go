package metrics

import (
	"fmt"
	"slices"

	"github.com/sells-group/medintel/internal/model"
)

// YearPoint is one resolved year of an entity's trend.
type YearPoint struct {
	Year           int              `json:"year" yaml:"year"`
	Provenance     model.SourceType `json:"provenance" yaml:"provenance"`
	Classification model.SourceType `json:"classification" yaml:"classification"`
	BaseYear       *int             `json:"baseYear,omitempty" yaml:"baseYear,omitempty"`
	Summary        Summary          `json:"summary" yaml:"summary"`
	VolumeGrowth   Percent          `json:"volumeGrowth" yaml:"volumeGrowth"`
	CostGrowth     Percent          `json:"costGrowth" yaml:"costGrowth"`
	VolumeShare    Percent          `json:"volumeShare" yaml:"volumeShare"`
	CostShare      Percent          `json:"costShare" yaml:"costShare"`
}

// DataQuality partitions the requested years by provenance.
type DataQuality struct {
	RealYears      []int `json:"realYears" yaml:"realYears"`
	SimulatedYears []int `json:"simulatedYears" yaml:"simulatedYears"`
	MissingYears   []int `json:"missingYears" yaml:"missingYears"`
	InvalidYears   []int `json:"invalidYears" yaml:"invalidYears"`
}

// Trend is the per-entity fold over all requested years.
type Trend struct {
	DatasetType model.DatasetType `json:"datasetType" yaml:"datasetType"`
	EntityID    string            `json:"entityId" yaml:"entityId"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Years       []YearPoint       `json:"years" yaml:"years"`
	// CAGRs use real years only.
	VolumeCAGR  Percent     `json:"volumeCagr" yaml:"volumeCagr"`
	CostCAGR    Percent     `json:"costCagr" yaml:"costCagr"`
	DataQuality DataQuality `json:"dataQuality" yaml:"dataQuality"`
	Warnings    []string    `json:"warnings" yaml:"warnings"`
}

// Point returns the trend's entry for year.
func (t Trend) Point(year int) (YearPoint, bool) {
	for _, p := range t.Years {
		if p.Year == year {
			return p, true
		}
	}
	return YearPoint{}, false
}

// BuildTrend folds one entity's resolved results, in any order, into a
// trend. Market shares are left undefined; see ApplyMarketShare.
func BuildTrend(dt model.DatasetType, entityID string, results []model.Result) Trend {
	sorted := slices.Clone(results)
	slices.SortStableFunc(sorted, func(a, b model.Result) int {
		return a.Metadata.Year - b.Metadata.Year
	})

	t := Trend{
		DatasetType: dt,
		EntityID:    entityID,
		Years:       make([]YearPoint, 0, len(sorted)),
		DataQuality: DataQuality{
			RealYears:      []int{},
			SimulatedYears: []int{},
			MissingYears:   []int{},
			InvalidYears:   []int{},
		},
		Warnings: []string{},
	}

	var volumePts, costPts []Point
	for i, r := range sorted {
		md := r.Metadata
		p := YearPoint{
			Year:           md.Year,
			Provenance:     md.DataSourceType,
			Classification: md.Classification,
			BaseYear:       md.BaseYear,
			Summary:        Aggregate(r.Records, dt),
		}
		if t.Description == "" {
			for _, rec := range r.Records {
				if rec.Description != "" {
					t.Description = rec.Description
					break
				}
			}
		}

		if i > 0 {
			prev := t.Years[i-1].Summary
			p.VolumeGrowth = YoY(float64(prev.TotalVolume), float64(p.Summary.TotalVolume))
			p.CostGrowth = YoY(float64(prev.TotalCost), float64(p.Summary.TotalCost))
		}

		switch {
		case md.DataSourceType.IsReal():
			t.DataQuality.RealYears = append(t.DataQuality.RealYears, md.Year)
		case md.DataSourceType == model.SourceSimulated:
			t.DataQuality.SimulatedYears = append(t.DataQuality.SimulatedYears, md.Year)
		case md.DataSourceType == model.SourceInvalid:
			t.DataQuality.InvalidYears = append(t.DataQuality.InvalidYears, md.Year)
		default:
			t.DataQuality.MissingYears = append(t.DataQuality.MissingYears, md.Year)
		}

		volumePts = append(volumePts, Point{Year: md.Year, Value: float64(p.Summary.TotalVolume), Provenance: md.DataSourceType})
		costPts = append(costPts, Point{Year: md.Year, Value: float64(p.Summary.TotalCost), Provenance: md.DataSourceType})

		for _, w := range md.Warnings {
			t.Warnings = append(t.Warnings, fmt.Sprintf("%d: %s", md.Year, w))
		}
		t.Years = append(t.Years, p)
	}

	t.VolumeCAGR = CAGR(volumePts)
	t.CostCAGR = CAGR(costPts)
	if w, ok := identicalTotals(t); ok {
		t.Warnings = append(t.Warnings, w)
	}
	return t
}

// identicalTotals flags a trend whose real years all report the same total
// cost, which usually means one upstream dataset was served for every year.
func identicalTotals(t Trend) (string, bool) {
	var measured []YearPoint
	for _, p := range t.Years {
		if p.Provenance.IsReal() {
			measured = append(measured, p)
		}
	}
	if len(measured) < 2 {
		return "", false
	}
	first := measured[0].Summary
	for _, p := range measured[1:] {
		if p.Summary.TotalCost != first.TotalCost || p.Summary.TotalVolume != first.TotalVolume {
			return "", false
		}
	}
	return fmt.Sprintf("real years %v report identical totals (volume %s, cost %s); upstream data may be duplicated across years",
		t.DataQuality.RealYears, first.TotalVolume, first.TotalCost), true
}

// ApplyMarketShare sets each point's volume and cost share against the sum
// over all trends for the same year. Trends are updated in place.
func ApplyMarketShare(trends []Trend) {
	volume := map[int]float64{}
	cost := map[int]float64{}
	for _, t := range trends {
		for _, p := range t.Years {
			volume[p.Year] += float64(p.Summary.TotalVolume)
			cost[p.Year] += float64(p.Summary.TotalCost)
		}
	}
	for i := range trends {
		for j := range trends[i].Years {
			p := &trends[i].Years[j]
			p.VolumeShare = MarketShare(float64(p.Summary.TotalVolume), volume[p.Year])
			p.CostShare = MarketShare(float64(p.Summary.TotalCost), cost[p.Year])
		}
	}
}
