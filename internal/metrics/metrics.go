// Package metrics folds resolved (records, metadata) pairs into totals and
// trend metrics. It never fetches or simulates.
package metrics

import (
	"math"

	"github.com/sells-group/medintel/internal/model"
)

// Summary is the reduction of one year's records.
type Summary struct {
	// Metric names the volume quantity: services or claims.
	Metric      string `json:"metric" yaml:"metric"`
	Records     int    `json:"records" yaml:"records"`
	TotalVolume Amount `json:"totalVolume" yaml:"totalVolume"`
	TotalCost   Amount `json:"totalCost" yaml:"totalCost"`
	// AvgUnitCost is cost per unit of volume; zero when volume is zero.
	AvgUnitCost Amount `json:"avgUnitCost" yaml:"avgUnitCost"`
}

// Aggregate reduces records to totals. Average unit cost is weighted by
// volume and is 0 when there is no volume.
func Aggregate(records []model.Record, dt model.DatasetType) Summary {
	s := Summary{Metric: dt.VolumeMetric(), Records: len(records)}
	var volume, cost float64
	for _, r := range records {
		volume += r.Volume
		cost += r.Total
	}
	s.TotalVolume = Amount(volume)
	s.TotalCost = Amount(cost)
	if volume > 0 {
		s.AvgUnitCost = Amount(cost / volume)
	}
	return s
}

// YoY returns (current - previous) / previous as a percentage, undefined
// when previous is zero.
func YoY(previous, current float64) Percent {
	if previous == 0 {
		return Undefined()
	}
	return PercentOf((current - previous) / previous * 100)
}

// Point is one year's value with its provenance, the input to CAGR.
type Point struct {
	Year       int
	Value      float64
	Provenance model.SourceType
}

// CAGR is the compound annual growth rate between the oldest and newest
// points with real provenance. Simulated, missing, and invalid points are
// ignored. Undefined when fewer than two real years exist or the start
// value is not positive.
func CAGR(points []Point) Percent {
	var start, end *Point
	for i := range points {
		p := &points[i]
		if !p.Provenance.IsReal() {
			continue
		}
		if start == nil || p.Year < start.Year {
			start = p
		}
		if end == nil || p.Year > end.Year {
			end = p
		}
	}
	if start == nil || end == nil || end.Year == start.Year || start.Value <= 0 || end.Value < 0 {
		return Undefined()
	}
	span := float64(end.Year - start.Year)
	return PercentOf((math.Pow(end.Value/start.Value, 1/span) - 1) * 100)
}

// MarketShare is value as a percentage of peerTotal; undefined when the
// peer total is not positive.
func MarketShare(value, peerTotal float64) Percent {
	if peerTotal <= 0 {
		return Undefined()
	}
	return PercentOf(value / peerTotal * 100)
}
