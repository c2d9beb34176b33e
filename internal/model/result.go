package model

import "slices"

// FetchMetadata accompanies every result.
type FetchMetadata struct {
	DatasetType    DatasetType `json:"datasetType"`
	EntityID       string      `json:"entityId"`
	Year           int         `json:"year"`
	DataSourceType SourceType  `json:"dataSourceType"`
	// Classification is the year's configured class, which differs from
	// DataSourceType when a potential year had to be simulated.
	Classification SourceType `json:"classification,omitempty"`
	Outcome        Outcome    `json:"outcome,omitempty"`
	RequestCount   int        `json:"requestCount"`
	SuccessCount   int        `json:"successCount"`
	TotalRecords   int        `json:"totalRecords"`
	Warnings       []string   `json:"warnings"`

	BaseYear             *int     `json:"baseYear,omitempty"`
	GrowthRate           *float64 `json:"growthRate,omitempty"`
	CompoundGrowthFactor *float64 `json:"compoundGrowthFactor,omitempty"`
	CostGrowthRate       *float64 `json:"costGrowthRate,omitempty"`
	CostGrowthFactor     *float64 `json:"costGrowthFactor,omitempty"`
}

// Warn appends a warning.
func (m *FetchMetadata) Warn(msg string) {
	m.Warnings = append(m.Warnings, msg)
}

// Result is the (records, metadata) pair produced by fetch, simulate, and resolve.
type Result struct {
	Records  []Record      `json:"records"`
	Metadata FetchMetadata `json:"metadata"`
}

// Empty reports whether the result carries no records.
func (r Result) Empty() bool { return len(r.Records) == 0 }

// Clone returns a deep copy so cached results cannot be mutated through
// a returned value.
func (r Result) Clone() Result {
	out := Result{Metadata: r.Metadata}
	out.Records = make([]Record, len(r.Records))
	for i, rec := range r.Records {
		out.Records[i] = rec.Clone()
	}
	out.Metadata.Warnings = slices.Clone(r.Metadata.Warnings)
	if out.Metadata.Warnings == nil {
		out.Metadata.Warnings = []string{}
	}
	out.Metadata.BaseYear = clonePtr(r.Metadata.BaseYear)
	out.Metadata.GrowthRate = clonePtr(r.Metadata.GrowthRate)
	out.Metadata.CompoundGrowthFactor = clonePtr(r.Metadata.CompoundGrowthFactor)
	out.Metadata.CostGrowthRate = clonePtr(r.Metadata.CostGrowthRate)
	out.Metadata.CostGrowthFactor = clonePtr(r.Metadata.CostGrowthFactor)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
