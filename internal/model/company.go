package model

import (
	"slices"
	"strings"
)

// Company is a tracked manufacturer: the procedure codes and drug names
// attributed to it, and optional entity-specific growth assumptions.
type Company struct {
	Name  string   `json:"name" yaml:"name"`
	Codes []string `json:"codes,omitempty" yaml:"codes"`
	Drugs []string `json:"drugs,omitempty" yaml:"drugs"`
	// Growth maps dataset type to entity id to annual growth percent.
	Growth map[DatasetType]map[string]float64 `json:"growth,omitempty" yaml:"growth"`
}

// Entities returns the company's tracked entity ids for a dataset type.
func (c Company) Entities(dt DatasetType) []string {
	switch dt {
	case VolumeByCode:
		return slices.Clone(c.Codes)
	case CostByName:
		return slices.Clone(c.Drugs)
	default:
		return nil
	}
}

// Owns reports whether entityID is tracked under this company, ignoring case
// and surrounding space.
func (c Company) Owns(dt DatasetType, entityID string) bool {
	id := strings.TrimSpace(entityID)
	for _, e := range c.Entities(dt) {
		if strings.EqualFold(strings.TrimSpace(e), id) {
			return true
		}
	}
	return false
}

// TrackedEntities returns the union of every company's entity ids for dt,
// in first-seen order with case-insensitive duplicates removed.
func TrackedEntities(companies []Company, dt DatasetType) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, c := range companies {
		for _, e := range c.Entities(dt) {
			e = strings.TrimSpace(e)
			k := strings.ToLower(e)
			if _, ok := seen[k]; ok || e == "" {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// EntityGrowth merges every company's growth table. Later companies win on
// conflicting entries.
func EntityGrowth(companies []Company) map[DatasetType]map[string]float64 {
	out := make(map[DatasetType]map[string]float64)
	for _, c := range companies {
		for dt, rates := range c.Growth {
			if out[dt] == nil {
				out[dt] = make(map[string]float64)
			}
			for id, r := range rates {
				out[dt][id] = r
			}
		}
	}
	return out
}
