package model

import "maps"

// Record is one normalized observation for an entity in a year.
type Record struct {
	Year          int            `json:"year"`
	EntityID      string         `json:"entityId"`
	Description   string         `json:"description,omitempty"`
	Volume        float64        `json:"volume"`
	UnitCost      float64        `json:"unitCost"`
	Total         float64        `json:"total"`
	Beneficiaries float64        `json:"beneficiaries,omitempty"`
	Provenance    SourceType     `json:"provenance"`
	SourceFields  map[string]any `json:"sourceFields,omitempty"`
}

// NewRecord builds a record whose total is derived from volume and unit cost.
func NewRecord(year int, entityID string, volume, unitCost float64, provenance SourceType) Record {
	return Record{
		Year:       year,
		EntityID:   entityID,
		Volume:     volume,
		UnitCost:   unitCost,
		Total:      volume * unitCost,
		Provenance: provenance,
	}
}

// Recompute restores the total = volume × unitCost invariant.
func (r *Record) Recompute() {
	r.Total = r.Volume * r.UnitCost
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := r
	if r.SourceFields != nil {
		out.SourceFields = maps.Clone(r.SourceFields)
	}
	return out
}
