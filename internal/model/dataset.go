// Package model defines the shared types that flow between the fetch,
// simulation, resolution, and metrics layers.
package model

import (
	"github.com/rotisserie/eris"
)

// DatasetType identifies one Medicare reimbursement dataset.
type DatasetType string

const (
	// VolumeByCode is Part B utilization and payment keyed by HCPCS procedure code.
	VolumeByCode DatasetType = "volumeByCode"
	// CostByName is Part D spending keyed by drug brand name.
	CostByName DatasetType = "costByName"
)

// DatasetTypes returns all known dataset types in a stable order.
func DatasetTypes() []DatasetType {
	return []DatasetType{VolumeByCode, CostByName}
}

// ParseDatasetType validates s as a dataset type.
func ParseDatasetType(s string) (DatasetType, error) {
	switch DatasetType(s) {
	case VolumeByCode, CostByName:
		return DatasetType(s), nil
	default:
		return "", eris.Errorf("model: unknown dataset type %q (valid: volumeByCode, costByName)", s)
	}
}

// VolumeMetric names the measured quantity that drives growth assumptions
// for the dataset: services rendered for Part B, claims filled for Part D.
func (d DatasetType) VolumeMetric() string {
	if d == CostByName {
		return "claims"
	}
	return "services"
}

func (d DatasetType) String() string { return string(d) }
