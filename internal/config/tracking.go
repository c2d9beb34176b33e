package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/medintel/internal/model"
	"github.com/sells-group/medintel/internal/simulate"
)

// Tracking is the fixed peer set: which companies are followed and which
// procedure codes and drugs belong to each.
type Tracking struct {
	Companies []model.Company `yaml:"companies"`
}

// LoadTracking reads a tracking file. A missing file yields an empty
// Tracking so the engine still runs for explicitly requested entities.
func LoadTracking(path string) (*Tracking, error) {
	if path == "" {
		return &Tracking{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Tracking{}, nil
		}
		return nil, eris.Wrapf(err, "config: read tracking file %s", path)
	}

	var t Tracking
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, eris.Wrapf(err, "config: parse tracking file %s", path)
	}
	for i, c := range t.Companies {
		if strings.TrimSpace(c.Name) == "" {
			return nil, eris.Errorf("config: tracking file %s: company %d has no name", path, i)
		}
		for dt, rates := range c.Growth {
			if _, err := model.ParseDatasetType(string(dt)); err != nil {
				return nil, eris.Wrapf(err, "config: tracking file %s: company %q growth", path, c.Name)
			}
			for id, pct := range rates {
				if err := simulate.ValidateGrowth(pct); err != nil {
					return nil, eris.Wrapf(err, "config: tracking file %s: company %q growth for %q", path, c.Name, id)
				}
			}
		}
	}
	return &t, nil
}

// EntityGrowth merges the companies' entity-specific growth rates.
func (t *Tracking) EntityGrowth() map[model.DatasetType]map[string]float64 {
	return model.EntityGrowth(t.Companies)
}
