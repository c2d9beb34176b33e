package source

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/sells-group/medintel/internal/fetcher"
	"github.com/sells-group/medintel/internal/model"
)

// Schema lists, per logical field, the upstream column names to try in
// order. CMS renamed columns between releases; the current name comes
// first and the legacy name second.
type Schema struct {
	Volume        []string
	UnitCost      []string
	Spend         []string
	Description   []string
	Beneficiaries []string
	Entity        []string
	Year          []string
}

// Schemas holds the known column variants for each dataset type.
var Schemas = map[model.DatasetType]Schema{
	model.VolumeByCode: {
		Volume:        []string{"Tot_Srvcs", "line_srvc_cnt"},
		UnitCost:      []string{"Avg_Mdcr_Pymt_Amt", "average_medicare_payment_amt"},
		Description:   []string{"HCPCS_Desc", "hcpcs_description"},
		Beneficiaries: []string{"Tot_Benes", "bene_unique_cnt"},
		Entity:        []string{"HCPCS_Cd", "hcpcs_code"},
		Year:          []string{"Year", "year"},
	},
	model.CostByName: {
		Volume:        []string{"Tot_Clms", "total_claim_count"},
		UnitCost:      []string{"Avg_Spnd_Per_Clm", "average_cost_per_claim"},
		Spend:         []string{"Tot_Spndng", "total_drug_cost"},
		Description:   []string{"Gnrc_Name", "generic_name"},
		Beneficiaries: []string{"Tot_Benes", "bene_count"},
		Entity:        []string{"Brnd_Name", "brand_name"},
		Year:          []string{"Year", "year"},
	},
}

// columns is a Schema resolved against one batch: each logical field maps
// to the single column name present in that batch, or "".
type columns struct {
	volume, unitCost, spend, description, beneficiaries, entity, year string
}

// resolveColumns picks, for every logical field, the first candidate that
// appears in any row of the batch.
func (s Schema) resolveColumns(rows []fetcher.Row) columns {
	pick := func(candidates []string) string {
		for _, c := range candidates {
			for _, row := range rows {
				if _, ok := row[c]; ok {
					return c
				}
			}
		}
		return ""
	}
	return columns{
		volume:        pick(s.Volume),
		unitCost:      pick(s.UnitCost),
		spend:         pick(s.Spend),
		description:   pick(s.Description),
		beneficiaries: pick(s.Beneficiaries),
		entity:        pick(s.Entity),
		year:          pick(s.Year),
	}
}

// usable reports whether the batch carries enough columns to build records.
func (c columns) usable() bool {
	return c.volume != "" && (c.unitCost != "" || c.spend != "")
}

// parseNumber reads a loosely typed upstream value. Strings may carry
// thousands separators or a currency sign; suppressed or blank cells are
// reported as not ok.
func parseNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		if s == "" || s == "*" || s == "**" || s == "#" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil && !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return 0, false
	}
}

func stringField(row fetcher.Row, col string) string {
	if col == "" {
		return ""
	}
	switch v := row[col].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return strings.Trim(string(b), `"`)
	}
}

// batchStats counts rows dropped while normalizing one batch.
type batchStats struct {
	negative    int
	unparseable int
	offTarget   int
	// spendNoVolume counts rows reporting spend but zero claims, where no
	// unit cost can be derived.
	spendNoVolume int
}

// normalizeBatch turns rows into records. When matchTarget is set, rows
// whose entity or year columns name something other than the request are
// skipped; fallback queries are broad and return neighbours.
func normalizeBatch(rows []fetcher.Row, cols columns, entityID string, year int, provenance model.SourceType, matchTarget bool) ([]model.Record, batchStats) {
	var out []model.Record
	var st batchStats
	for _, row := range rows {
		if matchTarget {
			if e := stringField(row, cols.entity); e != "" && !strings.EqualFold(e, strings.TrimSpace(entityID)) {
				st.offTarget++
				continue
			}
			if y, ok := parseNumber(row[cols.year]); ok && cols.year != "" && int(y) != year {
				st.offTarget++
				continue
			}
		}

		volume, ok := parseNumber(row[cols.volume])
		if !ok {
			st.unparseable++
			continue
		}

		var unitCost float64
		if cols.unitCost != "" {
			if unitCost, ok = parseNumber(row[cols.unitCost]); !ok {
				st.unparseable++
				continue
			}
		} else {
			spend, ok := parseNumber(row[cols.spend])
			if !ok {
				st.unparseable++
				continue
			}
			switch {
			case volume > 0:
				unitCost = spend / volume
			case spend < 0:
				unitCost = -1
			case spend > 0 && volume == 0:
				st.spendNoVolume++
				continue
			}
		}

		if volume < 0 || unitCost < 0 {
			st.negative++
			continue
		}

		rec := model.NewRecord(year, entityID, volume, unitCost, provenance)
		rec.Description = stringField(row, cols.description)
		if b, ok := parseNumber(row[cols.beneficiaries]); ok && b >= 0 {
			rec.Beneficiaries = b
		}
		rec.SourceFields = make(map[string]any, len(row))
		for k, v := range row {
			rec.SourceFields[k] = v
		}
		out = append(out, rec)
	}
	return out, st
}
