// Package export renders analysis reports as JSON, YAML, a text table, or
// an XLSX workbook.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/medintel/internal/analysis"
)

// Format names an output format accepted by Write.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
)

// ParseFormat validates s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatYAML, FormatTable:
		return f, nil
	case "yml":
		return FormatYAML, nil
	default:
		return "", eris.Errorf("export: unknown format %q (valid: json, yaml, table)", s)
	}
}

// Write renders rep to w in format f.
func Write(w io.Writer, rep *analysis.Report, f Format) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, rep)
	case FormatYAML:
		return WriteYAML(w, rep)
	case FormatTable:
		return WriteTable(w, rep)
	default:
		return eris.Errorf("export: unknown format %q", f)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "export: encode json")
	}
	return nil
}

// WriteYAML writes v as YAML.
func WriteYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrap(err, "export: encode yaml")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "export: close yaml encoder")
	}
	return nil
}

// WriteTable writes one line per (entity, year) followed by warnings.
func WriteTable(w io.Writer, rep *analysis.Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Report %s (%s)\n\n", rep.ID, rep.DatasetType)
	fmt.Fprintln(tw, "ENTITY\tYEAR\tSOURCE\tVOLUME\tTOTAL COST\tAVG UNIT COST\tYOY COST\tSHARE")
	for _, t := range rep.Entities {
		for _, p := range t.Years {
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
				t.EntityID, p.Year, p.Provenance,
				p.Summary.TotalVolume, p.Summary.TotalCost, p.Summary.AvgUnitCost,
				p.CostGrowth, p.CostShare,
			)
		}
		fmt.Fprintf(tw, "%s\tCAGR\treal years\t%s\t%s\t\t\t\n", t.EntityID, t.VolumeCAGR, t.CostCAGR)
	}

	if len(rep.Companies) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "COMPANY\tYEAR\tVOLUME\tTOTAL COST\tSHARE\tSIMULATED")
		for _, c := range rep.Companies {
			for _, y := range c.Years {
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%t\n", c.Name, y.Year, y.Volume, y.Cost, y.Share, y.Simulated)
			}
		}
	}

	var warnings []string
	for _, t := range rep.Entities {
		for _, msg := range t.Warnings {
			warnings = append(warnings, t.EntityID+" "+msg)
		}
	}
	warnings = append(warnings, rep.Warnings...)
	if len(warnings) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "WARNINGS")
		for _, msg := range warnings {
			fmt.Fprintf(tw, "  %s\n", msg)
		}
	}

	if err := tw.Flush(); err != nil {
		return eris.Wrap(err, "export: flush table")
	}
	return nil
}
