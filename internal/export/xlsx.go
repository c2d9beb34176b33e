package export

import (
	"io"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/medintel/internal/analysis"
	"github.com/sells-group/medintel/internal/metrics"
)

// Sheet names in the workbook.
const (
	SheetSummary   = "Summary"
	SheetTrends    = "Trends"
	SheetCompanies = "Companies"
)

// BuildWorkbook lays the report out as a workbook. Summary holds one row per
// (entity, year); Trends holds growth, CAGR, and share; Companies holds the
// rollups.
func BuildWorkbook(rep *analysis.Report) (*xlsx.File, error) {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return nil, eris.Wrap(err, "export: add summary sheet")
	}
	addRow(summary, "Entity", "Description", "Year", "Provenance", "Base Year", "Metric", "Records", "Volume", "Total Cost", "Avg Unit Cost")
	for _, t := range rep.Entities {
		for _, p := range t.Years {
			row := summary.AddRow()
			row.AddCell().SetString(t.EntityID)
			row.AddCell().SetString(t.Description)
			row.AddCell().SetInt(p.Year)
			row.AddCell().SetString(string(p.Provenance))
			base := row.AddCell()
			if p.BaseYear != nil {
				base.SetInt(*p.BaseYear)
			}
			row.AddCell().SetString(p.Summary.Metric)
			row.AddCell().SetInt(p.Summary.Records)
			setAmount(row.AddCell(), p.Summary.TotalVolume)
			setAmount(row.AddCell(), p.Summary.TotalCost)
			setAmount(row.AddCell(), p.Summary.AvgUnitCost)
		}
	}

	trends, err := f.AddSheet(SheetTrends)
	if err != nil {
		return nil, eris.Wrap(err, "export: add trends sheet")
	}
	addRow(trends, "Entity", "Year", "Volume YoY", "Cost YoY", "Volume Share", "Cost Share", "Volume CAGR", "Cost CAGR", "Real Years", "Simulated Years")
	for _, t := range rep.Entities {
		for _, p := range t.Years {
			addRow(trends,
				t.EntityID, strconv.Itoa(p.Year),
				p.VolumeGrowth.String(), p.CostGrowth.String(),
				p.VolumeShare.String(), p.CostShare.String(),
				t.VolumeCAGR.String(), t.CostCAGR.String(),
				joinYears(t.DataQuality.RealYears), joinYears(t.DataQuality.SimulatedYears),
			)
		}
	}

	companies, err := f.AddSheet(SheetCompanies)
	if err != nil {
		return nil, eris.Wrap(err, "export: add companies sheet")
	}
	addRow(companies, "Company", "Year", "Volume", "Total Cost", "Share", "Simulated", "Cost CAGR")
	for _, c := range rep.Companies {
		for _, y := range c.Years {
			row := companies.AddRow()
			row.AddCell().SetString(c.Name)
			row.AddCell().SetInt(y.Year)
			setAmount(row.AddCell(), y.Volume)
			setAmount(row.AddCell(), y.Cost)
			row.AddCell().SetString(y.Share.String())
			row.AddCell().SetBool(y.Simulated)
			row.AddCell().SetString(c.CostCAGR.String())
		}
	}

	return f, nil
}

// WriteXLSX saves the report workbook to path.
func WriteXLSX(rep *analysis.Report, path string) error {
	f, err := BuildWorkbook(rep)
	if err != nil {
		return err
	}
	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save xlsx %s", path)
	}
	return nil
}

// EncodeXLSX writes the report workbook to w.
func EncodeXLSX(w io.Writer, rep *analysis.Report) error {
	f, err := BuildWorkbook(rep)
	if err != nil {
		return err
	}
	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "export: write xlsx")
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func setAmount(c *xlsx.Cell, a metrics.Amount) {
	v, err := strconv.ParseFloat(a.String(), 64)
	if err != nil {
		c.SetString(a.String())
		return
	}
	c.SetFloat(v)
}

func joinYears(ys []int) string {
	out := ""
	for i, y := range ys {
		if i > 0 {
			out += ","
		}
		out += strconv.Itoa(y)
	}
	return out
}
