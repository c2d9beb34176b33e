package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/medintel/internal/analysis"
	"github.com/sells-group/medintel/internal/export"
	"github.com/sells-group/medintel/internal/model"
	"github.com/sells-group/medintel/internal/simulate"
	"github.com/sells-group/medintel/internal/years"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Resolve entities across years and report trends, shares, and data quality",
	RunE: func(cmd *cobra.Command, _ []string) error {
		typ, _ := cmd.Flags().GetString("type")
		entities, _ := cmd.Flags().GetStringSlice("entities")
		yearSpec, _ := cmd.Flags().GetString("years")
		format, _ := cmd.Flags().GetString("format")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")

		dt, err := model.ParseDatasetType(typ)
		if err != nil {
			return err
		}
		f, err := export.ParseFormat(format)
		if err != nil {
			return err
		}

		var growth *float64
		if cmd.Flags().Changed("growth") {
			g, _ := cmd.Flags().GetFloat64("growth")
			if err := simulate.ValidateGrowth(g); err != nil {
				return err
			}
			growth = &g
		}

		env, err := initEngine("engine")
		if err != nil {
			return err
		}

		yrs := env.Years.All()
		if yearSpec != "" {
			if yrs, err = years.ParseList(yearSpec); err != nil {
				return err
			}
		}

		rep, err := env.Analyzer.Run(cmd.Context(), analysis.Request{
			DatasetType: dt,
			Entities:    entities,
			Years:       yrs,
			Growth:      growth,
		})
		if err != nil {
			return err
		}

		if xlsxPath != "" {
			if err := export.WriteXLSX(rep, xlsxPath); err != nil {
				return err
			}
			zap.L().Info("wrote xlsx report", zap.String("path", xlsxPath))
			fmt.Fprintf(os.Stderr, "Wrote %s\n", xlsxPath)
		}

		return export.Write(cmd.OutOrStdout(), rep, f)
	},
}

func init() {
	reportCmd.Flags().String("type", string(model.VolumeByCode), "dataset type (volumeByCode, costByName)")
	reportCmd.Flags().StringSlice("entities", nil, "entity ids (default: every tracked entity)")
	reportCmd.Flags().String("years", "", "years and ranges, e.g. 2019-2023,2026 (default: every configured year)")
	reportCmd.Flags().String("format", "table", "output format (json, yaml, table)")
	reportCmd.Flags().String("xlsx", "", "also write the report to this XLSX file")
	reportCmd.Flags().Float64("growth", 0, "annual growth percent override for simulated years")
	rootCmd.AddCommand(reportCmd)
}
