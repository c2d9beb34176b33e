package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/medintel/internal/export"
	"github.com/sells-group/medintel/internal/model"
	"github.com/sells-group/medintel/internal/simulate"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve one entity and year to real or simulated records",
	RunE: func(cmd *cobra.Command, _ []string) error {
		typ, _ := cmd.Flags().GetString("type")
		entity, _ := cmd.Flags().GetString("entity")
		year, _ := cmd.Flags().GetInt("year")

		dt, err := model.ParseDatasetType(typ)
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

		res, err := env.Resolver.Resolve(cmd.Context(), dt, entity, year, growth)
		if err != nil {
			return err
		}
		return export.WriteJSON(cmd.OutOrStdout(), res)
	},
}

func init() {
	resolveCmd.Flags().String("type", string(model.VolumeByCode), "dataset type (volumeByCode, costByName)")
	resolveCmd.Flags().String("entity", "", "procedure code or drug brand name")
	resolveCmd.Flags().Int("year", 0, "calendar year")
	resolveCmd.Flags().Float64("growth", 0, "annual growth percent override for simulated years")
	_ = resolveCmd.MarkFlagRequired("entity")
	_ = resolveCmd.MarkFlagRequired("year")
	rootCmd.AddCommand(resolveCmd)
}
