package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify <year>...",
	Short: "Show whether years are confirmed, potential, simulated, or invalid",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		yc, err := cfg.YearConfig()
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "YEAR\tCLASSIFICATION")
		for _, a := range args {
			y, err := strconv.Atoi(a)
			if err != nil {
				return eris.Errorf("classify: %q is not a year", a)
			}
			fmt.Fprintf(w, "%d\t%s\n", y, yc.Classify(y))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(classifyCmd)
}
