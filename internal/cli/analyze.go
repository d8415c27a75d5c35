package cli

import (
	"github.com/spf13/cobra"

	"kryptrix/internal/app"
)

var (
	analyzeSymbol  string
	analyzePersist bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run a single analytics cycle and print the results",
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := app.AnalyzeOptions{
			Symbol:  analyzeSymbol,
			Persist: analyzePersist,
		}
		return getApp().Analyze(cmd.Context(), opts)
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeSymbol, "symbol", "", "Restrict the cycle to one configured symbol")
	analyzeCmd.Flags().BoolVar(&analyzePersist, "persist", false, "Write results to the database")
}
