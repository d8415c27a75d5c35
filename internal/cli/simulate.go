package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"kryptrix/internal/app"
)

var (
	simulateScenario   string
	simulateRevenue    float64
	simulateFeeDelta   float64
	simulateLatency    float64
	simulateConversion float64
	simulatePersist    bool
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Project the revenue impact of a what-if scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		if simulateRevenue < 0 {
			return errors.New("--revenue cannot be negative")
		}

		opts := app.SimulateOptions{
			Scenario:        simulateScenario,
			Revenue:         simulateRevenue,
			FeeDeltaPct:     simulateFeeDelta,
			LatencyDeltaMs:  simulateLatency,
			ConversionDelta: simulateConversion,
			Persist:         simulatePersist,
		}
		return getApp().Simulate(cmd.Context(), opts)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulateScenario, "scenario", "ad-hoc", "Scenario name for the audit trail")
	simulateCmd.Flags().Float64Var(&simulateRevenue, "revenue", 0, "Baseline revenue to project from")
	simulateCmd.Flags().Float64Var(&simulateFeeDelta, "fee-delta", 0, "Fee change in percentage points")
	simulateCmd.Flags().Float64Var(&simulateLatency, "latency-delta", 0, "Latency change in milliseconds")
	simulateCmd.Flags().Float64Var(&simulateConversion, "conversion-delta", 0, "Conversion rate change (absolute)")
	simulateCmd.Flags().BoolVar(&simulatePersist, "persist", false, "Record the projection in the database")
}
