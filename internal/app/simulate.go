package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"kryptrix/internal/simulation"
	"kryptrix/internal/storage"
)

// Simulate projects one what-if scenario against the configured baseline and
// prints the result. With --persist the projection is recorded for auditing;
// the projection itself never reads or writes pipeline state.
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	input := simulation.Input{
		Baseline: simulation.Baseline{
			FeePct:         decimal.NewFromFloat(a.Config.Simulation.BaseFeePct),
			LatencyMs:      decimal.NewFromFloat(a.Config.Simulation.BaseLatencyMs),
			ConversionRate: decimal.NewFromFloat(a.Config.Simulation.BaseConversionRate),
			Revenue:        decimal.NewFromFloat(opts.Revenue),
		},
		Deltas: simulation.Deltas{
			FeeDeltaPct:     decimal.NewFromFloat(opts.FeeDeltaPct),
			LatencyDeltaMs:  decimal.NewFromFloat(opts.LatencyDeltaMs),
			ConversionDelta: decimal.NewFromFloat(opts.ConversionDelta),
		},
	}

	engine := simulation.NewEngine(a.Config.Simulation.Coefficients)
	result, err := engine.Evaluate(input)
	if err != nil {
		return err
	}

	printSimulation(opts.Scenario, result)

	if !opts.Persist {
		return nil
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("database not configured; cannot persist scenario")
	}
	if closeStore != nil {
		defer closeStore()
	}

	row := storage.SimulationRow{
		Scenario:         opts.Scenario,
		BaselineRevenue:  result.BaselineRevenue,
		SimulatedRevenue: result.SimulatedRevenue,
		DeltaAbs:         result.DeltaAbs,
		Recommendation:   string(result.Recommendation),
	}
	if v, ok := result.DeltaPct.Value(); ok {
		row.DeltaPct = &v
	}

	stored, err := store.InsertSimulation(ctx, row)
	if err != nil {
		return err
	}

	a.Logger.Info().Int64("id", stored.ID).Str("scenario", opts.Scenario).Msg("scenario recorded")
	return nil
}

func printSimulation(scenario string, result simulation.Result) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(writer, "Scenario:\t%s\n", scenario)
	fmt.Fprintf(writer, "Baseline revenue:\t%s\n", result.BaselineRevenue.StringFixed(2))
	fmt.Fprintf(writer, "Simulated revenue:\t%s\n", result.SimulatedRevenue.StringFixed(2))
	fmt.Fprintf(writer, "Delta:\t%s\n", result.DeltaAbs.StringFixed(2))
	fmt.Fprintf(writer, "Delta %%:\t%s\n", formatMetric(result.DeltaPct))
	fmt.Fprintf(writer, "Recommendation:\t%s\n", result.Recommendation)
	writer.Flush()
}
