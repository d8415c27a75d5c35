package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"kryptrix/internal/market"
	"kryptrix/internal/service"
)

// Analyze runs one analytics cycle immediately and prints the results. With
// persistence configured the cycle writes through exactly like the daemon.
func (a *App) Analyze(ctx context.Context, opts AnalyzeOptions) error {
	if len(a.Config.Symbols) == 0 {
		return errors.New("no symbols configured")
	}

	cfg := *a.Config
	if opts.Symbol != "" {
		cfg.Symbols = nil
		for _, sym := range a.Config.Symbols {
			if sym.Symbol == opts.Symbol {
				cfg.Symbols = append(cfg.Symbols, sym)
			}
		}
		if len(cfg.Symbols) == 0 {
			return fmt.Errorf("symbol %q is not configured", opts.Symbol)
		}
	}

	var closeStore func()
	app := &App{Config: &cfg, Logger: a.Logger}

	var svc *service.Service
	if opts.Persist {
		st, closer, err := app.openStore(ctx)
		if err != nil {
			return err
		}
		if st == nil {
			return errors.New("database not configured; cannot persist")
		}
		closeStore = closer
		svc = app.newService(st)
	} else {
		svc = app.newService(nil)
	}
	if closeStore != nil {
		defer closeStore()
	}

	if err := svc.Warmup(ctx); err != nil {
		return err
	}

	bucket := time.Now().UTC().Truncate(cfg.Scheduler.Interval)
	results, err := svc.RunCycle(ctx, bucket)
	if err != nil {
		return err
	}

	printResults(results)
	return nil
}

func printResults(results []service.AnalyticsResult) {
	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Symbol\tSMA10\tSMA30\tEMA\tRSI14\tVWAP24h\tVol(ann)\tAnomalies\tArbitrage\tHealth")

	for _, res := range results {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			res.Symbol,
			formatMetric(res.Indicators.SMA10),
			formatMetric(res.Indicators.SMA30),
			formatMetric(res.Indicators.EMA),
			formatMetric(res.Indicators.RSI14),
			formatMetric(res.Indicators.VWAP24h),
			formatMetric(res.Indicators.Volatility),
			len(res.Anomalies),
			formatArbitrage(res),
			formatHealth(res.APIHealth),
		)
	}

	writer.Flush()
}

func formatMetric(m market.Metric) string {
	if v, ok := m.Value(); ok {
		return fmt.Sprintf("%.4f", v)
	}
	return m.State().String()
}

func formatArbitrage(res service.AnalyticsResult) string {
	if len(res.Arbitrage) == 0 {
		return "-"
	}
	opp := res.Arbitrage[0]
	return fmt.Sprintf("%s %s%%", opp.Direction, opp.SpreadPct.StringFixed(3))
}

func formatHealth(health map[string]bool) string {
	if len(health) == 0 {
		return "-"
	}
	out := ""
	for _, source := range sortedKeys(health) {
		status := "up"
		if !health[source] {
			status = "down"
		}
		if out != "" {
			out += " "
		}
		out += source + "=" + status
	}
	return out
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
