package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"kryptrix/internal/storage"
)

// Narrow read interfaces so the render paths are testable without a pool.
type indicatorLister interface {
	ListRecentIndicators(ctx context.Context, symbol string, limit int) ([]storage.IndicatorRow, error)
}

type anomalyLister interface {
	ListRecentAnomalies(ctx context.Context, limit int) ([]storage.AnomalyRow, error)
}

type arbitrageLister interface {
	ListRecentArbitrage(ctx context.Context, limit int) ([]storage.ArbitrageRow, error)
}

// Show prints recent derived results from the database.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show results")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Symbol != "" {
		if err := a.showIndicators(ctx, store, opts); err != nil {
			return err
		}
	}
	if err := a.showAnomalies(ctx, store, opts.Limit); err != nil {
		return err
	}
	return a.showArbitrage(ctx, store, opts.Limit)
}

func (a *App) showIndicators(ctx context.Context, store indicatorLister, opts ShowOptions) error {
	rows, err := store.ListRecentIndicators(ctx, opts.Symbol, opts.Limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintf(os.Stdout, "no indicators found for %s\n", opts.Symbol)
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Bucket (UTC)\tSMA10\tSMA30\tEMA\tRSI14\tVWAP24h\tVol(ann)")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Bucket.UTC().Format(time.RFC3339),
			formatNullable(row.SMA10),
			formatNullable(row.SMA30),
			formatNullable(row.EMA),
			formatNullable(row.RSI14),
			formatNullable(row.VWAP24h),
			formatNullable(row.RealizedVol),
		)
	}
	return writer.Flush()
}

func (a *App) showAnomalies(ctx context.Context, store anomalyLister, limit int) error {
	rows, err := store.ListRecentAnomalies(ctx, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no anomalies recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tSymbol\tKind\tSeverity\tValue")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%.2f\t%.2f\n",
			row.Timestamp.UTC().Format(time.RFC3339),
			row.Symbol,
			sanitizeInline(row.Kind),
			row.Severity,
			row.TriggeringValue,
		)
	}
	return writer.Flush()
}

func (a *App) showArbitrage(ctx context.Context, store arbitrageLister, limit int) error {
	rows, err := store.ListRecentArbitrage(ctx, limit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Fprintln(os.Stdout, "no arbitrage opportunities recorded")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tAsset\tDirection\tCEX\tDEX\tSpread%")
	for _, row := range rows {
		fmt.Fprintf(writer, "%s\t%s\t%s\t%s\t%s\t%s\n",
			row.Timestamp.UTC().Format(time.RFC3339),
			row.Asset,
			row.Direction,
			row.CexPrice.StringFixed(4),
			row.DexPrice.StringFixed(4),
			row.SpreadPct.StringFixed(3),
		)
	}
	return writer.Flush()
}

func formatNullable(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
