package app

import (
	"context"
	"encoding/csv"
	"errors"
	"math"
	"os"
	"path/filepath"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"

	"kryptrix/internal/indicator"
	"kryptrix/internal/market"
	"kryptrix/internal/storage"
)

// Export renders historical prices for a symbol as CSV and/or PNG. The PNG
// overlays the moving averages recomputed from the exported series.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.Symbol == "" {
		return errors.New("--symbol is required")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-a.Config.Feed.Lookback)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	rows, err := store.ListPricesBetween(ctx, opts.Symbol, from, to)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		a.Logger.Info().Str("symbol", opts.Symbol).Msg("no prices found for export window")
		return nil
	}

	downsampled := downsamplePrices(rows, opts.MaxPoints)
	a.Logger.Info().
		Str("symbol", opts.Symbol).
		Int("total", len(rows)).
		Int("exported", len(downsampled)).
		Msg("exporting prices")

	if opts.CSVPath != "" {
		if err := writePricesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		cexSeries := pricesToRecords(downsampled, a.newBinance().Exchange())
		snapshots := indicator.NewEngine(a.Config.Indicators).ComputeSeries(opts.Symbol, cexSeries)
		if err := writePricesPNG(opts.PNGPath, opts.Symbol, cexSeries, snapshots); err != nil {
			return err
		}
	}

	return nil
}

func downsamplePrices(rows []storage.PriceRow, max int) []storage.PriceRow {
	if max <= 0 || len(rows) <= max {
		return rows
	}

	result := make([]storage.PriceRow, 0, max)
	step := float64(len(rows)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(rows) {
			idx = len(rows) - 1
		}
		result = append(result, rows[idx])
	}
	return result
}

func pricesToRecords(rows []storage.PriceRow, exchange string) []market.PriceRecord {
	records := make([]market.PriceRecord, 0, len(rows))
	for _, row := range rows {
		if row.Exchange != exchange {
			continue
		}
		records = append(records, market.PriceRecord{
			Symbol:    row.Symbol,
			Exchange:  row.Exchange,
			Timestamp: row.Timestamp,
			Price:     row.Price,
			Volume:    row.Volume,
		})
	}
	clean, _ := market.SanitizeSeries(records)
	return clean
}

func writePricesCSV(path string, rows []storage.PriceRow) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"ts", "symbol", "exchange", "price", "volume"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, row := range rows {
		record := []string{
			row.Timestamp.UTC().Format(time.RFC3339),
			row.Symbol,
			row.Exchange,
			row.Price.String(),
			row.Volume.String(),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writePricesPNG(path, symbol string, series []market.PriceRecord, snapshots []indicator.Snapshot) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if len(series) == 0 {
		return errors.New("no price points to chart")
	}

	x := make([]time.Time, len(series))
	prices := make([]float64, len(series))
	for i, rec := range series {
		x[i] = rec.Timestamp
		prices[i] = rec.Price.InexactFloat64()
	}

	priceFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}
	graph := chart.Chart{
		Title:  symbol,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price",
			ValueFormatter: priceFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Close",
				XValues: x,
				YValues: prices,
			},
		},
	}

	if short, ok := metricSeries(snapshots, func(s indicator.Snapshot) market.Metric { return s.SMA10 }); ok {
		graph.Series = append(graph.Series, chart.TimeSeries{Name: "SMA short", XValues: short.x, YValues: short.y})
	}
	if long, ok := metricSeries(snapshots, func(s indicator.Snapshot) market.Metric { return s.SMA30 }); ok {
		graph.Series = append(graph.Series, chart.TimeSeries{Name: "SMA long", XValues: long.x, YValues: long.y})
	}

	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

type timeSeries struct {
	x []time.Time
	y []float64
}

// metricSeries extracts the ready points of one metric; go-chart needs at
// least two points to draw a line.
func metricSeries(snapshots []indicator.Snapshot, pick func(indicator.Snapshot) market.Metric) (timeSeries, bool) {
	var out timeSeries
	for _, snap := range snapshots {
		if v, ok := pick(snap).Value(); ok {
			out.x = append(out.x, snap.Timestamp)
			out.y = append(out.y, v)
		}
	}
	return out, len(out.x) >= 2
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
