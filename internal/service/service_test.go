package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"kryptrix/internal/anomaly"
	"kryptrix/internal/arbitrage"
	"kryptrix/internal/config"
	"kryptrix/internal/fetcher"
	"kryptrix/internal/indicator"
	"kryptrix/internal/market"
)

type stubSpot struct {
	exchange string
	rec      market.PriceRecord
	err      error
	delay    time.Duration
}

func (s *stubSpot) Exchange() string { return s.exchange }

func (s *stubSpot) FetchSpot(ctx context.Context, inst fetcher.Instrument) (market.PriceRecord, error) {
	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return market.PriceRecord{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}
	if s.err != nil {
		return market.PriceRecord{}, s.err
	}
	rec := s.rec
	rec.Symbol = inst.Symbol
	return rec, nil
}

type stubHistory struct {
	records []market.PriceRecord
	err     error
}

func (s *stubHistory) FetchHistory(_ context.Context, _ fetcher.Instrument, _ time.Duration) ([]market.PriceRecord, error) {
	return s.records, s.err
}

func testServiceConfig(symbols ...config.SymbolConfig) *config.Config {
	return &config.Config{
		Scheduler: config.SchedulerConfig{Interval: 5 * time.Minute, AlignToBucket: true},
		Feed: config.FeedConfig{
			Lookback:       72 * time.Hour,
			MaxConcurrency: 4,
			Binance:        config.BinanceConfig{RequestTimeout: time.Second},
			Dex:            config.DexConfig{RequestTimeout: time.Second},
		},
		Symbols: symbols,
		Indicators: indicator.Config{
			SMAShortWindow:      10,
			SMALongWindow:       30,
			EMAPeriod:           14,
			RSIPeriod:           14,
			VWAPWindow:          24 * time.Hour,
			VolatilityWindow:    30,
			AnnualizationFactor: 365,
		},
		Anomaly: anomaly.Config{
			VolumeMultiplier: 3.0,
			PriceJumpPct:     5.0,
			ZScoreCutoff:     3.0,
			Window:           24,
		},
		Arbitrage: arbitrage.Config{ThresholdPct: 0.1, MaxSkew: 2 * time.Minute},
	}
}

func btcSymbol() config.SymbolConfig {
	return config.SymbolConfig{
		Symbol:      "BTC",
		BinanceID:   "BTCUSDT",
		PoolAddress: "0x0000000000000000000000000000000000000001",
	}
}

func spotRecord(exchange string, price float64, ts time.Time) market.PriceRecord {
	return market.PriceRecord{
		Symbol:    "BTC",
		Exchange:  exchange,
		Timestamp: ts,
		Price:     decimal.NewFromFloat(price),
		Volume:    decimal.NewFromInt(100),
	}
}

func history(exchange string, start time.Time, prices []float64) []market.PriceRecord {
	out := make([]market.PriceRecord, 0, len(prices))
	for i, p := range prices {
		out = append(out, spotRecord(exchange, p, start.Add(time.Duration(i)*time.Hour)))
	}
	return out
}

func TestRunCycleBothVenuesHealthy(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	warm := history("binance", now.Add(-12*time.Hour), []float64{100, 101, 99, 102, 103, 101, 104, 105, 103})

	cex := &stubSpot{exchange: "binance", rec: spotRecord("binance", 106, now)}
	dex := &stubSpot{exchange: "uniswap_v3", rec: spotRecord("uniswap_v3", 103, now)}

	svc := New(testServiceConfig(btcSymbol()), Dependencies{
		Cex:     cex,
		History: &stubHistory{records: warm},
		Dex:     dex,
	}, zerolog.Nop())

	if err := svc.Warmup(context.Background()); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	results, err := svc.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}

	res := results[0]
	if !res.APIHealth["binance"] || !res.APIHealth["uniswap_v3"] {
		t.Fatalf("both venues should be healthy: %#v", res.APIHealth)
	}

	// Nine warm points plus the live observation fill the short SMA window.
	sma, ok := res.Indicators.SMA10.Value()
	if !ok {
		t.Fatal("sma10 should be ready after warmup")
	}
	if diff := sma - 102.4; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("sma10 = %v, want 102.4", sma)
	}
	if res.Indicators.SMA30.Ready() {
		t.Fatal("sma30 should still be insufficient with 10 points")
	}

	if len(res.Arbitrage) != 1 {
		t.Fatalf("expected one opportunity, got %d", len(res.Arbitrage))
	}
	opp := res.Arbitrage[0]
	if opp.Direction != arbitrage.BuyDexSellCex {
		t.Fatalf("cheaper venue is the dex, got direction %s", opp.Direction)
	}
	if !opp.SpreadAbs.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("spread abs = %s, want 3", opp.SpreadAbs)
	}
}

func TestRunCycleDexTimeout(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := testServiceConfig(btcSymbol())
	cfg.Feed.Dex.RequestTimeout = 10 * time.Millisecond

	cex := &stubSpot{exchange: "binance", rec: spotRecord("binance", 100, now)}
	dex := &stubSpot{exchange: "uniswap_v3", delay: 500 * time.Millisecond}

	svc := New(cfg, Dependencies{Cex: cex, Dex: dex}, zerolog.Nop())

	results, err := svc.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	res := results[0]
	if !res.APIHealth["binance"] {
		t.Fatal("cex should be healthy")
	}
	if res.APIHealth["uniswap_v3"] {
		t.Fatal("timed-out dex should be unhealthy")
	}
	if len(res.Arbitrage) != 0 {
		t.Fatal("arbitrage needs both venues in the same cycle")
	}
	// The surviving source still feeds the indicator pipeline.
	if res.Indicators.SMA10.State() == market.MetricUnavailable {
		t.Fatal("indicators should compute from the surviving source")
	}
}

func TestRunCycleCexFailure(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cex := &stubSpot{exchange: "binance", err: errors.New("upstream 502")}
	dex := &stubSpot{exchange: "uniswap_v3", rec: spotRecord("uniswap_v3", 100, now)}

	svc := New(testServiceConfig(btcSymbol()), Dependencies{Cex: cex, Dex: dex}, zerolog.Nop())

	results, err := svc.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	res := results[0]
	if res.APIHealth["binance"] {
		t.Fatal("failed cex should be unhealthy")
	}
	if res.Indicators.SMA10.State() != market.MetricUnavailable {
		t.Fatalf("metrics must be source-unavailable, got %s", res.Indicators.SMA10.State())
	}
	if len(res.Anomalies) != 0 {
		t.Fatal("no anomalies without a fresh series")
	}
	if len(res.Arbitrage) != 0 {
		t.Fatal("arbitrage needs both venues")
	}
}

func TestRunCycleAnomalyOnPriceJump(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	warm := history("binance", now.Add(-5*time.Hour), []float64{100, 100, 100, 100, 100})

	// +6% against the previous close crosses the 5% jump threshold.
	cex := &stubSpot{exchange: "binance", rec: spotRecord("binance", 106, now)}

	svc := New(testServiceConfig(btcSymbol()), Dependencies{
		Cex:     cex,
		History: &stubHistory{records: warm},
	}, zerolog.Nop())

	if err := svc.Warmup(context.Background()); err != nil {
		t.Fatalf("warmup: %v", err)
	}

	results, err := svc.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}

	flags := results[0].Anomalies
	if len(flags) != 1 {
		t.Fatalf("expected exactly one flag, got %d: %#v", len(flags), flags)
	}
	if flags[0].Kind != anomaly.KindPriceJump {
		t.Fatalf("kind = %s, want price_jump", flags[0].Kind)
	}
	if !flags[0].Timestamp.Equal(now) {
		t.Fatalf("flag timestamp = %s, want %s", flags[0].Timestamp, now)
	}
}

func TestRunCycleDeterministicOrdering(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	symbols := []config.SymbolConfig{
		{Symbol: "ETH", BinanceID: "ETHUSDT"},
		{Symbol: "BTC", BinanceID: "BTCUSDT"},
		{Symbol: "ADA", BinanceID: "ADAUSDT"},
	}

	cex := &stubSpot{exchange: "binance", rec: spotRecord("binance", 100, now)}
	svc := New(testServiceConfig(symbols...), Dependencies{Cex: cex}, zerolog.Nop())

	results, err := svc.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected three results, got %d", len(results))
	}
	for i, want := range []string{"ADA", "BTC", "ETH"} {
		if results[i].Symbol != want {
			t.Fatalf("results[%d] = %s, want %s", i, results[i].Symbol, want)
		}
	}
}

func TestWarmupToleratesHistoryFailure(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cex := &stubSpot{exchange: "binance", rec: spotRecord("binance", 100, now)}
	svc := New(testServiceConfig(btcSymbol()), Dependencies{
		Cex:     cex,
		History: &stubHistory{err: errors.New("rate limited")},
	}, zerolog.Nop())

	if err := svc.Warmup(context.Background()); err != nil {
		t.Fatalf("history failure should start cold, not abort: %v", err)
	}

	results, err := svc.RunCycle(context.Background(), now)
	if err != nil {
		t.Fatalf("run cycle: %v", err)
	}
	if results[0].Indicators.SMA10.State() != market.MetricInsufficientData {
		t.Fatal("cold start has a one-point series")
	}
}

func TestSeriesCacheTrimsLookback(t *testing.T) {
	cache := newSeriesCache(2 * time.Hour)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	cache.Seed("BTC", "binance", history("binance", now.Add(-6*time.Hour), []float64{100, 101, 102, 103, 104, 105}))
	series := cache.Append(spotRecord("binance", 106, now))

	for _, rec := range series {
		if rec.Timestamp.Before(now.Add(-2 * time.Hour)) {
			t.Fatalf("record at %s should have been trimmed", rec.Timestamp)
		}
	}
	if len(series) == 0 {
		t.Fatal("latest record must survive the trim")
	}
}
