package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"kryptrix/internal/market"
)

func testConfig() Config {
	return Config{
		SMAShortWindow:      10,
		SMALongWindow:       30,
		EMAPeriod:           14,
		RSIPeriod:           14,
		VWAPWindow:          24 * time.Hour,
		VolatilityWindow:    30,
		AnnualizationFactor: 365,
	}
}

func seriesFrom(prices []float64, volume float64) []market.PriceRecord {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]market.PriceRecord, len(prices))
	for i, p := range prices {
		out[i] = market.PriceRecord{
			Symbol:    "BTC",
			Exchange:  "binance",
			Timestamp: base.Add(time.Duration(i) * time.Hour),
			Price:     decimal.NewFromFloat(p),
			Volume:    decimal.NewFromFloat(volume),
		}
	}
	return out
}

func TestComputeTenPointScenario(t *testing.T) {
	prices := []float64{100, 101, 99, 102, 103, 101, 104, 105, 103, 106}
	snap := NewEngine(testConfig()).Compute("BTC", seriesFrom(prices, 10))

	sma10, ok := snap.SMA10.Value()
	if !ok {
		t.Fatal("sma10 should be defined with exactly 10 records")
	}
	if math.Abs(sma10-102.4) > 1e-9 {
		t.Fatalf("sma10 = %v, want 102.4", sma10)
	}

	if snap.SMA30.Ready() {
		t.Fatal("sma30 must be insufficient with 10 records")
	}
	if snap.SMA30.State() != market.MetricInsufficientData {
		t.Fatalf("sma30 state = %s, want insufficient_data", snap.SMA30.State())
	}
	if snap.RSI14.Ready() {
		t.Fatal("rsi14 needs 15 records, 10 given")
	}
}

func TestSMAInsufficientBoundary(t *testing.T) {
	eng := NewEngine(testConfig())

	nine := eng.Compute("BTC", seriesFrom(make([]float64, 9), 1))
	if nine.SMA10.Ready() {
		t.Fatal("sma10 must be null with 9 records")
	}

	prices := make([]float64, 10)
	for i := range prices {
		prices[i] = 100
	}
	ten := eng.Compute("BTC", seriesFrom(prices, 1))
	if v, ok := ten.SMA10.Value(); !ok || v != 100 {
		t.Fatalf("sma10 of flat series = %v (ok=%v), want 100", v, ok)
	}
}

func TestRSIBounds(t *testing.T) {
	eng := NewEngine(testConfig())

	rising := make([]float64, 20)
	for i := range rising {
		rising[i] = 100 + float64(i)
	}
	snap := eng.Compute("BTC", seriesFrom(rising, 1))
	v, ok := snap.RSI14.Value()
	if !ok {
		t.Fatal("rsi14 should be defined with 20 records")
	}
	if v != 100 {
		t.Fatalf("monotonic gains should give RSI 100, got %v", v)
	}

	falling := make([]float64, 20)
	for i := range falling {
		falling[i] = 200 - float64(i)
	}
	snap = eng.Compute("BTC", seriesFrom(falling, 1))
	v, ok = snap.RSI14.Value()
	if !ok {
		t.Fatal("rsi14 should be defined")
	}
	if v < 0 || v > 100 {
		t.Fatalf("rsi out of bounds: %v", v)
	}
	if v != 0 {
		t.Fatalf("monotonic losses should give RSI 0, got %v", v)
	}
}

func TestVWAPBoundedByWindowPrices(t *testing.T) {
	prices := []float64{100, 110, 90, 105, 95}
	snap := NewEngine(testConfig()).Compute("BTC", seriesFrom(prices, 5))

	v, ok := snap.VWAP24h.Value()
	if !ok {
		t.Fatal("vwap should be defined with non-zero volume")
	}
	if v < 90 || v > 110 {
		t.Fatalf("vwap %v outside [min,max] of window", v)
	}
}

func TestVWAPZeroVolume(t *testing.T) {
	snap := NewEngine(testConfig()).Compute("BTC", seriesFrom([]float64{100, 101, 102}, 0))
	if snap.VWAP24h.Ready() {
		t.Fatal("vwap must be null when window volume sums to zero")
	}
}

func TestVolatilityNonNegative(t *testing.T) {
	snap := NewEngine(testConfig()).Compute("BTC", seriesFrom([]float64{100, 103, 99, 104, 101}, 1))
	v, ok := snap.Volatility.Value()
	if !ok {
		t.Fatal("volatility should be defined with 5 records")
	}
	if v < 0 {
		t.Fatalf("volatility must be >= 0, got %v", v)
	}

	single := NewEngine(testConfig()).Compute("BTC", seriesFrom([]float64{100}, 1))
	if single.Volatility.Ready() {
		t.Fatal("volatility must be null with fewer than 2 records")
	}
}

func TestEMASeededWithSMA(t *testing.T) {
	cfg := testConfig()
	cfg.EMAPeriod = 3
	eng := NewEngine(cfg)

	// Exactly the seed window: EMA equals SMA(3).
	snap := eng.Compute("BTC", seriesFrom([]float64{100, 102, 104}, 1))
	v, ok := snap.EMA.Value()
	if !ok {
		t.Fatal("ema should be defined once the seed window is full")
	}
	if math.Abs(v-102) > 1e-9 {
		t.Fatalf("ema seed = %v, want 102", v)
	}

	// One more record: value moves toward the new close with k = 0.5.
	snap = eng.Compute("BTC", seriesFrom([]float64{100, 102, 104, 110}, 1))
	v, _ = snap.EMA.Value()
	if math.Abs(v-106) > 1e-9 {
		t.Fatalf("ema = %v, want 106", v)
	}
}

func TestComputeEmptySeries(t *testing.T) {
	snap := NewEngine(testConfig()).Compute("BTC", nil)
	for name, m := range map[string]market.Metric{
		"sma10": snap.SMA10, "sma30": snap.SMA30, "ema": snap.EMA,
		"rsi14": snap.RSI14, "vwap24h": snap.VWAP24h, "volatility": snap.Volatility,
	} {
		if m.Ready() {
			t.Fatalf("%s should be null for an empty series", name)
		}
	}
}

func TestComputeSeriesRolling(t *testing.T) {
	prices := []float64{100, 101, 99, 102, 103, 101, 104, 105, 103, 106, 104}
	snaps := NewEngine(testConfig()).ComputeSeries("BTC", seriesFrom(prices, 10))

	if len(snaps) != len(prices) {
		t.Fatalf("expected %d snapshots, got %d", len(prices), len(snaps))
	}
	if snaps[8].SMA10.Ready() {
		t.Fatal("sma10 must be null before index 9")
	}
	if !snaps[9].SMA10.Ready() || !snaps[10].SMA10.Ready() {
		t.Fatal("sma10 must be defined from index 9 onward")
	}
}

func TestUnavailableSnapshot(t *testing.T) {
	snap := Unavailable("BTC", time.Now().UTC())
	if snap.SMA10.State() != market.MetricUnavailable {
		t.Fatalf("expected source_unavailable, got %s", snap.SMA10.State())
	}
}
