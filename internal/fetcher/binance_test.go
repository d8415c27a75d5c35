package fetcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func testInstrument() Instrument {
	return Instrument{Symbol: "BTC", Name: "Bitcoin", BinanceID: "BTCUSDT"}
}

func TestFetchSpotMissingID(t *testing.T) {
	b := NewBinance(BinanceOptions{}, noopLogger())
	if _, err := b.FetchSpot(context.Background(), Instrument{Symbol: "BTC"}); err == nil {
		t.Fatal("missing binance id should return an error")
	}
}

func TestFetchSpotHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_ = json.NewEncoder(w).Encode(map[string]any{"code": -1121, "msg": "Invalid symbol."})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := b.FetchSpot(context.Background(), testInstrument()); err == nil {
		t.Fatal("HTTP error status should return an error")
	}
}

func TestFetchSpotSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("symbol"); got != "BTCUSDT" {
			t.Fatalf("symbol query = %q, want BTCUSDT", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"lastPrice": "65000.12",
			"volume":    "1234.5",
			"closeTime": time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		})
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second, UserAgent: "test"}, noopLogger())
	rec, err := b.FetchSpot(context.Background(), testInstrument())
	if err != nil {
		t.Fatalf("fetch spot: %v", err)
	}
	if !rec.Price.Equal(decimal.NewFromFloat(65000.12)) {
		t.Fatalf("price = %s, want 65000.12", rec.Price)
	}
	if rec.Exchange != "binance" {
		t.Fatalf("exchange = %q, want binance", rec.Exchange)
	}
	if rec.Timestamp.IsZero() {
		t.Fatal("timestamp should be set from closeTime")
	}
}

func TestFetchHistorySuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rows := [][]any{
			{int64(1735689600000), "100.0", "101.0", "99.0", "100.5", "10.0", int64(1735693199999)},
			{int64(1735693200000), "100.5", "102.0", "100.0", "101.5", "12.0", int64(1735696799999)},
		}
		_ = json.NewEncoder(w).Encode(rows)
	}))
	defer srv.Close()

	b := NewBinance(BinanceOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	records, err := b.FetchHistory(context.Background(), testInstrument(), 72*time.Hour)
	if err != nil {
		t.Fatalf("fetch history: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if !records[0].Price.Equal(decimal.NewFromFloat(100.5)) {
		t.Fatalf("close price = %s, want 100.5", records[0].Price)
	}
	if !records[1].Timestamp.After(records[0].Timestamp) {
		t.Fatal("records should be ascending by timestamp")
	}
}

func TestFetchHistoryRejectsNonPositiveLookback(t *testing.T) {
	b := NewBinance(BinanceOptions{}, noopLogger())
	if _, err := b.FetchHistory(context.Background(), testInstrument(), 0); err == nil {
		t.Fatal("zero lookback should return an error")
	}
}

func TestDexMissingConfig(t *testing.T) {
	d := NewDex(DexOptions{}, noopLogger())
	if _, err := d.FetchSpot(context.Background(), Instrument{Symbol: "ETH"}); err == nil {
		t.Fatal("missing rpc url should return an error")
	}

	d = NewDex(DexOptions{RPCURL: "http://localhost"}, noopLogger())
	if _, err := d.FetchSpot(context.Background(), Instrument{Symbol: "ETH"}); err == nil {
		t.Fatal("missing pool address should return an error")
	}
}
