package fetcher

import (
	"context"
	"time"

	"kryptrix/internal/market"
)

// Instrument names one tracked asset across its venues.
type Instrument struct {
	Symbol      string
	Name        string
	BinanceID   string
	PoolAddress string
	// Token decimals of the pool pair, needed to scale the raw quote.
	Token0Decimals int32
	Token1Decimals int32
	// InvertPrice flips the pool quote when the tracked token is token1.
	InvertPrice bool
}

// SpotFetcher retrieves the latest price/volume observation for a symbol.
// Implementations return normalized records or an explicit fetch error;
// retry/backoff lives inside the collaborator, not here.
type SpotFetcher interface {
	Exchange() string
	FetchSpot(ctx context.Context, inst Instrument) (market.PriceRecord, error)
}

// HistoryFetcher retrieves an ordered candle history used to warm the
// analytics series before enough live cycles have accumulated.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, inst Instrument, lookback time.Duration) ([]market.PriceRecord, error)
}
