package service

import (
	"sync"
	"time"

	"kryptrix/internal/market"
)

// seriesCache holds the last-known-good price series per (symbol, exchange).
// Writes build a fresh slice and swap it in whole, so concurrent symbol
// passes never observe a mid-update series. Stored slices are never mutated
// after the swap.
type seriesCache struct {
	mu       sync.RWMutex
	lookback time.Duration
	series   map[string][]market.PriceRecord
}

func newSeriesCache(lookback time.Duration) *seriesCache {
	return &seriesCache{
		lookback: lookback,
		series:   make(map[string][]market.PriceRecord),
	}
}

func cacheKey(symbol, exchange string) string {
	return symbol + "|" + exchange
}

// Seed replaces the series for a key with a sanitised history.
func (c *seriesCache) Seed(symbol, exchange string, records []market.PriceRecord) int {
	clean, rejected := market.SanitizeSeries(records)
	clean = c.trim(clean)

	c.mu.Lock()
	c.series[cacheKey(symbol, exchange)] = clean
	c.mu.Unlock()
	return rejected
}

// Append adds one observation and returns the new snapshot.
func (c *seriesCache) Append(rec market.PriceRecord) []market.PriceRecord {
	key := cacheKey(rec.Symbol, rec.Exchange)

	c.mu.Lock()
	defer c.mu.Unlock()

	old := c.series[key]
	next := make([]market.PriceRecord, len(old), len(old)+1)
	copy(next, old)
	next = append(next, rec)

	clean, _ := market.SanitizeSeries(next)
	clean = c.trim(clean)
	c.series[key] = clean
	return clean
}

// Snapshot returns the current series for a key. The slice must be treated
// as read-only.
func (c *seriesCache) Snapshot(symbol, exchange string) []market.PriceRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.series[cacheKey(symbol, exchange)]
}

func (c *seriesCache) trim(records []market.PriceRecord) []market.PriceRecord {
	if c.lookback <= 0 || len(records) == 0 {
		return records
	}
	cutoff := records[len(records)-1].Timestamp.Add(-c.lookback)
	return market.TrimBefore(records, cutoff)
}
