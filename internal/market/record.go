package market

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRecord is one normalized price/volume observation from an exchange.
// Records are immutable once produced.
type PriceRecord struct {
	Symbol    string
	Exchange  string
	Timestamp time.Time
	Price     decimal.Decimal
	Volume    decimal.Decimal
}

// SanitizeSeries validates a price series ahead of indicator computation.
// Records with non-positive price, negative volume, or a timestamp earlier
// than the running maximum are rejected. A duplicate timestamp overwrites
// the earlier record. The returned series is ascending by timestamp; the
// second value counts rejected records so the caller can log the
// data-quality event.
func SanitizeSeries(records []PriceRecord) ([]PriceRecord, int) {
	clean := make([]PriceRecord, 0, len(records))
	rejected := 0

	for _, rec := range records {
		if rec.Price.Sign() <= 0 || rec.Volume.Sign() < 0 {
			rejected++
			continue
		}
		if n := len(clean); n > 0 {
			last := clean[n-1].Timestamp
			if rec.Timestamp.Before(last) {
				rejected++
				continue
			}
			if rec.Timestamp.Equal(last) {
				clean[n-1] = rec
				continue
			}
		}
		clean = append(clean, rec)
	}

	return clean, rejected
}

// TrimBefore drops records older than the cutoff. The input must already be
// ascending by timestamp.
func TrimBefore(records []PriceRecord, cutoff time.Time) []PriceRecord {
	idx := 0
	for idx < len(records) && records[idx].Timestamp.Before(cutoff) {
		idx++
	}
	return records[idx:]
}

// Closes extracts the price column as float64 for statistical transforms.
func Closes(records []PriceRecord) []float64 {
	out := make([]float64, len(records))
	for i, rec := range records {
		out[i] = rec.Price.InexactFloat64()
	}
	return out
}

// Volumes extracts the volume column as float64.
func Volumes(records []PriceRecord) []float64 {
	out := make([]float64, len(records))
	for i, rec := range records {
		out[i] = rec.Volume.InexactFloat64()
	}
	return out
}
