package arbitrage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction names the cheaper side to buy on.
type Direction string

const (
	BuyCexSellDex Direction = "buy_cex_sell_dex"
	BuyDexSellCex Direction = "buy_dex_sell_cex"
)

// Quote is a near-simultaneous price observation from one venue.
type Quote struct {
	Asset     string
	Exchange  string
	Price     decimal.Decimal
	Timestamp time.Time
}

// Opportunity reports a spread exceeding the configured threshold. It exists
// only for the cycle that observed it and is never carried forward.
type Opportunity struct {
	Asset     string
	CexPrice  decimal.Decimal
	DexPrice  decimal.Decimal
	SpreadAbs decimal.Decimal
	SpreadPct decimal.Decimal
	Direction Direction
	Timestamp time.Time
}

// Config enumerates the thresholds the detector reads.
type Config struct {
	// ThresholdPct is the minimum spread percentage worth reporting.
	ThresholdPct float64 `mapstructure:"threshold_pct"`
	// MaxSkew rejects quote pairs whose timestamps differ by more.
	MaxSkew time.Duration `mapstructure:"max_skew"`
}

// Detector evaluates CEX/DEX quote pairs for spread opportunities.
type Detector struct {
	threshold decimal.Decimal
	maxSkew   time.Duration
}

// NewDetector constructs a detector from explicit configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{
		threshold: decimal.NewFromFloat(cfg.ThresholdPct),
		maxSkew:   cfg.MaxSkew,
	}
}

var hundred = decimal.NewFromInt(100)

// Evaluate returns at most one opportunity for the pair. A missing or
// non-positive price, or a pair skewed beyond the configured tolerance,
// yields no opportunity rather than an error: a bad pair must never fail
// the cycle.
func (d *Detector) Evaluate(cex, dex Quote) (Opportunity, bool) {
	if cex.Price.Sign() <= 0 || dex.Price.Sign() <= 0 {
		return Opportunity{}, false
	}
	if d.maxSkew > 0 {
		skew := cex.Timestamp.Sub(dex.Timestamp)
		if skew < 0 {
			skew = -skew
		}
		if skew > d.maxSkew {
			return Opportunity{}, false
		}
	}

	low := cex.Price
	direction := BuyCexSellDex
	if dex.Price.LessThan(cex.Price) {
		low = dex.Price
		direction = BuyDexSellCex
	}

	spreadAbs := cex.Price.Sub(dex.Price).Abs()
	spreadPct := spreadAbs.Div(low).Mul(hundred)
	if spreadPct.LessThanOrEqual(d.threshold) {
		return Opportunity{}, false
	}

	ts := cex.Timestamp
	if dex.Timestamp.After(ts) {
		ts = dex.Timestamp
	}

	return Opportunity{
		Asset:     cex.Asset,
		CexPrice:  cex.Price,
		DexPrice:  dex.Price,
		SpreadAbs: spreadAbs,
		SpreadPct: spreadPct,
		Direction: direction,
		Timestamp: ts,
	}, true
}
