package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// PriceRow is one persisted price observation.
type PriceRow struct {
	Symbol    string
	Exchange  string
	Timestamp time.Time
	Price     decimal.Decimal
	Volume    decimal.Decimal
	CreatedAt time.Time
}

// IndicatorRow persists one indicator snapshot. Metrics without a value are
// stored as NULL, matching their "not yet computable" semantics.
type IndicatorRow struct {
	Symbol      string
	Bucket      time.Time
	SMA10       *float64
	SMA30       *float64
	EMA         *float64
	RSI14       *float64
	VWAP24h     *float64
	RealizedVol *float64
	CreatedAt   time.Time
}

// AnomalyRow persists one detected anomaly.
type AnomalyRow struct {
	ID              int64
	Symbol          string
	Timestamp       time.Time
	Kind            string
	Severity        float64
	TriggeringValue float64
	CreatedAt       time.Time
}

// ArbitrageRow persists one detected spread opportunity.
type ArbitrageRow struct {
	ID        int64
	Asset     string
	CexPrice  decimal.Decimal
	DexPrice  decimal.Decimal
	SpreadAbs decimal.Decimal
	SpreadPct decimal.Decimal
	Direction string
	Timestamp time.Time
	CreatedAt time.Time
}

// SimulationRow persists one what-if projection for the reporting layer.
type SimulationRow struct {
	ID               int64
	Scenario         string
	BaselineRevenue  decimal.Decimal
	SimulatedRevenue decimal.Decimal
	DeltaAbs         decimal.Decimal
	DeltaPct         *float64
	Recommendation   string
	CreatedAt        time.Time
}

// HealthRow records one exchange reachability observation.
type HealthRow struct {
	ID             int64
	Source         string
	Healthy        bool
	ResponseTimeMs *float64
	ErrorMessage   *string
	CheckedAt      time.Time
}
