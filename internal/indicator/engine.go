package indicator

import (
	"math"
	"time"

	"kryptrix/internal/market"
)

// Config enumerates every window and coefficient the engine reads.
type Config struct {
	SMAShortWindow      int           `mapstructure:"sma_short_window"`
	SMALongWindow       int           `mapstructure:"sma_long_window"`
	EMAPeriod           int           `mapstructure:"ema_period"`
	RSIPeriod           int           `mapstructure:"rsi_period"`
	VWAPWindow          time.Duration `mapstructure:"vwap_window"`
	VolatilityWindow    int           `mapstructure:"volatility_window"`
	AnnualizationFactor float64       `mapstructure:"annualization_factor"`
}

// Snapshot holds the indicator set as of one point in a series. Any metric
// whose window has insufficient data is not ready; consumers must not read
// it as a signal.
type Snapshot struct {
	Symbol     string
	Timestamp  time.Time
	SMA10      market.Metric
	SMA30      market.Metric
	EMA        market.Metric
	RSI14      market.Metric
	VWAP24h    market.Metric
	Volatility market.Metric
}

// Unavailable marks every metric as source-failed. Used when the feed for a
// symbol did not deliver this cycle, so stale values are never surfaced.
func Unavailable(symbol string, ts time.Time) Snapshot {
	u := market.UnavailableMetric()
	return Snapshot{
		Symbol:     symbol,
		Timestamp:  ts,
		SMA10:      u,
		SMA30:      u,
		EMA:        u,
		RSI14:      u,
		VWAP24h:    u,
		Volatility: u,
	}
}

// Engine derives technical indicators from a sanitised price series.
type Engine struct {
	cfg Config
}

// NewEngine constructs an indicator engine from explicit configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Compute produces the indicator snapshot as of the latest record. The
// series must be ascending by timestamp (see market.SanitizeSeries).
func (e *Engine) Compute(symbol string, series []market.PriceRecord) Snapshot {
	snap := Snapshot{Symbol: symbol}
	if len(series) == 0 {
		snap.SMA10 = market.InsufficientMetric()
		snap.SMA30 = market.InsufficientMetric()
		snap.EMA = market.InsufficientMetric()
		snap.RSI14 = market.InsufficientMetric()
		snap.VWAP24h = market.InsufficientMetric()
		snap.Volatility = market.InsufficientMetric()
		return snap
	}

	snap.Timestamp = series[len(series)-1].Timestamp
	closes := market.Closes(series)

	snap.SMA10 = sma(closes, e.cfg.SMAShortWindow)
	snap.SMA30 = sma(closes, e.cfg.SMALongWindow)
	snap.EMA = ema(closes, e.cfg.EMAPeriod)
	snap.RSI14 = rsi(closes, e.cfg.RSIPeriod)
	snap.VWAP24h = vwap(series, e.cfg.VWAPWindow)
	snap.Volatility = realizedVolatility(closes, e.cfg.VolatilityWindow, e.cfg.AnnualizationFactor)

	return snap
}

// ComputeSeries produces one snapshot per record, each computed from the
// series prefix ending at that record. Used for rolling charts and exports.
func (e *Engine) ComputeSeries(symbol string, series []market.PriceRecord) []Snapshot {
	out := make([]Snapshot, 0, len(series))
	for i := range series {
		out = append(out, e.Compute(symbol, series[:i+1]))
	}
	return out
}

// sma is the arithmetic mean of the last n closes.
func sma(closes []float64, n int) market.Metric {
	if n <= 0 || len(closes) < n {
		return market.InsufficientMetric()
	}
	sum := 0.0
	for _, c := range closes[len(closes)-n:] {
		sum += c
	}
	return market.NewMetric(sum / float64(n))
}

// ema seeds with the SMA of the period, then applies k = 2/(period+1) to
// each subsequent close.
func ema(closes []float64, period int) market.Metric {
	if period <= 0 || len(closes) < period {
		return market.InsufficientMetric()
	}

	seed := 0.0
	for _, c := range closes[:period] {
		seed += c
	}
	value := seed / float64(period)

	k := 2.0 / (float64(period) + 1.0)
	for _, c := range closes[period:] {
		value = (c-value)*k + value
	}
	return market.NewMetric(value)
}

// rsi implements Wilder's relative strength index. Defined as 100 when the
// average loss is exactly zero and the average gain is positive.
func rsi(closes []float64, period int) market.Metric {
	if period <= 0 || len(closes) < period+1 {
		return market.InsufficientMetric()
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		delta := closes[i] - closes[i-1]
		if delta > 0 {
			avgGain += delta
		} else {
			avgLoss -= delta
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	// Wilder smoothing over the remainder of the series.
	for i := period + 1; i < len(closes); i++ {
		delta := closes[i] - closes[i-1]
		gain := 0.0
		loss := 0.0
		if delta > 0 {
			gain = delta
		} else {
			loss = -delta
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	if avgLoss == 0 {
		if avgGain > 0 {
			return market.NewMetric(100)
		}
		// Flat series: no gains, no losses.
		return market.NewMetric(50)
	}

	rs := avgGain / avgLoss
	return market.NewMetric(100 - 100/(1+rs))
}

// vwap is the volume-weighted average price over the trailing window.
// Not computable when the window carries zero total volume.
func vwap(series []market.PriceRecord, window time.Duration) market.Metric {
	if len(series) == 0 || window <= 0 {
		return market.InsufficientMetric()
	}

	cutoff := series[len(series)-1].Timestamp.Add(-window)
	sumPV := 0.0
	sumV := 0.0
	for i := len(series) - 1; i >= 0; i-- {
		if series[i].Timestamp.Before(cutoff) {
			break
		}
		price := series[i].Price.InexactFloat64()
		volume := series[i].Volume.InexactFloat64()
		sumPV += price * volume
		sumV += volume
	}

	if sumV == 0 {
		return market.InsufficientMetric()
	}
	return market.NewMetric(sumPV / sumV)
}

// realizedVolatility is the sample standard deviation of log returns over
// the trailing window, scaled by sqrt(annualization).
func realizedVolatility(closes []float64, window int, annualization float64) market.Metric {
	if len(closes) < 2 {
		return market.InsufficientMetric()
	}

	start := 0
	if window > 0 && len(closes) > window {
		start = len(closes) - window
	}

	returns := make([]float64, 0, len(closes)-start-1)
	for i := start + 1; i < len(closes); i++ {
		if closes[i-1] <= 0 || closes[i] <= 0 {
			continue
		}
		returns = append(returns, math.Log(closes[i]/closes[i-1]))
	}
	if len(returns) < 2 {
		return market.InsufficientMetric()
	}

	mean := 0.0
	for _, r := range returns {
		mean += r
	}
	mean /= float64(len(returns))

	variance := 0.0
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)

	scale := 1.0
	if annualization > 0 {
		scale = math.Sqrt(annualization)
	}
	return market.NewMetric(math.Sqrt(variance) * scale)
}
