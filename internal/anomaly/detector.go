package anomaly

import (
	"math"
	"sort"
	"time"

	"kryptrix/internal/market"
)

// Kind names an anomaly rule. Values sort lexically for stable tie ordering.
type Kind string

const (
	KindPriceJump       Kind = "price_jump"
	KindVolumeSpike     Kind = "volume_spike"
	KindZScoreDeviation Kind = "zscore_deviation"
)

// Flag is one detected anomaly. Flags are append-only within a cycle's
// result and sorted by timestamp, then kind.
type Flag struct {
	Symbol          string
	Timestamp       time.Time
	Kind            Kind
	Severity        float64
	TriggeringValue float64
}

// Config enumerates the thresholds the detector reads.
type Config struct {
	// VolumeMultiplier flags a period whose volume exceeds this multiple of
	// the trailing average volume.
	VolumeMultiplier float64 `mapstructure:"volume_multiplier"`
	// PriceJumpPct flags an absolute percent change between consecutive
	// records above this threshold.
	PriceJumpPct float64 `mapstructure:"price_jump_pct"`
	// ZScoreCutoff flags a price this many standard deviations from the
	// rolling mean.
	ZScoreCutoff float64 `mapstructure:"zscore_cutoff"`
	// Window is the trailing reference window (record count) for the volume
	// and z-score rules.
	Window int `mapstructure:"window"`
}

// Detector flags volume spikes, price jumps, and statistical deviations in a
// sanitised price series. The rules are independent; output ordering is a
// deterministic function of the input.
type Detector struct {
	cfg Config
}

// NewDetector constructs a detector from explicit configuration.
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// Detect runs every rule over the series and returns the flags in
// chronological order, then by kind for stable ties.
func (d *Detector) Detect(symbol string, series []market.PriceRecord) []Flag {
	flags := make([]Flag, 0)
	flags = append(flags, d.priceJumps(symbol, series)...)
	flags = append(flags, d.volumeSpikes(symbol, series)...)
	flags = append(flags, d.zscoreDeviations(symbol, series)...)

	sort.SliceStable(flags, func(i, j int) bool {
		if !flags[i].Timestamp.Equal(flags[j].Timestamp) {
			return flags[i].Timestamp.Before(flags[j].Timestamp)
		}
		return flags[i].Kind < flags[j].Kind
	})
	return flags
}

func (d *Detector) priceJumps(symbol string, series []market.PriceRecord) []Flag {
	if d.cfg.PriceJumpPct <= 0 {
		return nil
	}

	flags := make([]Flag, 0)
	for i := 1; i < len(series); i++ {
		prev := series[i-1].Price.InexactFloat64()
		curr := series[i].Price.InexactFloat64()
		if prev == 0 {
			continue
		}
		changePct := (curr - prev) / prev * 100
		if math.Abs(changePct) > d.cfg.PriceJumpPct {
			flags = append(flags, Flag{
				Symbol:          symbol,
				Timestamp:       series[i].Timestamp,
				Kind:            KindPriceJump,
				Severity:        math.Abs(changePct),
				TriggeringValue: changePct,
			})
		}
	}
	return flags
}

func (d *Detector) volumeSpikes(symbol string, series []market.PriceRecord) []Flag {
	if d.cfg.VolumeMultiplier <= 0 || d.cfg.Window <= 0 {
		return nil
	}

	flags := make([]Flag, 0)
	for i := d.cfg.Window; i < len(series); i++ {
		sum := 0.0
		for _, rec := range series[i-d.cfg.Window : i] {
			sum += rec.Volume.InexactFloat64()
		}
		avg := sum / float64(d.cfg.Window)
		if avg <= 0 {
			continue
		}

		threshold := d.cfg.VolumeMultiplier * avg
		volume := series[i].Volume.InexactFloat64()
		if volume > threshold {
			flags = append(flags, Flag{
				Symbol:          symbol,
				Timestamp:       series[i].Timestamp,
				Kind:            KindVolumeSpike,
				Severity:        volume / threshold,
				TriggeringValue: volume,
			})
		}
	}
	return flags
}

func (d *Detector) zscoreDeviations(symbol string, series []market.PriceRecord) []Flag {
	if d.cfg.ZScoreCutoff <= 0 || d.cfg.Window <= 0 {
		return nil
	}

	flags := make([]Flag, 0)
	for i := d.cfg.Window; i < len(series); i++ {
		window := series[i-d.cfg.Window : i]

		mean := 0.0
		for _, rec := range window {
			mean += rec.Price.InexactFloat64()
		}
		mean /= float64(len(window))

		variance := 0.0
		for _, rec := range window {
			diff := rec.Price.InexactFloat64() - mean
			variance += diff * diff
		}
		variance /= float64(len(window))

		std := math.Sqrt(variance)
		if std == 0 {
			// Rule skipped for this point; never divides by zero.
			continue
		}

		z := (series[i].Price.InexactFloat64() - mean) / std
		if math.Abs(z) > d.cfg.ZScoreCutoff {
			flags = append(flags, Flag{
				Symbol:          symbol,
				Timestamp:       series[i].Timestamp,
				Kind:            KindZScoreDeviation,
				Severity:        math.Abs(z),
				TriggeringValue: z,
			})
		}
	}
	return flags
}
