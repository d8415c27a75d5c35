package market

import (
	"encoding/json"
	"math"
)

// MetricState distinguishes why a metric has no value.
type MetricState int

const (
	// MetricReady means the value is defined and finite.
	MetricReady MetricState = iota
	// MetricInsufficientData means the required window was not yet full.
	MetricInsufficientData
	// MetricUnavailable means the upstream source failed this cycle.
	MetricUnavailable
)

// Metric is an optional numeric result. Downstream consumers must treat a
// non-ready metric as "not yet computable", never as a trading signal.
// A NaN or Inf computation result is demoted to insufficient data so callers
// never observe a non-finite number.
type Metric struct {
	value float64
	state MetricState
}

// NewMetric wraps a computed value, demoting non-finite results.
func NewMetric(v float64) Metric {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Metric{state: MetricInsufficientData}
	}
	return Metric{value: v, state: MetricReady}
}

// InsufficientMetric marks a window that is not yet full.
func InsufficientMetric() Metric {
	return Metric{state: MetricInsufficientData}
}

// UnavailableMetric marks a metric whose source failed.
func UnavailableMetric() Metric {
	return Metric{state: MetricUnavailable}
}

// Value returns the metric value and whether it is defined.
func (m Metric) Value() (float64, bool) {
	return m.value, m.state == MetricReady
}

// State reports why the value is or is not defined.
func (m Metric) State() MetricState {
	return m.state
}

// Ready reports whether the value is defined.
func (m Metric) Ready() bool {
	return m.state == MetricReady
}

// MarshalJSON serialises a ready metric as a number, anything else as null.
func (m Metric) MarshalJSON() ([]byte, error) {
	if m.state != MetricReady {
		return []byte("null"), nil
	}
	return json.Marshal(m.value)
}

func (s MetricState) String() string {
	switch s {
	case MetricReady:
		return "ready"
	case MetricInsufficientData:
		return "insufficient_data"
	case MetricUnavailable:
		return "source_unavailable"
	default:
		return "unknown"
	}
}
