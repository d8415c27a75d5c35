package simulation

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"kryptrix/internal/market"
)

// Recommendation classifies a projection against the configured thresholds.
type Recommendation string

const (
	Adopt        Recommendation = "adopt"
	Reject       Recommendation = "reject"
	Inconclusive Recommendation = "inconclusive"
)

// Baseline is the metrics snapshot a scenario is projected from.
type Baseline struct {
	FeePct         decimal.Decimal
	LatencyMs      decimal.Decimal
	ConversionRate decimal.Decimal
	Revenue        decimal.Decimal
}

// Deltas are the proposed product changes.
type Deltas struct {
	FeeDeltaPct     decimal.Decimal
	LatencyDeltaMs  decimal.Decimal
	ConversionDelta decimal.Decimal
}

// Input bundles a baseline with proposed deltas.
type Input struct {
	Baseline Baseline
	Deltas   Deltas
}

// Result is the counterfactual projection. It has no persisted identity and
// is recomputed per request.
type Result struct {
	BaselineRevenue  decimal.Decimal
	SimulatedRevenue decimal.Decimal
	DeltaAbs         decimal.Decimal
	DeltaPct         market.Metric
	Recommendation   Recommendation
}

// Coefficients is the named response model: every sensitivity the engine
// applies, owned by configuration rather than hard-coded.
type Coefficients struct {
	// FeeElasticity scales volume down by this factor times the relative fee
	// change (a 10% relative fee increase with elasticity 0.8 cuts volume 8%).
	FeeElasticity float64 `mapstructure:"fee_elasticity"`
	// LatencyElasticityPer100ms is the conversion penalty applied per 100ms
	// of added latency.
	LatencyElasticityPer100ms float64 `mapstructure:"latency_elasticity_per_100ms"`
	// AdoptThresholdPct: adopt when delta_pct is at or above this (positive).
	AdoptThresholdPct float64 `mapstructure:"adopt_threshold_pct"`
	// RejectThresholdPct: reject when delta_pct is at or below this (negative).
	RejectThresholdPct float64 `mapstructure:"reject_threshold_pct"`
}

// ErrInvalidBaseline reports a baseline the response model cannot project
// from. Surfaced synchronously; the engine has no partial-success notion.
var ErrInvalidBaseline = errors.New("simulation: invalid baseline")

// Engine projects the revenue impact of hypothetical fee, latency, and
// conversion changes. Evaluate is a pure function of its inputs: identical
// input produces an identical result across calls.
type Engine struct {
	coeff Coefficients
}

// NewEngine constructs a simulation engine with a named coefficient set.
func NewEngine(coeff Coefficients) *Engine {
	return &Engine{coeff: coeff}
}

var dec100 = decimal.NewFromInt(100)

// Evaluate applies the response model to the baseline and classifies the
// projected delta.
func (e *Engine) Evaluate(in Input) (Result, error) {
	if in.Baseline.Revenue.Sign() < 0 {
		return Result{}, fmt.Errorf("%w: revenue %s is negative", ErrInvalidBaseline, in.Baseline.Revenue)
	}

	feeFactor, err := e.feeResponse(in)
	if err != nil {
		return Result{}, err
	}
	convFactor, err := e.conversionResponse(in)
	if err != nil {
		return Result{}, err
	}
	latFactor := e.latencyResponse(in)

	simulated := in.Baseline.Revenue.Mul(feeFactor).Mul(convFactor).Mul(latFactor)
	if simulated.Sign() < 0 {
		simulated = decimal.Zero
	}

	res := Result{
		BaselineRevenue:  in.Baseline.Revenue,
		SimulatedRevenue: simulated,
		DeltaAbs:         simulated.Sub(in.Baseline.Revenue),
	}

	if in.Baseline.Revenue.IsZero() {
		// delta_pct is undefined against a zero baseline.
		res.DeltaPct = market.InsufficientMetric()
		res.Recommendation = Inconclusive
		return res, nil
	}

	deltaPct := res.DeltaAbs.Div(in.Baseline.Revenue).Mul(dec100)
	res.DeltaPct = market.NewMetric(deltaPct.InexactFloat64())
	res.Recommendation = e.classify(deltaPct)
	return res, nil
}

// feeResponse models fee revenue: the fee ratio lifts revenue directly while
// the elasticity term bleeds volume away from the venue.
func (e *Engine) feeResponse(in Input) (decimal.Decimal, error) {
	delta := in.Deltas.FeeDeltaPct
	if delta.IsZero() {
		return decimal.NewFromInt(1), nil
	}

	base := in.Baseline.FeePct
	if base.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: fee delta against non-positive base fee %s", ErrInvalidBaseline, base)
	}

	newFee := base.Add(delta)
	if newFee.Sign() < 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: proposed fee %s is negative", ErrInvalidBaseline, newFee)
	}

	relChange := delta.Div(base)
	volumeFactor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(e.coeff.FeeElasticity).Mul(relChange))
	if volumeFactor.Sign() < 0 {
		volumeFactor = decimal.Zero
	}

	return newFee.Div(base).Mul(volumeFactor), nil
}

// conversionResponse scales revenue linearly with the conversion rate.
func (e *Engine) conversionResponse(in Input) (decimal.Decimal, error) {
	delta := in.Deltas.ConversionDelta
	if delta.IsZero() {
		return decimal.NewFromInt(1), nil
	}

	base := in.Baseline.ConversionRate
	if base.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: conversion delta against non-positive rate %s", ErrInvalidBaseline, base)
	}

	factor := base.Add(delta).Div(base)
	if factor.Sign() < 0 {
		factor = decimal.Zero
	}
	return factor, nil
}

// latencyResponse applies the configured conversion penalty per 100ms of
// added latency. Reduced latency yields a symmetric lift.
func (e *Engine) latencyResponse(in Input) decimal.Decimal {
	delta := in.Deltas.LatencyDeltaMs
	if delta.IsZero() {
		return decimal.NewFromInt(1)
	}

	penalty := decimal.NewFromFloat(e.coeff.LatencyElasticityPer100ms).
		Mul(delta).
		Div(dec100)
	factor := decimal.NewFromInt(1).Sub(penalty)
	if factor.Sign() < 0 {
		return decimal.Zero
	}
	return factor
}

func (e *Engine) classify(deltaPct decimal.Decimal) Recommendation {
	adopt := decimal.NewFromFloat(e.coeff.AdoptThresholdPct)
	reject := decimal.NewFromFloat(e.coeff.RejectThresholdPct)

	switch {
	case deltaPct.GreaterThanOrEqual(adopt):
		return Adopt
	case deltaPct.LessThanOrEqual(reject):
		return Reject
	default:
		return Inconclusive
	}
}
