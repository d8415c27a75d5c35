package simulation

import (
	"errors"
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func testCoefficients() Coefficients {
	return Coefficients{
		FeeElasticity:             0.8,
		LatencyElasticityPer100ms: 0.05,
		AdoptThresholdPct:         1.0,
		RejectThresholdPct:        -1.0,
	}
}

func baseline() Baseline {
	return Baseline{
		FeePct:         decimal.NewFromFloat(0.1),
		LatencyMs:      decimal.NewFromInt(200),
		ConversionRate: decimal.NewFromFloat(0.05),
		Revenue:        decimal.NewFromInt(1000),
	}
}

func TestEvaluateIsPure(t *testing.T) {
	eng := NewEngine(testCoefficients())
	in := Input{
		Baseline: baseline(),
		Deltas: Deltas{
			FeeDeltaPct:     decimal.NewFromFloat(-0.01),
			ConversionDelta: decimal.NewFromFloat(0.02),
		},
	}

	first, err := eng.Evaluate(in)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := eng.Evaluate(in)
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatal("same input must produce an identical result")
		}
	}
}

func TestFeeCutWithConversionLift(t *testing.T) {
	// fee 0.10% -> 0.09%: fee ratio 0.9, elasticity term 1-0.8*(-0.1) = 1.08,
	// conversion 0.05 -> 0.07: factor 1.4. Expected revenue:
	// 1000 * 0.9 * 1.08 * 1.4 = 1360.8.
	eng := NewEngine(testCoefficients())
	res, err := eng.Evaluate(Input{
		Baseline: baseline(),
		Deltas: Deltas{
			FeeDeltaPct:     decimal.NewFromFloat(-0.01),
			ConversionDelta: decimal.NewFromFloat(0.02),
		},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}

	want := decimal.NewFromFloat(1360.8)
	if !res.SimulatedRevenue.Round(6).Equal(want) {
		t.Fatalf("simulated_revenue = %s, want %s", res.SimulatedRevenue, want)
	}

	deltaPct, ok := res.DeltaPct.Value()
	if !ok {
		t.Fatal("delta_pct should be defined for a non-zero baseline")
	}
	if deltaPct < 36.07 || deltaPct > 36.09 {
		t.Fatalf("delta_pct = %v, want ~36.08", deltaPct)
	}
	if res.Recommendation != Adopt {
		t.Fatalf("recommendation = %s, want adopt", res.Recommendation)
	}
}

func TestLatencyPenalty(t *testing.T) {
	// +200ms with 0.05 per 100ms: factor 1 - 0.05*2 = 0.9.
	eng := NewEngine(testCoefficients())
	res, err := eng.Evaluate(Input{
		Baseline: baseline(),
		Deltas:   Deltas{LatencyDeltaMs: decimal.NewFromInt(200)},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.SimulatedRevenue.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("simulated_revenue = %s, want 900", res.SimulatedRevenue)
	}
	if res.Recommendation != Reject {
		t.Fatalf("recommendation = %s, want reject", res.Recommendation)
	}
}

func TestLatencyImprovementLift(t *testing.T) {
	eng := NewEngine(testCoefficients())
	res, err := eng.Evaluate(Input{
		Baseline: baseline(),
		Deltas:   Deltas{LatencyDeltaMs: decimal.NewFromInt(-100)},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.SimulatedRevenue.Equal(decimal.NewFromInt(1050)) {
		t.Fatalf("simulated_revenue = %s, want 1050", res.SimulatedRevenue)
	}
}

func TestNoChangeIsInconclusive(t *testing.T) {
	eng := NewEngine(testCoefficients())
	res, err := eng.Evaluate(Input{Baseline: baseline()})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.DeltaAbs.IsZero() {
		t.Fatalf("delta_abs = %s, want 0", res.DeltaAbs)
	}
	if res.Recommendation != Inconclusive {
		t.Fatalf("recommendation = %s, want inconclusive", res.Recommendation)
	}
}

func TestZeroBaselineRevenue(t *testing.T) {
	b := baseline()
	b.Revenue = decimal.Zero

	eng := NewEngine(testCoefficients())
	res, err := eng.Evaluate(Input{
		Baseline: b,
		Deltas:   Deltas{ConversionDelta: decimal.NewFromFloat(0.01)},
	})
	if err != nil {
		t.Fatalf("zero baseline is not an error: %v", err)
	}
	if res.DeltaPct.Ready() {
		t.Fatal("delta_pct must be undefined against a zero baseline")
	}
	if res.Recommendation != Inconclusive {
		t.Fatalf("recommendation = %s, want inconclusive", res.Recommendation)
	}
}

func TestInvalidBaselineSurfacedSynchronously(t *testing.T) {
	eng := NewEngine(testCoefficients())

	b := baseline()
	b.FeePct = decimal.Zero
	_, err := eng.Evaluate(Input{
		Baseline: b,
		Deltas:   Deltas{FeeDeltaPct: decimal.NewFromFloat(0.01)},
	})
	if !errors.Is(err, ErrInvalidBaseline) {
		t.Fatalf("expected ErrInvalidBaseline, got %v", err)
	}

	b = baseline()
	b.Revenue = decimal.NewFromInt(-5)
	if _, err := eng.Evaluate(Input{Baseline: b}); !errors.Is(err, ErrInvalidBaseline) {
		t.Fatalf("expected ErrInvalidBaseline for negative revenue, got %v", err)
	}
}

func TestFactorsClampAtZero(t *testing.T) {
	eng := NewEngine(Coefficients{
		FeeElasticity:             0.8,
		LatencyElasticityPer100ms: 0.05,
		AdoptThresholdPct:         1.0,
		RejectThresholdPct:        -1.0,
	})

	// +10 seconds of latency: penalty 5.0, factor clamps to zero.
	res, err := eng.Evaluate(Input{
		Baseline: baseline(),
		Deltas:   Deltas{LatencyDeltaMs: decimal.NewFromInt(10000)},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !res.SimulatedRevenue.IsZero() {
		t.Fatalf("simulated_revenue = %s, want 0", res.SimulatedRevenue)
	}
}
