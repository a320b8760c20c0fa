package engine

import (
	"reflect"
	"testing"
)

func TestNormalizeThresholdsDropsClampsDedupsSorts(t *testing.T) {
	got := normalizeThresholds([]int{150, -5, 0, 80, 80, 50})
	want := []int{50, 80, 100}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("normalizeThresholds = %v, want %v", got, want)
	}
}

func TestNormalizeThresholdsDefaultsWhenEmpty(t *testing.T) {
	got := normalizeThresholds(nil)
	want := []int{80, 100}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("normalizeThresholds(nil) = %v, want %v", got, want)
	}
}

func TestCostAccountantComputesCostFromRates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InputRatePerMillion = 3.0
	cfg.OutputRatePerMillion = 15.0
	acc := newCostAccountant(cfg)

	cumulative, crossed := acc.add(1_000_000, 1_000_000)
	if cumulative != 18.0 {
		t.Fatalf("cumulative = %v, want 18.0", cumulative)
	}
	if len(crossed) != 0 {
		t.Fatalf("crossed = %v, want none (no budget configured)", crossed)
	}
}

func TestCostAccountantFiresEachThresholdOnlyOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InputRatePerMillion = 1.0
	cfg.OutputRatePerMillion = 0
	cfg.CostBudgetUSD = 1.0
	cfg.CostAlertThresholds = []int{50, 100}
	acc := newCostAccountant(cfg)

	_, crossed := acc.add(600_000, 0) // $0.60 -> 60% crosses 50
	if !reflect.DeepEqual(crossed, []int{50}) {
		t.Fatalf("first add crossed = %v, want [50]", crossed)
	}

	_, crossed = acc.add(600_000, 0) // cumulative $1.20 -> 120% crosses 100, not 50 again
	if !reflect.DeepEqual(crossed, []int{100}) {
		t.Fatalf("second add crossed = %v, want [100]", crossed)
	}

	_, crossed = acc.add(600_000, 0) // both already fired
	if len(crossed) != 0 {
		t.Fatalf("third add crossed = %v, want none", crossed)
	}
}
