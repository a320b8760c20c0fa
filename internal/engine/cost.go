package engine

import "sort"

// costAccountant tracks cumulative USD spend for one agent run and fires
// each configured alert threshold at most once over the run's lifetime
// (spec §4.5: cost accounting + budget alerts).
type costAccountant struct {
	inRate, outRate float64
	budgetUSD       float64
	thresholds      []int
	fired           map[int]bool
	cumulativeUSD   float64
}

func newCostAccountant(cfg Config) *costAccountant {
	return &costAccountant{
		inRate:     cfg.InputRatePerMillion,
		outRate:    cfg.OutputRatePerMillion,
		budgetUSD:  cfg.CostBudgetUSD,
		thresholds: normalizeThresholds(cfg.CostAlertThresholds),
		fired:      make(map[int]bool),
	}
}

// normalizeThresholds drops non-positive entries, clamps anything above
// 100 down to 100, deduplicates, sorts ascending, and falls back to the
// spec's [80, 100] default when nothing valid remains.
func normalizeThresholds(in []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, t := range in {
		if t <= 0 {
			continue
		}
		if t > 100 {
			t = 100
		}
		if seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	if len(out) == 0 {
		return []int{80, 100}
	}
	sort.Ints(out)
	return out
}

// add records the cost of one completed request and returns the updated
// cumulative spend plus any newly crossed thresholds (in ascending
// order, each returned at most once across the accountant's lifetime).
func (c *costAccountant) add(inputTokens, outputTokens int) (cumulativeUSD float64, crossed []int) {
	cost := (float64(inputTokens)*c.inRate + float64(outputTokens)*c.outRate) / 1e6
	c.cumulativeUSD += cost
	if c.budgetUSD <= 0 {
		return c.cumulativeUSD, nil
	}
	percent := (c.cumulativeUSD / c.budgetUSD) * 100
	for _, t := range c.thresholds {
		if c.fired[t] {
			continue
		}
		if percent >= float64(t) {
			c.fired[t] = true
			crossed = append(crossed, t)
		}
	}
	return c.cumulativeUSD, crossed
}
