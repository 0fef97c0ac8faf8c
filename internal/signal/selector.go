// Package signal selects buy candidates from the daily inference results
// table produced by the model pipeline.
package signal

import (
	"sort"
)

// Candidate is one scored instrument from the inference results table.
type Candidate struct {
	Ticker          string
	PredictedReturn float64
	Signal          int
}

// Select filters candidates to rows flagged as buys and deduplicates by
// ticker, keeping the highest predicted return per symbol (first-seen row
// wins exact ties). The result is sorted by predicted return, best first.
// An empty result is a normal outcome, not an error.
func Select(candidates []Candidate) []Candidate {
	best := make(map[string]int, len(candidates))
	var order []string

	for i, c := range candidates {
		if c.Signal != 1 || c.Ticker == "" {
			continue
		}
		prev, seen := best[c.Ticker]
		if !seen {
			best[c.Ticker] = i
			order = append(order, c.Ticker)
			continue
		}
		if c.PredictedReturn > candidates[prev].PredictedReturn {
			best[c.Ticker] = i
		}
	}

	ranked := make([]Candidate, 0, len(order))
	for _, ticker := range order {
		ranked = append(ranked, candidates[best[ticker]])
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].PredictedReturn > ranked[j].PredictedReturn
	})
	return ranked
}
