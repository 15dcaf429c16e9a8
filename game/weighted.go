package game

import (
	"math"
	"sort"

	"fairplay/errs"
)

// WeightedOutcome is one row of a weighted outcome table.
type WeightedOutcome struct {
	OutcomeID string  `json:"outcomeId" yaml:"id"`
	Weight    float64 `json:"weight" yaml:"weight"`
}

// WeightedTable picks one outcome from relative weights given a uniform
// float. Outcome i owns the half-open interval [C(i-1), C(i)) of the
// cumulative weights, so every u in [0, 1) maps to exactly one outcome and
// zero-weight rows are never picked. Tables are immutable after construction.
type WeightedTable struct {
	outcomes   []WeightedOutcome
	cumulative []float64
	total      float64
	last       int // index of the last positive-weight outcome
}

// NewWeightedTable validates outcomes and precomputes cumulative sums.
func NewWeightedTable(outcomes []WeightedOutcome) (*WeightedTable, error) {
	if len(outcomes) == 0 {
		return nil, errs.New(errs.CodeEmptyTable, "outcome table has no rows")
	}

	t := &WeightedTable{
		outcomes:   make([]WeightedOutcome, len(outcomes)),
		cumulative: make([]float64, len(outcomes)),
		last:       -1,
	}
	copy(t.outcomes, outcomes)

	for i, o := range outcomes {
		if o.Weight < 0 || math.IsNaN(o.Weight) || math.IsInf(o.Weight, 0) {
			return nil, errs.New(errs.CodeInvalidWeight, "outcome %q has weight %v", o.OutcomeID, o.Weight)
		}
		t.total += o.Weight
		t.cumulative[i] = t.total
		if o.Weight > 0 {
			t.last = i
		}
	}

	if t.last < 0 {
		return nil, errs.New(errs.CodeAllZeroWeights, "all %d outcomes have zero weight", len(outcomes))
	}
	if math.IsInf(t.total, 0) {
		return nil, errs.New(errs.CodeInvalidWeight, "total weight overflows")
	}

	return t, nil
}

// Pick returns the index and id of the outcome owning u. u must lie in [0, 1).
func (t *WeightedTable) Pick(u float64) (int, string, error) {
	if !(u >= 0 && u < 1) {
		return 0, "", errs.New(errs.CodeInvalidParams, "uniform value %v outside [0, 1)", u)
	}

	target := u * t.total
	i := sort.Search(len(t.cumulative), func(i int) bool {
		return target < t.cumulative[i]
	})

	// u*total can round up to total for u within one ulp of 1; that value
	// still belongs to the top interval.
	if i >= len(t.cumulative) {
		i = t.last
	}

	return i, t.outcomes[i].OutcomeID, nil
}

// Len returns the number of rows, including zero-weight ones.
func (t *WeightedTable) Len() int { return len(t.outcomes) }

// Total returns the sum of weights.
func (t *WeightedTable) Total() float64 { return t.total }

// Outcome returns row i.
func (t *WeightedTable) Outcome(i int) WeightedOutcome { return t.outcomes[i] }

// Probability returns the exact probability of row i.
func (t *WeightedTable) Probability(i int) float64 {
	return t.outcomes[i].Weight / t.total
}

// Sample is a one-shot Pick over an ad hoc table.
func Sample(outcomes []WeightedOutcome, u float64) (string, error) {
	t, err := NewWeightedTable(outcomes)
	if err != nil {
		return "", err
	}
	_, id, err := t.Pick(u)
	return id, err
}
