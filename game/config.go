package game

import (
	"math"
	"slices"
	"sort"

	"fairplay/errs"
)

const (
	// Defaults for the crash curve. Economy parameters, not protocol.
	DefaultHouseEdgeFactor = 0.99
	DefaultMaxMultiplier   = 1000.0
	MinMultiplier          = 1.0

	DefaultPlinkoRisk = "low"

	MaxClientSeedLength = 128
)

// CrashConfig tunes the crash curve.
type CrashConfig struct {
	HouseEdgeFactor float64 `json:"houseEdgeFactor" yaml:"house_edge_factor"`
	MaxMultiplier   float64 `json:"maxMultiplier" yaml:"max_multiplier"`
}

// DropEntry is one row of a crate or wheel table.
type DropEntry struct {
	ID         string  `json:"id" yaml:"id"`
	Weight     float64 `json:"weight" yaml:"weight"`
	Multiplier float64 `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
}

// Config is the engine's economy configuration. It is public: verifiers need
// the same tables to recompute results.
type Config struct {
	Crash  CrashConfig                  `json:"crash" yaml:"crash"`
	Plinko map[string]map[int][]float64 `json:"plinko" yaml:"plinko"` // risk -> rows -> payouts by bucket
	Crates map[string][]DropEntry       `json:"crates" yaml:"crates"`
	Wheels map[string][]DropEntry       `json:"wheels" yaml:"wheels"`
}

// DefaultConfig returns the reference economy: 1% edge crash, the usual
// 8/12/16 row plinko boards and a starter crate and wheel.
func DefaultConfig() Config {
	return Config{
		Crash: CrashConfig{
			HouseEdgeFactor: DefaultHouseEdgeFactor,
			MaxMultiplier:   DefaultMaxMultiplier,
		},
		Plinko: map[string]map[int][]float64{
			"low": {
				8:  {5.6, 2.1, 1.1, 1, 0.5, 1, 1.1, 2.1, 5.6},
				12: {10, 3, 1.6, 1.4, 1.1, 1, 0.5, 1, 1.1, 1.4, 1.6, 3, 10},
				16: {16, 9, 2, 1.4, 1.4, 1.2, 1.1, 1, 0.5, 1, 1.1, 1.2, 1.4, 1.4, 2, 9, 16},
			},
			"medium": {
				8:  {13, 3, 1.3, 0.7, 0.4, 0.7, 1.3, 3, 13},
				12: {33, 11, 4, 2, 1.1, 0.6, 0.3, 0.6, 1.1, 2, 4, 11, 33},
				16: {110, 41, 10, 5, 3, 1.5, 1, 0.5, 0.3, 0.5, 1, 1.5, 3, 5, 10, 41, 110},
			},
			"high": {
				8:  {29, 4, 1.5, 0.3, 0.2, 0.3, 1.5, 4, 29},
				12: {170, 24, 8.1, 2, 0.7, 0.2, 0.2, 0.2, 0.7, 2, 8.1, 24, 170},
				16: {1000, 130, 26, 9, 4, 2, 0.2, 0.2, 0.2, 0.2, 0.2, 2, 4, 9, 26, 130, 1000},
			},
		},
		Crates: map[string][]DropEntry{
			"starter": {
				{ID: "common", Weight: 7992},
				{ID: "uncommon", Weight: 1598},
				{ID: "rare", Weight: 320},
				{ID: "epic", Weight: 64},
				{ID: "legendary", Weight: 26},
			},
		},
		Wheels: map[string][]DropEntry{
			"classic": {
				{ID: "lose", Weight: 25, Multiplier: 0},
				{ID: "x1.5", Weight: 40, Multiplier: 1.5},
				{ID: "x2", Weight: 25, Multiplier: 2},
				{ID: "x3", Weight: 8, Multiplier: 3},
				{ID: "x10", Weight: 2, Multiplier: 10},
			},
		},
	}
}

// Clone returns a deep copy, so the engine and its callers never share
// payout tables.
func (c Config) Clone() Config {
	out := Config{Crash: c.Crash}
	if c.Plinko != nil {
		out.Plinko = make(map[string]map[int][]float64, len(c.Plinko))
		for risk, boards := range c.Plinko {
			copied := make(map[int][]float64, len(boards))
			for rows, payouts := range boards {
				copied[rows] = slices.Clone(payouts)
			}
			out.Plinko[risk] = copied
		}
	}
	out.Crates = cloneTables(c.Crates)
	out.Wheels = cloneTables(c.Wheels)
	return out
}

func cloneTables(tables map[string][]DropEntry) map[string][]DropEntry {
	if tables == nil {
		return nil
	}
	out := make(map[string][]DropEntry, len(tables))
	for name, entries := range tables {
		out[name] = slices.Clone(entries)
	}
	return out
}

// Validate rejects malformed configuration before any round is played.
func (c Config) Validate() error {
	edge := c.Crash.HouseEdgeFactor
	if !(edge > 0 && edge < 1) {
		return errs.New(errs.CodeInvalidParams, "crash house_edge_factor %v must be in (0, 1)", edge)
	}
	if math.IsNaN(c.Crash.MaxMultiplier) || math.IsInf(c.Crash.MaxMultiplier, 0) || c.Crash.MaxMultiplier < MinMultiplier {
		return errs.New(errs.CodeInvalidParams, "crash max_multiplier %v must be a finite value >= %v", c.Crash.MaxMultiplier, MinMultiplier)
	}

	for risk, boards := range c.Plinko {
		for rows, payouts := range boards {
			if rows <= 0 {
				return errs.New(errs.CodeInvalidParams, "plinko %s board has %d rows", risk, rows)
			}
			if len(payouts) != rows+1 {
				return errs.New(errs.CodeInvalidParams, "plinko %s/%d needs %d payouts, has %d", risk, rows, rows+1, len(payouts))
			}
			for _, p := range payouts {
				if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
					return errs.New(errs.CodeInvalidParams, "plinko %s/%d has invalid payout %v", risk, rows, p)
				}
			}
		}
	}

	for name, entries := range c.Crates {
		if _, err := newDropTable(entries); err != nil {
			return errs.Wrap(errs.CodeOf(err), err, "crate %q", name)
		}
	}
	for name, entries := range c.Wheels {
		if _, err := newDropTable(entries); err != nil {
			return errs.Wrap(errs.CodeOf(err), err, "wheel %q", name)
		}
	}

	return nil
}

// PlinkoRows lists the supported row counts for a risk level, ascending.
func (c Config) PlinkoRows(risk string) []int {
	boards := c.Plinko[risk]
	rows := make([]int, 0, len(boards))
	for r := range boards {
		rows = append(rows, r)
	}
	sort.Ints(rows)
	return rows
}

func newDropTable(entries []DropEntry) (*WeightedTable, error) {
	outcomes := make([]WeightedOutcome, len(entries))
	seen := make(map[string]bool, len(entries))
	for i, e := range entries {
		if e.ID == "" {
			return nil, errs.New(errs.CodeInvalidParams, "row %d has no id", i)
		}
		if seen[e.ID] {
			return nil, errs.New(errs.CodeInvalidParams, "duplicate outcome id %q", e.ID)
		}
		if e.Multiplier < 0 || math.IsNaN(e.Multiplier) || math.IsInf(e.Multiplier, 0) {
			return nil, errs.New(errs.CodeInvalidParams, "outcome %q has invalid multiplier %v", e.ID, e.Multiplier)
		}
		seen[e.ID] = true
		outcomes[i] = WeightedOutcome{OutcomeID: e.ID, Weight: e.Weight}
	}
	return NewWeightedTable(outcomes)
}
