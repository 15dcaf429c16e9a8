package game

import "reflect"

// GameType selects the mapping from uniform floats to a decoded result.
type GameType string

const (
	GameCrash  GameType = "crash"
	GamePlinko GameType = "plinko"
	GameCrate  GameType = "crate"
	GameWheel  GameType = "wheel"
)

// Params carries the per-round game parameters. Only the fields relevant to
// the game type are read.
type Params struct {
	Rows  int    `json:"rows,omitempty"`
	Risk  string `json:"risk,omitempty"`
	Table string `json:"table,omitempty"`
}

// Result is the decoded game result persisted with a round.
type Result struct {
	Game       GameType      `json:"game"`
	Multiplier float64       `json:"multiplier"`
	Plinko     *PlinkoResult `json:"plinko,omitempty"`
	Drop       *DropResult   `json:"drop,omitempty"`
}

// PlinkoResult describes a ball path.
type PlinkoResult struct {
	Rows         int    `json:"rows"`
	Risk         string `json:"risk"`
	Path         string `json:"path"`
	Displacement int    `json:"displacement"`
	Bucket       int    `json:"bucket"`
}

// DropResult describes a weighted pick from a crate or wheel table.
type DropResult struct {
	Table     string `json:"table"`
	OutcomeID string `json:"outcomeId"`
	Index     int    `json:"index"`
}

// Equal reports whether two results are identical field by field.
func (r Result) Equal(other Result) bool {
	return reflect.DeepEqual(r, other)
}

// Outcome is what the engine returns for one round.
type Outcome struct {
	RawDigest string  `json:"rawDigest"`
	Result    Result  `json:"result"`
	Sequence  uint64  `json:"sequenceNumber"`
	Uniform   float64 `json:"uniform"`
}
