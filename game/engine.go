package game

import (
	"encoding/hex"
	"unicode/utf8"

	"fairplay/errs"
)

// Engine maps (key, client seed, sequence, game, params) to a decoded result.
// It holds only immutable configuration, so one Engine is shared by every
// round without locking.
type Engine struct {
	cfg    Config
	crates map[string]*WeightedTable
	wheels map[string]*WeightedTable
}

// NewEngine validates cfg and precomputes the weighted tables.
func NewEngine(cfg Config) (*Engine, error) {
	cfg = cfg.Clone()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:    cfg,
		crates: make(map[string]*WeightedTable, len(cfg.Crates)),
		wheels: make(map[string]*WeightedTable, len(cfg.Wheels)),
	}
	for name, entries := range cfg.Crates {
		t, err := newDropTable(entries)
		if err != nil {
			return nil, err
		}
		e.crates[name] = t
	}
	for name, entries := range cfg.Wheels {
		t, err := newDropTable(entries)
		if err != nil {
			return nil, err
		}
		e.wheels[name] = t
	}

	return e, nil
}

// Config returns a copy of the engine's configuration.
func (e *Engine) Config() Config {
	return e.cfg.Clone()
}

// Normalize validates params for game and fills defaults. The normalized
// params are what gets recorded, so verification replays the exact input.
func (e *Engine) Normalize(game GameType, p Params) (Params, error) {
	switch game {
	case GameCrash:
		return Params{}, nil

	case GamePlinko:
		if p.Risk == "" {
			p.Risk = DefaultPlinkoRisk
		}
		boards, ok := e.cfg.Plinko[p.Risk]
		if !ok {
			return Params{}, errs.New(errs.CodeInvalidParams, "unknown plinko risk %q", p.Risk)
		}
		if p.Rows <= 0 {
			return Params{}, errs.New(errs.CodeInvalidParams, "plinko needs at least one row, got %d", p.Rows)
		}
		if _, ok := boards[p.Rows]; !ok {
			return Params{}, errs.New(errs.CodeInvalidParams, "plinko %s has no %d row board (supported %v)", p.Risk, p.Rows, e.cfg.PlinkoRows(p.Risk))
		}
		return Params{Rows: p.Rows, Risk: p.Risk}, nil

	case GameCrate:
		if _, ok := e.crates[p.Table]; !ok {
			return Params{}, errs.New(errs.CodeInvalidParams, "unknown crate %q", p.Table)
		}
		return Params{Table: p.Table}, nil

	case GameWheel:
		if _, ok := e.wheels[p.Table]; !ok {
			return Params{}, errs.New(errs.CodeInvalidParams, "unknown wheel %q", p.Table)
		}
		return Params{Table: p.Table}, nil

	default:
		return Params{}, errs.New(errs.CodeUnknownGameType, "unsupported game %q", game)
	}
}

// ValidateClientSeed rejects client seeds that cannot be recorded.
func ValidateClientSeed(clientSeed string) error {
	if clientSeed == "" {
		return errs.New(errs.CodeInvalidParams, "client seed is empty")
	}
	if len(clientSeed) > MaxClientSeedLength {
		return errs.New(errs.CodeInvalidParams, "client seed longer than %d bytes", MaxClientSeedLength)
	}
	if !utf8.ValidString(clientSeed) {
		return errs.New(errs.CodeInvalidParams, "client seed is not valid UTF-8")
	}
	return nil
}

// Derive computes one round. All input validation happens before the digest
// is taken, so no error path depends on the random value.
func (e *Engine) Derive(key Keyer, clientSeed string, sequence uint64, game GameType, params Params) (Outcome, error) {
	if err := ValidateClientSeed(clientSeed); err != nil {
		return Outcome{}, err
	}
	p, err := e.Normalize(game, params)
	if err != nil {
		return Outcome{}, err
	}

	digest := Digest(key, clientSeed, sequence)
	u := Uniform(digest)

	var result Result
	switch game {
	case GameCrash:
		result = e.crash(u)
	case GamePlinko:
		result = e.plinko(digest, p)
	case GameCrate, GameWheel:
		result, err = e.drop(game, p.Table, u)
		if err != nil {
			return Outcome{}, err
		}
	}

	return Outcome{
		RawDigest: hex.EncodeToString(digest),
		Result:    result,
		Sequence:  sequence,
		Uniform:   u,
	}, nil
}
