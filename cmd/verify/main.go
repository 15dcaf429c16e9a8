// Command verify recomputes a round offline from a revealed secret.
//
// Either pass a round record exported from the API:
//
//	verify -record round.json -secret <hex>
//
// or describe the round by hand:
//
//	verify -secret <hex> -hash <publicHash> -client abc -seq 0 -game crash
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"fairplay/config"
	"fairplay/crypto"
	"fairplay/game"
	"fairplay/state"
	"fairplay/verify"

	"github.com/ethereum/go-ethereum/common"
)

func main() {
	var (
		recordPath = flag.String("record", "", "JSON round record (as returned by GET /api/rounds/...)")
		secret     = flag.String("secret", "", "revealed secret seed")
		hash       = flag.String("hash", "", "published public hash")
		clientSeed = flag.String("client", "", "client seed")
		sequence   = flag.Uint64("seq", 0, "sequence number")
		gameType   = flag.String("game", string(game.GameCrash), "game type: crash, plinko, crate, wheel")
		rows       = flag.Int("rows", 0, "plinko rows")
		risk       = flag.String("risk", "", "plinko risk")
		table      = flag.String("table", "", "crate or wheel table")
		tables     = flag.String("tables", "", "game tables YAML (defaults to the built-in tables)")
		signer     = flag.String("signer", "", "operator address expected to have signed the record")
		slices     = flag.Int("slices", 0, "also print this many uniform slices of the digest")
	)
	flag.Parse()

	if *secret == "" {
		log.Fatal("-secret is required")
	}

	cfg, err := config.LoadTables(*tables)
	if err != nil {
		log.Fatalf("Failed to load game tables: %v", err)
	}
	engine, err := game.NewEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	var record state.RoundRecord
	if *recordPath != "" {
		record, err = readRecord(*recordPath)
		if err != nil {
			log.Fatalf("Failed to read round record: %v", err)
		}
	} else {
		record, err = deriveRecord(engine, *secret, *hash, *clientSeed, *sequence, game.GameType(*gameType),
			game.Params{Rows: *rows, Risk: *risk, Table: *table})
		if err != nil {
			log.Fatalf("Failed to derive round: %v", err)
		}
	}

	var expected *common.Address
	if *signer != "" {
		if !common.IsHexAddress(*signer) {
			log.Fatalf("-signer %q is not an address", *signer)
		}
		addr := common.HexToAddress(*signer)
		expected = &addr
	}

	report := verify.Audit(engine, record, *secret, expected)
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))

	if *slices > 0 && report.RecomputedDigest != "" {
		digest, err := verify.DecodeDigest(report.RecomputedDigest)
		if err != nil {
			log.Fatalf("Failed to decode digest: %v", err)
		}
		for i, u := range game.Slices(digest, *slices) {
			fmt.Printf("slice %d: %.10f\n", i, u)
		}
	}

	if !report.Valid {
		os.Exit(1)
	}
}

func readRecord(path string) (state.RoundRecord, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return state.RoundRecord{}, err
	}

	// Accept a bare record or the API envelope {"round": {...}}.
	var envelope struct {
		Round *state.RoundRecord `json:"round"`
	}
	if err := json.Unmarshal(b, &envelope); err == nil && envelope.Round != nil {
		return *envelope.Round, nil
	}

	var record state.RoundRecord
	if err := json.Unmarshal(b, &record); err != nil {
		return state.RoundRecord{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return record, nil
}

// deriveRecord builds the record the server would have produced. With no
// -hash the secret's own hash is assumed, which only proves reproduction.
func deriveRecord(engine *game.Engine, secret, hash, clientSeed string, sequence uint64, gameType game.GameType, params game.Params) (state.RoundRecord, error) {
	if hash == "" {
		hash = crypto.HashSeed(secret)
		log.Println("⚠️  No -hash given, checking reproduction only")
	}

	params, err := engine.Normalize(gameType, params)
	if err != nil {
		return state.RoundRecord{}, err
	}
	outcome, err := engine.Derive(game.SecretKey(secret), clientSeed, sequence, gameType, params)
	if err != nil {
		return state.RoundRecord{}, err
	}

	return state.RoundRecord{
		PublicHash:     hash,
		SequenceNumber: sequence,
		ClientSeed:     clientSeed,
		GameType:       gameType,
		Params:         params,
		RawDigest:      outcome.RawDigest,
		Result:         outcome.Result,
	}, nil
}
