// Command simulate plays many rounds against fresh secrets and reports the
// observed outcome distribution and return to player for a game.
package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"fairplay/config"
	"fairplay/crypto"
	"fairplay/game"
)

func main() {
	var (
		gameType = flag.String("game", string(game.GameCrash), "game type: crash, plinko, crate, wheel")
		rows     = flag.Int("rows", 8, "plinko rows")
		risk     = flag.String("risk", "", "plinko risk")
		table    = flag.String("table", "", "crate or wheel table")
		tables   = flag.String("tables", "", "game tables YAML (defaults to the built-in tables)")
		batches  = flag.Int("batches", 5, "number of batches, each with a new secret")
		rounds   = flag.Int("rounds", 10000, "rounds per batch")
		target   = flag.Float64("target", 2, "crash cash-out target for the RTP estimate")
	)
	flag.Parse()

	cfg, err := config.LoadTables(*tables)
	if err != nil {
		log.Fatalf("Failed to load game tables: %v", err)
	}
	engine, err := game.NewEngine(cfg)
	if err != nil {
		log.Fatalf("Failed to build engine: %v", err)
	}

	g := game.GameType(*gameType)
	params, err := engine.Normalize(g, game.Params{Rows: *rows, Risk: *risk, Table: *table})
	if err != nil {
		log.Fatalf("Invalid game parameters: %v", err)
	}

	fmt.Printf("Running %d batches of %d %s rounds...\n\n", *batches, *rounds, g)

	counts := make(map[string]int)
	var totalReturn float64
	total := 0

	for batch := 1; batch <= *batches; batch++ {
		secret, _, err := crypto.GenerateServerSeed()
		if err != nil {
			log.Fatalf("Failed to generate secret: %v", err)
		}
		clientSeed, err := crypto.GenerateClientSeed()
		if err != nil {
			log.Fatalf("Failed to generate client seed: %v", err)
		}

		var batchReturn float64
		for seq := 0; seq < *rounds; seq++ {
			outcome, err := engine.Derive(game.SecretKey(secret), clientSeed, uint64(seq), g, params)
			if err != nil {
				log.Fatalf("Derive failed at round %d: %v", seq, err)
			}
			counts[label(outcome.Result)]++
			batchReturn += payout(outcome.Result, *target)
		}

		totalReturn += batchReturn
		total += *rounds
		fmt.Printf("Batch %d: RTP %.2f%%\n", batch, 100*batchReturn/float64(*rounds))
	}

	fmt.Printf("\nOverall RTP: %.3f%% over %d rounds\n\n", 100*totalReturn/float64(total), total)

	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %-12s %8d  %6.3f%%\n", k, counts[k], 100*float64(counts[k])/float64(total))
	}
}

// label buckets a result for the distribution table.
func label(r game.Result) string {
	switch {
	case r.Plinko != nil:
		return fmt.Sprintf("bucket %d", r.Plinko.Bucket)
	case r.Drop != nil:
		return r.Drop.OutcomeID
	case r.Multiplier < 2:
		return "< 2x"
	case r.Multiplier < 10:
		return "2x-10x"
	case r.Multiplier < 100:
		return "10x-100x"
	default:
		return ">= 100x"
	}
}

// payout is the return of a unit stake. Crash pays target when the round
// reaches it.
func payout(r game.Result, target float64) float64 {
	if r.Game == game.GameCrash {
		if r.Multiplier >= target {
			return target
		}
		return 0
	}
	return r.Multiplier
}
