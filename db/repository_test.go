package db

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"fairplay/crypto"
	"fairplay/errs"
	"fairplay/game"
	"fairplay/state"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func newRow(t *testing.T, namespace string) state.CommitmentRow {
	t.Helper()

	secret, hash, err := crypto.GenerateServerSeed()
	if err != nil {
		t.Fatalf("GenerateServerSeed failed: %v", err)
	}
	return state.CommitmentRow{
		ID:         uuid.NewString(),
		Namespace:  namespace,
		SecretSeed: secret,
		PublicHash: hash,
		Status:     state.StatusActive,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func sampleRound(commitment state.CommitmentRow, seq uint64) state.RoundRecord {
	return state.RoundRecord{
		Namespace:      commitment.Namespace,
		CommitmentID:   commitment.ID,
		PublicHash:     commitment.PublicHash,
		SequenceNumber: seq,
		ClientSeed:     "abc",
		GameType:       game.GamePlinko,
		Params:         game.Params{Rows: 8, Risk: "low"},
		RawDigest:      "af44d524d79c86034454b359d7f99e54c0c4e39f2d14a6c96074a149ac31d5de",
		Result: game.Result{
			Game:       game.GamePlinko,
			Multiplier: 1,
			Plinko:     &game.PlinkoResult{Rows: 8, Risk: "low", Path: "RLLLRRRR", Displacement: 2, Bucket: 5},
		},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
}

// testRepository runs the behaviour every state.Repository must share.
func testRepository(t *testing.T, repo state.Repository) {
	ctx := context.Background()
	ns := "test-" + uuid.NewString()

	first := newRow(t, ns)

	t.Run("EmptyNamespace", func(t *testing.T) {
		if _, err := repo.ActiveCommitment(ctx, ns); !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("expected NOT_FOUND, got %v", err)
		}
	})

	t.Run("FirstActivation", func(t *testing.T) {
		if err := repo.Rotate(ctx, "", first, time.Now()); err != nil {
			t.Fatalf("Rotate failed: %v", err)
		}
		got, err := repo.ActiveCommitment(ctx, ns)
		if err != nil {
			t.Fatalf("ActiveCommitment failed: %v", err)
		}
		if got.ID != first.ID || got.PublicHash != first.PublicHash || got.Status != state.StatusActive {
			t.Errorf("unexpected active row %+v", got)
		}
	})

	t.Run("SecondActiveRejected", func(t *testing.T) {
		err := repo.Rotate(ctx, "", newRow(t, ns), time.Now())
		if !errors.Is(err, errs.ErrActivationConflict) {
			t.Fatalf("expected ACTIVATION_CONFLICT, got %v", err)
		}
	})

	t.Run("SequenceStartsAtZero", func(t *testing.T) {
		for want := uint64(0); want < 3; want++ {
			got, err := repo.NextSequence(ctx, first.ID)
			if err != nil {
				t.Fatalf("NextSequence failed: %v", err)
			}
			if got != want {
				t.Errorf("NextSequence = %d, want %d", got, want)
			}
		}
		row, _ := repo.Commitment(ctx, first.ID)
		if row.SequenceCounter != 3 {
			t.Errorf("counter = %d, want 3", row.SequenceCounter)
		}
	})

	t.Run("ConcurrentSequencesAreDistinct", func(t *testing.T) {
		const n = 50
		var mu sync.Mutex
		seen := make([]uint64, 0, n)

		var g errgroup.Group
		for i := 0; i < n; i++ {
			g.Go(func() error {
				seq, err := repo.NextSequence(ctx, first.ID)
				if err != nil {
					return err
				}
				mu.Lock()
				seen = append(seen, seq)
				mu.Unlock()
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			t.Fatalf("NextSequence failed: %v", err)
		}

		sort.Slice(seen, func(i, j int) bool { return seen[i] < seen[j] })
		for i, seq := range seen {
			if seq != uint64(i+3) {
				t.Fatalf("sequence %d = %d, want %d", i, seq, i+3)
			}
		}
	})

	t.Run("Rounds", func(t *testing.T) {
		r0 := sampleRound(first, 0)
		if err := repo.InsertRound(ctx, r0); err != nil {
			t.Fatalf("InsertRound failed: %v", err)
		}
		if err := repo.InsertRound(ctx, r0); err != nil {
			t.Errorf("identical re-insert should succeed, got %v", err)
		}

		tampered := r0
		tampered.RawDigest = "00" + r0.RawDigest[2:]
		if err := repo.InsertRound(ctx, tampered); !errors.Is(err, errs.ErrSequenceConflict) {
			t.Errorf("expected SEQUENCE_CONFLICT, got %v", err)
		}

		got, err := repo.Round(ctx, first.ID, 0)
		if err != nil {
			t.Fatalf("Round failed: %v", err)
		}
		if !got.SameOutcome(r0) {
			t.Errorf("stored round differs: %+v", got)
		}

		if err := repo.InsertRound(ctx, sampleRound(first, 1)); err != nil {
			t.Fatalf("InsertRound failed: %v", err)
		}
		list, err := repo.Rounds(ctx, ns, 10)
		if err != nil {
			t.Fatalf("Rounds failed: %v", err)
		}
		if len(list) != 2 || list[0].SequenceNumber != 1 {
			t.Errorf("Rounds should list newest first, got %d rows", len(list))
		}

		if _, err := repo.Round(ctx, first.ID, 999); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})

	second := newRow(t, ns)

	t.Run("Rotation", func(t *testing.T) {
		if err := repo.Rotate(ctx, first.ID, second, time.Now()); err != nil {
			t.Fatalf("Rotate failed: %v", err)
		}

		old, err := repo.Commitment(ctx, first.ID)
		if err != nil {
			t.Fatalf("Commitment failed: %v", err)
		}
		if old.Status != state.StatusRetired || old.RetiredAt == nil {
			t.Errorf("previous commitment not retired: %+v", old)
		}

		if _, err := repo.NextSequence(ctx, first.ID); !errors.Is(err, errs.ErrStaleCommitment) {
			t.Errorf("expected STALE_COMMITMENT, got %v", err)
		}
		if err := repo.Rotate(ctx, first.ID, newRow(t, ns), time.Now()); !errors.Is(err, errs.ErrStaleCommitment) {
			t.Errorf("expected STALE_COMMITMENT, got %v", err)
		}

		retired, err := repo.RetiredCommitments(ctx, ns, 10)
		if err != nil {
			t.Fatalf("RetiredCommitments failed: %v", err)
		}
		if len(retired) != 1 || retired[0].ID != first.ID || retired[0].SecretSeed != first.SecretSeed {
			t.Errorf("unexpected retired list %+v", retired)
		}
	})

	t.Run("UnknownCommitment", func(t *testing.T) {
		if _, err := repo.Commitment(ctx, uuid.NewString()); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
		if _, err := repo.NextSequence(ctx, uuid.NewString()); !errors.Is(err, errs.ErrNotFound) {
			t.Errorf("expected NOT_FOUND, got %v", err)
		}
	})
}

func TestMemoryRepository(t *testing.T) {
	testRepository(t, NewMemory())
}
