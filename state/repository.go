package state

import (
	"context"
	"time"
)

// Repository persists commitments and rounds. Implementations live in db/.
//
// Lookups that find nothing return errs.ErrNotFound.
type Repository interface {
	ActiveCommitment(ctx context.Context, namespace string) (CommitmentRow, error)
	Commitment(ctx context.Context, id string) (CommitmentRow, error)
	RetiredCommitments(ctx context.Context, namespace string, limit int) ([]CommitmentRow, error)

	// Rotate atomically retires previousID (empty when the namespace has no
	// active commitment yet) and inserts next as the active commitment.
	// It fails with errs.ErrStaleCommitment when previousID is no longer
	// active and errs.ErrActivationConflict when another active row exists.
	Rotate(ctx context.Context, previousID string, next CommitmentRow, retiredAt time.Time) error

	// NextSequence atomically increments the counter of an active commitment
	// and returns the value before the increment. Retired commitments fail
	// with errs.ErrStaleCommitment.
	NextSequence(ctx context.Context, id string) (uint64, error)

	// InsertRound appends a round. A second insert for the same
	// (commitment, sequence) succeeds only if it describes the same outcome.
	InsertRound(ctx context.Context, record RoundRecord) error
	Round(ctx context.Context, commitmentID string, sequence uint64) (RoundRecord, error)
	Rounds(ctx context.Context, namespace string, limit int) ([]RoundRecord, error)
}

// Locker serializes activation across processes. Lock fails with
// errs.ErrActivationConflict when another holder owns the namespace.
type Locker interface {
	Lock(ctx context.Context, namespace string) (unlock func(), err error)
}

// HashCache keeps the current public hash per namespace for cheap reads.
type HashCache interface {
	SetCurrent(ctx context.Context, view CommitmentView) error
	Current(ctx context.Context, namespace string) (CommitmentView, bool, error)
}
