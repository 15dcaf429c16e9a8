package state

import (
	"context"
	"errors"
	"sync"
	"time"

	"fairplay/errs"
)

// Lease pins a namespace's active commitment for one round. While any lease
// is held the commitment cannot be retired. Release must be called exactly
// once the round is recorded; extra calls are no-ops.
type Lease struct {
	sl         *slot
	commitment *ActiveCommitment
	sequence   uint64
	once       sync.Once
}

// Begin claims the next sequence number of namespace's active commitment and
// returns a lease keyed by its secret.
func (s *Store) Begin(ctx context.Context, namespace string) (*Lease, error) {
	if err := s.check(namespace); err != nil {
		return nil, err
	}
	sl := s.slot(namespace)

	for attempt := 0; attempt < 2; attempt++ {
		sl.fence.RLock()
		active := sl.active
		if active == nil {
			sl.fence.RUnlock()
			if err := s.load(ctx, namespace, sl); err != nil {
				return nil, err
			}
			continue
		}

		seq, err := s.repo.NextSequence(ctx, active.id)
		if err != nil {
			sl.fence.RUnlock()
			if errors.Is(err, errs.ErrStaleCommitment) {
				// Rotated by another process; reload on the next call.
				s.forget(sl, active.id)
			}
			return nil, err
		}

		return &Lease{sl: sl, commitment: active, sequence: seq}, nil
	}

	return nil, errs.New(errs.CodeActivationConflict, "no active commitment for %q", namespace)
}

func (l *Lease) Namespace() string    { return l.commitment.namespace }
func (l *Lease) CommitmentID() string { return l.commitment.id }
func (l *Lease) PublicHash() string   { return l.commitment.publicHash }
func (l *Lease) Sequence() uint64     { return l.sequence }

// CreatedAt is when the leased commitment was activated.
func (l *Lease) CreatedAt() time.Time { return l.commitment.createdAt }

// MAC keys HMAC-SHA256 with the leased secret. It implements game.Keyer.
func (l *Lease) MAC(message []byte) []byte {
	return l.commitment.MAC(message)
}

// Release unpins the commitment.
func (l *Lease) Release() {
	l.once.Do(l.sl.fence.RUnlock)
}
