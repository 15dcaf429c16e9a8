package state

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"fairplay/crypto"
	"fairplay/errs"

	"github.com/google/uuid"
)

// Store owns every seed commitment. It is the only component that ever holds
// a secret seed in memory.
//
// Each namespace has a fence: leases hold it shared while a round derives
// and records, activation holds it exclusively. Activation therefore waits
// for in-flight rounds to finish before the old commitment is retired, and
// no round can start against a commitment that is being retired.
type Store struct {
	repo  Repository
	lock  Locker
	cache HashCache
	now   func() time.Time

	namespaces map[string]bool // nil serves any namespace

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	fence      sync.RWMutex
	activating atomic.Bool
	active     *ActiveCommitment // guarded by fence
}

// Option configures a Store.
type Option func(*Store)

// WithLocker adds a cross-process activation lock.
func WithLocker(l Locker) Option {
	return func(s *Store) { s.lock = l }
}

// WithCache adds a public hash cache.
func WithCache(c HashCache) Option {
	return func(s *Store) { s.cache = c }
}

// WithNamespaces limits the store to the given namespaces. Anything else
// fails with errs.ErrNotFound and never gets a commitment.
func WithNamespaces(namespaces ...string) Option {
	return func(s *Store) {
		s.namespaces = make(map[string]bool, len(namespaces))
		for _, ns := range namespaces {
			s.namespaces[ns] = true
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store over repo.
func NewStore(repo Repository, opts ...Option) *Store {
	s := &Store{
		repo:  repo,
		now:   time.Now,
		slots: make(map[string]*slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) check(namespace string) error {
	if namespace == "" {
		return errs.New(errs.CodeInvalidParams, "namespace is empty")
	}
	if s.namespaces != nil && !s.namespaces[namespace] {
		return errs.New(errs.CodeNotFound, "namespace %q is not configured", namespace)
	}
	return nil
}

func (s *Store) slot(namespace string) *slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	sl, ok := s.slots[namespace]
	if !ok {
		sl = &slot{}
		s.slots[namespace] = sl
	}
	return sl
}

// Activation is the outcome of a rotation.
type Activation struct {
	Active  CommitmentView      `json:"active"`
	Retired *RevealedCommitment `json:"retired,omitempty"`
}

// Activate generates a fresh secret for namespace, retires the current
// commitment (if any) and makes the new one active. Concurrent activations
// of the same namespace fail with errs.ErrActivationConflict.
func (s *Store) Activate(ctx context.Context, namespace string) (Activation, error) {
	act, _, err := s.rotate(ctx, namespace, "", false)
	return act, err
}

// Rotate activates a new commitment only if expectedActiveID is still the
// active one. It reports whether a rotation happened; a stale expectation is
// not an error, so two triggers racing on the same commitment rotate once.
func (s *Store) Rotate(ctx context.Context, namespace, expectedActiveID string) (Activation, bool, error) {
	return s.rotate(ctx, namespace, expectedActiveID, true)
}

func (s *Store) rotate(ctx context.Context, namespace, expectedID string, conditional bool) (Activation, bool, error) {
	if err := s.check(namespace); err != nil {
		return Activation{}, false, err
	}

	sl := s.slot(namespace)
	if !sl.activating.CompareAndSwap(false, true) {
		return Activation{}, false, errs.New(errs.CodeActivationConflict, "activation of %q already in flight", namespace)
	}
	defer sl.activating.Store(false)

	if s.lock != nil {
		unlock, err := s.lock.Lock(ctx, namespace)
		if err != nil {
			return Activation{}, false, err
		}
		defer unlock()
	}

	sl.fence.Lock()
	defer sl.fence.Unlock()

	return s.rotateLocked(ctx, namespace, sl, expectedID, conditional)
}

// rotateLocked runs with the namespace fence held exclusively.
func (s *Store) rotateLocked(ctx context.Context, namespace string, sl *slot, expectedID string, conditional bool) (Activation, bool, error) {
	prev, err := s.repo.ActiveCommitment(ctx, namespace)
	hasPrev := err == nil
	if err != nil && !errors.Is(err, errs.ErrNotFound) {
		return Activation{}, false, err
	}

	if conditional && (!hasPrev || prev.ID != expectedID) {
		var act Activation
		if hasPrev {
			act.Active = prev.Commitment().View(prev.SequenceCounter)
		}
		return act, false, nil
	}

	secret, hash, err := crypto.GenerateServerSeed()
	if err != nil {
		return Activation{}, false, errs.Wrap(errs.CodeInternal, err, "generate secret")
	}

	now := s.now().UTC()
	next := CommitmentRow{
		ID:         uuid.NewString(),
		Namespace:  namespace,
		SecretSeed: secret,
		PublicHash: hash,
		Status:     StatusActive,
		CreatedAt:  now,
	}

	previousID := ""
	if hasPrev {
		previousID = prev.ID
	}
	if err := s.repo.Rotate(ctx, previousID, next, now); err != nil {
		sl.active = nil
		return Activation{}, false, err
	}

	active := next.Commitment().(*ActiveCommitment)
	sl.active = active

	act := Activation{Active: active.View(0)}
	if hasPrev {
		prev.Status = StatusRetired
		prev.RetiredAt = &now
		revealed := prev.Commitment().(*RetiredCommitment).Reveal(prev.SequenceCounter)
		act.Retired = &revealed
		log.Printf("🔄 [%s] Rotated commitment %s -> %s after %d rounds", namespace, prev.ID, next.ID, prev.SequenceCounter)
	} else {
		log.Printf("🔐 [%s] Activated commitment %s (hash %s)", namespace, next.ID, hash)
	}

	s.publish(ctx, act.Active)

	return act, true, nil
}

// publish caches view without its sequence counter, which would go stale.
func (s *Store) publish(ctx context.Context, view CommitmentView) {
	if s.cache == nil {
		return
	}
	view.SequenceCounter = 0
	if err := s.cache.SetCurrent(ctx, view); err != nil {
		log.Printf("⚠️ [%s] Failed to cache public hash: %v", view.Namespace, err)
	}
}

// load makes sure sl.active reflects the repository, activating a first
// commitment when the namespace has none.
func (s *Store) load(ctx context.Context, namespace string, sl *slot) error {
	sl.fence.Lock()
	defer sl.fence.Unlock()

	if sl.active != nil {
		return nil
	}

	row, err := s.repo.ActiveCommitment(ctx, namespace)
	if err == nil {
		sl.active = row.Commitment().(*ActiveCommitment)
		return nil
	}
	if !errors.Is(err, errs.ErrNotFound) {
		return err
	}

	if !sl.activating.CompareAndSwap(false, true) {
		return errs.New(errs.CodeActivationConflict, "activation of %q already in flight", namespace)
	}
	defer sl.activating.Store(false)

	_, _, err = s.rotateLocked(ctx, namespace, sl, "", false)
	return err
}

// forget drops a cached active commitment another process has retired.
func (s *Store) forget(sl *slot, id string) {
	sl.fence.Lock()
	defer sl.fence.Unlock()

	if sl.active != nil && sl.active.id == id {
		sl.active = nil
	}
}

// Bootstrap loads or activates a commitment for every namespace.
func (s *Store) Bootstrap(ctx context.Context, namespaces ...string) error {
	for _, ns := range namespaces {
		if err := s.check(ns); err != nil {
			return err
		}
		if err := s.load(ctx, ns, s.slot(ns)); err != nil {
			return err
		}
		view, err := s.refresh(ctx, ns)
		if err != nil {
			return err
		}
		log.Printf("📌 [%s] Current public hash %s (sequence %d)", ns, view.PublicHash, view.SequenceCounter)
	}
	return nil
}

// refresh reads the active commitment and caches it. The shared fence keeps
// a local rotation from landing between the read and the cache write.
func (s *Store) refresh(ctx context.Context, namespace string) (CommitmentView, error) {
	sl := s.slot(namespace)
	sl.fence.RLock()
	defer sl.fence.RUnlock()

	row, err := s.repo.ActiveCommitment(ctx, namespace)
	if err != nil {
		return CommitmentView{}, err
	}
	view := row.Commitment().View(row.SequenceCounter)
	s.publish(ctx, view)
	return view, nil
}

// CurrentCommitment returns the active commitment of namespace. Reads never
// activate: a namespace that was neither bootstrapped nor played fails with
// errs.ErrNotFound.
func (s *Store) CurrentCommitment(ctx context.Context, namespace string) (CommitmentView, error) {
	if err := s.check(namespace); err != nil {
		return CommitmentView{}, err
	}

	row, err := s.repo.ActiveCommitment(ctx, namespace)
	if err != nil {
		return CommitmentView{}, err
	}
	return row.Commitment().View(row.SequenceCounter), nil
}

// CurrentPublicHash answers from the cache when one is configured. The view
// carries no sequence counter; CurrentCommitment has the live one.
func (s *Store) CurrentPublicHash(ctx context.Context, namespace string) (CommitmentView, error) {
	if err := s.check(namespace); err != nil {
		return CommitmentView{}, err
	}

	if s.cache != nil {
		view, ok, err := s.cache.Current(ctx, namespace)
		if err != nil {
			log.Printf("⚠️ [%s] Hash cache read failed: %v", namespace, err)
		} else if ok {
			view.SequenceCounter = 0
			return view, nil
		}
	}

	view, err := s.refresh(ctx, namespace)
	if err != nil {
		return CommitmentView{}, err
	}
	view.SequenceCounter = 0
	return view, nil
}

// Commitment returns any commitment by id without its secret.
func (s *Store) Commitment(ctx context.Context, id string) (CommitmentView, error) {
	row, err := s.repo.Commitment(ctx, id)
	if err != nil {
		return CommitmentView{}, err
	}
	return row.Commitment().View(row.SequenceCounter), nil
}

// ConsumeSequence claims the next sequence number of an active commitment.
// Concurrent callers always receive distinct, gap-free values.
func (s *Store) ConsumeSequence(ctx context.Context, commitmentID string) (uint64, error) {
	row, err := s.repo.Commitment(ctx, commitmentID)
	if err != nil {
		return 0, err
	}
	if row.Status != StatusActive {
		return 0, errs.New(errs.CodeStaleCommitment, "commitment %s is %s", commitmentID, row.Status)
	}

	sl := s.slot(row.Namespace)
	sl.fence.RLock()
	defer sl.fence.RUnlock()

	return s.repo.NextSequence(ctx, commitmentID)
}

// RevealSecret returns the secret of a retired commitment. Active
// commitments fail with errs.ErrSecretNotYetRevealed.
func (s *Store) RevealSecret(ctx context.Context, commitmentID string) (string, error) {
	row, err := s.repo.Commitment(ctx, commitmentID)
	if err != nil {
		return "", err
	}

	switch c := row.Commitment().(type) {
	case *RetiredCommitment:
		return c.Secret(), nil
	default:
		return "", errs.New(errs.CodeSecretNotYetRevealed, "commitment %s is still active", commitmentID)
	}
}

// Revealed returns a retired commitment together with its secret.
func (s *Store) Revealed(ctx context.Context, commitmentID string) (RevealedCommitment, error) {
	row, err := s.repo.Commitment(ctx, commitmentID)
	if err != nil {
		return RevealedCommitment{}, err
	}
	retired, ok := row.Commitment().(*RetiredCommitment)
	if !ok {
		return RevealedCommitment{}, errs.New(errs.CodeSecretNotYetRevealed, "commitment %s is still active", commitmentID)
	}
	return retired.Reveal(row.SequenceCounter), nil
}

// RevealedSecrets lists retired commitments of namespace, newest first.
func (s *Store) RevealedSecrets(ctx context.Context, namespace string, limit int) ([]RevealedCommitment, error) {
	rows, err := s.repo.RetiredCommitments(ctx, namespace, limit)
	if err != nil {
		return nil, err
	}

	out := make([]RevealedCommitment, 0, len(rows))
	for _, row := range rows {
		retired, ok := row.Commitment().(*RetiredCommitment)
		if !ok {
			continue
		}
		out = append(out, retired.Reveal(row.SequenceCounter))
	}
	return out, nil
}

// Record appends a played round.
func (s *Store) Record(ctx context.Context, record RoundRecord) error {
	return s.repo.InsertRound(ctx, record)
}

// Round returns one recorded round.
func (s *Store) Round(ctx context.Context, commitmentID string, sequence uint64) (RoundRecord, error) {
	return s.repo.Round(ctx, commitmentID, sequence)
}

// Rounds lists recent rounds of namespace, newest first.
func (s *Store) Rounds(ctx context.Context, namespace string, limit int) ([]RoundRecord, error) {
	return s.repo.Rounds(ctx, namespace, limit)
}
