// Package session plays rounds: it leases the active commitment, derives the
// outcome, records and signs it, and rotates commitments when policy says so.
// Stakes pass through untouched; settlement belongs to the caller.
package session

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"fairplay/config"
	"fairplay/crypto"
	"fairplay/errs"
	"fairplay/game"
	"fairplay/state"
)

// Request asks for one round.
type Request struct {
	GameType   game.GameType `json:"gameType" validate:"required"`
	Namespace  string        `json:"namespace"`
	ClientSeed string        `json:"clientSeed"`
	Params     game.Params   `json:"params"`
	Stake      float64       `json:"stake,omitempty" validate:"gte=0"`
}

// Receipt is the recorded round plus what the caller needs to settle it.
type Receipt struct {
	state.RoundRecord
	Stake  float64 `json:"stake,omitempty"`
	Signer string  `json:"signer,omitempty"`
}

// Notifier receives lifecycle events, typically the WebSocket hub.
type Notifier interface {
	CommitmentActivated(act state.Activation)
	RoundPlayed(receipt Receipt)
}

// Policy decides when a commitment is rotated. Zero fields disable a rule.
type Policy struct {
	MaxRounds uint64
	MaxAge    time.Duration
}

// Due reports whether a commitment that has issued `issued` sequence numbers
// and was activated at createdAt should be rotated.
func (p Policy) Due(issued uint64, createdAt, now time.Time) bool {
	if p.MaxRounds > 0 && issued >= p.MaxRounds {
		return true
	}
	if p.MaxAge > 0 && now.Sub(createdAt) >= p.MaxAge {
		return true
	}
	return false
}

// Options configures a Service. Every field is optional.
type Options struct {
	Signer   *crypto.Signer
	Policy   Policy
	Notifier Notifier
	Clock    func() time.Time
}

// Service is the entry point for playing rounds.
type Service struct {
	store    *state.Store
	engine   *game.Engine
	signer   *crypto.Signer
	policy   Policy
	notifier Notifier
	now      func() time.Time
}

// NewService wires a session service.
func NewService(store *state.Store, engine *game.Engine, opts Options) *Service {
	s := &Service{
		store:    store,
		engine:   engine,
		signer:   opts.Signer,
		policy:   opts.Policy,
		notifier: opts.Notifier,
		now:      opts.Clock,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Engine returns the derivation engine.
func (s *Service) Engine() *game.Engine { return s.engine }

// PlayRound plays one round. Parameters are validated before a sequence
// number is consumed; the commitment is captured once and used for the whole
// round.
func (s *Service) PlayRound(ctx context.Context, req Request) (Receipt, error) {
	namespace := req.Namespace
	if namespace == "" {
		namespace = config.DefaultNamespace
	}

	if math.IsNaN(req.Stake) || math.IsInf(req.Stake, 0) || req.Stake < 0 {
		return Receipt{}, errs.New(errs.CodeInvalidParams, "stake %v is not a non-negative amount", req.Stake)
	}

	clientSeed := req.ClientSeed
	if clientSeed == "" {
		generated, err := crypto.GenerateClientSeed()
		if err != nil {
			return Receipt{}, errs.Wrap(errs.CodeInternal, err, "generate client seed")
		}
		clientSeed = generated
	}
	if err := game.ValidateClientSeed(clientSeed); err != nil {
		return Receipt{}, err
	}

	params, err := s.engine.Normalize(req.GameType, req.Params)
	if err != nil {
		return Receipt{}, err
	}

	lease, err := s.store.Begin(ctx, namespace)
	if err != nil {
		return Receipt{}, err
	}

	receipt, err := s.play(ctx, lease, clientSeed, req.GameType, params)
	lease.Release()
	if err != nil {
		return Receipt{}, err
	}
	receipt.Stake = req.Stake

	if s.notifier != nil {
		s.notifier.RoundPlayed(receipt)
	}

	// Sequence numbers are zero-based: seq+1 have been issued.
	if s.policy.Due(receipt.SequenceNumber+1, lease.CreatedAt(), s.now()) {
		s.rotateIfCurrent(ctx, namespace, receipt.CommitmentID)
	}

	return receipt, nil
}

// play runs under the lease.
func (s *Service) play(ctx context.Context, lease *state.Lease, clientSeed string, gameType game.GameType, params game.Params) (Receipt, error) {
	outcome, err := s.engine.Derive(lease, clientSeed, lease.Sequence(), gameType, params)
	if err != nil {
		return Receipt{}, err
	}

	record := state.RoundRecord{
		Namespace:      lease.Namespace(),
		CommitmentID:   lease.CommitmentID(),
		PublicHash:     lease.PublicHash(),
		SequenceNumber: lease.Sequence(),
		ClientSeed:     clientSeed,
		GameType:       gameType,
		Params:         params,
		RawDigest:      outcome.RawDigest,
		Result:         outcome.Result,
		CreatedAt:      s.now().UTC(),
	}

	receipt := Receipt{}
	if s.signer != nil {
		sig, err := s.signer.Sign(record.SigningPayload())
		if err != nil {
			return Receipt{}, errs.Wrap(errs.CodeInternal, err, "sign round")
		}
		record.Signature = sig
		receipt.Signer = s.signer.Address().Hex()
	}

	if err := s.store.Record(ctx, record); err != nil {
		log.Printf("❌ [%s] Failed to record round %s/%d: %v", record.Namespace, record.CommitmentID, record.SequenceNumber, err)
		return Receipt{}, err
	}

	receipt.RoundRecord = record
	return receipt, nil
}

// rotateIfCurrent rotates namespace unless the captured commitment has
// already been replaced.
func (s *Service) rotateIfCurrent(ctx context.Context, namespace, commitmentID string) {
	act, rotated, err := s.store.Rotate(ctx, namespace, commitmentID)
	if errors.Is(err, errs.ErrActivationConflict) {
		return
	}
	if err != nil {
		log.Printf("⚠️ [%s] Policy rotation failed: %v", namespace, err)
		return
	}
	if rotated && s.notifier != nil {
		s.notifier.CommitmentActivated(act)
	}
}

// Rotate is the operator action: retire and reveal the current commitment.
func (s *Service) Rotate(ctx context.Context, namespace string) (state.Activation, error) {
	act, err := s.store.Activate(ctx, namespace)
	if err != nil {
		return state.Activation{}, err
	}
	if s.notifier != nil {
		s.notifier.CommitmentActivated(act)
	}
	return act, nil
}

// CurrentPublicHash returns the commitment the next round will use.
func (s *Service) CurrentPublicHash(ctx context.Context, namespace string) (state.CommitmentView, error) {
	return s.store.CurrentPublicHash(ctx, namespace)
}

// RevealedSecrets lists retired commitments with their secrets.
func (s *Service) RevealedSecrets(ctx context.Context, namespace string, limit int) ([]state.RevealedCommitment, error) {
	return s.store.RevealedSecrets(ctx, namespace, limit)
}

// Round returns a recorded round.
func (s *Service) Round(ctx context.Context, commitmentID string, sequence uint64) (state.RoundRecord, error) {
	return s.store.Round(ctx, commitmentID, sequence)
}

// Rounds lists recent rounds of namespace.
func (s *Service) Rounds(ctx context.Context, namespace string, limit int) ([]state.RoundRecord, error) {
	return s.store.Rounds(ctx, namespace, limit)
}

// RunRotation enforces the age rule for idle namespaces until ctx ends.
func (s *Service) RunRotation(ctx context.Context, namespaces []string, interval time.Duration) error {
	if s.policy.MaxAge <= 0 && s.policy.MaxRounds == 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Printf("⏱️ Rotation policy running every %s (max rounds %d, max age %s)", interval, s.policy.MaxRounds, s.policy.MaxAge)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, ns := range namespaces {
				view, err := s.store.CurrentCommitment(ctx, ns)
				if err != nil {
					log.Printf("⚠️ [%s] Rotation check failed: %v", ns, err)
					continue
				}
				if s.policy.Due(view.SequenceCounter, view.CreatedAt, s.now()) {
					s.rotateIfCurrent(ctx, ns, view.ID)
				}
			}
		}
	}
}
