package verify

import (
	"context"

	"fairplay/errs"
	"fairplay/game"
	"fairplay/state"

	"github.com/ethereum/go-ethereum/common"
)

// Service audits rounds stored by the server.
type Service struct {
	store  *state.Store
	engine *game.Engine
	signer *common.Address
}

// NewService creates a verifier. signer may be nil when receipts are not
// signed.
func NewService(store *state.Store, engine *game.Engine, signer *common.Address) *Service {
	return &Service{store: store, engine: engine, signer: signer}
}

// VerifyStored audits a recorded round against its revealed secret. While
// the commitment is active it fails with errs.ErrSecretNotYetRevealed.
func (s *Service) VerifyStored(ctx context.Context, commitmentID string, sequence uint64) (Report, error) {
	record, err := s.store.Round(ctx, commitmentID, sequence)
	if err != nil {
		return Report{}, err
	}

	revealed, err := s.store.Revealed(ctx, commitmentID)
	if err != nil {
		return Report{}, err
	}

	// The record's hash must be the one the store committed to.
	if record.PublicHash != revealed.PublicHash {
		err := errs.New(errs.CodeHashMismatch, "round carries hash %s, commitment published %s", record.PublicHash, revealed.PublicHash)
		return Report{
			CommitmentID:   commitmentID,
			SequenceNumber: sequence,
			PublicHash:     revealed.PublicHash,
		}.fail(err, "round does not belong to the published commitment"), nil
	}

	return Audit(s.engine, record, revealed.SecretSeed, s.signer), nil
}

// Verify audits a caller-supplied record and secret.
func (s *Service) Verify(record state.RoundRecord, secret string) Report {
	return Audit(s.engine, record, secret, s.signer)
}
