// Package verify recomputes rounds from revealed secrets. Everything here
// except Service is pure and needs no access to the server's store, so the
// same code serves players auditing offline.
package verify

import (
	"encoding/hex"
	"fmt"

	"fairplay/crypto"
	"fairplay/errs"
	"fairplay/game"
	"fairplay/state"

	"github.com/ethereum/go-ethereum/common"
)

// Commitment checks that secret hashes to publicHash.
func Commitment(publicHash, secret string) error {
	if !crypto.VerifySeed(secret, publicHash) {
		return errs.New(errs.CodeHashMismatch, "sha256(secret) = %s, committed %s", crypto.HashSeed(secret), publicHash)
	}
	return nil
}

// Round recomputes record under secret and compares digest and result.
// Malformed records fail with the engine's configuration errors.
func Round(engine *game.Engine, record state.RoundRecord, secret string) (game.Outcome, error) {
	outcome, err := engine.Derive(game.SecretKey(secret), record.ClientSeed, record.SequenceNumber, record.GameType, record.Params)
	if err != nil {
		return game.Outcome{}, err
	}

	if outcome.RawDigest != record.RawDigest {
		return outcome, errs.New(errs.CodeResultMismatch, "digest %s, recorded %s", outcome.RawDigest, record.RawDigest)
	}
	if !outcome.Result.Equal(record.Result) {
		return outcome, errs.New(errs.CodeResultMismatch, "result %s, recorded %s", describe(outcome.Result), describe(record.Result))
	}
	return outcome, nil
}

// Signature checks that record was signed by signer.
func Signature(record state.RoundRecord, signer common.Address) error {
	if record.Signature == "" {
		return errs.New(errs.CodeSignatureMismatch, "round is unsigned")
	}
	recovered, err := crypto.RecoverSigner(record.SigningPayload(), record.Signature)
	if err != nil {
		return errs.Wrap(errs.CodeSignatureMismatch, err, "unreadable signature")
	}
	if recovered != signer {
		return errs.New(errs.CodeSignatureMismatch, "signed by %s, expected %s", recovered.Hex(), signer.Hex())
	}
	return nil
}

// Report is the outcome of an audit.
type Report struct {
	Valid            bool         `json:"valid"`
	Explanation      string       `json:"explanation"`
	Code             errs.Code    `json:"code,omitempty"`
	CommitmentID     string       `json:"commitmentId"`
	SequenceNumber   uint64       `json:"sequenceNumber"`
	PublicHash       string       `json:"publicHash"`
	RecomputedDigest string       `json:"recomputedDigest,omitempty"`
	Uniform          float64      `json:"uniform,omitempty"`
	Result           *game.Result `json:"result,omitempty"`
	Signer           string       `json:"signer,omitempty"`
}

// Audit runs every check on record: commitment, recomputation and, when
// signer is non-nil, the receipt signature. It never fails; failures are
// reported in the Report.
func Audit(engine *game.Engine, record state.RoundRecord, secret string, signer *common.Address) Report {
	report := Report{
		CommitmentID:   record.CommitmentID,
		SequenceNumber: record.SequenceNumber,
		PublicHash:     record.PublicHash,
	}

	if err := Commitment(record.PublicHash, secret); err != nil {
		return report.fail(err, "secret does not match the published commitment")
	}

	outcome, err := Round(engine, record, secret)
	if outcome.RawDigest != "" {
		report.RecomputedDigest = outcome.RawDigest
		report.Uniform = outcome.Uniform
		result := outcome.Result
		report.Result = &result
	}
	if err != nil {
		switch errs.CodeOf(err) {
		case errs.CodeResultMismatch:
			return report.fail(err, "recomputed outcome differs from the recorded one")
		default:
			return report.fail(err, "round cannot be recomputed")
		}
	}

	if signer != nil {
		if err := Signature(record, *signer); err != nil {
			return report.fail(err, "receipt signature does not match the operator")
		}
		report.Signer = signer.Hex()
	}

	report.Valid = true
	report.Explanation = fmt.Sprintf("secret matches commitment %s; %s round %d reproduces %s",
		shortHash(record.PublicHash), record.GameType, record.SequenceNumber, describe(outcome.Result))
	if signer != nil {
		report.Explanation += "; signed by " + signer.Hex()
	}
	return report
}

func (r Report) fail(err error, summary string) Report {
	r.Valid = false
	r.Code = errs.CodeOf(err)
	r.Explanation = summary + ": " + err.Error()
	return r
}

func describe(r game.Result) string {
	switch {
	case r.Plinko != nil:
		return fmt.Sprintf("%s bucket %d (%.2fx)", r.Plinko.Path, r.Plinko.Bucket, r.Multiplier)
	case r.Drop != nil:
		return fmt.Sprintf("%s/%s (%.2fx)", r.Drop.Table, r.Drop.OutcomeID, r.Multiplier)
	default:
		return fmt.Sprintf("%.2fx", r.Multiplier)
	}
}

func shortHash(h string) string {
	if len(h) <= 12 {
		return h
	}
	return h[:12]
}

// DecodeDigest parses a hex digest, for callers that want the raw bytes.
func DecodeDigest(rawDigest string) ([]byte, error) {
	b, err := hex.DecodeString(rawDigest)
	if err != nil {
		return nil, errs.Wrap(errs.CodeInvalidParams, err, "digest is not hex")
	}
	return b, nil
}
