package state

import (
	"encoding/json"
	"time"

	"fairplay/game"
)

// ==============================================================================
// SEED COMMITMENTS
// ==============================================================================
//
// A commitment is either Active or Retired. The secret of an active commitment
// has no accessor; it can only key the round MAC. Retired commitments expose
// their secret through Secret(), which is the only way a secret leaves this
// package.
//
// ==============================================================================

type Status string

const (
	StatusActive  Status = "active"
	StatusRetired Status = "retired"
)

// Commitment is implemented by *ActiveCommitment and *RetiredCommitment only.
type Commitment interface {
	ID() string
	Namespace() string
	PublicHash() string
	Status() Status
	CreatedAt() time.Time
	View(sequenceCounter uint64) CommitmentView

	commitment()
}

type header struct {
	id         string
	namespace  string
	publicHash string
	createdAt  time.Time
}

func (h header) ID() string           { return h.id }
func (h header) Namespace() string    { return h.namespace }
func (h header) PublicHash() string   { return h.publicHash }
func (h header) CreatedAt() time.Time { return h.createdAt }
func (h header) commitment()          {}

// ActiveCommitment is the namespace's current commitment.
type ActiveCommitment struct {
	header
	secret string
}

func (a *ActiveCommitment) Status() Status { return StatusActive }

// MAC keys HMAC-SHA256 with the secret. It implements game.Keyer.
func (a *ActiveCommitment) MAC(message []byte) []byte {
	return game.HMAC([]byte(a.secret), message)
}

func (a *ActiveCommitment) View(sequenceCounter uint64) CommitmentView {
	return CommitmentView{
		ID:              a.id,
		Namespace:       a.namespace,
		PublicHash:      a.publicHash,
		SequenceCounter: sequenceCounter,
		Status:          StatusActive,
		CreatedAt:       a.createdAt,
	}
}

// RetiredCommitment is a rotated-out commitment whose secret is public.
type RetiredCommitment struct {
	header
	secret    string
	retiredAt time.Time
}

func (r *RetiredCommitment) Status() Status       { return StatusRetired }
func (r *RetiredCommitment) Secret() string       { return r.secret }
func (r *RetiredCommitment) RetiredAt() time.Time { return r.retiredAt }

func (r *RetiredCommitment) View(sequenceCounter uint64) CommitmentView {
	retiredAt := r.retiredAt
	return CommitmentView{
		ID:              r.id,
		Namespace:       r.namespace,
		PublicHash:      r.publicHash,
		SequenceCounter: sequenceCounter,
		Status:          StatusRetired,
		CreatedAt:       r.createdAt,
		RetiredAt:       &retiredAt,
	}
}

// Reveal returns the public reveal record.
func (r *RetiredCommitment) Reveal(sequenceCounter uint64) RevealedCommitment {
	return RevealedCommitment{
		CommitmentView: r.View(sequenceCounter),
		SecretSeed:     r.secret,
	}
}

// CommitmentView is the secret-free projection handed to callers.
type CommitmentView struct {
	ID              string     `json:"id"`
	Namespace       string     `json:"namespace"`
	PublicHash      string     `json:"publicHash"`
	SequenceCounter uint64     `json:"sequenceCounter,omitempty"`
	Status          Status     `json:"status"`
	CreatedAt       time.Time  `json:"createdAt"`
	RetiredAt       *time.Time `json:"retiredAt,omitempty"`
}

// RevealedCommitment is a retired commitment together with its secret.
type RevealedCommitment struct {
	CommitmentView
	SecretSeed string `json:"secretSeed"`
}

// CommitmentRow is the persisted form of a commitment. Repositories store and
// return it; the Store converts it into a Commitment before anything leaves.
type CommitmentRow struct {
	ID              string
	Namespace       string
	SecretSeed      string
	PublicHash      string
	SequenceCounter uint64
	Status          Status
	CreatedAt       time.Time
	RetiredAt       *time.Time
}

// Commitment converts a row into its variant.
func (row CommitmentRow) Commitment() Commitment {
	h := header{
		id:         row.ID,
		namespace:  row.Namespace,
		publicHash: row.PublicHash,
		createdAt:  row.CreatedAt,
	}
	if row.Status == StatusRetired {
		var retiredAt time.Time
		if row.RetiredAt != nil {
			retiredAt = *row.RetiredAt
		}
		return &RetiredCommitment{header: h, secret: row.SecretSeed, retiredAt: retiredAt}
	}
	return &ActiveCommitment{header: h, secret: row.SecretSeed}
}

// ==============================================================================
// ROUND RECORDS
// ==============================================================================

// RoundRecord is one played round. It is written once and never updated.
type RoundRecord struct {
	Namespace      string        `json:"namespace"`
	CommitmentID   string        `json:"commitmentId"`
	PublicHash     string        `json:"publicHash"`
	SequenceNumber uint64        `json:"sequenceNumber"`
	ClientSeed     string        `json:"clientSeed"`
	GameType       game.GameType `json:"gameType"`
	Params         game.Params   `json:"params"`
	RawDigest      string        `json:"rawDigest"`
	Result         game.Result   `json:"result"`
	Signature      string        `json:"signature,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
}

// signedRound is what the operator signs: every field of a RoundRecord
// except CreatedAt (stores truncate timestamps differently) and Signature.
type signedRound struct {
	Version        string        `json:"v"`
	Namespace      string        `json:"namespace"`
	CommitmentID   string        `json:"commitmentId"`
	PublicHash     string        `json:"publicHash"`
	SequenceNumber uint64        `json:"sequenceNumber"`
	ClientSeed     string        `json:"clientSeed"`
	GameType       game.GameType `json:"gameType"`
	Params         game.Params   `json:"params"`
	RawDigest      string        `json:"rawDigest"`
	Result         game.Result   `json:"result"`
}

// SigningPayload is the canonical byte string the operator signs for a
// round: the JSON encoding of its signed fields in a fixed order.
func (r RoundRecord) SigningPayload() []byte {
	payload, _ := json.Marshal(signedRound{
		Version:        "fairplay-round-v2",
		Namespace:      r.Namespace,
		CommitmentID:   r.CommitmentID,
		PublicHash:     r.PublicHash,
		SequenceNumber: r.SequenceNumber,
		ClientSeed:     r.ClientSeed,
		GameType:       r.GameType,
		Params:         r.Params,
		RawDigest:      r.RawDigest,
		Result:         r.Result,
	})
	return payload
}

// SameOutcome reports whether two records describe the same derivation.
// Used when a retried insert finds an existing row.
func (r RoundRecord) SameOutcome(other RoundRecord) bool {
	return r.CommitmentID == other.CommitmentID &&
		r.SequenceNumber == other.SequenceNumber &&
		r.ClientSeed == other.ClientSeed &&
		r.GameType == other.GameType &&
		r.Params == other.Params &&
		r.RawDigest == other.RawDigest &&
		r.Result.Equal(other.Result)
}
