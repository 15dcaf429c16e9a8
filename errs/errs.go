// Package errs defines the engine's error taxonomy.
//
// Every failure that crosses a package boundary carries a Code. Codes group
// into Kinds, and callers decide recovery by Kind: configuration errors are
// fatal, concurrency conflicts are retried by the caller, integrity errors
// are surfaced to operators, and unrevealed secrets mean "wait for rotation".
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind groups codes by how a caller is expected to react.
type Kind string

const (
	KindConfiguration Kind = "CONFIGURATION_ERROR"
	KindConcurrency   Kind = "CONCURRENCY_CONFLICT"
	KindIntegrity     Kind = "INTEGRITY_ERROR"
	KindNotRevealed   Kind = "SECRET_NOT_YET_REVEALED"
	KindNotFound      Kind = "NOT_FOUND"
	KindInternal      Kind = "INTERNAL"
)

// Code is a machine-readable error code.
type Code string

const (
	// Configuration
	CodeUnknownGameType Code = "UNKNOWN_GAME_TYPE"
	CodeInvalidParams   Code = "INVALID_PARAMS"
	CodeEmptyTable      Code = "EMPTY_TABLE"
	CodeAllZeroWeights  Code = "ALL_ZERO_WEIGHTS"
	CodeInvalidWeight   Code = "INVALID_WEIGHT"

	// Concurrency
	CodeActivationConflict Code = "ACTIVATION_CONFLICT"
	CodeSequenceConflict   Code = "SEQUENCE_CONFLICT"
	CodeStaleCommitment    Code = "STALE_COMMITMENT"

	// Integrity
	CodeHashMismatch      Code = "HASH_MISMATCH"
	CodeResultMismatch    Code = "RESULT_MISMATCH"
	CodeSignatureMismatch Code = "SIGNATURE_MISMATCH"

	CodeSecretNotYetRevealed Code = "SECRET_NOT_YET_REVEALED"
	CodeNotFound             Code = "NOT_FOUND"
	CodeInternal             Code = "INTERNAL"
)

var kinds = map[Code]Kind{
	CodeUnknownGameType:      KindConfiguration,
	CodeInvalidParams:        KindConfiguration,
	CodeEmptyTable:           KindConfiguration,
	CodeAllZeroWeights:       KindConfiguration,
	CodeInvalidWeight:        KindConfiguration,
	CodeActivationConflict:   KindConcurrency,
	CodeSequenceConflict:     KindConcurrency,
	CodeStaleCommitment:      KindConcurrency,
	CodeHashMismatch:         KindIntegrity,
	CodeResultMismatch:       KindIntegrity,
	CodeSignatureMismatch:    KindIntegrity,
	CodeSecretNotYetRevealed: KindNotRevealed,
	CodeNotFound:             KindNotFound,
	CodeInternal:             KindInternal,
}

// Kind returns the kind a code belongs to.
func (c Code) Kind() Kind {
	if k, ok := kinds[c]; ok {
		return k
	}
	return KindInternal
}

// Error is a coded domain error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error with the same code, so sentinel comparisons work
// regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Kind returns the error's kind.
func (e *Error) Kind() Kind { return e.Code.Kind() }

// New creates a coded error with a formatted message.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code to an underlying error.
func Wrap(code Code, err error, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Err: err}
}

// Sentinels for errors.Is checks.
var (
	ErrUnknownGameType      = &Error{Code: CodeUnknownGameType, Message: "unknown game type"}
	ErrInvalidParams        = &Error{Code: CodeInvalidParams, Message: "invalid params"}
	ErrEmptyTable           = &Error{Code: CodeEmptyTable, Message: "outcome table is empty"}
	ErrAllZeroWeights       = &Error{Code: CodeAllZeroWeights, Message: "all outcome weights are zero"}
	ErrInvalidWeight        = &Error{Code: CodeInvalidWeight, Message: "invalid outcome weight"}
	ErrActivationConflict   = &Error{Code: CodeActivationConflict, Message: "activation already in flight"}
	ErrSequenceConflict     = &Error{Code: CodeSequenceConflict, Message: "sequence conflict"}
	ErrStaleCommitment      = &Error{Code: CodeStaleCommitment, Message: "commitment is no longer active"}
	ErrHashMismatch         = &Error{Code: CodeHashMismatch, Message: "secret does not match published hash"}
	ErrResultMismatch       = &Error{Code: CodeResultMismatch, Message: "recomputed result differs from stored result"}
	ErrSignatureMismatch    = &Error{Code: CodeSignatureMismatch, Message: "receipt signature does not match signer"}
	ErrSecretNotYetRevealed = &Error{Code: CodeSecretNotYetRevealed, Message: "secret not yet revealed"}
	ErrNotFound             = &Error{Code: CodeNotFound, Message: "not found"}
)

// CodeOf extracts the code from err, or CodeInternal when err is uncoded.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// KindOf extracts the kind from err.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// IsRetryable reports whether the caller should retry the whole round.
func IsRetryable(err error) bool {
	return KindOf(err) == KindConcurrency
}

// HTTPStatus maps an error to the status code the API replies with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindConfiguration:
		return http.StatusBadRequest
	case KindConcurrency:
		return http.StatusConflict
	case KindIntegrity:
		return http.StatusUnprocessableEntity
	case KindNotRevealed:
		return http.StatusTooEarly
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
