package errs

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsMatchesByCode(t *testing.T) {
	err := New(CodeHashMismatch, "commitment %s", "c1")
	if !errors.Is(err, ErrHashMismatch) {
		t.Fatalf("expected errors.Is to match on code")
	}
	if errors.Is(err, ErrResultMismatch) {
		t.Fatalf("different codes must not match")
	}

	wrapped := fmt.Errorf("verify round: %w", err)
	if !errors.Is(wrapped, ErrHashMismatch) {
		t.Fatalf("expected match through fmt.Errorf wrapping")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unknown game", ErrUnknownGameType, KindConfiguration},
		{"all zero", New(CodeAllZeroWeights, "crate"), KindConfiguration},
		{"activation", ErrActivationConflict, KindConcurrency},
		{"result mismatch", ErrResultMismatch, KindIntegrity},
		{"not revealed", ErrSecretNotYetRevealed, KindNotRevealed},
		{"plain error", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := HTTPStatus(ErrInvalidParams); got != http.StatusBadRequest {
		t.Errorf("invalid params status = %d", got)
	}
	if got := HTTPStatus(ErrSequenceConflict); got != http.StatusConflict {
		t.Errorf("sequence conflict status = %d", got)
	}
	if got := HTTPStatus(ErrSecretNotYetRevealed); got != http.StatusTooEarly {
		t.Errorf("not revealed status = %d", got)
	}
	if got := HTTPStatus(errors.New("db down")); got != http.StatusInternalServerError {
		t.Errorf("uncoded status = %d", got)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(Wrap(CodeStaleCommitment, errors.New("rotated"), "consume")) {
		t.Errorf("stale commitment should be retryable")
	}
	if IsRetryable(ErrHashMismatch) {
		t.Errorf("integrity errors are never retryable")
	}
}
