package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"fairplay/crypto"
	"fairplay/db"
	"fairplay/errs"
	"fairplay/game"
	"fairplay/session"
	"fairplay/state"
	"fairplay/verify"

	"github.com/go-chi/chi/v5"
)

type stubChecker struct{ err error }

func (c stubChecker) HealthCheck(ctx context.Context) error { return c.err }

func newTestAPI(t *testing.T) http.Handler {
	t.Helper()

	engine, err := game.NewEngine(game.DefaultConfig())
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	signer, err := crypto.NewEphemeralSigner()
	if err != nil {
		t.Fatalf("NewEphemeralSigner failed: %v", err)
	}
	addr := signer.Address()

	namespaces := []string{"default", "crash", "plinko"}
	store := state.NewStore(db.NewMemory(), state.WithNamespaces(namespaces...))
	if err := store.Bootstrap(context.Background(), namespaces...); err != nil {
		t.Fatalf("Bootstrap failed: %v", err)
	}
	sessions := session.NewService(store, engine, session.Options{Signer: signer})
	verifier := verify.NewService(store, engine, &addr)

	srv := NewServer(sessions, verifier, map[string]HealthChecker{
		"postgres": stubChecker{},
		"redis":    nil,
	})
	router := NewRouter([]string{"*"})
	srv.Routes(router)
	return router
}

func do(t *testing.T, h http.Handler, method, path string, body any, out any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("decode %s %s response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestPlayRoundThenVerifyAfterRotation(t *testing.T) {
	h := newTestAPI(t)

	var played RoundResponse
	code := do(t, h, http.MethodPost, "/api/rounds", session.Request{
		GameType:   game.GamePlinko,
		Namespace:  "plinko",
		ClientSeed: "lucky",
		Params:     game.Params{Rows: 12, Risk: "high"},
	}, &played)
	if code != http.StatusOK || !played.Success {
		t.Fatalf("play round: status %d, %+v", code, played)
	}
	if played.Round.Result.Plinko == nil || played.Round.Result.Plinko.Rows != 12 {
		t.Fatalf("unexpected result %+v", played.Round.Result)
	}

	roundPath := fmt.Sprintf("/api/rounds/%s/%d", played.Round.CommitmentID, played.Round.SequenceNumber)

	var stored RoundRecordResponse
	if code := do(t, h, http.MethodGet, roundPath, nil, &stored); code != http.StatusOK {
		t.Fatalf("get round: status %d", code)
	}
	if stored.Round.RawDigest != played.Round.RawDigest {
		t.Errorf("stored digest %s, played %s", stored.Round.RawDigest, played.Round.RawDigest)
	}

	var early ErrorResponse
	if code := do(t, h, http.MethodGet, roundPath+"/verify", nil, &early); code != http.StatusTooEarly {
		t.Fatalf("expected 425 before reveal, got %d", code)
	}
	if early.Code != errs.CodeSecretNotYetRevealed {
		t.Errorf("expected %s, got %s", errs.CodeSecretNotYetRevealed, early.Code)
	}

	var rotated RotateResponse
	if code := do(t, h, http.MethodPost, "/api/commitments/plinko/rotate", nil, &rotated); code != http.StatusOK {
		t.Fatalf("rotate: status %d", code)
	}
	if rotated.Retired == nil || rotated.Retired.ID != played.Round.CommitmentID {
		t.Fatalf("rotation did not retire the played commitment: %+v", rotated)
	}

	var audit VerifyResponse
	if code := do(t, h, http.MethodGet, roundPath+"/verify", nil, &audit); code != http.StatusOK {
		t.Fatalf("verify stored: status %d", code)
	}
	if !audit.Report.Valid {
		t.Fatalf("stored round should verify: %+v", audit.Report)
	}

	// The same check offline, with the revealed secret.
	var offline VerifyResponse
	do(t, h, http.MethodPost, "/api/verify", VerifyRequest{Round: stored.Round, SecretSeed: rotated.Retired.SecretSeed}, &offline)
	if !offline.Report.Valid {
		t.Errorf("offline verify failed: %+v", offline.Report)
	}

	tampered := stored.Round
	tampered.ClientSeed = "unlucky"
	do(t, h, http.MethodPost, "/api/verify", VerifyRequest{Round: tampered, SecretSeed: rotated.Retired.SecretSeed}, &offline)
	if offline.Report.Valid || offline.Report.Code != errs.CodeResultMismatch {
		t.Errorf("tampered round should fail with %s: %+v", errs.CodeResultMismatch, offline.Report)
	}

	var revealed RevealedResponse
	do(t, h, http.MethodGet, "/api/commitments/plinko/revealed", nil, &revealed)
	if len(revealed.Revealed) != 1 || revealed.Revealed[0].SecretSeed != rotated.Retired.SecretSeed {
		t.Errorf("unexpected revealed list %+v", revealed.Revealed)
	}

	var rounds RoundsResponse
	do(t, h, http.MethodGet, "/api/rounds?namespace=plinko", nil, &rounds)
	if len(rounds.Rounds) != 1 {
		t.Errorf("expected 1 round, got %d", len(rounds.Rounds))
	}
}

func TestCurrentCommitmentIsStable(t *testing.T) {
	h := newTestAPI(t)

	var first, second CommitmentResponse
	do(t, h, http.MethodGet, "/api/commitments/crash", nil, &first)
	do(t, h, http.MethodGet, "/api/commitments/crash", nil, &second)

	if first.Commitment.PublicHash == "" || first.Commitment.PublicHash != second.Commitment.PublicHash {
		t.Fatalf("hash changed without rotation: %s vs %s", first.Commitment.PublicHash, second.Commitment.PublicHash)
	}
	if first.Commitment.Status != state.StatusActive {
		t.Errorf("expected active commitment, got %s", first.Commitment.Status)
	}
}

func TestErrorResponses(t *testing.T) {
	h := newTestAPI(t)

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   errs.Code
	}{
		{"unknown game", http.MethodPost, "/api/rounds", session.Request{GameType: "roulette"}, http.StatusBadRequest, errs.CodeUnknownGameType},
		{"bad plinko rows", http.MethodPost, "/api/rounds", session.Request{GameType: game.GamePlinko, Params: game.Params{Rows: 7, Risk: "low"}}, http.StatusBadRequest, errs.CodeInvalidParams},
		{"missing game type", http.MethodPost, "/api/rounds", session.Request{}, http.StatusBadRequest, ""},
		{"missing round", http.MethodGet, "/api/rounds/nope/0", nil, http.StatusNotFound, errs.CodeNotFound},
		{"bad sequence", http.MethodGet, "/api/rounds/nope/minus", nil, http.StatusBadRequest, ""},
		{"bad limit", http.MethodGet, "/api/commitments/crash/revealed?limit=-1", nil, http.StatusBadRequest, ""},
		{"missing secret", http.MethodPost, "/api/verify", VerifyRequest{}, http.StatusBadRequest, ""},
		{"unconfigured namespace", http.MethodGet, "/api/commitments/ghost", nil, http.StatusNotFound, errs.CodeNotFound},
		{"play unconfigured namespace", http.MethodPost, "/api/rounds", session.Request{GameType: game.GameCrash, Namespace: "ghost"}, http.StatusNotFound, errs.CodeNotFound},
		{"rotate unconfigured namespace", http.MethodPost, "/api/commitments/ghost/rotate", nil, http.StatusNotFound, errs.CodeNotFound},
		{"negative stake", http.MethodPost, "/api/rounds", session.Request{GameType: game.GameCrash, Stake: -1}, http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var resp ErrorResponse
			code := do(t, h, tt.method, tt.path, tt.body, &resp)
			if code != tt.status {
				t.Fatalf("expected status %d, got %d (%+v)", tt.status, code, resp)
			}
			if resp.Success || resp.Error == "" {
				t.Errorf("expected error body, got %+v", resp)
			}
			if resp.Code != tt.code {
				t.Errorf("expected code %q, got %q", tt.code, resp.Code)
			}
		})
	}
}

func TestGamesAndHealth(t *testing.T) {
	h := newTestAPI(t)

	var games GamesResponse
	if code := do(t, h, http.MethodGet, "/api/games", nil, &games); code != http.StatusOK {
		t.Fatalf("games: status %d", code)
	}
	if games.Games.Crash.HouseEdgeFactor != 0.99 || len(games.Games.Plinko["low"][8]) != 9 {
		t.Errorf("unexpected games config %+v", games.Games.Crash)
	}

	var health map[string]any
	do(t, h, http.MethodGet, "/api/health", nil, &health)
	if health["postgres"] != "ok" || health["redis"] != "disabled" {
		t.Errorf("unexpected health %v", health)
	}
}

func TestHealthReportsFailures(t *testing.T) {
	srv := NewServer(nil, nil, map[string]HealthChecker{"redis": stubChecker{err: errors.New("connection refused")}})
	router := chi.NewRouter()
	srv.Routes(router)

	var health map[string]any
	do(t, router, http.MethodGet, "/api/health", nil, &health)
	if health["redis"] != "error: connection refused" {
		t.Errorf("unexpected health %v", health)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newTestAPI(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/rounds", nil)
	req.Header.Set("Origin", "https://example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}
