package api

import (
	"net/http"
	"strconv"

	"fairplay/config"
	"fairplay/session"
	"fairplay/state"
	"fairplay/verify"

	"github.com/go-chi/chi/v5"
)

/* =========================
   RESPONSE TYPES
========================= */

// RoundResponse wraps a played round
type RoundResponse struct {
	Success bool            `json:"success"`
	Round   session.Receipt `json:"round"`
}

// RoundRecordResponse wraps a stored round
type RoundRecordResponse struct {
	Success bool              `json:"success"`
	Round   state.RoundRecord `json:"round"`
}

// RoundsResponse lists recent rounds of a namespace
type RoundsResponse struct {
	Success bool                `json:"success"`
	Rounds  []state.RoundRecord `json:"rounds"`
}

// VerifyResponse wraps an audit report
type VerifyResponse struct {
	Success bool          `json:"success"`
	Report  verify.Report `json:"report"`
}

/* =========================
   HTTP ENDPOINTS
========================= */

// HandlePlayRound handles POST /api/rounds
func (s *Server) HandlePlayRound(w http.ResponseWriter, r *http.Request) {
	var req session.Request
	if !s.decodeBody(w, r, &req) {
		return
	}

	receipt, err := s.sessions.PlayRound(r.Context(), req)
	if err != nil {
		sendFailure(w, r, err)
		return
	}

	sendJSON(w, r, http.StatusOK, RoundResponse{Success: true, Round: receipt})
}

// HandleListRounds handles GET /api/rounds
// Query params: namespace (optional), limit (optional)
func (s *Server) HandleListRounds(w http.ResponseWriter, r *http.Request) {
	namespace := r.URL.Query().Get("namespace")
	if namespace == "" {
		namespace = config.DefaultNamespace
	}
	limit, ok := limitParam(r)
	if !ok {
		sendError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	rounds, err := s.sessions.Rounds(r.Context(), namespace, limit)
	if err != nil {
		sendFailure(w, r, err)
		return
	}
	if rounds == nil {
		rounds = []state.RoundRecord{}
	}

	sendJSON(w, r, http.StatusOK, RoundsResponse{Success: true, Rounds: rounds})
}

// HandleGetRound handles GET /api/rounds/{commitmentId}/{sequence}
func (s *Server) HandleGetRound(w http.ResponseWriter, r *http.Request) {
	commitmentID, sequence, ok := roundKey(w, r)
	if !ok {
		return
	}

	record, err := s.sessions.Round(r.Context(), commitmentID, sequence)
	if err != nil {
		sendFailure(w, r, err)
		return
	}

	sendJSON(w, r, http.StatusOK, RoundRecordResponse{Success: true, Round: record})
}

// HandleVerifyStored handles GET /api/rounds/{commitmentId}/{sequence}/verify
func (s *Server) HandleVerifyStored(w http.ResponseWriter, r *http.Request) {
	commitmentID, sequence, ok := roundKey(w, r)
	if !ok {
		return
	}

	report, err := s.verifier.VerifyStored(r.Context(), commitmentID, sequence)
	if err != nil {
		sendFailure(w, r, err)
		return
	}

	sendJSON(w, r, http.StatusOK, VerifyResponse{Success: true, Report: report})
}

func roundKey(w http.ResponseWriter, r *http.Request) (string, uint64, bool) {
	commitmentID := chi.URLParam(r, "commitmentId")
	sequence, err := strconv.ParseUint(chi.URLParam(r, "sequence"), 10, 64)
	if commitmentID == "" || err != nil {
		sendError(w, r, http.StatusBadRequest, "Invalid round reference")
		return "", 0, false
	}
	return commitmentID, sequence, true
}
