package api

import (
	"log"
	"net/http"

	"fairplay/state"

	"github.com/go-chi/chi/v5"
)

// CommitmentResponse wraps the public view of a commitment
type CommitmentResponse struct {
	Success    bool                 `json:"success"`
	Commitment state.CommitmentView `json:"commitment"`
}

// RevealedResponse lists retired commitments with their secrets
type RevealedResponse struct {
	Success  bool                       `json:"success"`
	Revealed []state.RevealedCommitment `json:"revealed"`
}

// RotateResponse reports an operator rotation
type RotateResponse struct {
	Success bool                      `json:"success"`
	Active  state.CommitmentView      `json:"active"`
	Retired *state.RevealedCommitment `json:"retired,omitempty"`
}

// HandleCurrentCommitment handles GET /api/commitments/{namespace}
func (s *Server) HandleCurrentCommitment(w http.ResponseWriter, r *http.Request) {
	view, err := s.sessions.CurrentPublicHash(r.Context(), chi.URLParam(r, "namespace"))
	if err != nil {
		sendFailure(w, r, err)
		return
	}

	sendJSON(w, r, http.StatusOK, CommitmentResponse{Success: true, Commitment: view})
}

// HandleRevealed handles GET /api/commitments/{namespace}/revealed
// Query params: limit (optional)
func (s *Server) HandleRevealed(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r)
	if !ok {
		sendError(w, r, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	revealed, err := s.sessions.RevealedSecrets(r.Context(), chi.URLParam(r, "namespace"), limit)
	if err != nil {
		sendFailure(w, r, err)
		return
	}
	if revealed == nil {
		revealed = []state.RevealedCommitment{}
	}

	sendJSON(w, r, http.StatusOK, RevealedResponse{Success: true, Revealed: revealed})
}

// HandleRotate handles POST /api/commitments/{namespace}/rotate
func (s *Server) HandleRotate(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")

	act, err := s.sessions.Rotate(r.Context(), namespace)
	if err != nil {
		sendFailure(w, r, err)
		return
	}

	log.Printf("🔄 [%s] Operator rotation, now committed to %s", namespace, act.Active.PublicHash)
	sendJSON(w, r, http.StatusOK, RotateResponse{Success: true, Active: act.Active, Retired: act.Retired})
}
