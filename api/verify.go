package api

import (
	"net/http"

	"fairplay/game"
	"fairplay/state"
)

/* =========================
   VERIFICATION ENDPOINT
========================= */

// VerifyRequest carries a round and the secret a player wants checked
type VerifyRequest struct {
	Round      state.RoundRecord `json:"round"`
	SecretSeed string            `json:"secretSeed" validate:"required"`
}

// GamesResponse is the public economy offline verifiers need
type GamesResponse struct {
	Success bool        `json:"success"`
	Games   game.Config `json:"games"`
}

// HandleVerify handles POST /api/verify
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	sendJSON(w, r, http.StatusOK, VerifyResponse{Success: true, Report: s.verifier.Verify(req.Round, req.SecretSeed)})
}

// HandleGames handles GET /api/games
func (s *Server) HandleGames(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, r, http.StatusOK, GamesResponse{Success: true, Games: s.sessions.Engine().Config()})
}

/* =========================
   HEALTH CHECK ENDPOINT
========================= */

// HandleHealthCheck handles health check requests
// GET /api/health
func (s *Server) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	response := map[string]any{
		"success": true,
		"message": "Health check completed",
	}
	for name, checker := range s.checks {
		status := "ok"
		if checker == nil {
			status = "disabled"
		} else if err := checker.HealthCheck(ctx); err != nil {
			status = "error: " + err.Error()
		}
		response[name] = status
	}

	sendJSON(w, r, http.StatusOK, response)
}
