package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"fairplay/config"
	"fairplay/errs"
	"fairplay/session"
	"fairplay/verify"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
)

/* =========================
   SERVER
========================= */

// HealthChecker is implemented by db.Postgres and db.Redis.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server holds the HTTP handlers.
type Server struct {
	sessions  *session.Service
	verifier  *verify.Service
	checks    map[string]HealthChecker
	validator *validator.Validate
}

// NewServer creates the API. checks maps a dependency name to its checker;
// a nil checker is reported as disabled.
func NewServer(sessions *session.Service, verifier *verify.Service, checks map[string]HealthChecker) *Server {
	return &Server{
		sessions:  sessions,
		verifier:  verifier,
		checks:    checks,
		validator: validator.New(),
	}
}

// NewRouter returns a router with the shared middleware and CORS policy.
func NewRouter(origins []string) *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization", "X-Requested-With"},
	}).Handler)
	return router
}

// Routes registers every endpoint on router.
func (s *Server) Routes(router chi.Router) {
	router.Route("/api", func(r chi.Router) {
		r.Post("/rounds", s.HandlePlayRound)
		r.Get("/rounds", s.HandleListRounds)
		r.Get("/rounds/{commitmentId}/{sequence}", s.HandleGetRound)
		r.Get("/rounds/{commitmentId}/{sequence}/verify", s.HandleVerifyStored)

		r.Get("/commitments/{namespace}", s.HandleCurrentCommitment)
		r.Get("/commitments/{namespace}/revealed", s.HandleRevealed)
		r.Post("/commitments/{namespace}/rotate", s.HandleRotate)

		r.Post("/verify", s.HandleVerify)
		r.Get("/games", s.HandleGames)
		r.Get("/health", s.HandleHealthCheck)
	})
}

/* =========================
   RESPONSES
========================= */

// ErrorResponse represents an error response
type ErrorResponse struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Code    errs.Code `json:"code,omitempty"`
}

func sendJSON(w http.ResponseWriter, r *http.Request, statusCode int, body any) {
	render.Status(r, statusCode)
	render.JSON(w, r, body)
}

func sendError(w http.ResponseWriter, r *http.Request, statusCode int, message string) {
	sendJSON(w, r, statusCode, ErrorResponse{Success: false, Error: message})
}

// sendFailure replies with the status and code carried by err.
func sendFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := errs.HTTPStatus(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		log.Printf("❌ [%s] Request failed: %v", middleware.GetReqID(r.Context()), err)
		message = "Internal server error"
	}
	sendJSON(w, r, status, ErrorResponse{Success: false, Error: message, Code: errs.CodeOf(err)})
}

// decodeBody decodes and validates a JSON body, replying on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, config.MaxRequestBody)
	if err := render.DecodeJSON(r.Body, target); err != nil {
		sendError(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if err := s.validator.Struct(target); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			sendError(w, r, http.StatusBadRequest, validationMessage(invalid))
			return false
		}
		sendError(w, r, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func validationMessage(invalid validator.ValidationErrors) string {
	msgs := make([]string, 0, len(invalid))
	for _, fe := range invalid {
		switch fe.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is required", fe.Field()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s long", fe.Field(), fe.Param()))
		case "gte":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s", fe.Field(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is invalid", fe.Field()))
		}
	}
	return strings.Join(msgs, ", ")
}

// limitParam reads ?limit=, defaulting and capping it.
func limitParam(r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return config.DefaultRevealedLimit, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, false
	}
	if limit > config.MaxRevealedLimit {
		limit = config.MaxRevealedLimit
	}
	return limit, true
}
