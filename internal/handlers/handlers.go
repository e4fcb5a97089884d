// Package handlers provides the HTTP surface of the login service.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browser-login-go/internal/config"
	"github.com/Rorqualx/browser-login-go/internal/security"
	"github.com/Rorqualx/browser-login-go/internal/types"
	"github.com/Rorqualx/browser-login-go/pkg/version"
)

// maxRequestBodySize caps request bodies at 1MB.
const maxRequestBodySize = 1024 * 1024

// LoginService performs a full portal login attempt.
// *login.Service satisfies it.
type LoginService interface {
	Login(ctx context.Context, req types.LoginRequest) *types.LoginResult
}

// Handler handles the service's API requests.
type Handler struct {
	service LoginService
	config  *config.Config
}

// New creates a new Handler.
func New(service LoginService, cfg *config.Config) *Handler {
	return &Handler{
		service: service,
		config:  cfg,
	}
}

// Routes returns the service's route table.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/login", h.HandleLogin)
	mux.HandleFunc("/health", h.HandleHealth)
	return mux
}

// HandleLogin processes a login request. Credential rejections and
// infrastructure failures both answer 401 with success=false; the
// outcome field tells them apart.
func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeErrorResponse(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	req, err := h.decodeRequest(w, r)
	if err != nil {
		log.Warn().Err(err).Msg("Rejected malformed login request")
		writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	result := h.service.Login(r.Context(), *req)
	if result == nil {
		// The orchestrator contract says never nil; answer 500 if it lies.
		log.Error().Msg("Login service returned nil result")
		writeErrorResponse(w, http.StatusInternalServerError, "internal error")
		return
	}

	status := http.StatusOK
	if !result.Succeeded() {
		status = http.StatusUnauthorized
	}

	log.Debug().
		Str("username", security.MaskUsername(req.Username)).
		Str("outcome", result.Outcome.String()).
		Int("status", status).
		Msg("Login request completed")

	writeJSONResponse(w, status, result.ToResponse())
}

// decodeRequest reads, parses and validates the login request body.
func (h *Handler) decodeRequest(w http.ResponseWriter, r *http.Request) (*types.LoginRequest, error) {
	buf := getRequestBuffer()
	defer putRequestBuffer(buf)

	limited := http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if _, err := io.Copy(buf, limited); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, errors.New("request body too large")
		}
		return nil, errors.New("failed to read request body")
	}

	var req types.LoginRequest
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		return nil, errors.New("invalid JSON in request body")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// HandleHealth responds to health checks. It reports healthy whenever
// the process is serving; browser liveness is the orchestrator's
// problem, not the probe's.
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, types.HealthResponse{
		Status:  "healthy",
		Version: version.Version,
	})
}

// writeJSONResponse encodes v into a pooled buffer before touching the
// ResponseWriter, so encode errors never produce a torn response.
func writeJSONResponse(w http.ResponseWriter, status int, v interface{}) {
	buf := getResponseBuffer()
	defer putResponseBuffer(buf)

	if err := json.NewEncoder(buf).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		http.Error(w, `{"success":false,"message":"internal error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// writeErrorResponse writes a JSON error with the given status.
func writeErrorResponse(w http.ResponseWriter, status int, message string) {
	writeJSONResponse(w, status, types.LoginResponse{
		Success: false,
		Message: message,
		Outcome: types.OutcomeInfrastructureError.String(),
	})
}
