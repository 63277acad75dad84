// Package server exposes the password validation engine and the tenant rule
// registry over HTTP.
package server

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/passval/internal/logger"
	"github.com/liamcoop/passval/rules"
	"github.com/liamcoop/passval/validator"
)

const defaultListLimit = 100

// Validator is the engine boundary consumed by the HTTP layer.
type Validator interface {
	Validate(ctx context.Context, userID, password string, rc validator.RequestContext) (*rules.ValidationResult, error)
}

// Server routes password validation and rule management requests.
type Server struct {
	registry rules.Registry
	engine   Validator
	db       *sql.DB // nil when the registry is not database-backed
	router   *chi.Mux
}

// New creates the HTTP server around the given registry and engine. db is
// only used for the health check and may be nil.
func New(registry rules.Registry, engine Validator, db *sql.DB) *Server {
	s := &Server{
		registry: registry,
		engine:   engine,
		db:       db,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/password/validate", s.handleValidatePassword)

	r.Route("/tenant/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Put("/", s.handleUpdateRule)
		r.Get("/{ruleId}", s.handleGetRule)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleValidatePassword runs the validation engine for one password. Engine
// errors map to a generic 500; the cause goes to the logs only.
func (s *Server) handleValidatePassword(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var req struct {
		Password string `json:"password"`
		UserID   string `json:"userId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Password == "" {
		respondError(w, http.StatusBadRequest, "password is required", nil)
		return
	}
	if req.UserID == "" {
		respondError(w, http.StatusBadRequest, "userId is required", nil)
		return
	}

	rc := validator.RequestContext{
		TenantID:   tenantID,
		Token:      r.Header.Get(validator.HeaderToken),
		ServiceURL: r.Header.Get(validator.HeaderServiceURL),
	}

	start := time.Now()
	result, err := s.engine.Validate(r.Context(), req.UserID, req.Password, rc)
	validationDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		validationErrorsTotal.Inc()
		logger.Error("failed to validate password",
			"tenant", tenantID, "userId", req.UserID, "error", err)
		respondError(w, http.StatusInternalServerError, "Internal Server Error", nil)
		return
	}

	validationsTotal.WithLabelValues(result.Result).Inc()
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	limit := queryInt(r, "limit", defaultListLimit)
	offset := queryInt(r, "offset", 0)
	state := rules.State(r.URL.Query().Get("state"))
	switch state {
	case "", rules.StateEnabled, rules.StateDisabled:
	default:
		respondError(w, http.StatusBadRequest, "unknown state filter", nil)
		return
	}

	collection, err := s.registry.TenantRules(r.Context(), tenantID, limit, offset, state)
	if err != nil {
		logger.Error("failed to list tenant rules", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get tenant rules", nil)
		return
	}
	respondJSON(w, http.StatusOK, collection)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := rule.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := s.registry.Create(r.Context(), tenantID, &rule); err != nil {
		logger.Error("failed to create rule", "tenant", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to create new rule", nil)
		return
	}
	respondJSON(w, http.StatusCreated, &rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}

	var rule rules.Rule
	if err := json.NewDecoder(r.Body).Decode(&rule); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if rule.ID == "" {
		respondError(w, http.StatusBadRequest, "ruleId is required", nil)
		return
	}
	if err := rule.Validate(); err != nil {
		respondError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	err := s.registry.Update(r.Context(), tenantID, &rule)
	if errors.Is(err, rules.ErrRuleNotFound) {
		respondError(w, http.StatusNotFound, "rule "+rule.ID+" does not exist", nil)
		return
	}
	if err != nil {
		logger.Error("failed to update rule", "tenant", tenantID, "ruleId", rule.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to update rule", nil)
		return
	}
	respondJSON(w, http.StatusOK, &rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := s.tenant(w, r)
	if !ok {
		return
	}
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.registry.Rule(r.Context(), tenantID, ruleID)
	if errors.Is(err, rules.ErrRuleNotFound) {
		respondError(w, http.StatusNotFound, "rule "+ruleID+" does not exist", nil)
		return
	}
	if err != nil {
		logger.Error("failed to get rule", "tenant", tenantID, "ruleId", ruleID, "error", err)
		respondError(w, http.StatusInternalServerError, "failed to get rule", nil)
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// tenant extracts the tenant header, answering 400 when it is missing.
func (s *Server) tenant(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenantID := r.Header.Get(validator.HeaderTenant)
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, validator.HeaderTenant+" header is required", nil)
		return "", false
	}
	return tenantID, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	val, err := strconv.Atoi(raw)
	if err != nil || val < 0 {
		return fallback
	}
	return val
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{
		"error": message,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}
