// Package server exposes the thin HTTP surface around the ingestion and
// alert-configuration pipeline. Authentication happens upstream; handlers
// trust the identity headers as opaque, pre-validated values.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Toltar/energy-monitoring-app/pkg/dateinput"
	"github.com/Toltar/energy-monitoring-app/pkg/ingest"
	"github.com/Toltar/energy-monitoring-app/pkg/model"
	"github.com/Toltar/energy-monitoring-app/pkg/storage"
)

// Identity headers populated by the upstream authenticator.
const (
	headerUserID = "X-User-Id"
	headerEmail  = "X-User-Email"
)

// Server provides the usage and alert-configuration API endpoints.
type Server struct {
	single     *ingest.SingleIngestor
	usage      storage.UsageStore
	thresholds storage.ThresholdStore
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates an API server.
func NewServer(single *ingest.SingleIngestor, usage storage.UsageStore, thresholds storage.ThresholdStore, logger *slog.Logger) *Server {
	s := &Server{
		single:     single,
		usage:      usage,
		thresholds: thresholds,
		mux:        http.NewServeMux(),
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("POST /api/v1/usage", s.handleSubmitReading)
	s.mux.HandleFunc("GET /api/v1/usage", s.handleHistory)
	s.mux.HandleFunc("PUT /api/v1/alerts", s.handleSetAlert)
}

// Handler returns the HTTP handler for this server.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		w.Header().Set("X-Request-Id", requestID)
		s.logger.Info("request",
			"requestId", requestID,
			"method", r.Method,
			"path", r.URL.Path,
		)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSubmitReading(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := r.Header.Get(headerUserID)

	var in *ingest.ReadingInput
	if r.Body != nil && r.ContentLength != 0 {
		in = &ingest.ReadingInput{}
		if err := json.NewDecoder(r.Body).Decode(in); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid input data")
			return
		}
	}

	if _, err := s.single.Ingest(ctx, userID, in); err != nil {
		var vErr *ingest.ValidationError
		switch {
		case errors.Is(err, ingest.ErrUnauthenticated):
			writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		case errors.As(err, &vErr):
			writeMessage(w, http.StatusBadRequest, vErr.Reason)
		default:
			s.logger.Error("store usage reading", "userId", userID, "error", err)
			writeMessage(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	writeMessage(w, http.StatusOK, "Energy data saved successfully")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := r.Header.Get(headerUserID)
	if userID == "" {
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	from, ok := parseDateParam(w, r, "from")
	if !ok {
		return
	}
	to, ok := parseDateParam(w, r, "to")
	if !ok {
		return
	}

	records, err := s.usage.QueryUsage(ctx, userID, from, to)
	if err != nil {
		s.logger.Error("query usage history", "userId", userID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if records == nil {
		records = []model.UsageRecord{}
	}

	writeJSON(w, http.StatusOK, records)
}

type thresholdInput struct {
	Threshold *float64 `json:"threshold"`
}

func (s *Server) handleSetAlert(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	userID := r.Header.Get(headerUserID)
	if userID == "" {
		s.logger.Warn("unauthorized alert config request: missing user id")
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	email := r.Header.Get(headerEmail)
	if !model.IsValidEmail(email) {
		s.logger.Warn("unauthorized alert config request: invalid email", "userId", userID)
		writeMessage(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	if r.Body == nil || r.ContentLength == 0 {
		writeMessage(w, http.StatusBadRequest, "No request body given")
		return
	}

	var in thresholdInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Threshold == nil {
		writeMessage(w, http.StatusBadRequest, "Bad request body")
		return
	}
	if *in.Threshold <= 0 {
		writeMessage(w, http.StatusBadRequest, "Valid threshold is greater than zero")
		return
	}

	cfg := &model.ThresholdAlertConfig{
		UserID:    userID,
		Email:     email,
		Threshold: *in.Threshold,
	}
	if err := s.thresholds.SetThreshold(ctx, cfg); err != nil {
		s.logger.Error("set threshold config", "userId", userID, "error", err)
		writeMessage(w, http.StatusInternalServerError, "Error setting threshold")
		return
	}

	s.logger.Info("threshold alert configured",
		"userId", userID,
		"threshold", cfg.Threshold,
		"email", model.RedactEmail(email),
	)
	writeMessage(w, http.StatusOK, "Threshold alert created successfully")
}

// parseDateParam reads an optional YYYY-MM-DD query parameter. A missing
// parameter leaves the bound open.
func parseDateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	token := r.URL.Query().Get(name)
	if token == "" {
		return time.Time{}, true
	}
	t, err := dateinput.ToCanonicalDate(token)
	if err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid "+name+" date")
		return time.Time{}, false
	}
	return t, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
