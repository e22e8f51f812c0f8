package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const (
	maxBodyBytes  = 1 << 20
	healthTimeout = 2 * time.Second
)

// Options configure a Server.
type Options struct {
	Logger *slog.Logger
	// AllowedOrigins enables CORS for the listed origins.
	AllowedOrigins []string
	// Now and NewID default to time.Now and uuid.New.
	Now   func() time.Time
	NewID func() uuid.UUID
}

// Server accepts jots over HTTP and stores them in a Repository.
type Server struct {
	repo     Repository
	validate *validator.Validate
	logger   *slog.Logger
	origins  []string
	now      func() time.Time
	newID    func() uuid.UUID
}

// NewServer builds a Server backed by repo.
func NewServer(repo Repository, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = uuid.New
	}
	return &Server{
		repo:     repo,
		validate: validator.New(),
		logger:   opts.Logger,
		origins:  opts.AllowedOrigins,
		now:      opts.Now,
		newID:    opts.NewID,
	}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	if len(s.origins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.origins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type"},
		}))
	}

	r.Get("/hello", s.handleHello)
	r.Get("/health", s.handleHealth)
	r.Post("/jot", s.handleJot)
	r.Get("/jots", s.handleListJots)
	return r
}

// errorResponse is the structured error body clients parse.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		http.Error(w, `{"error":"server_error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, errorResponse{Error: code, Description: description})
}

func (s *Server) handleHello(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Hello, world!")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.repo.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":    "error",
			"database":  "disconnected",
			"timestamp": s.now().UTC(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"database":  "connected",
		"timestamp": s.now().UTC(),
	})
}

func (s *Server) handleJot(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "request body too large or unreadable")
		return
	}

	kind, err := s.validateJot(raw)
	if err != nil {
		var invalid *invalidJotError
		if errors.As(err, &invalid) {
			writeError(w, http.StatusUnprocessableEntity, "invalid_jot", invalid.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "body is not valid JSON")
		return
	}
	jot := Jot{
		ID:         s.newID(),
		Type:       kind,
		Body:       compact.Bytes(),
		ReceivedAt: s.now().UTC(),
	}
	if err := s.repo.Save(r.Context(), jot); err != nil {
		s.logger.Error("failed to store jot", "type", kind, "error", err, "request_id", middleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	s.logger.Info("jot received", "id", jot.ID, "type", kind, "bytes", len(jot.Body))
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "Jot received!")
}

func (s *Server) handleListJots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultListLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	jots, err := s.repo.List(r.Context(), strings.TrimSpace(q.Get("type")), limit)
	if err != nil {
		s.logger.Error("failed to list jots", "error", err)
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	if jots == nil {
		jots = []Jot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jots": jots})
}
