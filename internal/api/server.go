// Package api implements the clinic intake HTTP API.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/skip2/go-qrcode"

	"github.com/halaclinic/intake/internal/agent"
	"github.com/halaclinic/intake/internal/buildinfo"
	"github.com/halaclinic/intake/internal/clinic"
	"github.com/halaclinic/intake/internal/llm"
	"github.com/halaclinic/intake/internal/memory"
	"github.com/halaclinic/intake/internal/tools"
	"github.com/halaclinic/intake/internal/web"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	writeJSON(w, map[string]string{"error": message}, logger)
}

// QueuePublisher pushes queue updates to the waiting-room board.
type QueuePublisher interface {
	PublishQueue(ctx context.Context, visits []clinic.Visit) error
}

// Server is the HTTP API server.
type Server struct {
	listen   string
	loop     *agent.Loop
	registry *tools.Registry
	clinic   *clinic.Store
	memory   *memory.Store
	model    llm.Client
	board    QueuePublisher
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates the API server.
func NewServer(listen string, loop *agent.Loop, registry *tools.Registry, clinicStore *clinic.Store, memoryStore *memory.Store, model llm.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listen:   listen,
		loop:     loop,
		registry: registry,
		clinic:   clinicStore,
		memory:   memoryStore,
		model:    model,
		logger:   logger.With("component", "api"),
	}
}

// SetQueueBoard configures the optional waiting-room board publisher.
func (s *Server) SetQueueBoard(board QueuePublisher) {
	s.board = board
}

// Handler builds the route table. Exposed separately from Start so
// tests can drive it with httptest.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)

	mux.HandleFunc("GET /", s.handleRoot)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/version", s.handleVersion)

	mux.HandleFunc("GET /v1/tools", s.handleTools)
	mux.HandleFunc("GET /v1/tools/calls", s.handleToolCalls)

	mux.HandleFunc("GET /v1/queue", s.handleQueue)
	mux.HandleFunc("GET /v1/queue/{id}/ticket.png", s.handleTicket)

	mux.HandleFunc("GET /v1/stats", s.handleStats)

	web.RegisterRoutes(mux)

	return s.withLogging(mux)
}

// Start begins serving HTTP requests and blocks until shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}

	s.logger.Info("starting API server", "listen", s.listen)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req agent.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", s.logger)
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required", s.logger)
		return
	}

	result, err := s.loop.Run(r.Context(), &req)
	if err != nil {
		s.logger.Error("chat turn failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", s.logger)
		return
	}

	if s.board != nil && slices.Contains(result.ToolsInvoked, "assign_queue") {
		s.publishQueue()
	}

	writeJSON(w, result, s.logger)
}

// publishQueue pushes the current queue to the board. Board trouble
// must never fail the patient-facing request.
func (s *Server) publishQueue() {
	visits, err := s.clinic.TodayQueue()
	if err != nil {
		s.logger.Error("loading queue for board failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.board.PublishQueue(ctx, visits); err != nil {
		s.logger.Error("publishing queue to board failed", "error", err)
	}
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]string{
		"name":    "intake",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	if _, err := s.clinic.CountPatients(); err != nil {
		checks["clinic_db"] = err.Error()
		status = "degraded"
	} else {
		checks["clinic_db"] = "ok"
	}

	if s.model != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.model.Ping(ctx); err != nil {
			checks["model"] = "unreachable"
			status = "degraded"
		} else {
			checks["model"] = "ok"
		}
	}

	if status != "healthy" {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	writeJSON(w, map[string]any{"status": status, "checks": checks}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"tools": s.registry.Declarations(),
	}, s.logger)
}

func (s *Server) handleToolCalls(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	var (
		calls []memory.ToolCall
		err   error
	)
	if tool := r.URL.Query().Get("tool"); tool != "" {
		calls, err = s.memory.GetToolCallsByName(tool, limit)
	} else {
		calls, err = s.memory.GetToolCalls(r.URL.Query().Get("conversation_id"), limit)
	}
	if err != nil {
		s.logger.Error("listing tool calls failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", s.logger)
		return
	}

	writeJSON(w, map[string]any{"calls": calls, "count": len(calls)}, s.logger)
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	visits, err := s.clinic.TodayQueue()
	if err != nil {
		s.logger.Error("loading queue failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", s.logger)
		return
	}
	writeJSON(w, map[string]any{"queue": visits, "count": len(visits)}, s.logger)
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	visit, err := s.clinic.GetVisit(r.PathValue("id"))
	if errors.Is(err, clinic.ErrVisitNotFound) {
		writeError(w, http.StatusNotFound, "visit not found", s.logger)
		return
	}
	if err != nil {
		s.logger.Error("loading visit failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", s.logger)
		return
	}

	payload, err := json.Marshal(map[string]string{
		"queue_number": visit.QueueNumber,
		"doctor":       visit.DoctorName,
		"room":         visit.Room,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error", s.logger)
		return
	}

	png, err := qrcode.Encode(string(payload), qrcode.Medium, 256)
	if err != nil {
		s.logger.Error("encoding ticket failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error", s.logger)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Write(png)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := s.memory.Stats()

	patients, err := s.clinic.CountPatients()
	if err == nil {
		stats["patients"] = patients
	}
	if visits, err := s.clinic.TodayQueue(); err == nil {
		stats["queue_today"] = len(visits)
	}

	writeJSON(w, stats, s.logger)
}
