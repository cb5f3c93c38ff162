package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/ldi/taskline/embed/web"
	"github.com/ldi/taskline/internal/app"
	"github.com/ldi/taskline/internal/db"
)

const maxBodyBytes = 1 << 20

type Server struct {
	svc    *app.Service
	logger *slog.Logger
	server *http.Server
}

func NewServer(svc *app.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, logger: logger}
}

// Handler returns the routes served by Start.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// API endpoints
	mux.HandleFunc("GET /api/tasks", s.handleTasks)
	mux.HandleFunc("GET /api/tasks/{ref}", s.handleTask)
	mux.HandleFunc("POST /api/tasks/{ref}/share", s.handleShare)
	mux.HandleFunc("GET /api/shared/{token}", s.handleShared)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("POST /api/batch", s.handleBatch)
	mux.HandleFunc("POST /api/command", s.handleCommand)

	// Static files
	mux.Handle("/", http.FileServer(http.FS(web.Assets)))

	return mux
}

func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("web server listening", "addr", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Tree(r.Context())
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	s.respond(w, snap.Roots, nil)
}

func (s *Server) handleTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Find(r.Context(), r.PathValue("ref"))
	if err == nil && t == nil {
		err = db.ErrNotFound
	}
	s.respond(w, t, err)
}

func (s *Server) handleShare(w http.ResponseWriter, r *http.Request) {
	t, token, err := s.svc.Share(r.Context(), r.PathValue("ref"))
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	s.respond(w, map[string]string{"task_id": t.ID, "token": token}, nil)
}

// handleShared is the unauthenticated read-only lookup.
func (s *Server) handleShared(w http.ResponseWriter, r *http.Request) {
	t, err := s.svc.Shared(r.Context(), r.PathValue("token"))
	if err == nil && t == nil {
		err = db.ErrNotFound
	}
	s.respond(w, t, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.svc.Status(r.Context(), time.Now())
	s.respond(w, st, err)
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	dryRun, _ := strconv.ParseBool(r.URL.Query().Get("dry_run"))

	res, err := s.svc.ApplyJSON(r.Context(), body, dryRun)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.respond(w, res, nil)
}

type commandRequest struct {
	Instruction string `json:"instruction"`
	DryRun      bool   `json:"dry_run"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Instruction == "" {
		http.Error(w, "instruction is required", http.StatusBadRequest)
		return
	}

	res, err := s.svc.ApplyCommand(r.Context(), req.Instruction, req.DryRun)
	s.respond(w, res, err)
}

func (s *Server) respond(w http.ResponseWriter, data any, err error) {
	if errors.Is(err, db.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("request failed", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
