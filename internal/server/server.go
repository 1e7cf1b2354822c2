// Package server exposes the pipeline over HTTP: POST /generate-tasks plus
// a liveness endpoint. Request logging goes through zap with a per-request
// id; the pipeline's own diagnostics go through the category logger.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskrag/internal/pipeline"
	"taskrag/internal/types"
)

// TaskPipeline is the orchestration surface the server consumes.
type TaskPipeline interface {
	Run(ctx context.Context, event types.EventInput) (*types.PipelineResult, error)
}

// Server is the HTTP front end.
type Server struct {
	pipeline       TaskPipeline
	logger         *zap.Logger
	addr           string
	requestTimeout time.Duration
}

// Options configures the server.
type Options struct {
	Addr           string
	RequestTimeout time.Duration
}

// New creates a Server.
func New(p TaskPipeline, logger *zap.Logger, opts Options) *Server {
	addr := opts.Addr
	if addr == "" {
		addr = ":8000"
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		pipeline:       p,
		logger:         logger,
		addr:           addr,
		requestTimeout: timeout,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/generate-tasks", s.handleGenerateTasks)
	return s.withRequestLog(mux)
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.addr, Handler: s.Handler()}

	errChan := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	s.logger.Info("server listening", zap.String("addr", s.addr))

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

// withRequestLog attaches a request id and logs one line per request.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Info("request",
			zap.String("id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "taskrag",
	})
}

func (s *Server) handleGenerateTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var event types.EventInput
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	event.Normalize()
	if err := event.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	result, err := s.pipeline.Run(ctx, event)
	if err != nil {
		var re *pipeline.RetrievalError
		if errors.As(err, &re) {
			writeError(w, http.StatusBadGateway, re.Error())
			return
		}
		s.logger.Error("pipeline failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
