package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"earmark/internal/analysis"
	"earmark/internal/config"
	"earmark/internal/logging"
	"earmark/internal/monitor"
	"earmark/internal/services"
	"earmark/internal/services/aispy"
)

const maxBodyBytes = 8 << 20

// Deliverer accepts decoded notifications.
type Deliverer interface {
	Deliver(event monitor.PushEvent) bool
}

// Decoder parses a status document for a job.
type Decoder interface {
	DecodeStatus(jobID string, body []byte) (aispy.JobStatus, error)
}

// Server is the push receiver.
type Server struct {
	bind      string
	deliverer Deliverer
	decoder   Decoder
	logger    *slog.Logger

	handler  http.Handler
	listener net.Listener
	server   *http.Server
}

type envelope struct {
	TaskID string `json:"task_id"`
	JobID  string `json:"job_id"`
}

type ackResponse struct {
	JobID    string `json:"job_id"`
	Accepted bool   `json:"accepted"`
}

// New builds a receiver for cfg. It returns nil when no bind address is
// configured.
func New(cfg config.Push, deliverer Deliverer, decoder Decoder, logger *slog.Logger) *Server {
	bind := strings.TrimSpace(cfg.Bind)
	if bind == "" {
		return nil
	}
	s := &Server{
		bind:      bind,
		deliverer: deliverer,
		decoder:   decoder,
		logger:    logging.NewComponentLogger(logger, "push-receiver"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.With(bearerAuth(cfg.Token)).Post(cfg.Path, s.handlePush)
	s.handler = r

	s.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the bind address and serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("push listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("push server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("push receiver listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil || s.server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
}

func (s *Server) handlePush(w http.ResponseWriter, r *http.Request) {
	ctx := services.WithRequestID(r.Context(), middleware.GetReqID(r.Context()))
	logger := logging.WithContext(ctx, s.logger)

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
		return
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	jobID := strings.TrimSpace(env.TaskID)
	if jobID == "" {
		jobID = strings.TrimSpace(env.JobID)
	}
	if jobID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "task_id is required"})
		return
	}

	status, err := s.decoder.DecodeStatus(jobID, body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid status document"})
		return
	}

	event := monitor.PushEvent{JobID: jobID, Error: status.Error, Result: status.Result}
	switch status.State {
	case analysis.StateCompleted:
		event.Status = "completed"
	case analysis.StateFailed:
		event.Status = "failed"
	default:
		logger.Debug("non-terminal push ignored", logging.String(logging.FieldJobID, jobID))
		writeJSON(w, http.StatusOK, ackResponse{JobID: jobID})
		return
	}

	accepted := s.deliverer.Deliver(event)
	logger.Debug("push received",
		logging.String(logging.FieldJobID, jobID),
		logging.String(logging.FieldState, event.Status),
		logging.Bool("accepted", accepted),
	)
	code := http.StatusOK
	if accepted {
		code = http.StatusAccepted
	}
	writeJSON(w, code, ackResponse{JobID: jobID, Accepted: accepted})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
