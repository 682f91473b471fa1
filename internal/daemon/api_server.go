package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"loom/internal/api"
	"loom/internal/config"
	"loom/internal/logging"
	"loom/internal/notifications"
)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	workflow *api.WorkflowService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	stuckThreshold := time.Duration(cfg.Workflow.StuckThresholdMins) * time.Minute
	srv := &apiServer{
		bind:     bind,
		logger:   logger,
		daemon:   d,
		workflow: api.NewWorkflowService(d.store, stuckThreshold),
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", srv.handleHealthz)
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/workflows", authMiddleware(token, srv.handleWorkflows))
	mux.HandleFunc("/api/workflows/clear-failed", authMiddleware(token, srv.handleClearFailed))
	mux.HandleFunc("/api/workflows/", authMiddleware(token, srv.handleWorkflowItem))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	health := s.daemon.store.CheckHealth(r.Context())
	if health.Error != "" || !health.IntegrityCheck {
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"detail": health.Error,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          os.Getpid(),
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
	})
}

func (s *apiServer) handleWorkflows(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := s.workflow.List(r.Context(), r.URL.Query().Get("state"))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, api.WorkflowListResponse{Items: items})
	case http.MethodPost:
		var req api.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		resp, err := s.workflow.Submit(r.Context(), req)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		status := http.StatusCreated
		if resp.Existing {
			status = http.StatusOK
		} else if s.daemon.notifier != nil {
			_ = s.daemon.notifier.Publish(r.Context(), notifications.EventWorkflowSubmitted, notifications.Payload{
				"entity": resp.Item.EntityID,
				"title":  resp.Item.Title,
			})
		}
		s.writeJSON(w, status, resp)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleClearFailed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	removed, err := s.workflow.ClearFailed(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RetryResponse{Updated: removed})
}

func (s *apiServer) handleWorkflowItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/workflows/")
	id, action, _ := strings.Cut(rest, "/")
	if id == "" {
		s.writeError(w, http.StatusNotFound, "workflow not found")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		item, err := s.workflow.Describe(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if item == nil {
			s.writeError(w, http.StatusNotFound, "workflow not found")
			return
		}
		s.writeJSON(w, http.StatusOK, api.WorkflowItemResponse{Item: *item})
	case action == "retry" && r.Method == http.MethodPost:
		updated, err := s.workflow.Retry(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if updated == 0 {
			s.writeError(w, http.StatusNotFound, "no failed workflow with that id")
			return
		}
		s.writeJSON(w, http.StatusOK, api.RetryResponse{Updated: updated})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *apiServer) log() *slog.Logger {
	return logging.NewComponentLogger(s.logger, "api-server")
}
