package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"netwatch/internal/export"
	"netwatch/internal/logger"
	"netwatch/internal/monitor"
)

// StatusFunc reports the scheduler state and its last poll error.
type StatusFunc func() (state string, lastErr error)

// Server exposes the monitor as read-mostly JSON endpoints.
type Server struct {
	monitor   *monitor.Monitor
	status    StatusFunc
	metrics   http.Handler
	exportDir string
}

// Config configures the API server.
type Config struct {
	Status    StatusFunc
	Metrics   http.Handler
	ExportDir string
}

// New creates an API server over m.
func New(m *monitor.Monitor, cfg Config) *Server {
	return &Server{
		monitor:   m,
		status:    cfg.Status,
		metrics:   cfg.Metrics,
		exportDir: cfg.ExportDir,
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/connections", getOnly(s.handleConnections))
	mux.HandleFunc("/changes", getOnly(s.handleChanges))
	mux.HandleFunc("/processes", getOnly(s.handleProcesses))
	mux.HandleFunc("/ports", getOnly(s.handlePorts))
	mux.HandleFunc("/status", getOnly(s.handleStatus))
	mux.HandleFunc("/export", s.handleExport)
	mux.HandleFunc("/refresh", s.handleRefresh)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

func getOnly(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			jsonResponse(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
			return
		}
		h(w, r)
	}
}

func (s *Server) handleConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := s.monitor.Connections()
	if err != nil {
		errorResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, conns)
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	jsonResponse(w, http.StatusOK, s.monitor.RecentChanges(limit))
}

func (s *Server) handleProcesses(w http.ResponseWriter, r *http.Request) {
	procs, err := s.monitor.ProcessSummaries()
	if err != nil {
		errorResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, procs)
}

func (s *Server) handlePorts(w http.ResponseWriter, r *http.Request) {
	ports, err := s.monitor.PortSummaries()
	if err != nil {
		errorResponse(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, ports)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"state": "unknown"}
	if s.status != nil {
		state, lastErr := s.status()
		resp["state"] = state
		if lastErr != nil {
			resp["lastError"] = lastErr.Error()
		}
	}
	resp["changeLog"] = s.monitor.ChangeLogStats()
	if snap, err := s.monitor.Snapshot(); err == nil {
		resp["seq"] = snap.Seq
		resp["capturedAt"] = snap.CapturedAt
		resp["connections"] = snap.Len()
	}
	jsonResponse(w, http.StatusOK, resp)
}

// handleExport streams the current snapshot on GET and writes an export file
// on POST.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		errorResponse(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		view, err := s.monitor.ExportView()
		if err != nil {
			errorResponse(w, err)
			return
		}
		w.Header().Set("Content-Type", format.ContentType())
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(format, view.ExportedAt)))
		if err := export.Encode(w, format, view.Connections, view.ExportedAt); err != nil {
			logger.Warnf("Export stream failed: %v", err)
		}
	case http.MethodPost:
		path, err := s.monitor.ExportSnapshot(s.exportDir, format)
		if err != nil {
			errorResponse(w, err)
			return
		}
		logger.Infof("Exported snapshot to %s", path)
		jsonResponse(w, http.StatusCreated, map[string]string{"path": path})
	default:
		jsonResponse(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonResponse(w, http.StatusMethodNotAllowed, map[string]string{"error": "Method not allowed"})
		return
	}
	jsonResponse(w, http.StatusAccepted, map[string]bool{"accepted": s.monitor.Refresh()})
}

func errorResponse(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, monitor.ErrSourceUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, export.ErrUnsupportedFormat):
		status = http.StatusBadRequest
	default:
		logger.Errorf("API request failed: %v", err)
	}
	jsonResponse(w, status, map[string]string{"error": err.Error()})
}

func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Warnf("Error encoding JSON response: %v", err)
	}
}
