package api

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/zeebo/blake3"

	"github.com/mattjoyce/devdeck/internal/history"
	"github.com/mattjoyce/devdeck/internal/supervisor"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	known, online := s.sup.Counts()
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		ProjectsKnown:  known,
		ProjectsOnline: online,
	})
}

// handleListProjects handles GET /api/projects. Every call rescans the root.
func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	body, err := json.Marshal(s.sup.Rescan())
	if err != nil {
		s.logger.Error("failed to encode projects", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to encode projects")
		return
	}

	etag := snapshotETag(body)
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(append(body, '\n'))
}

func snapshotETag(body []byte) string {
	sum := blake3.Sum256(body)
	return `"` + hex.EncodeToString(sum[:16]) + `"`
}

// handleGetProject handles GET /api/projects/{id}.
func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.sup.Project(chi.URLParam(r, "id"))
	if err != nil {
		s.writeSupervisorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// handleStartProject handles POST /api/projects/{id}/start?port=N.
func (s *Server) handleStartProject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	port, err := requestedPort(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := s.sup.Start(r.Context(), id, port)
	if err != nil {
		s.writeSupervisorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StartResponse{Status: "started", Port: p.Port})
}

// requestedPort reads ?port= or a {"port":N} body. Zero means unspecified.
func requestedPort(r *http.Request) (int, error) {
	if raw := strings.TrimSpace(r.URL.Query().Get("port")); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", supervisor.ErrInvalidPort, raw)
		}
		if port == 0 {
			return 0, fmt.Errorf("%w: 0", supervisor.ErrInvalidPort)
		}
		return port, nil
	}
	if r.ContentLength > 0 {
		var req StartRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return 0, errors.New("invalid JSON body")
		}
		return req.Port, nil
	}
	return 0, nil
}

// handleStopProject handles POST /api/projects/{id}/stop.
func (s *Server) handleStopProject(w http.ResponseWriter, r *http.Request) {
	if err := s.sup.Stop(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeSupervisorError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, StopResponse{Status: "stopped"})
}

// handleTailLogs handles GET /api/projects/{id}/logs?since=N.
func (s *Server) handleTailLogs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.sup.Project(id); err != nil {
		s.writeSupervisorError(w, err)
		return
	}

	var since uint64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}

	lines, next := s.sup.LogBuffer(id).Since(since)
	if lines == nil {
		lines = []string{}
	}
	respondJSON(w, http.StatusOK, LogsResponse{Lines: lines, Next: next})
}

// handleListRuns handles GET /api/projects/{id}/runs?limit=N.
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		s.writeError(w, http.StatusServiceUnavailable, "run history is disabled")
		return
	}
	id := chi.URLParam(r, "id")
	if _, err := s.sup.Project(id); err != nil {
		s.writeSupervisorError(w, err)
		return
	}

	limit := history.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), id, limit)
	if err != nil {
		s.logger.Error("failed to list runs", "project_id", id, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	respondJSON(w, http.StatusOK, RunsResponse{ProjectID: id, Runs: runs})
}

func (s *Server) writeSupervisorError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, supervisor.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, supervisor.ErrPortInUse):
		status = http.StatusConflict
	case errors.Is(err, supervisor.ErrUnsupportedType):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, supervisor.ErrInvalidPort):
		status = http.StatusBadRequest
	default:
		s.logger.Error("supervisor operation failed", "error", err)
	}
	s.writeError(w, status, err.Error())
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
