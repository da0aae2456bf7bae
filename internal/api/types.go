package api

import "github.com/mattjoyce/devdeck/internal/history"

// StartRequest is the optional JSON body for POST /api/projects/{id}/start.
// A port query parameter takes precedence.
type StartRequest struct {
	Port int `json:"port"`
}

// StartResponse is returned on a successful start.
type StartResponse struct {
	Status string `json:"status"`
	Port   int    `json:"port"`
}

// StopResponse is returned by POST /api/projects/{id}/stop.
type StopResponse struct {
	Status string `json:"status"`
}

// LogsResponse is returned by GET /api/projects/{id}/logs.
type LogsResponse struct {
	Lines []string `json:"lines"`
	Next  uint64   `json:"next"`
}

// RunsResponse is returned by GET /api/projects/{id}/runs.
type RunsResponse struct {
	ProjectID string        `json:"project_id"`
	Runs      []history.Run `json:"runs"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	ProjectsKnown  int    `json:"projects_known"`
	ProjectsOnline int    `json:"projects_online"`
}
