// Package handlers contains HTTP handlers for the API.
package handlers

import (
	"context"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/companion-api/internal/version"
)

// HealthCheckOutput represents health check response.
type HealthCheckOutput struct {
	Body struct {
		Status  string `json:"status"`
		Version string `json:"version"`
	}
}

// HealthCheck returns the health status of the API.
func HealthCheck(ctx context.Context, input *struct{}) (*HealthCheckOutput, error) {
	out := &HealthCheckOutput{}
	out.Body.Status = "healthy"
	out.Body.Version = version.Get().Short()
	return out, nil
}

// LivezOutput represents the liveness probe response.
type LivezOutput struct {
	Body struct {
		Status string `json:"status"`
	}
}

// Livez reports that the process is up.
func Livez(ctx context.Context, input *struct{}) (*LivezOutput, error) {
	out := &LivezOutput{}
	out.Body.Status = "ok"
	return out, nil
}

// DBChecker reports database readiness and the applied schema version.
type DBChecker interface {
	Ready(ctx context.Context) (string, error)
}

// DBCheckerFunc adapts a function to DBChecker.
type DBCheckerFunc func(ctx context.Context) (string, error)

// Ready calls f.
func (f DBCheckerFunc) Ready(ctx context.Context) (string, error) {
	return f(ctx)
}

// ReadyzOutput represents the readiness probe response.
type ReadyzOutput struct {
	Body struct {
		Status        string `json:"status"`
		SchemaVersion string `json:"schema_version,omitempty"`
	}
}

// ReadyzHandler serves the readiness probe.
type ReadyzHandler struct {
	db     DBChecker
	logger *slog.Logger
}

// NewReadyzHandler creates a readiness handler. A nil checker always reports ready.
func NewReadyzHandler(db DBChecker, logger *slog.Logger) *ReadyzHandler {
	return &ReadyzHandler{db: db, logger: logger}
}

// Readyz pings the database.
func (h *ReadyzHandler) Readyz(ctx context.Context, input *struct{}) (*ReadyzOutput, error) {
	out := &ReadyzOutput{}
	out.Body.Status = "ok"
	if h.db == nil {
		return out, nil
	}

	schemaVersion, err := h.db.Ready(ctx)
	if err != nil {
		h.logger.Warn("readiness check failed", "error", err)
		return nil, huma.Error503ServiceUnavailable("database not ready")
	}
	out.Body.SchemaVersion = schemaVersion
	return out, nil
}
