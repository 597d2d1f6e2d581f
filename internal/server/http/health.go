package http

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/ekisa-team/voxclone/internal/model"
	"github.com/ekisa-team/voxclone/internal/version"
)

// Health statuses.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

type (
	HealthResponseDTO struct {
		Status       string           `json:"status" enum:"healthy,degraded"`
		ModelsLoaded bool             `json:"models_loaded"`
		Version      string           `json:"version"`
		Providers    []model.Instance `json:"providers"`
	}

	HealthOutput struct {
		Body HealthResponseDTO
	}
)

// HealthHandler reports model readiness.
type HealthHandler struct {
	models HealthReporter
}

// NewHealthHandler creates a new HealthHandler instance.
func NewHealthHandler(api huma.API, models HealthReporter) *HealthHandler {
	h := &HealthHandler{models: models}

	huma.Register(api, huma.Operation{
		OperationID:   "health",
		Method:        http.MethodGet,
		Path:          "/health",
		Summary:       "Report service and model status",
		Tags:          []string{"health"},
		DefaultStatus: http.StatusOK,
	}, h.handleHealth)

	return h
}

// handleHealth never loads models; it only reports what has been loaded.
func (h *HealthHandler) handleHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	ready := h.models.IsReady()

	status := StatusDegraded
	if ready {
		status = StatusHealthy
	}

	return &HealthOutput{
		Body: HealthResponseDTO{
			Status:       status,
			ModelsLoaded: ready,
			Version:      version.Version,
			Providers:    h.models.Status(),
		},
	}, nil
}
