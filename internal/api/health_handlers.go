package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

func (s *Server) registerHealthRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "healthCheck",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns server health status",
		Tags:        []string{"System"},
	}, s.handleHealthCheck)
}

// HealthResponse contains server health status.
type HealthResponse struct {
	Status   string `json:"status" doc:"Server health status"`
	Database string `json:"database" doc:"Database reachability"`
}

// HealthOutput wraps the health response for Huma.
type HealthOutput struct {
	Body HealthResponse
}

func (s *Server) handleHealthCheck(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	resp := HealthResponse{Status: "healthy", Database: "up"}
	if err := s.store.Ping(); err != nil {
		s.logger.Warn("Health check database ping failed", "error", err)
		resp.Status = "degraded"
		resp.Database = "down"
	}
	return &HealthOutput{Body: resp}, nil
}
