// Package api serves the operational HTTP surface: metrics, service stats,
// attendance reports, cooldown overrides and run-time enrollment.
package api

import (
	"context"
	"encoding/json"
	"image"
	"net/http"

	service "github.com/okian/presence/internal/app"
	"github.com/okian/presence/internal/domain/model"
)

// Dependencies required by HTTP handlers.
type Dependencies interface {
	Report(ctx context.Context, date *string) ([]model.AttendanceRecord, error)
	ResetCooldown(ctx context.Context, id string) bool
	Stats() service.Stats
	Enroll(ctx context.Context, identity model.Identity, img image.Image) error
	EnrollCaptured(ctx context.Context, identity model.Identity) error
}

// Server wires HTTP routes for the operational API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	attendanceHandler *AttendanceHandler
	cooldownHandler   *CooldownHandler
	enrollHandler     *EnrollHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(),
		statsHandler:      NewStatsHandler(deps),
		attendanceHandler: NewAttendanceHandler(deps),
		cooldownHandler:   NewCooldownHandler(deps),
		enrollHandler:     NewEnrollHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/attendance", MetricsMiddleware(s.attendanceHandler.HandleGetAttendance, "attendance"))
	mux.HandleFunc("/cooldown/reset", MetricsMiddleware(s.cooldownHandler.HandleReset, "cooldown_reset"))
	mux.HandleFunc("/enroll", MetricsMiddleware(s.enrollHandler.HandleEnroll, "enroll"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
