package routes

import (
	"net/http"

	"github.com/luknerlumina/patientflow/internal/api/handlers"
	"github.com/luknerlumina/patientflow/internal/api/middleware"
	"github.com/luknerlumina/patientflow/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	patientHandler  *handlers.PatientHandler
	clockHandler    *handlers.ClockHandler
	scheduleHandler *handlers.ScheduleHandler
	sseHandler      *handlers.SSEHandler
	healthHandler   *handlers.HealthHandler

	allowedOrigins []string
	metrics        *observability.Metrics
}

// NewRouter creates a new router. sseHandler and metrics may be nil.
func NewRouter(
	patientHandler *handlers.PatientHandler,
	clockHandler *handlers.ClockHandler,
	scheduleHandler *handlers.ScheduleHandler,
	sseHandler *handlers.SSEHandler,
	healthHandler *handlers.HealthHandler,
	allowedOrigins []string,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux:             http.NewServeMux(),
		patientHandler:  patientHandler,
		clockHandler:    clockHandler,
		scheduleHandler: scheduleHandler,
		sseHandler:      sseHandler,
		healthHandler:   healthHandler,
		allowedOrigins:  allowedOrigins,
		metrics:         metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	r.mux.HandleFunc("GET /health", r.healthHandler.Health)

	// Patient endpoints
	r.mux.HandleFunc("POST /api/patients", r.patientHandler.AddPatient)
	r.mux.HandleFunc("GET /api/patients", r.patientHandler.ListPatients)
	r.mux.HandleFunc("GET /api/patients/{id}", r.patientHandler.GetPatient)
	r.mux.HandleFunc("DELETE /api/patients/{id}", r.patientHandler.RemovePatient)
	r.mux.HandleFunc("PATCH /api/patients/{id}/status", r.patientHandler.UpdateStatus)
	r.mux.HandleFunc("PATCH /api/patients/{id}/room", r.patientHandler.AssignRoom)
	r.mux.HandleFunc("GET /api/patients/{id}/wait-time", r.patientHandler.GetWaitTime)
	r.mux.HandleFunc("GET /api/metrics", r.patientHandler.GetMetrics)

	// Clock endpoints
	r.mux.HandleFunc("GET /api/clock", r.clockHandler.GetClock)
	r.mux.HandleFunc("POST /api/clock/toggle", r.clockHandler.ToggleSimulation)
	r.mux.HandleFunc("POST /api/clock/advance", r.clockHandler.Advance)
	r.mux.HandleFunc("POST /api/clock/set", r.clockHandler.SetTime)

	r.mux.HandleFunc("POST /api/schedule/import", r.scheduleHandler.ImportSchedule)

	if r.sseHandler != nil {
		r.mux.HandleFunc("GET /api/stream/sessions/{date}", r.sseHandler.StreamSession)
		r.mux.HandleFunc("GET /api/stream/warnings", r.sseHandler.StreamWarnings)
	}

	// last wrapper runs first
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)
	handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	handler = middleware.ResponseOptimization(handler)
	handler = middleware.CORSMiddleware(r.allowedOrigins)(handler)

	return handler
}
