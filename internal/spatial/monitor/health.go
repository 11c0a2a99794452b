package monitor

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/haunt.report/internal/timeutil"
)

// EngineService is the health service name that tracks monitoring state.
const EngineService = "haunt.v1.SpatialEngine"

// Health publishes the engine's monitoring state through the standard gRPC
// health service. The overall service ("") is SERVING while the process is
// up; EngineService is SERVING only while monitoring.
type Health struct {
	server  *health.Server
	running func() bool
	clock   timeutil.Clock
}

// NewHealth returns a health reporter polling running.
func NewHealth(running func() bool, clock timeutil.Clock) *Health {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	h := &Health{server: health.NewServer(), running: running, clock: clock}
	h.server.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.Update()
	return h
}

// Register adds the health service to s.
func (h *Health) Register(s *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(s, h.server)
}

// Server exposes the underlying health server.
func (h *Health) Server() *health.Server { return h.server }

// Update sets EngineService from the current monitoring state.
func (h *Health) Update() {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if h.running() {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.server.SetServingStatus(EngineService, status)
}

// Run refreshes the status every interval until ctx is done, then marks
// every service NOT_SERVING.
func (h *Health) Run(ctx context.Context, interval time.Duration) {
	ticker := h.clock.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C():
			h.Update()
		}
	}
}
