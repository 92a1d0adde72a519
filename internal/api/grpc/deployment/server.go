package deployment

import (
	"context"
	"errors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/zonesync/internal/domain/release"
	"github.com/oshokin/zonesync/internal/logger"
)

// ServiceName is the health service name reporting the deployment status.
// The empty name reports the same status for clients asking about the server as a whole.
const ServiceName = "zonesync.Deployment"

// Source abstracts where the deployment record comes from.
type Source interface {
	Load(ctx context.Context) (*release.Deployment, error)
}

// Server publishes the deployment status through the health service.
type Server struct {
	// health holds the per-service statuses served to clients.
	health *health.Server
	// source provides the current deployment record.
	source Source
}

// NewServer creates a Server reporting NOT_SERVING until the first Refresh.
func NewServer(source Source) *Server {
	s := &Server{
		health: health.NewServer(),
		source: source,
	}

	s.set(healthpb.HealthCheckResponse_NOT_SERVING)

	return s
}

// Register attaches the health service to a gRPC server.
func (s *Server) Register(registrar grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(registrar, s.health)
}

// Refresh recomputes the status from the deployment record and returns it.
// An unreadable record reports NOT_SERVING.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_NOT_SERVING

	deployment, err := s.source.Load(ctx)
	switch {
	case err == nil:
		status = healthpb.HealthCheckResponse_SERVING

		logger.DebugKV(ctx, "Deployment found", "version", deployment.Version, "deployed_at", deployment.DeployedAt)
	case errors.Is(err, release.ErrNotFound):
		logger.Debug(ctx, "Nothing deployed yet")
	default:
		logger.WarnKV(ctx, "Unable to read deployment record", "error", err)
	}

	s.set(status)

	return status
}

// Shutdown reports NOT_SERVING for every service and ignores later updates.
func (s *Server) Shutdown() {
	s.health.Shutdown()
}

func (s *Server) set(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
