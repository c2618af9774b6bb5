package health

import (
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported for the API
const ServiceName = "persona-chat.backend"

// NewGRPCServer returns a gRPC server exposing the standard health protocol.
// Its serving status follows the checker after every run.
func NewGRPCServer(c *Checker) (*grpc.Server, *grpchealth.Server) {
	srv := grpc.NewServer()
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)

	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	c.OnChange(func(healthy bool) {
		status := healthpb.HealthCheckResponse_SERVING
		if !healthy {
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
		hs.SetServingStatus(ServiceName, status)
		hs.SetServingStatus("", status)
	})

	return srv, hs
}
