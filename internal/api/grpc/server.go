package grpc

import (
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"rentacar-backend/internal/api/grpc/interceptor"
	"rentacar-backend/internal/security"
	"rentacar-backend/internal/service"
)

// Service is the name reported by the health endpoint for the reservation core.
const Service = "rentacar.reservations"

// NewServer builds the gRPC server exposing the reservation service,
// grpc.health.v1.Health and reflection. The returned health server starts
// NOT_SERVING; callers flip it once their dependencies are up.
func NewServer(reservations service.ReservationService, tm security.TokenManager) (*grpc.Server, *health.Server) {
	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			interceptor.Unary(),
			interceptor.NewAuthInterceptor(tm).Unary(),
		),
	)
	RegisterReservationServer(s, NewReservationHandler(reservations))

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(Service, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(s, hs)

	// Register reflection service for grpcurl
	reflection.Register(s)
	return s, hs
}

// SetServing marks the overall server and the reservation service as serving
// or not.
func SetServing(hs *health.Server, serving bool) {
	st := healthpb.HealthCheckResponse_NOT_SERVING
	if serving {
		st = healthpb.HealthCheckResponse_SERVING
	}
	hs.SetServingStatus("", st)
	hs.SetServingStatus(Service, st)
}
