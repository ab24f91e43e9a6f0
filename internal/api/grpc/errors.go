package grpc

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"rentacar-backend/internal/domain"
	"rentacar-backend/internal/logger"
)

// toStatus maps a service error to a gRPC status. Internal failures are
// logged and returned without detail.
func toStatus(ctx context.Context, method string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	var code codes.Code
	switch domain.Kind(err) {
	case domain.ErrValidation:
		code = codes.InvalidArgument
	case domain.ErrConflict:
		code = codes.FailedPrecondition
	case domain.ErrNotFound:
		code = codes.NotFound
	case domain.ErrExternalDependency:
		code = codes.Unavailable
	default:
		logger.ErrorContext(ctx, "gRPC call failed", "method", method, "error", err)
		return status.Error(codes.Internal, "internal error")
	}
	return status.Error(code, err.Error())
}
