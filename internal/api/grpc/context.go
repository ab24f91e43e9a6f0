package grpc

import (
	"context"
	"slices"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"rentacar-backend/internal/api/grpc/interceptor"
	"rentacar-backend/internal/security"
)

// GetUsernameFromContext extracts the caller's username from the gRPC
// metadata set by the auth interceptor.
func GetUsernameFromContext(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", status.Errorf(codes.Unauthenticated, "metadata is not provided")
	}
	names := md.Get(interceptor.MetadataUsername)
	if len(names) == 0 || names[0] == "" {
		return "", status.Errorf(codes.Unauthenticated, "username is not provided in metadata")
	}
	return names[0], nil
}

// authorize returns the caller when they may act on behalf of username.
func authorize(ctx context.Context, username string) (string, error) {
	caller, err := GetUsernameFromContext(ctx)
	if err != nil {
		return "", err
	}
	md, _ := metadata.FromIncomingContext(ctx)
	if caller != username && !slices.Contains(md.Get(interceptor.MetadataRoles), security.RoleStaff) {
		return "", status.Error(codes.PermissionDenied, "not allowed to act for this customer")
	}
	return caller, nil
}
