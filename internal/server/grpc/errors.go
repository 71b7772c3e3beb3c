package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/calsync/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var codeBySentinel = []struct {
	err  error
	code codes.Code
}{
	{common.ErrorNotFound, codes.NotFound},
	{common.ErrorUnauthorized, codes.Unauthenticated},
	{common.ErrInvalidToken, codes.Unauthenticated},
	{common.ErrorForbidden, codes.PermissionDenied},
	{common.ErrAuthorizationDenied, codes.PermissionDenied},
	{common.ErrInvalidWindow, codes.InvalidArgument},
	{common.ErrInvalidResolution, codes.InvalidArgument},
	{common.ErrInvalidIntegration, codes.InvalidArgument},
	{common.ErrInvalidTransition, codes.FailedPrecondition},
	{common.ErrIntegrationInactive, codes.FailedPrecondition},
	{common.ErrConflictAlreadyResolved, codes.FailedPrecondition},
	{common.ErrInvalidGrant, codes.FailedPrecondition},
	{common.ErrFlowInProgress, codes.AlreadyExists},
	{common.ErrSurfaceBlocked, codes.ResourceExhausted},
	{common.ErrAuthorizationCancelled, codes.Canceled},
	{common.ErrAuthorizationTimeout, codes.DeadlineExceeded},
	{common.ErrTransient, codes.Unavailable},
	{context.Canceled, codes.Canceled},
	{context.DeadlineExceeded, codes.DeadlineExceeded},
}

// toStatus converts an engine error into a gRPC status. Unknown errors are
// logged and hidden behind codes.Internal.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	for _, m := range codeBySentinel {
		if errors.Is(err, m.err) {
			return status.Error(m.code, err.Error())
		}
	}
	s.logger.Error(ctx, "request failed", "method", method, "error", err)
	return status.Error(codes.Internal, "internal error")
}
