package grpc

import (
	"context"
	"errors"

	"github.com/tubepulse/accounts/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var kindCodes = map[common.Kind]codes.Code{
	common.KindNotFound:               codes.NotFound,
	common.KindEmailAlreadyRegistered: codes.AlreadyExists,
	common.KindConcurrentModification: codes.Aborted,
	common.KindVersionConflict:        codes.Aborted,
	common.KindAlreadyVerified:        codes.FailedPrecondition,
	common.KindWrongProvider:          codes.FailedPrecondition,
	common.KindWrongPassword:          codes.InvalidArgument,
	common.KindInvalidOrExpiredToken:  codes.InvalidArgument,
	common.KindValidation:             codes.InvalidArgument,
	common.KindEmailNotVerified:       codes.PermissionDenied,
	common.KindForbidden:              codes.PermissionDenied,
	common.KindTooManyAttempts:        codes.ResourceExhausted,
	common.KindTransientStorage:       codes.Unavailable,
	common.KindTransactionTimeout:     codes.DeadlineExceeded,
}

// toStatus maps service errors onto gRPC statuses. All authentication
// failures share one message; unknown errors are not echoed to the caller.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if common.IsUnauthorized(err) {
		return errUnauthenticated
	}
	var e *common.Error
	if errors.As(err, &e) {
		if code, ok := kindCodes[e.Kind]; ok {
			return status.Error(code, e.Msg)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, "internal error")
}
