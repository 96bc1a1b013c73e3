package client

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/and161185/notevault/internal/errs"
)

var codeSentinels = map[codes.Code]error{
	codes.NotFound:           errs.ErrNotFound,
	codes.PermissionDenied:   errs.ErrForbidden,
	codes.ResourceExhausted:  errs.ErrRateLimited,
	codes.Unavailable:        errs.ErrServiceUnavailable,
	codes.InvalidArgument:    errs.ErrInvalidArgument,
	codes.FailedPrecondition: errs.ErrVersionConflict,
	codes.AlreadyExists:      errs.ErrAlreadyExists,
	codes.Unauthenticated:    errs.ErrUnauthorized,
}

// fromStatus attaches the matching sentinel to an RPC error so callers can use
// errors.Is. The gRPC status stays reachable through status.FromError.
func fromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	if s, ok := codeSentinels[st.Code()]; ok {
		return fmt.Errorf("%w: %w", s, err)
	}
	return err
}
