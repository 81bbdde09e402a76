package service

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/cartridge/prioritized-replay/internal/storage"
)

// statusError maps buffer errors to gRPC status codes. Caller mistakes are
// InvalidArgument; a buffer that cannot serve the request yet is
// FailedPrecondition.
func statusError(err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}

	code := codes.Internal
	switch {
	case errors.Is(err, storage.ErrShapeMismatch),
		errors.Is(err, storage.ErrLengthMismatch),
		errors.Is(err, storage.ErrIndexOutOfRange),
		errors.Is(err, storage.ErrInvalidBeta),
		errors.Is(err, storage.ErrNonFiniteError),
		errors.Is(err, storage.ErrInvalidCapacity):
		code = codes.InvalidArgument
	case errors.Is(err, storage.ErrInsufficientData),
		errors.Is(err, storage.ErrDegeneratePriorities):
		code = codes.FailedPrecondition
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	}
	return status.Error(code, err.Error())
}
