package rpc

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

var codeByDomain = map[domain.ErrorCode]codes.Code{
	domain.CodeNotFound:           codes.NotFound,
	domain.CodeInvalidTransition:  codes.FailedPrecondition,
	domain.CodeConflict:           codes.AlreadyExists,
	domain.CodeValidation:         codes.InvalidArgument,
	domain.CodeExternalDependency: codes.Unavailable,
}

// ToStatus converts a core error into a gRPC status error.
func ToStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) && domain.CodeOf(err) == "" {
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	if code, ok := codeByDomain[domain.CodeOf(err)]; ok {
		if domain.IsFatal(err) {
			return status.Error(codes.Internal, domain.MessageOf(err))
		}
		return status.Error(code, domain.MessageOf(err))
	}
	return status.Error(codes.Internal, "internal error")
}

// FromStatus converts a gRPC status error back into a core error. Business
// codes map onto their core counterparts; everything else is reported as an
// external dependency failure.
func FromStatus(err error, what string) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return domain.ExternalDependency(err, "%s", what)
	}
	switch st.Code() {
	case codes.NotFound:
		return domain.NotFound("%s", st.Message())
	case codes.InvalidArgument:
		return domain.Validation("%s", st.Message())
	case codes.FailedPrecondition:
		return domain.InvalidTransition("%s", st.Message())
	case codes.AlreadyExists:
		return domain.Conflict("%s", st.Message())
	}
	return domain.ExternalDependency(err, "%s", what)
}

// IsBusiness reports whether a converted error is a business outcome rather
// than a transport failure.
func IsBusiness(err error) bool {
	code := domain.CodeOf(err)
	return code != "" && code != domain.CodeExternalDependency
}
