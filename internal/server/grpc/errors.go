package grpc

import (
	"errors"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var kindCodes = []struct {
	kind error
	code codes.Code
}{
	{common.ErrValidation, codes.InvalidArgument},
	{common.ErrPolicy, codes.FailedPrecondition},
	{common.ErrForbidden, codes.PermissionDenied},
	{common.ErrorConflict, codes.AlreadyExists},
	{common.ErrorNotFound, codes.NotFound},
	{common.ErrorUnauthorized, codes.Unauthenticated},
	{common.ErrExternalService, codes.Unavailable},
	{common.ErrConfiguration, codes.Internal},
}

// toStatus converts a service error to a gRPC status. The status message is
// the error's localization key when it has one.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	msg := common.MessageKey(err)
	for _, kc := range kindCodes {
		if errors.Is(err, kc.kind) {
			if msg == "" {
				msg = kc.kind.Error()
			}
			return status.Error(kc.code, msg)
		}
	}
	return status.Error(codes.Internal, common.ErrorInternal.Error())
}
