package grpc

import (
	"context"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

type ctxKey string

const principalKey ctxKey = "principal"

// authenticated lists the methods that need a live session; admin ones also
// need the administrator.
var (
	authenticated = map[string]bool{
		FullMethod(MethodLogout):               true,
		FullMethod(MethodMe):                   true,
		FullMethod(MethodSetUserStatus):        true,
		FullMethod(MethodDeleteUser):           true,
		FullMethod(MethodExternalStats):        true,
		FullMethod(MethodExternalPolicy):       true,
		FullMethod(MethodUpdateExternalPolicy): true,
		FullMethod(MethodRefreshSettings):      true,
	}
	adminOnly = map[string]bool{
		FullMethod(MethodSetUserStatus):        true,
		FullMethod(MethodDeleteUser):           true,
		FullMethod(MethodExternalStats):        true,
		FullMethod(MethodExternalPolicy):       true,
		FullMethod(MethodUpdateExternalPolicy): true,
		FullMethod(MethodRefreshSettings):      true,
	}
)

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !authenticated[info.FullMethod] {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.AccessTokenHeaderName); len(values) > 0 {
			accessToken = values[0]
		}
	}
	if accessToken == "" {
		return nil, toStatus(common.ErrorUnauthorized)
	}

	p, err := s.users.Authenticate(ctx, accessToken)
	if err != nil {
		return nil, toStatus(err)
	}

	if adminOnly[info.FullMethod] {
		if err := s.users.RequireAdmin(p); err != nil {
			s.logger.Warn(ctx, "admin call refused", "method", info.FullMethod, "user_id", p.UserID)
			return nil, toStatus(err)
		}
	}

	return handler(context.WithValue(ctx, principalKey, p), req)
}

// principalFrom returns the caller set by accessTokenInterceptor.
func principalFrom(ctx context.Context) *services.Principal {
	p, _ := ctx.Value(principalKey).(*services.Principal)
	if p == nil {
		return &services.Principal{}
	}
	return p
}
