package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/mailkeeper/internal/common"
	"github.com/dmitrijs2005/mailkeeper/internal/server/api"
	"github.com/dmitrijs2005/mailkeeper/internal/server/models"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/protobuf/types/known/structpb"
)

func (s *GRPCServer) Register(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.RegisterRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}

	res, err := s.registrar.Register(ctx, req.ToService(s.loginMeta(ctx)))
	if err != nil {
		s.logger.Info(ctx, "registration refused", "email", req.Email, "reason", err.Error())
		return nil, toStatus(err)
	}
	return reply(res)
}

func (s *GRPCServer) Login(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.LoginRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}

	res, err := s.users.Login(ctx, req.Email, req.Password, s.loginMeta(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(res)
}

func (s *GRPCServer) Logout(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p := principalFrom(ctx)
	if err := s.users.Logout(ctx, p.UserID, p.TokenID); err != nil {
		return nil, toStatus(err)
	}
	return reply(api.Empty{})
}

func (s *GRPCServer) OAuthConfig(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return reply(s.users.OAuthConfig())
}

func (s *GRPCServer) CheckRegisterPermission(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.RegisterPermissionRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.TrustLevel == nil {
		return nil, toStatus(common.ErrMalformedRequest)
	}

	ok, err := s.users.CanRegisterExternal(ctx, *req.TrustLevel)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(api.RegisterPermissionResponse{CanRegister: ok})
}

func (s *GRPCServer) OAuthAuthorizeURL(_ context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.AuthorizeURLRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}

	u, err := s.users.OAuthAuthorizeURL(req.RedirectURI)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(api.AuthorizeURLResponse{URL: u})
}

func (s *GRPCServer) OAuthCallback(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.OAuthCallbackRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}

	res, err := s.users.OAuthCallback(ctx, req.Code, req.RedirectURI, s.loginMeta(ctx))
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(res)
}

func (s *GRPCServer) Me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	return reply(principalFrom(ctx).User)
}

func (s *GRPCServer) SetUserStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.SetStatusRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}
	if req.Status == nil {
		return nil, toStatus(common.ErrInvalidStatus)
	}

	if err := s.users.SetStatus(ctx, req.UserID, *req.Status); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info(ctx, "user status changed", "user_id", req.UserID, "status", int(*req.Status), "by", principalFrom(ctx).UserID)
	return reply(api.Empty{})
}

func (s *GRPCServer) DeleteUser(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req api.UserIDRequest
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}

	if err := s.users.Delete(ctx, req.UserID); err != nil {
		return nil, toStatus(err)
	}
	s.logger.Info(ctx, "user deleted", "user_id", req.UserID, "by", principalFrom(ctx).UserID)
	return reply(api.Empty{})
}

func (s *GRPCServer) ExternalStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	stats, err := s.users.ExternalStats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(stats)
}

func (s *GRPCServer) ExternalPolicy(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := s.users.ExternalPolicy(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return reply(p)
}

func (s *GRPCServer) UpdateExternalPolicy(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	var req models.ExternalPolicy
	if err := decode(in, &req); err != nil {
		return nil, toStatus(err)
	}

	if err := s.users.UpdateExternalPolicy(ctx, req); err != nil {
		return nil, toStatus(err)
	}
	return reply(api.Empty{})
}

func (s *GRPCServer) RefreshSettings(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	if err := s.users.RefreshSettings(ctx); err != nil {
		return nil, toStatus(err)
	}
	return reply(api.Empty{})
}

func reply(v any) (*structpb.Struct, error) {
	out, err := encode(v)
	if err != nil {
		return nil, toStatus(common.ErrorInternal)
	}
	return out, nil
}

// loginMeta reads the caller address and user agent of an incoming call.
// x-forwarded-for counts only when the peer is a trusted proxy.
func (s *GRPCServer) loginMeta(ctx context.Context) models.LoginMeta {
	var (
		meta      models.LoginMeta
		peerAddr  string
		forwarded string
	)
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		peerAddr = p.Addr.String()
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		forwarded = strings.Join(md.Get("x-forwarded-for"), ",")
		if v := md.Get("user-agent"); len(v) > 0 {
			meta.UserAgent = v[0]
		}
	}
	meta.IP = s.clientIPs.Resolve(peerAddr, forwarded, "")
	return meta
}
