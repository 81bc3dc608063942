package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Messages are
// google.protobuf.Struct values carrying the same JSON shapes as the HTTP API.
const ServiceName = "mailkeeper.auth.v1.AuthService"

const (
	MethodRegister                = "Register"
	MethodLogin                   = "Login"
	MethodLogout                  = "Logout"
	MethodOAuthConfig             = "OAuthConfig"
	MethodOAuthAuthorizeURL       = "OAuthAuthorizeURL"
	MethodOAuthCallback           = "OAuthCallback"
	MethodCheckRegisterPermission = "CheckRegisterPermission"
	MethodMe                      = "Me"
	MethodSetUserStatus           = "SetUserStatus"
	MethodDeleteUser              = "DeleteUser"
	MethodExternalStats           = "ExternalStats"
	MethodExternalPolicy          = "ExternalPolicy"
	MethodUpdateExternalPolicy    = "UpdateExternalPolicy"
	MethodRefreshSettings         = "RefreshSettings"
)

// FullMethod returns the path used on the wire for method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// AuthServiceServer is implemented by GRPCServer.
type AuthServiceServer interface {
	Register(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Login(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Logout(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OAuthConfig(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OAuthAuthorizeURL(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OAuthCallback(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CheckRegisterPermission(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Me(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SetUserStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
	DeleteUser(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExternalStats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ExternalPolicy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	UpdateExternalPolicy(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefreshSettings(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(AuthServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func methodHandler(name string, call unaryMethod) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(AuthServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(AuthServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// AuthServiceDesc describes the service for grpc.Server.RegisterService.
var AuthServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AuthServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		methodHandler(MethodRegister, AuthServiceServer.Register),
		methodHandler(MethodLogin, AuthServiceServer.Login),
		methodHandler(MethodLogout, AuthServiceServer.Logout),
		methodHandler(MethodOAuthConfig, AuthServiceServer.OAuthConfig),
		methodHandler(MethodOAuthAuthorizeURL, AuthServiceServer.OAuthAuthorizeURL),
		methodHandler(MethodOAuthCallback, AuthServiceServer.OAuthCallback),
		methodHandler(MethodCheckRegisterPermission, AuthServiceServer.CheckRegisterPermission),
		methodHandler(MethodMe, AuthServiceServer.Me),
		methodHandler(MethodSetUserStatus, AuthServiceServer.SetUserStatus),
		methodHandler(MethodDeleteUser, AuthServiceServer.DeleteUser),
		methodHandler(MethodExternalStats, AuthServiceServer.ExternalStats),
		methodHandler(MethodExternalPolicy, AuthServiceServer.ExternalPolicy),
		methodHandler(MethodUpdateExternalPolicy, AuthServiceServer.UpdateExternalPolicy),
		methodHandler(MethodRefreshSettings, AuthServiceServer.RefreshSettings),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "mailkeeper/auth/v1/auth.proto",
}

// AuthServiceClient calls AuthService methods over cc.
type AuthServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewAuthServiceClient(cc grpc.ClientConnInterface) *AuthServiceClient {
	return &AuthServiceClient{cc: cc}
}

func (c *AuthServiceClient) Call(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if in == nil {
		in = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, FullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
