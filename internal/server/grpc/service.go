// Package grpc exposes AccountService over gRPC. Messages are
// google.protobuf.Struct values whose fields follow the JSON names of the
// service types.
package grpc

import (
	"context"

	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/auth"
	"github.com/tubepulse/accounts/internal/server/models"
	"github.com/tubepulse/accounts/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "tubepulse.accounts.v1.AccountService"

// AccountService is the business API served by GRPCServer.
type AccountService interface {
	Register(ctx context.Context, in services.RegisterInput, meta models.SessionMeta) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string, meta models.SessionMeta) (*services.AuthResult, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*services.AuthResult, error)
	VerifyEmail(ctx context.Context, token string, meta models.SessionMeta) (*services.AuthResult, error)
	ResendVerificationEmail(ctx context.Context, email string) error
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, newPassword string) error
	ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error
	Logout(ctx context.Context, accountID, refreshToken string) error
	ListSessions(ctx context.Context, accountID, currentSessionID string) ([]models.SessionView, error)
	RevokeSession(ctx context.Context, sessionID, accountID string) error
	RevokeAllSessions(ctx context.Context, accountID, exceptSessionID string) (int64, error)
	GetCurrentUser(ctx context.Context, accountID string) (models.Public, error)
	ValidateUser(ctx context.Context, accountID string) (models.Public, error)
	UpdateProfile(ctx context.Context, accountID, name string) (models.Public, error)
	ListAccounts(ctx context.Context, req dbx.PageRequest) (dbx.Page[models.Public], error)
	DeleteAccount(ctx context.Context, accountID, password string) error
	RestoreAccount(ctx context.Context, accountID string) error
}

// AccessVerifier checks access credentials.
type AccessVerifier interface {
	VerifyAccess(token string) (*auth.AccessClaims, error)
}

type access int

const (
	public access = iota
	authenticated
	adminOnly
)

type unaryMethod struct {
	access access
	call   func(s *GRPCServer, ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var methods = map[string]unaryMethod{
	"Register":           {public, (*GRPCServer).register},
	"Login":              {public, (*GRPCServer).login},
	"Refresh":            {public, (*GRPCServer).refresh},
	"VerifyEmail":        {public, (*GRPCServer).verifyEmail},
	"ResendVerification": {public, (*GRPCServer).resendVerification},
	"ForgotPassword":     {public, (*GRPCServer).forgotPassword},
	"ResetPassword":      {public, (*GRPCServer).resetPassword},

	"Me":                {authenticated, (*GRPCServer).me},
	"ChangePassword":    {authenticated, (*GRPCServer).changePassword},
	"Logout":            {authenticated, (*GRPCServer).logout},
	"ListSessions":      {authenticated, (*GRPCServer).listSessions},
	"RevokeSession":     {authenticated, (*GRPCServer).revokeSession},
	"RevokeAllSessions": {authenticated, (*GRPCServer).revokeAllSessions},
	"UpdateProfile":     {authenticated, (*GRPCServer).updateProfile},
	"DeleteAccount":     {authenticated, (*GRPCServer).deleteAccount},

	"ListAccounts":   {adminOnly, (*GRPCServer).listAccounts},
	"RestoreAccount": {adminOnly, (*GRPCServer).restoreAccount},
}

// FullMethod returns the gRPC path of a method of this service.
func FullMethod(name string) string { return "/" + ServiceName + "/" + name }

type accountsServer interface {
	accounts() AccountService
}

func serviceDesc() *grpc.ServiceDesc {
	desc := &grpc.ServiceDesc{
		ServiceName: ServiceName,
		HandlerType: (*accountsServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "tubepulse/accounts/v1/accounts.proto",
	}
	for name, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: name, Handler: unaryHandler(name, m)})
	}
	return desc
}

func unaryHandler(name string, m unaryMethod) func(any, context.Context, func(any) error, grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		s := srv.(*GRPCServer)
		if interceptor == nil {
			return m.call(s, ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return m.call(s, ctx, req.(*structpb.Struct))
		})
	}
}
