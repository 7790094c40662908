package grpc

import (
	"context"
	"encoding/json"
	"math"

	"github.com/tubepulse/accounts/internal/dbx"
	"github.com/tubepulse/accounts/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

func str(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func flag(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

// number reads an integer field, saturating at the int32 range.
func number(req *structpb.Struct, key string) int {
	v := req.GetFields()[key].GetNumberValue()
	switch {
	case math.IsNaN(v):
		return 0
	case v > math.MaxInt32:
		return math.MaxInt32
	case v < math.MinInt32:
		return math.MinInt32
	}
	return int(v)
}

func required(req *structpb.Struct, keys ...string) error {
	for _, k := range keys {
		if str(req, k) == "" {
			return status.Errorf(codes.InvalidArgument, "%s is required", k)
		}
	}
	return nil
}

// encode turns v into a Struct through its JSON form.
func encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil
}

func reply(v any, err error) (*structpb.Struct, error) {
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(v)
}

func success() (*structpb.Struct, error) {
	return encode(map[string]any{"success": true})
}

func principal(ctx context.Context) (Principal, error) {
	p, found := PrincipalFrom(ctx)
	if !found {
		return Principal{}, errUnauthenticated
	}
	return p, nil
}

func (s *GRPCServer) register(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "email", "password"); err != nil {
		return nil, err
	}
	in := services.RegisterInput{Email: str(req, "email"), Password: str(req, "password"), Name: str(req, "name")}
	return reply(s.service.Register(ctx, in, sessionMeta(ctx, str(req, "deviceName"))))
}

func (s *GRPCServer) login(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "email", "password"); err != nil {
		return nil, err
	}
	return reply(s.service.Login(ctx, str(req, "email"), str(req, "password"), sessionMeta(ctx, str(req, "deviceName"))))
}

func (s *GRPCServer) refresh(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "refreshToken"); err != nil {
		return nil, err
	}
	return reply(s.service.RefreshAccessToken(ctx, str(req, "refreshToken")))
}

func (s *GRPCServer) verifyEmail(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "token"); err != nil {
		return nil, err
	}
	return reply(s.service.VerifyEmail(ctx, str(req, "token"), sessionMeta(ctx, str(req, "deviceName"))))
}

func (s *GRPCServer) resendVerification(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "email"); err != nil {
		return nil, err
	}
	if err := s.service.ResendVerificationEmail(ctx, str(req, "email")); err != nil {
		return nil, toStatus(err)
	}
	return success()
}

func (s *GRPCServer) forgotPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	msg, err := s.service.ForgotPassword(ctx, str(req, "email"))
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(map[string]any{"message": msg})
}

func (s *GRPCServer) resetPassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "token", "newPassword"); err != nil {
		return nil, err
	}
	if err := s.service.ResetPassword(ctx, str(req, "token"), str(req, "newPassword")); err != nil {
		return nil, toStatus(err)
	}
	return success()
}

func (s *GRPCServer) me(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return reply(s.service.GetCurrentUser(ctx, p.AccountID))
}

func (s *GRPCServer) changePassword(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := required(req, "currentPassword", "newPassword"); err != nil {
		return nil, err
	}
	if err := s.service.ChangePassword(ctx, p.AccountID, str(req, "currentPassword"), str(req, "newPassword")); err != nil {
		return nil, toStatus(err)
	}
	return success()
}

func (s *GRPCServer) logout(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.service.Logout(ctx, p.AccountID, str(req, "refreshToken")); err != nil {
		return nil, toStatus(err)
	}
	return success()
}

func (s *GRPCServer) listSessions(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	views, err := s.service.ListSessions(ctx, p.AccountID, p.SessionID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(map[string]any{"sessions": views})
}

func (s *GRPCServer) revokeSession(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := required(req, "sessionId"); err != nil {
		return nil, err
	}
	if err := s.service.RevokeSession(ctx, str(req, "sessionId"), p.AccountID); err != nil {
		return nil, toStatus(err)
	}
	return success()
}

// revokeAllSessions keeps the caller's own session unless includeCurrent
// is set.
func (s *GRPCServer) revokeAllSessions(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	except := p.SessionID
	if flag(req, "includeCurrent") {
		except = ""
	}
	n, err := s.service.RevokeAllSessions(ctx, p.AccountID, except)
	if err != nil {
		return nil, toStatus(err)
	}
	return encode(map[string]any{"revoked": n})
}

func (s *GRPCServer) updateProfile(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	return reply(s.service.UpdateProfile(ctx, p.AccountID, str(req, "name")))
}

func (s *GRPCServer) deleteAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	p, err := principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.service.DeleteAccount(ctx, p.AccountID, str(req, "password")); err != nil {
		return nil, toStatus(err)
	}
	return success()
}

func (s *GRPCServer) listAccounts(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	page := dbx.PageRequest{
		Page:          number(req, "page"),
		Limit:         number(req, "limit"),
		SortField:     str(req, "sortField"),
		SortDirection: dbx.SortDirection(str(req, "sortDirection")),
	}
	return reply(s.service.ListAccounts(ctx, page))
}

func (s *GRPCServer) restoreAccount(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	if err := required(req, "accountId"); err != nil {
		return nil, err
	}
	if err := s.service.RestoreAccount(ctx, str(req, "accountId")); err != nil {
		return nil, toStatus(err)
	}
	return success()
}
