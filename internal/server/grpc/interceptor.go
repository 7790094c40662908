package grpc

import (
	"context"
	"strings"
	"time"

	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/server/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

type ctxKey string

const principalKey ctxKey = "principal"

// Principal is the authenticated caller of a request.
type Principal struct {
	AccountID string
	SessionID string
	Role      models.Role
}

// PrincipalFrom returns the caller stored by the auth interceptor.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

func methodName(fullMethod string) string {
	if i := strings.LastIndexByte(fullMethod, '/'); i >= 0 {
		return fullMethod[i+1:]
	}
	return fullMethod
}

func bearer(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(common.AuthorizationHeaderName)
	if len(values) == 0 {
		return ""
	}
	v := strings.TrimSpace(values[0])
	if scheme, rest, found := strings.Cut(v, " "); found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	if strings.EqualFold(v, "bearer") {
		return ""
	}
	return v
}

var errUnauthenticated = status.Error(codes.Unauthenticated, "unauthorized")

// authInterceptor verifies the access credential of non-public methods and
// re-reads the account so deleted accounts and stale roles are rejected.
func (s *GRPCServer) authInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	m, ok := methods[methodName(info.FullMethod)]
	if !ok || m.access == public {
		return handler(ctx, req)
	}

	token := bearer(ctx)
	if token == "" {
		return nil, errUnauthenticated
	}
	claims, err := s.verifier.VerifyAccess(token)
	if err != nil || claims == nil {
		return nil, errUnauthenticated
	}
	acc, err := s.service.ValidateUser(ctx, claims.Subject)
	if err != nil {
		if common.IsUnauthorized(err) || common.KindOf(err) == common.KindNotFound {
			return nil, errUnauthenticated
		}
		return nil, toStatus(err)
	}
	if m.access == adminOnly && acc.Role != models.RoleAdmin {
		return nil, status.Error(codes.PermissionDenied, "forbidden")
	}

	ctx = context.WithValue(ctx, principalKey, Principal{AccountID: acc.ID, SessionID: claims.SessionID, Role: acc.Role})
	return handler(ctx, req)
}

func (s *GRPCServer) loggingInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	code := status.Code(err)
	args := []any{"method", methodName(info.FullMethod), "code", code.String(), "duration", time.Since(start)}
	switch code {
	case codes.OK:
		s.logger.Debug(ctx, "rpc", args...)
	case codes.Internal, codes.Unavailable, codes.DeadlineExceeded:
		s.logger.Error(ctx, "rpc failed", append(args, "error", err)...)
	default:
		s.logger.Info(ctx, "rpc rejected", args...)
	}
	return resp, err
}

// sessionMeta collects client metadata recorded on new sessions.
func sessionMeta(ctx context.Context, device string) models.SessionMeta {
	meta := models.SessionMeta{DeviceName: device}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("user-agent"); len(v) > 0 {
			meta.UserAgent = v[0]
		}
		if v := md.Get("x-forwarded-for"); len(v) > 0 {
			meta.IPAddress = strings.TrimSpace(strings.Split(v[0], ",")[0])
		}
	}
	if meta.IPAddress == "" {
		if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
			addr := p.Addr.String()
			if i := strings.LastIndexByte(addr, ':'); i > 0 {
				addr = addr[:i]
			}
			meta.IPAddress = strings.Trim(addr, "[]")
		}
	}
	return meta
}
