// Package client is a thin gRPC client for the account service. It keeps
// the caller's credentials and refreshes the access credential once when a
// call is rejected as unauthenticated.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/tubepulse/accounts/internal/common"
	"github.com/tubepulse/accounts/internal/server/models"
	"github.com/tubepulse/accounts/internal/server/services"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName must match the server's registered service.
const ServiceName = "tubepulse.accounts.v1.AccountService"

func fullMethod(name string) string { return "/" + ServiceName + "/" + name }

type GRPCClient struct {
	conn *grpc.ClientConn

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// New dials target without transport security unless opts says otherwise.
func New(target string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{}
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	opts = append(opts, grpc.WithUnaryInterceptor(c.accessTokenInterceptor))
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (c *GRPCClient) Close() error { return c.conn.Close() }

func (c *GRPCClient) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

func (c *GRPCClient) SetTokens(access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken, c.refreshToken = access, refresh
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	md.Delete(common.AuthorizationHeaderName)
	if token != "" {
		md.Set(common.AuthorizationHeaderName, "Bearer "+token)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	access, refresh := c.Tokens()

	err := invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}
	if status.Code(err) != codes.Unauthenticated || refresh == "" || method == fullMethod("Refresh") || method == fullMethod("Login") {
		return err
	}

	if _, rerr := c.Refresh(ctx); rerr != nil {
		return err
	}
	access, _ = c.Tokens()
	return invoker(withAccessToken(ctx, access), method, req, reply, cc, opts...)
}

// Call invokes method with req and returns the decoded response fields.
func (c *GRPCClient) Call(ctx context.Context, method string, req map[string]any) (map[string]any, error) {
	var out map[string]any
	if err := c.call(ctx, method, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *GRPCClient) call(ctx context.Context, method string, req map[string]any, into any) error {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", method, err)
	}
	out := &structpb.Struct{}
	if err := c.conn.Invoke(ctx, fullMethod(method), in, out); err != nil {
		return err
	}
	if into == nil {
		return nil
	}
	data, err := protojson.Marshal(out)
	if err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	return nil
}

func (c *GRPCClient) authenticate(ctx context.Context, method string, req map[string]any) (*services.AuthResult, error) {
	res := &services.AuthResult{}
	if err := c.call(ctx, method, req, res); err != nil {
		return nil, err
	}
	if res.AccessToken != "" {
		c.SetTokens(res.AccessToken, res.RefreshToken)
	}
	return res, nil
}

func (c *GRPCClient) Register(ctx context.Context, email, password, name string) (*services.AuthResult, error) {
	return c.authenticate(ctx, "Register", map[string]any{"email": email, "password": password, "name": name})
}

func (c *GRPCClient) Login(ctx context.Context, email, password string) (*services.AuthResult, error) {
	return c.authenticate(ctx, "Login", map[string]any{"email": email, "password": password})
}

func (c *GRPCClient) VerifyEmail(ctx context.Context, token string) (*services.AuthResult, error) {
	return c.authenticate(ctx, "VerifyEmail", map[string]any{"token": token})
}

// Refresh rotates the stored refresh credential.
func (c *GRPCClient) Refresh(ctx context.Context) (*services.AuthResult, error) {
	_, refresh := c.Tokens()
	return c.authenticate(ctx, "Refresh", map[string]any{"refreshToken": refresh})
}

func (c *GRPCClient) Me(ctx context.Context) (models.Public, error) {
	var p models.Public
	err := c.call(ctx, "Me", map[string]any{}, &p)
	return p, err
}

func (c *GRPCClient) ListSessions(ctx context.Context) ([]models.SessionView, error) {
	var out struct {
		Sessions []models.SessionView `json:"sessions"`
	}
	err := c.call(ctx, "ListSessions", map[string]any{}, &out)
	return out.Sessions, err
}

// Logout ends the current session and forgets the stored credentials.
func (c *GRPCClient) Logout(ctx context.Context) error {
	_, refresh := c.Tokens()
	if err := c.call(ctx, "Logout", map[string]any{"refreshToken": refresh}, nil); err != nil {
		return err
	}
	c.SetTokens("", "")
	return nil
}

// Conn exposes the underlying connection for other services on the same
// endpoint, such as health checks.
func (c *GRPCClient) Conn() *grpc.ClientConn { return c.conn }
