package client

import (
	"context"
	"net/http"

	"finetune-console/internal/transport"
	"finetune-console/pkg/api"
)

// AuthClient talks to the /auth endpoints. Register and login go out without
// the session credential, and none of its calls pass through the session
// policy: a 401 here means wrong credentials or a rejected stored token and is
// handled by the caller, never by a global redirect.
type AuthClient struct {
	doer transport.Doer
}

func NewAuthClient(doer transport.Doer) *AuthClient {
	return &AuthClient{doer: doer}
}

func (c *AuthClient) Register(ctx context.Context, req api.RegisterRequest) error {
	return c.doer.Do(ctx, transport.Request{
		Method:    http.MethodPost,
		Path:      "/auth/register",
		Body:      req,
		Anonymous: true,
	}, nil)
}

func (c *AuthClient) Login(ctx context.Context, req api.LoginRequest) (api.LoginResponse, error) {
	var res api.LoginResponse
	err := c.doer.Do(ctx, transport.Request{
		Method:    http.MethodPost,
		Path:      "/auth/login",
		Body:      req,
		Anonymous: true,
	}, &res)
	return res, err
}

func (c *AuthClient) CurrentUser(ctx context.Context) (api.User, error) {
	var user api.User
	err := c.doer.Do(ctx, transport.Request{Method: http.MethodGet, Path: "/auth/me"}, &user)
	return user, err
}
