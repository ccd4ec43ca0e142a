package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"finetune-console/pkg/api"

	"github.com/go-resty/resty/v2"
)

// CredentialSource supplies the bearer credential attached to outgoing requests.
type CredentialSource interface {
	Credential() (api.Credential, bool)
}

type File struct {
	Param  string
	Name   string
	Reader io.Reader
}

type Request struct {
	Method string
	Path   string
	Body   any
	File   *File

	// Anonymous requests never carry the session credential (register, login).
	Anonymous bool
}

// Doer dispatches a request and decodes a successful JSON response into out.
type Doer interface {
	Do(ctx context.Context, req Request, out any) error
}

type Config struct {
	BaseURL string
	// Timeout of zero leaves the request unbounded apart from its context.
	Timeout   time.Duration
	UserAgent string
}

type Client struct {
	client *resty.Client
	creds  CredentialSource
}

var _ Doer = (*Client)(nil)

func New(cfg Config, creds CredentialSource) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	if cfg.UserAgent != "" {
		client.SetHeader("User-Agent", cfg.UserAgent)
	}
	client.SetHeader("Accept", "application/json")

	return &Client{client: client, creds: creds}
}

func (c *Client) token(req Request) string {
	if req.Anonymous || c.creds == nil {
		return ""
	}
	cred, ok := c.creds.Credential()
	if !ok {
		return ""
	}
	return cred.AccessToken
}

func (c *Client) Do(ctx context.Context, req Request, out any) error {
	token := c.token(req)

	r := c.client.R().SetContext(ctx)
	if token != "" {
		r.SetAuthToken(token)
	}
	if req.Body != nil {
		r.SetHeader("Content-Type", "application/json").SetBody(req.Body)
	}
	if req.File != nil {
		r.SetFileReader(req.File.Param, req.File.Name, req.File.Reader)
	}

	res, err := r.Execute(req.Method, req.Path)
	if err != nil {
		slog.Debug("request failed without response", "method", req.Method, "path", req.Path, "error", err)
		return &NetworkError{Method: req.Method, Path: req.Path, Err: err}
	}

	slog.Debug("request completed", "method", req.Method, "path", req.Path, "status", res.StatusCode(), "duration", res.Time())

	if res.StatusCode() == http.StatusUnauthorized {
		return &AuthenticationError{Detail: parseDetail(res.Body()), token: token}
	}

	if !res.IsSuccess() {
		return &RequestError{
			Method: req.Method,
			Path:   req.Path,
			Status: res.StatusCode(),
			Detail: parseDetail(res.Body()),
		}
	}

	body := res.Body()
	if out == nil || len(body) == 0 {
		return nil
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("error decoding response from %s %s: %w: %v", req.Method, req.Path, ErrMalformedResponse, err)
	}

	return nil
}
