// Package backend is the typed contract of the campus REST API. Every call
// goes through the httpclient pipeline.
package backend

import (
	"context"
	"net/http"
	"net/url"

	"github.com/jrsteele09/campus-session-client/httpclient"
	"github.com/pkg/errors"
)

// API paths, relative to the API base URL.
const (
	PathLogin      = "/login"
	PathRegister   = "/register"
	PathLogout     = "/logout"
	PathRefresh    = "/token/refresh"
	PathCaptcha    = "/captcha"
	PathVerifyCode = "/verify/email"
	PathStudyPlans = "/study-plans"
)

// Doer sends a request through the interceptor chain.
type Doer interface {
	Do(ctx context.Context, req *httpclient.Request, out any) error
}

// Client wraps the auth endpoints and offers plain Get/Post for everything
// else.
type Client struct {
	doer Doer
}

func NewClient(doer Doer) *Client {
	return &Client{doer: doer}
}

// authRequest builds a request to an auth endpoint. These never trigger
// auto-login and never reach the global presenter; callers show the error.
func authRequest(method, path string, body any) *httpclient.Request {
	return &httpclient.Request{
		Method:          method,
		Path:            path,
		JSON:            body,
		SkipGlobalError: true,
		SkipAuthRetry:   true,
	}
}

func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var result LoginResult
	if err := c.doer.Do(ctx, authRequest(http.MethodPost, PathLogin, req), &result); err != nil {
		return nil, err
	}
	result.Normalize()
	return &result, nil
}

// Captcha fetches a login challenge.
func (c *Client) Captcha(ctx context.Context) (*Captcha, error) {
	var captcha Captcha
	if err := c.doer.Do(ctx, authRequest(http.MethodGet, PathCaptcha, nil), &captcha); err != nil {
		return nil, err
	}
	return &captcha, nil
}

func (c *Client) Register(ctx context.Context, req RegisterRequest) error {
	return c.doer.Do(ctx, authRequest(http.MethodPost, PathRegister, req), nil)
}

// Logout tells the backend the session is over.
func (c *Client) Logout(ctx context.Context) error {
	return c.doer.Do(ctx, authRequest(http.MethodPost, PathLogout, nil), nil)
}

// RefreshToken exchanges a refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	body := map[string]string{"refreshToken": refreshToken}
	var result RefreshResult
	if err := c.doer.Do(ctx, authRequest(http.MethodPost, PathRefresh, body), &result); err != nil {
		return nil, err
	}
	if result.Token == "" {
		return nil, errors.New("[Client.RefreshToken] response carries no token")
	}
	return &result, nil
}

// SendVerifyCode mails a registration code to email.
func (c *Client) SendVerifyCode(ctx context.Context, email string) error {
	body := map[string]string{"email": email}
	return c.doer.Do(ctx, authRequest(http.MethodPost, PathVerifyCode, body), nil)
}

// Get calls an authenticated endpoint and decodes the envelope data into out.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.doer.Do(ctx, &httpclient.Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.doer.Do(ctx, &httpclient.Request{Method: http.MethodPost, Path: path, JSON: body}, out)
}

// Upload posts a multipart form.
func (c *Client) Upload(ctx context.Context, path string, form *httpclient.Form, out any) error {
	return c.doer.Do(ctx, &httpclient.Request{Method: http.MethodPost, Path: path, Form: form}, out)
}
