// Package httpclient is the request pipeline every backend call goes
// through. It attaches the bearer token, unwraps the {code, message, data}
// envelope, maps failures to display messages and recovers from an expired
// session by re-authenticating once and resubmitting the request.
package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/campus-session-client/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 16 << 20

// Envelope codes meaning success.
const (
	CodeOK      = 200
	CodeOKAlias = 0
)

// Reauthenticator obtains a new access token after staleToken was rejected.
// Concurrent calls must share one attempt.
type Reauthenticator interface {
	Reauthenticate(ctx context.Context, staleToken string) (string, error)
}

// AuthFailureHandler is told when re-authentication failed for good. It is
// expected to drop the session and send the user to the login view.
type AuthFailureHandler interface {
	OnTerminalAuthFailure(ctx context.Context)
}

// Presenter shows failure messages to the user.
type Presenter interface {
	Present(message string)
}

// LogPresenter presents messages as warnings in the log.
type LogPresenter struct{}

func (LogPresenter) Present(message string) {
	log.Warn().Str("message", message).Msg("request failed")
}

// Client sends Requests to the backend.
type Client struct {
	baseURL   *url.URL
	http      *http.Client
	tokens    oauth2.TokenSource
	presenter Presenter

	mu            sync.RWMutex
	reauth        Reauthenticator
	onAuthFailure AuthFailureHandler
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithHTTPClient uses a copy of hc as the underlying client. Later options
// change the copy only, so hc can be shared between Clients.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		clone := *hc
		c.http = &clone
	}
}

// WithTimeout bounds every attempt, including re-authentication calls.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithCookieJar shares a cookie jar with the session store.
func WithCookieJar(jar http.CookieJar) ClientOption {
	return func(c *Client) {
		c.http.Jar = jar
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts oauth2.TokenSource) ClientOption {
	return func(c *Client) {
		c.tokens = ts
	}
}

func WithPresenter(p Presenter) ClientOption {
	return func(c *Client) {
		c.presenter = p
	}
}

// WithMiddleware wraps the transport of the underlying client.
func WithMiddleware(mw ...Middleware) ClientOption {
	return func(c *Client) {
		c.http.Transport = Chain(c.http.Transport, mw...)
	}
}

func New(baseURL string, options ...ClientOption) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, errors.Wrap(err, "[httpclient.New] invalid base url")
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.Errorf("[httpclient.New] base url %q must be absolute", baseURL)
	}
	c := &Client{
		baseURL:   u,
		http:      &http.Client{Transport: http.DefaultTransport},
		presenter: LogPresenter{},
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// BaseURL is the backend origin plus API base path.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// SetReauthenticator wires the auto-login coordinator after construction.
func (c *Client) SetReauthenticator(r Reauthenticator) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reauth = r
}

func (c *Client) SetAuthFailureHandler(h AuthFailureHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAuthFailure = h
}

// Do sends the request and decodes the envelope data into out (which may be
// nil). Every error is an *Error.
func (c *Client) Do(ctx context.Context, req *Request, out any) error {
	state := &requestState{skipGlobalError: req.SkipGlobalError}
	err := c.do(ctx, req, out, state)
	if err != nil && !state.skipGlobalError && c.presenter != nil {
		var e *Error
		if errors.As(err, &e) {
			c.presenter.Present(e.Message)
		}
	}
	return err
}

func (c *Client) do(ctx context.Context, req *Request, out any, state *requestState) error {
	token := c.currentToken()

	// A JWT already past its exp would only earn a 401; spend the single
	// re-authentication up front instead.
	if token != nil && !token.Expiry.IsZero() && !token.Valid() && !req.SkipAuthRetry {
		state.retried = true
		fresh, err := c.reauthenticate(ctx, token.AccessToken)
		if err != nil {
			return c.terminalFailure(ctx, err)
		}
		token = &oauth2.Token{AccessToken: fresh}
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return err
	}

	if resp.status == http.StatusUnauthorized {
		if req.SkipAuthRetry || state.retried {
			return resp.authError()
		}
		state.retried = true

		stale := ""
		if token != nil {
			stale = token.AccessToken
		}
		fresh, err := c.reauthenticate(ctx, stale)
		if err != nil {
			return c.terminalFailure(ctx, err)
		}

		resp, err = c.send(ctx, req, &oauth2.Token{AccessToken: fresh})
		if err != nil {
			return err
		}
		if resp.status == http.StatusUnauthorized {
			log.Warn().Str("path", req.Path).Msg("request rejected again after re-authentication")
			return resp.authError()
		}
	}

	return resp.decode(out)
}

func (c *Client) currentToken() *oauth2.Token {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if err != nil || token == nil || token.AccessToken == "" {
		return nil
	}
	return token
}

func (c *Client) reauthenticate(ctx context.Context, staleToken string) (string, error) {
	c.mu.RLock()
	reauth := c.reauth
	c.mu.RUnlock()
	if reauth == nil {
		return "", apperrors.ErrAutoLoginFailed
	}
	fresh, err := reauth.Reauthenticate(ctx, staleToken)
	if err != nil {
		return "", err
	}
	if fresh == "" {
		return "", apperrors.ErrAutoLoginFailed
	}
	return fresh, nil
}

func (c *Client) terminalFailure(ctx context.Context, cause error) error {
	if errors.Is(cause, apperrors.ErrQueueFull) {
		return &Error{Kind: KindTerminalAuth, Status: http.StatusUnauthorized, Message: MessageTooManyPending, Err: cause}
	}

	c.mu.RLock()
	handler := c.onAuthFailure
	c.mu.RUnlock()
	if handler != nil {
		handler.OnTerminalAuthFailure(ctx)
	}
	return &Error{Kind: KindTerminalAuth, Status: http.StatusUnauthorized, Message: MessageSessionExpired, Err: cause}
}

type response struct {
	status int
	body   []byte
}

func (c *Client) send(ctx context.Context, req *Request, token *oauth2.Token) (*response, error) {
	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: MessageUnexpectedReply, Err: err}
	}
	if token != nil && token.AccessToken != "" {
		token.SetAuthHeader(httpReq)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, networkError(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, networkError(ctx, err)
	}
	return &response{status: resp.StatusCode, body: body}, nil
}

func (c *Client) build(ctx context.Context, req *Request) (*http.Request, error) {
	u := c.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}
	body, contentType, err := req.body()
	if err != nil {
		return nil, err
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.build] new request")
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

func networkError(ctx context.Context, err error) *Error {
	if ctx.Err() != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return &Error{Kind: KindNetwork, Message: MessageTimeout, Err: err}
		}
		return &Error{Kind: KindNetwork, Message: MessageCancelled, Err: err}
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &Error{Kind: KindNetwork, Message: MessageTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Message: MessageNetwork, Err: err}
}

type envelope struct {
	Code    *int            `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// serverMessage is the envelope message of an error body, if any.
func (r *response) serverMessage() string {
	var env envelope
	if err := json.Unmarshal(r.body, &env); err != nil {
		return ""
	}
	return strings.TrimSpace(env.Message)
}

func (r *response) authError() *Error {
	msg := r.serverMessage()
	if msg == "" {
		msg = StatusMessage(r.status)
	}
	return &Error{Kind: KindTerminalAuth, Status: r.status, Message: msg}
}

func (r *response) decode(out any) error {
	if r.status < 200 || r.status >= 300 {
		kind := KindClientHTTP
		if r.status >= 500 {
			kind = KindServerHTTP
		}
		msg := r.serverMessage()
		if msg == "" {
			msg = StatusMessage(r.status)
		}
		return &Error{Kind: kind, Status: r.status, Message: msg}
	}

	if len(strings.TrimSpace(string(r.body))) == 0 {
		return nil
	}
	var env envelope
	if err := json.Unmarshal(r.body, &env); err != nil {
		return &Error{Kind: KindServerHTTP, Status: r.status, Message: MessageUnexpectedReply, Err: err}
	}
	if env.Code == nil {
		// not an envelope, hand the whole body over
		return r.unmarshal(r.body, out)
	}
	if *env.Code != CodeOK && *env.Code != CodeOKAlias {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = MessageBusinessDefault
		}
		return &Error{Kind: KindBusiness, Status: r.status, Code: *env.Code, Message: msg}
	}
	return r.unmarshal(env.Data, out)
}

func (r *response) unmarshal(data []byte, out any) error {
	if out == nil || len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &Error{Kind: KindServerHTTP, Status: r.status, Message: MessageUnexpectedReply, Err: err}
	}
	return nil
}
