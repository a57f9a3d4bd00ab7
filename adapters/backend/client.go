package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	// DefaultUserID is used when the backend does not name the user
	DefaultUserID = "authenticated_user"

	// DefaultExpiresHours is assumed when a login response carries no lifetime
	DefaultExpiresHours = 24

	// maxErrorBody bounds how much of an error response is read
	maxErrorBody = 64 << 10
)

type challengeRequest struct {
	AuthMethod string `json:"auth_method"`
	Identifier string `json:"identifier"`
}

type walletCredentials struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type verifyRequest struct {
	ChallengeID string            `json:"challenge_id"`
	Credentials walletCredentials `json:"credentials"`
}

type tokenCredentials struct {
	Token string `json:"token"`
}

type directRequest struct {
	AuthMethod  string           `json:"auth_method"`
	Credentials tokenCredentials `json:"credentials"`
}

type tokenResponse struct {
	AccessToken  string              `json:"access_token"`
	UserID       string              `json:"user_id"`
	ExpiresHours decimal.NullDecimal `json:"expires_hours"`
}

type authURLResponse struct {
	AuthURL string `json:"auth_url"`
}

// Client talks to the selected backend's auth endpoints. Every call is
// single-shot; failures come back as classified *core.AuthError values.
type Client struct {
	endpoint   *Endpoint
	httpClient *http.Client
	tokens     ports.TokenSource
	inspector  ports.TokenInspector
	logger     zerolog.Logger
	now        func() time.Time
}

// Option configures the Client
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTokenSource sets where the bearer token for authenticated calls comes from
func WithTokenSource(tokens ports.TokenSource) Option {
	return func(c *Client) {
		c.tokens = tokens
	}
}

// WithTokenInspector lets the client read expiry from JWT access tokens
func WithTokenInspector(inspector ports.TokenInspector) Option {
	return func(c *Client) {
		c.inspector = inspector
	}
}

// WithLogger sets a custom logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient creates a backend client bound to an endpoint
func NewClient(endpoint *Endpoint, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ ports.ChallengeClient = (*Client)(nil)
	_ ports.OAuthBackend    = (*Client)(nil)
	_ ports.SessionBackend  = (*Client)(nil)
)

// SetTokenSource binds the token source after construction. The session store
// depends on the client, so the two are usually wired in this order.
func (c *Client) SetTokenSource(tokens ports.TokenSource) {
	c.tokens = tokens
}

// Endpoint returns the endpoint the client reads its base URL from
func (c *Client) Endpoint() *Endpoint {
	return c.endpoint
}

// CreateChallenge asks the backend for a challenge bound to the identifier
func (c *Client) CreateChallenge(ctx context.Context, method core.AuthMethod, identifier string) (core.Challenge, error) {
	req := challengeRequest{AuthMethod: method.Wire(), Identifier: identifier}

	var challenge core.Challenge
	if err := c.do(ctx, http.MethodPost, "/auth/challenge", req, false, core.KindChallenge,
		"failed to create authentication challenge", &challenge); err != nil {
		return core.Challenge{}, err
	}
	if challenge.ID == "" || challenge.Message == "" {
		return core.Challenge{}, core.NewAuthError(core.KindChallenge, "backend returned an incomplete challenge", nil)
	}
	return challenge, nil
}

// Verify submits the signed challenge
func (c *Client) Verify(ctx context.Context, challengeID, identifier, signature string) (core.Session, error) {
	req := verifyRequest{
		ChallengeID: challengeID,
		Credentials: walletCredentials{Address: identifier, Signature: signature},
	}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/verify", req, false, core.KindAuth,
		"signature verification failed", &resp); err != nil {
		return core.Session{}, err
	}
	return c.session(resp, "signature verification failed")
}

// DirectLogin sends a credential (static token or OAuth2 code) to /auth/direct
func (c *Client) DirectLogin(ctx context.Context, method core.AuthMethod, credential string) (core.Session, error) {
	req := directRequest{
		AuthMethod:  method.Wire(),
		Credentials: tokenCredentials{Token: credential},
	}

	var resp tokenResponse
	if err := c.do(ctx, http.MethodPost, "/auth/direct", req, false, core.KindAuth,
		"authentication failed", &resp); err != nil {
		return core.Session{}, err
	}
	return c.session(resp, "authentication failed")
}

// AuthorizationURL fetches the provider authorization URL to redirect to
func (c *Client) AuthorizationURL(ctx context.Context, provider string) (string, error) {
	name := strings.ToUpper(provider)
	path := "/auth/" + url.PathEscape(provider) + "/login"

	var resp authURLResponse
	if err := c.do(ctx, http.MethodGet, path, nil, false, core.KindAuth,
		fmt.Sprintf("failed to get %s authorization url", name), &resp); err != nil {
		return "", err
	}
	if resp.AuthURL == "" {
		return "", core.NewAuthError(core.KindAuth, fmt.Sprintf("invalid response from %s login endpoint", name), nil)
	}
	return resp.AuthURL, nil
}

// Status asks the backend whether the current token is still valid.
// A 401 or 403 is an answer (not authenticated), not a failure.
func (c *Client) Status(ctx context.Context) (core.Status, error) {
	var status core.Status
	err := c.do(ctx, http.MethodGet, "/auth/status", nil, true, core.KindAuth,
		"failed to check authentication status", &status)
	if err != nil {
		if he, ok := asHTTPError(err); ok && (he.status == http.StatusUnauthorized || he.status == http.StatusForbidden) {
			return core.Status{Authenticated: false, Message: he.message}, nil
		}
		return core.Status{}, err
	}
	return status, nil
}

// Logout ends the session on the backend
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, true, core.KindAuth, "logout failed", nil)
}

func (c *Client) session(resp tokenResponse, failure string) (core.Session, error) {
	if resp.AccessToken == "" {
		return core.Session{}, core.NewAuthError(core.KindAuth, failure, nil)
	}

	now := c.now()
	session := core.Session{
		UserID:   resp.UserID,
		Token:    resp.AccessToken,
		IssuedAt: now,
	}

	var claims ports.TokenClaims
	var hasClaims bool
	if c.inspector != nil {
		claims, hasClaims = c.inspector.Inspect(resp.AccessToken)
	}

	switch {
	case resp.ExpiresHours.Valid:
		seconds := resp.ExpiresHours.Decimal.Mul(decimal.NewFromInt(3600)).IntPart()
		session.ExpiresAt = now.Add(time.Duration(seconds) * time.Second)
	case hasClaims && !claims.ExpiresAt.IsZero():
		session.ExpiresAt = claims.ExpiresAt
	default:
		session.ExpiresAt = now.Add(DefaultExpiresHours * time.Hour)
	}

	if session.UserID == "" && hasClaims {
		session.UserID = claims.Subject
	}
	if session.UserID == "" {
		session.UserID = DefaultUserID
	}
	return session, nil
}

// do performs a JSON request. Transport failures are network errors; non-2xx
// responses become kind errors carrying the backend message when there is one.
func (c *Client) do(ctx context.Context, method, path string, body any, authenticated bool,
	kind core.ErrorKind, failure string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint.BaseURL()+path, reader)
	if err != nil {
		return core.NewAuthError(core.KindNetwork, "invalid backend request", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authenticated && c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("path", path).Msg("backend request failed")
		return core.NewAuthError(core.KindNetwork, "network error: "+err.Error(), err)
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("backend request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		he := newHTTPError(resp)
		message := he.message
		if message == "" {
			message = fmt.Sprintf("%s (%s)", failure, he.statusText())
		}
		return core.NewAuthError(kind, message, he)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewAuthError(kind, failure+": malformed response", err)
	}
	return nil
}
