package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/rs/zerolog"
)

const (
	// RedirectKey is the store key of the outstanding OAuth2 redirect
	RedirectKey = "oauth2:redirect"

	// RedirectTTL bounds how long a redirect may take to come back
	RedirectTTL = 10 * time.Minute
)

// callbackParams are removed from the URL once a callback is handled
var callbackParams = []string{"code", "state", "error", "error_description"}

type redirectMarker struct {
	Provider string `json:"provider"`
	State    string `json:"state"`
	// Bound is set when State came from the authorization URL and the
	// provider is expected to echo it back
	Bound bool `json:"bound"`
}

func loadMarker(ctx context.Context, store ports.Store) (redirectMarker, error) {
	raw, err := store.Get(ctx, RedirectKey)
	if err != nil {
		return redirectMarker{}, err
	}
	var m redirectMarker
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return redirectMarker{}, fmt.Errorf("failed to decode redirect marker: %w", err)
	}
	if m.Provider == "" {
		return redirectMarker{}, core.ErrNotFound
	}
	return m, nil
}

// OAuth2 logs in through a provider's authorization code redirect. The
// attempt leaves the process; Callback finishes it from the return URL.
type OAuth2 struct {
	provider string
	backend  ports.OAuthBackend
	store    ports.Store
	nav      ports.Navigator
	logger   zerolog.Logger
}

// NewOAuth2 creates an OAuth2 flow for provider
func NewOAuth2(provider string, backend ports.OAuthBackend, store ports.Store, nav ports.Navigator, logger zerolog.Logger) *OAuth2 {
	return &OAuth2{
		provider: provider,
		backend:  backend,
		store:    store,
		nav:      nav,
		logger:   logger.With().Str("provider", provider).Logger(),
	}
}

var _ ports.ResumableFlow = (*OAuth2)(nil)

// Method returns the OAuth2 method for the provider
func (o *OAuth2) Method() core.AuthMethod {
	return core.OAuth2Method(o.provider)
}

// Attempt fetches the authorization URL, remembers the redirect and
// navigates away. It always ends in core.ErrRedirectPending on success.
func (o *OAuth2) Attempt(ctx context.Context, _ string, _ ports.Progress) (core.Session, error) {
	authURL, err := o.backend.AuthorizationURL(ctx, o.provider)
	if err != nil {
		return core.Session{}, err
	}

	marker := redirectMarker{Provider: o.provider}
	if u, err := url.Parse(authURL); err == nil && u.Query().Get("state") != "" {
		marker.State = u.Query().Get("state")
		marker.Bound = true
	} else {
		marker.State = uuid.New().String()
	}

	payload, err := json.Marshal(marker)
	if err != nil {
		return core.Session{}, fmt.Errorf("failed to encode redirect marker: %w", err)
	}
	if err := o.store.Set(ctx, RedirectKey, string(payload), RedirectTTL); err != nil {
		return core.Session{}, core.NewAuthError(core.KindAuth, "failed to remember oauth2 redirect", err)
	}

	if o.nav == nil {
		return core.Session{}, core.NewAuthError(core.KindAuth, "no way to open the authorization url", nil)
	}
	if err := o.nav.Navigate(ctx, authURL); err != nil {
		return core.Session{}, core.NewAuthError(core.KindAuth, "failed to open the authorization url", err)
	}

	o.logger.Debug().Bool("bound", marker.Bound).Msg("redirecting to oauth2 provider")
	return core.Session{}, core.ErrRedirectPending
}

// Returned reports whether rawURL is a provider callback
func (o *OAuth2) Returned(rawURL string) bool {
	return IsCallback(rawURL)
}

// Callback resolves the attempt from the URL the provider sent the user back to
func (o *OAuth2) Callback(ctx context.Context, rawURL string) (core.Session, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return core.Session{}, rawURL, core.NewAuthError(core.KindAuth, "invalid callback url", err)
	}
	query := u.Query()
	cleaned := StripCallback(u)

	if providerErr := query.Get("error"); providerErr != "" {
		o.forget(ctx)
		return core.Session{}, cleaned, core.NewAuthError(core.KindAuth, "OAuth2 error: "+providerErr, nil)
	}

	code := query.Get("code")
	if code == "" {
		return core.Session{}, cleaned, core.ErrNoCallback
	}

	marker, err := loadMarker(ctx, o.store)
	switch {
	case errors.Is(err, core.ErrNotFound):
		return core.Session{}, cleaned, core.NewAuthError(core.KindAuth, "no oauth2 login in progress", core.ErrStateMismatch)
	case err != nil:
		return core.Session{}, cleaned, core.NewAuthError(core.KindAuth, "failed to load oauth2 redirect", err)
	case marker.Provider != o.provider:
		return core.Session{}, cleaned, core.NewAuthError(core.KindAuth, "oauth2 callback is for another provider", core.ErrStateMismatch)
	case marker.Bound && query.Get("state") != marker.State:
		o.forget(ctx)
		return core.Session{}, cleaned, core.NewAuthError(core.KindAuth, "oauth2 state mismatch", core.ErrStateMismatch)
	}
	o.forget(ctx)

	session, err := o.backend.DirectLogin(ctx, o.Method(), code)
	if err != nil {
		return core.Session{}, cleaned, err
	}
	session.Method = o.Method()
	return session, cleaned, nil
}

func (o *OAuth2) forget(ctx context.Context) {
	if err := o.store.Delete(ctx, RedirectKey); err != nil {
		o.logger.Warn().Err(err).Msg("failed to drop oauth2 redirect marker")
	}
}

// IsCallback reports whether rawURL carries OAuth2 callback parameters
func IsCallback(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	q := u.Query()
	return q.Get("code") != "" || q.Get("error") != ""
}

// StripCallback returns u without the OAuth2 callback parameters
func StripCallback(u *url.URL) string {
	clean := *u
	q := clean.Query()
	for _, p := range callbackParams {
		q.Del(p)
	}
	clean.RawQuery = q.Encode()
	return clean.String()
}
