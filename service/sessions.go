package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// SessionKey is the store key holding the persisted session
const SessionKey = "session"

// Sessions is the single source of truth for "am I logged in"
type Sessions struct {
	store     ports.Store
	backend   ports.SessionBackend
	inspector ports.TokenInspector
	eventPub  ports.EventPublisher
	logger    zerolog.Logger
	now       func() time.Time

	mu            sync.RWMutex
	session       *core.Session
	authenticated bool
	lastErr       error
	inflight      int // login, logout and check calls in progress
	idle          chan struct{}

	checks singleflight.Group
}

// SessionsOption configures Sessions
type SessionsOption func(*Sessions)

// WithTokenInspector lets CheckAuth drop locally expired JWTs without a backend call
func WithTokenInspector(inspector ports.TokenInspector) SessionsOption {
	return func(s *Sessions) {
		s.inspector = inspector
	}
}

// WithEventPublisher publishes login and logout events
func WithEventPublisher(eventPub ports.EventPublisher) SessionsOption {
	return func(s *Sessions) {
		s.eventPub = eventPub
	}
}

// WithSessionsLogger sets a custom logger
func WithSessionsLogger(logger zerolog.Logger) SessionsOption {
	return func(s *Sessions) {
		s.logger = logger
	}
}

// NewSessions creates a session store
func NewSessions(store ports.Store, backend ports.SessionBackend, opts ...SessionsOption) *Sessions {
	idle := make(chan struct{})
	close(idle)

	s := &Sessions{
		store:   store,
		backend: backend,
		logger:  zerolog.Nop(),
		now:     time.Now,
		idle:    idle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ ports.TokenSource = (*Sessions)(nil)

// Token returns the bearer token of the held session, authenticated or not.
// The status check itself needs it before the session is confirmed.
func (s *Sessions) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.Token
}

// Authenticated reports whether the held session has been verified
func (s *Sessions) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.authenticated
}

// Session returns the authenticated session
func (s *Sessions) Session() (core.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.authenticated || s.session == nil {
		return core.Session{}, false
	}
	return *s.session, true
}

// IsLoading reports whether a login, logout or status check is in flight
func (s *Sessions) IsLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

// Idle returns a channel that is closed once nothing is in flight
func (s *Sessions) Idle() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idle
}

// Error returns the last session-level error
func (s *Sessions) Error() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// ClearError forgets the last session-level error
func (s *Sessions) ClearError() {
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()
}

// Login stores a verified session and marks the client authenticated
func (s *Sessions) Login(ctx context.Context, session core.Session) error {
	if !session.Valid() {
		return core.NewAuthError(core.KindAuth, "no access token in session", nil)
	}

	s.beginLoading()
	defer s.endLoading()

	if err := s.persist(ctx, session); err != nil {
		return err
	}

	s.mu.Lock()
	s.session = &session
	s.authenticated = true
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info().Str("user_id", session.UserID).Str("method", session.Method.String()).Msg("logged in")

	if s.eventPub != nil {
		if err := s.eventPub.PublishLogin(ctx, session); err != nil {
			s.logger.Warn().Err(err).Msg("failed to publish login event")
		}
	}
	return nil
}

// Logout ends the session. The backend is told on a best-effort basis; the
// local session is always cleared.
func (s *Sessions) Logout(ctx context.Context) error {
	s.beginLoading()
	defer s.endLoading()

	s.mu.RLock()
	var userID string
	hasToken := s.session != nil && s.session.Token != ""
	if s.session != nil {
		userID = s.session.UserID
	}
	s.mu.RUnlock()

	if hasToken {
		if err := s.backend.Logout(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("backend logout failed")
		}
	}

	err := s.clear(ctx, nil)

	if userID != "" {
		s.logger.Info().Str("user_id", userID).Msg("logged out")
		if s.eventPub != nil {
			if err := s.eventPub.PublishLogout(ctx, userID); err != nil {
				s.logger.Warn().Err(err).Msg("failed to publish logout event")
			}
		}
	}
	return err
}

// CheckAuth re-validates the persisted session with the backend. Concurrent
// calls share one check, which outlives the caller that started it. Any
// answer other than authenticated clears the session; a cancelled caller
// clears nothing.
func (s *Sessions) CheckAuth(ctx context.Context) (bool, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.checks.DoChan("check", func() (any, error) {
		return s.check(shared)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *Sessions) check(ctx context.Context) (bool, error) {
	s.beginLoading()
	defer s.endLoading()

	session, err := s.load(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return false, s.clear(ctx, nil)
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("discarding unreadable session")
		return false, s.clear(ctx, err)
	}

	if s.expired(session) {
		s.logger.Debug().Str("user_id", session.UserID).Msg("session expired locally")
		return false, s.clear(ctx, nil)
	}

	// The status call authenticates with the loaded token
	s.mu.Lock()
	s.session = &session
	s.authenticated = false
	s.mu.Unlock()

	status, err := s.backend.Status(ctx)
	if errors.Is(err, context.Canceled) {
		// Not an answer from the backend; the session is left for the next check
		return false, err
	}
	if err != nil {
		s.logger.Warn().Err(err).Msg("session check failed")
		if clearErr := s.clearIfCurrent(ctx, session.Token, err); clearErr != nil {
			return false, clearErr
		}
		return false, err
	}
	if !status.Authenticated {
		return false, s.clearIfCurrent(ctx, session.Token, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil || s.session.Token != session.Token {
		// A login or logout happened while the check was running
		return s.authenticated, nil
	}
	s.authenticated = true
	s.lastErr = nil
	return true, nil
}

func (s *Sessions) expired(session core.Session) bool {
	now := s.now()
	if session.Expired(now) {
		return true
	}
	if s.inspector == nil {
		return false
	}
	claims, ok := s.inspector.Inspect(session.Token)
	return ok && !claims.ExpiresAt.IsZero() && now.After(claims.ExpiresAt)
}

func (s *Sessions) load(ctx context.Context) (core.Session, error) {
	raw, err := s.store.Get(ctx, SessionKey)
	if err != nil {
		return core.Session{}, err
	}
	var session core.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		return core.Session{}, fmt.Errorf("failed to decode session: %w", err)
	}
	if !session.Valid() {
		return core.Session{}, core.ErrNotFound
	}
	return session, nil
}

func (s *Sessions) persist(ctx context.Context, session core.Session) error {
	var ttl time.Duration
	if !session.ExpiresAt.IsZero() {
		ttl = session.ExpiresAt.Sub(s.now())
		if ttl <= 0 {
			return core.NewAuthError(core.KindAuth, "session is already expired", nil)
		}
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.store.Set(ctx, SessionKey, string(payload), ttl); err != nil {
		return core.NewAuthError(core.KindAuth, "failed to store session", err)
	}
	return nil
}

// clear drops the session from memory and storage, recording cause
func (s *Sessions) clear(ctx context.Context, cause error) error {
	s.mu.Lock()
	s.session = nil
	s.authenticated = false
	s.lastErr = cause
	s.mu.Unlock()

	// The stored token must go even when the caller has given up
	if err := s.store.Delete(context.WithoutCancel(ctx), SessionKey); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// clearIfCurrent clears only if token is still the held session
func (s *Sessions) clearIfCurrent(ctx context.Context, token string, cause error) error {
	s.mu.RLock()
	current := s.session != nil && s.session.Token == token
	s.mu.RUnlock()
	if !current {
		return nil
	}
	return s.clear(ctx, cause)
}

func (s *Sessions) beginLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inflight == 0 {
		s.idle = make(chan struct{})
	}
	s.inflight++
}

func (s *Sessions) endLoading() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inflight--
	if s.inflight == 0 {
		close(s.idle)
	}
}
