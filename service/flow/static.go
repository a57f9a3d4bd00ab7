package flow

import (
	"context"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
)

// Static logs in with a shared token
type Static struct {
	backend ports.Authenticator
}

// NewStatic creates a static token flow
func NewStatic(backend ports.Authenticator) *Static {
	return &Static{backend: backend}
}

// Method returns the static method
func (s *Static) Method() core.AuthMethod {
	return core.StaticMethod()
}

// Attempt exchanges the token for a session. The identifier is the token.
func (s *Static) Attempt(ctx context.Context, token string, _ ports.Progress) (core.Session, error) {
	if token == "" {
		return core.Session{}, core.NewAuthError(core.KindAuth, "token is required", nil)
	}

	session, err := s.backend.DirectLogin(ctx, s.Method(), token)
	if err != nil {
		return core.Session{}, err
	}
	session.Method = s.Method()
	return session, nil
}
