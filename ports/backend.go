package ports

import (
	"context"

	"github.com/layer-3/chomp-auth/core"
)

// ChallengeClient issues and verifies wallet challenges
type ChallengeClient interface {
	CreateChallenge(ctx context.Context, method core.AuthMethod, identifier string) (core.Challenge, error)
	Verify(ctx context.Context, challengeID, identifier, signature string) (core.Session, error)
}

// Authenticator exchanges a direct credential (static token or OAuth2 code) for a session
type Authenticator interface {
	DirectLogin(ctx context.Context, method core.AuthMethod, credential string) (core.Session, error)
}

// OAuthBackend hands out provider authorization URLs
type OAuthBackend interface {
	Authenticator
	AuthorizationURL(ctx context.Context, provider string) (string, error)
}

// SessionBackend checks and ends sessions on the backend
type SessionBackend interface {
	Status(ctx context.Context) (core.Status, error)
	Logout(ctx context.Context) error
}

// TokenSource supplies the bearer token for authenticated requests
type TokenSource interface {
	Token() string
}
