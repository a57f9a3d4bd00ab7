package ports

import "time"

// TokenClaims is the subset of access token claims the client cares about
type TokenClaims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenInspector reads claims from issued access tokens without verifying them
type TokenInspector interface {
	// Inspect returns ok=false for opaque (non-JWT) tokens
	Inspect(token string) (claims TokenClaims, ok bool)
}
