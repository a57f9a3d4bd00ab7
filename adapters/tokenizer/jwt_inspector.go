package tokenizer

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/layer-3/chomp-auth/ports"
)

// JWTInspector reads access token claims without verifying the signature.
// The backend remains the only authority on validity; claims are used for
// expiry display and to skip liveness checks on tokens that are already dead.
type JWTInspector struct {
	parser *jwt.Parser
}

// NewJWTInspector creates a new inspector
func NewJWTInspector() *JWTInspector {
	return &JWTInspector{parser: jwt.NewParser()}
}

var _ ports.TokenInspector = (*JWTInspector)(nil)

// Inspect returns the claims of a JWT access token, or ok=false for opaque tokens
func (j *JWTInspector) Inspect(token string) (ports.TokenClaims, bool) {
	if strings.Count(token, ".") != 2 {
		return ports.TokenClaims{}, false
	}

	claims := &AccessClaims{}
	if _, _, err := j.parser.ParseUnverified(token, claims); err != nil {
		return ports.TokenClaims{}, false
	}

	out := ports.TokenClaims{Subject: claims.Subject}
	if out.Subject == "" {
		out.Subject = claims.UserID
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, true
}
