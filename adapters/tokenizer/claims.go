package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims are the claims the backend puts in issued access tokens
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id,omitempty"`
}
