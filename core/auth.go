package core

import (
	"fmt"
	"strings"
	"time"
)

// ChainFamily identifies a category of wallet API
type ChainFamily string

const (
	ChainEVM ChainFamily = "evm"
	ChainSVM ChainFamily = "svm"
	ChainSui ChainFamily = "sui"
)

// Valid reports whether the family is one of the supported chain families
func (f ChainFamily) Valid() bool {
	switch f {
	case ChainEVM, ChainSVM, ChainSui:
		return true
	}
	return false
}

// MethodKind is the credential scheme of an AuthMethod
type MethodKind string

const (
	KindStatic MethodKind = "static"
	KindOAuth2 MethodKind = "oauth2"
	KindWeb3   MethodKind = "web3"
)

// AuthMethod is the credential scheme selected for one flow attempt
type AuthMethod struct {
	Kind     MethodKind
	Provider string      // OAuth2 provider, e.g. "github"
	Family   ChainFamily // Web3 chain family
}

// StaticMethod returns the static token method
func StaticMethod() AuthMethod {
	return AuthMethod{Kind: KindStatic}
}

// OAuth2Method returns the OAuth2 method for a provider
func OAuth2Method(provider string) AuthMethod {
	return AuthMethod{Kind: KindOAuth2, Provider: provider}
}

// Web3Method returns the wallet method for a chain family
func Web3Method(family ChainFamily) AuthMethod {
	return AuthMethod{Kind: KindWeb3, Family: family}
}

// ParseAuthMethod parses both the canonical form ("static", "oauth2:github",
// "web3:evm") and the backend wire form ("static", "oauth2_github", "evm").
func ParseAuthMethod(s string) (AuthMethod, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case s == string(KindStatic):
		return StaticMethod(), nil
	case strings.HasPrefix(s, "oauth2:"), strings.HasPrefix(s, "oauth2_"):
		provider := s[len("oauth2:"):]
		if provider == "" {
			return AuthMethod{}, fmt.Errorf("%w: missing oauth2 provider", ErrInvalidMethod)
		}
		return OAuth2Method(provider), nil
	case strings.HasPrefix(s, "web3:"):
		s = strings.TrimPrefix(s, "web3:")
	}

	family := ChainFamily(s)
	if !family.Valid() {
		return AuthMethod{}, fmt.Errorf("%w: %q", ErrInvalidMethod, s)
	}
	return Web3Method(family), nil
}

// String returns the canonical form
func (m AuthMethod) String() string {
	switch m.Kind {
	case KindOAuth2:
		return "oauth2:" + m.Provider
	case KindWeb3:
		return "web3:" + string(m.Family)
	}
	return string(m.Kind)
}

// Wire returns the auth_method value the backend expects
func (m AuthMethod) Wire() string {
	switch m.Kind {
	case KindOAuth2:
		return "oauth2_" + m.Provider
	case KindWeb3:
		return string(m.Family)
	}
	return string(m.Kind)
}

// IsZero reports whether no method has been selected
func (m AuthMethod) IsZero() bool {
	return m.Kind == ""
}

// MarshalText implements encoding.TextMarshaler
func (m AuthMethod) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (m *AuthMethod) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*m = AuthMethod{}
		return nil
	}
	parsed, err := ParseAuthMethod(string(b))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Challenge represents a server-issued message a wallet must sign
type Challenge struct {
	ID        string    `json:"challenge_id"` // Unique identifier, never reused across attempts
	Message   string    `json:"message"`      // Opaque chain-signable payload
	ExpiresAt time.Time `json:"expires_at"`   // Enforced by the backend at verification
}

// Expired reports whether the challenge is past its expiry. Display only.
func (c Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Session represents an authenticated client session
type Session struct {
	UserID    string     `json:"user_id"`
	Token     string     `json:"token"` // Opaque bearer credential
	Method    AuthMethod `json:"method"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at,omitempty"`
}

// Valid reports whether the session carries a usable token
func (s Session) Valid() bool {
	return s.Token != ""
}

// Expired reports whether a known expiry has passed
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// Status is the backend's answer to a session liveness check
type Status struct {
	Authenticated bool   `json:"authenticated"`
	UserID        string `json:"user_id,omitempty"`
	Message       string `json:"message,omitempty"`
}
