package backend

import (
	"net/http"

	"github.com/layer-3/chomp-auth/ports"
)

// BearerTransport attaches the current session token to outgoing requests.
// It never overrides an Authorization header set by the caller.
type BearerTransport struct {
	Base   http.RoundTripper
	Tokens ports.TokenSource
}

// RoundTrip implements http.RoundTripper
func (t *BearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}

	if req.Header.Get("Authorization") != "" || t.Tokens == nil {
		return base.RoundTrip(req)
	}
	token := t.Tokens.Token()
	if token == "" {
		return base.RoundTrip(req)
	}

	// RoundTrippers must not modify the caller's request
	clone := req.Clone(req.Context())
	clone.Header.Set("Authorization", "Bearer "+token)
	return base.RoundTrip(clone)
}
