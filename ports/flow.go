package ports

import (
	"context"

	"github.com/layer-3/chomp-auth/core"
)

// Progress receives intermediate steps of a flow attempt
type Progress interface {
	ChallengeIssued(challenge core.Challenge)
	Signed()
}

// Flow runs one authentication attempt for a single method
type Flow interface {
	Method() core.AuthMethod
	// Attempt returns a classified *core.AuthError on failure.
	// Flows that leave the process return core.ErrRedirectPending.
	Attempt(ctx context.Context, identifier string, progress Progress) (core.Session, error)
}

// ResumableFlow is a flow whose result arrives on a later navigation
type ResumableFlow interface {
	Flow
	// Returned reports whether rawURL carries the outcome of the redirect
	Returned(rawURL string) bool
	// Callback resolves the attempt from the return URL and reports the URL
	// with the callback parameters removed.
	Callback(ctx context.Context, rawURL string) (core.Session, string, error)
}

// Navigator performs the full-page redirect to an external URL
type Navigator interface {
	Navigate(ctx context.Context, url string) error
}

// FlowBuilder creates a fresh flow for every attempt
type FlowBuilder interface {
	Build(method core.AuthMethod, nav Navigator) (Flow, error)
	// PendingRedirect reports the method of a redirect still waiting for its callback
	PendingRedirect(ctx context.Context) (core.AuthMethod, bool)
}
