// Package flow holds the per-method authentication flows. A flow runs a
// single attempt and is thrown away afterwards.
package flow

import (
	"context"
	"fmt"
	"time"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/rs/zerolog"
)

// Backend is everything the flows need from the auth backend
type Backend interface {
	ports.OAuthBackend
	ports.ChallengeClient
}

// Builder creates flows bound to one backend, wallet resolver and store
type Builder struct {
	backend Backend
	wallets ports.WalletResolver
	store   ports.Store
	logger  zerolog.Logger
	now     func() time.Time
}

// Option configures the Builder
type Option func(*Builder)

// WithLogger sets a custom logger
func WithLogger(logger zerolog.Logger) Option {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a flow builder. wallets may be nil when no wallet is
// available; wallet attempts then fail with a wallet error.
func NewBuilder(backend Backend, wallets ports.WalletResolver, store ports.Store, opts ...Option) *Builder {
	b := &Builder{
		backend: backend,
		wallets: wallets,
		store:   store,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ ports.FlowBuilder = (*Builder)(nil)

// Build returns a new flow for method
func (b *Builder) Build(method core.AuthMethod, nav ports.Navigator) (ports.Flow, error) {
	switch method.Kind {
	case core.KindStatic:
		return NewStatic(b.backend), nil
	case core.KindOAuth2:
		if method.Provider == "" {
			return nil, fmt.Errorf("%w: missing oauth2 provider", core.ErrInvalidMethod)
		}
		return NewOAuth2(method.Provider, b.backend, b.store, nav, b.logger), nil
	case core.KindWeb3:
		if !method.Family.Valid() {
			return nil, fmt.Errorf("%w: unknown chain family %q", core.ErrInvalidMethod, method.Family)
		}
		w := NewWeb3(method.Family, b.wallets, b.backend, b.logger)
		w.now = b.now
		return w, nil
	}
	return nil, fmt.Errorf("%w: %q", core.ErrInvalidMethod, method.Kind)
}

// PendingRedirect reports the OAuth2 method whose redirect is still outstanding
func (b *Builder) PendingRedirect(ctx context.Context) (core.AuthMethod, bool) {
	marker, err := loadMarker(ctx, b.store)
	if err != nil {
		return core.AuthMethod{}, false
	}
	return core.OAuth2Method(marker.Provider), true
}

type nopProgress struct{}

func (nopProgress) ChallengeIssued(core.Challenge) {}
func (nopProgress) Signed()                        {}
