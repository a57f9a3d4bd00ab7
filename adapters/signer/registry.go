package signer

import (
	"context"
	"sync"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
)

// Registry resolves the signer registered for a chain family
type Registry struct {
	mu      sync.RWMutex
	signers map[core.ChainFamily]ports.Signer
}

// NewRegistry creates a registry holding the given signers
func NewRegistry(signers ...ports.Signer) *Registry {
	r := &Registry{signers: make(map[core.ChainFamily]ports.Signer)}
	for _, s := range signers {
		r.Register(s)
	}
	return r
}

var _ ports.WalletResolver = (*Registry)(nil)

// Register adds or replaces the signer for its family
func (r *Registry) Register(s ports.Signer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signers[s.Family()] = s
}

// Resolve returns the family's signer or a wallet error when none is present
func (r *Registry) Resolve(ctx context.Context, family core.ChainFamily) (ports.Signer, error) {
	r.mu.RLock()
	s, ok := r.signers[family]
	r.mu.RUnlock()

	if !ok {
		return nil, noWallet(family)
	}
	return s, nil
}
