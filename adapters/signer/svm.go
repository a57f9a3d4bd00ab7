package signer

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/mr-tron/base58"
)

// SVMProvider is the injected Solana wallet adapter API
type SVMProvider interface {
	// PublicKey returns the connected account key; nil means not connected
	PublicKey(ctx context.Context) ([]byte, error)
	SignMessage(ctx context.Context, message []byte) ([]byte, error)
}

// SVMSigner signs challenges with a Solana wallet
type SVMSigner struct {
	provider SVMProvider
	codes    RejectionCodes
}

// NewSVMSigner creates a signer over provider; a nil provider means no wallet
func NewSVMSigner(provider SVMProvider, codes RejectionCodes) *SVMSigner {
	if codes == nil {
		codes = DefaultRejectionCodes()
	}
	return &SVMSigner{provider: provider, codes: codes}
}

var _ ports.Signer = (*SVMSigner)(nil)

func (s *SVMSigner) Family() core.ChainFamily {
	return core.ChainSVM
}

// Identifier returns the base58 public key
func (s *SVMSigner) Identifier(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", noWallet(core.ChainSVM)
	}
	pub, err := s.provider.PublicKey(ctx)
	if err != nil {
		return "", classify(core.ChainSVM, s.codes, err)
	}
	if len(pub) == 0 {
		return "", notConnected()
	}
	if len(pub) != ed25519.PublicKeySize {
		return "", core.NewAuthError(core.KindWallet, "wallet returned a malformed public key", nil)
	}
	return base58.Encode(pub), nil
}

// Sign returns the hex encoded ed25519 signature of the UTF-8 message
func (s *SVMSigner) Sign(ctx context.Context, message string) (string, error) {
	if _, err := s.Identifier(ctx); err != nil {
		return "", err
	}

	sig, err := s.provider.SignMessage(ctx, []byte(message))
	if err != nil {
		return "", classify(core.ChainSVM, s.codes, err)
	}
	if len(sig) != ed25519.SignatureSize {
		return "", core.NewAuthError(core.KindWallet, "wallet returned a malformed signature", nil)
	}
	return hex.EncodeToString(sig), nil
}
