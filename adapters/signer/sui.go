package signer

import (
	"context"
	"encoding/base64"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
)

// SuiAccount is the connected Sui wallet account
type SuiAccount struct {
	Address   string
	PublicKey []byte
}

// SuiSignedMessage is what a Sui wallet returns from signPersonalMessage
type SuiSignedMessage struct {
	Bytes     string // base64 of the signed message
	Signature string // base64 serialized signature: flag || sig || pubkey
}

// SuiProvider is the injected Sui wallet-standard API
type SuiProvider interface {
	// CurrentAccount returns nil when not connected
	CurrentAccount(ctx context.Context) (*SuiAccount, error)
	SignPersonalMessage(ctx context.Context, message []byte) (SuiSignedMessage, error)
}

// SuiSigner signs challenges with a Sui wallet
type SuiSigner struct {
	provider SuiProvider
	codes    RejectionCodes
}

// NewSuiSigner creates a signer over provider; a nil provider means no wallet
func NewSuiSigner(provider SuiProvider, codes RejectionCodes) *SuiSigner {
	if codes == nil {
		codes = DefaultRejectionCodes()
	}
	return &SuiSigner{provider: provider, codes: codes}
}

var _ ports.Signer = (*SuiSigner)(nil)

func (s *SuiSigner) Family() core.ChainFamily {
	return core.ChainSui
}

// Identifier returns the 0x-prefixed account address
func (s *SuiSigner) Identifier(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", noWallet(core.ChainSui)
	}
	account, err := s.provider.CurrentAccount(ctx)
	if err != nil {
		return "", classify(core.ChainSui, s.codes, err)
	}
	if account == nil || account.Address == "" {
		return "", notConnected()
	}
	return account.Address, nil
}

// Sign returns the wallet's base64 serialized signature unchanged
func (s *SuiSigner) Sign(ctx context.Context, message string) (string, error) {
	if _, err := s.Identifier(ctx); err != nil {
		return "", err
	}

	signed, err := s.provider.SignPersonalMessage(ctx, []byte(message))
	if err != nil {
		return "", classify(core.ChainSui, s.codes, err)
	}
	if _, err := base64.StdEncoding.DecodeString(signed.Signature); err != nil || signed.Signature == "" {
		return "", core.NewAuthError(core.KindWallet, "wallet returned a malformed signature", err)
	}
	return signed.Signature, nil
}
