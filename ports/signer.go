package ports

import (
	"context"

	"github.com/layer-3/chomp-auth/core"
)

// Signer produces a wallet identifier and signs opaque challenge messages.
// Every failure is a core.KindWallet AuthError.
type Signer interface {
	Family() core.ChainFamily
	Identifier(ctx context.Context) (string, error)
	Sign(ctx context.Context, message string) (string, error)
}

// WalletResolver resolves the signer for a chain family once per attempt
type WalletResolver interface {
	Resolve(ctx context.Context, family core.ChainFamily) (Signer, error)
}
