package flow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
	"github.com/rs/zerolog"
)

// Web3 logs in by signing a backend challenge with a wallet
type Web3 struct {
	family     core.ChainFamily
	wallets    ports.WalletResolver
	challenges ports.ChallengeClient
	logger     zerolog.Logger
	now        func() time.Time
}

// NewWeb3 creates a wallet flow for one chain family
func NewWeb3(family core.ChainFamily, wallets ports.WalletResolver, challenges ports.ChallengeClient, logger zerolog.Logger) *Web3 {
	return &Web3{
		family:     family,
		wallets:    wallets,
		challenges: challenges,
		logger:     logger.With().Str("family", string(family)).Logger(),
		now:        time.Now,
	}
}

// Method returns the wallet method for the family
func (w *Web3) Method() core.AuthMethod {
	return core.Web3Method(w.family)
}

// Attempt runs challenge, sign and verify in order. The identifier is taken
// from the wallet when the caller does not supply one; a supplied identifier
// must be the wallet's account. Any failure ends the attempt with its kind
// unchanged.
func (w *Web3) Attempt(ctx context.Context, identifier string, progress ports.Progress) (core.Session, error) {
	if progress == nil {
		progress = nopProgress{}
	}
	if w.wallets == nil {
		return core.Session{}, core.NewAuthError(core.KindWallet, core.ErrNoWallet.Error(), core.ErrNoWallet)
	}

	signer, err := w.wallets.Resolve(ctx, w.family)
	if err != nil {
		return core.Session{}, err
	}

	account, err := signer.Identifier(ctx)
	if err != nil {
		return core.Session{}, err
	}
	if identifier == "" {
		identifier = account
	} else if !sameAccount(w.family, identifier, account) {
		return core.Session{}, core.NewAuthError(core.KindWallet,
			fmt.Sprintf("connected %s account %s does not match %s", w.family, account, identifier),
			core.ErrAccountMismatch)
	}

	challenge, err := w.challenges.CreateChallenge(ctx, w.Method(), identifier)
	if err != nil {
		return core.Session{}, err
	}
	progress.ChallengeIssued(challenge)

	// Expiry is the backend's call; an expired challenge is still submitted
	if challenge.Expired(w.now()) {
		w.logger.Debug().Str("challenge_id", challenge.ID).Msg("challenge already expired")
	}

	signature, err := signer.Sign(ctx, challenge.Message)
	if err != nil {
		return core.Session{}, err
	}
	progress.Signed()

	session, err := w.challenges.Verify(ctx, challenge.ID, identifier, signature)
	if err != nil {
		return core.Session{}, err
	}
	session.Method = w.Method()
	return session, nil
}

// sameAccount compares identifiers; EVM and Sui addresses are hex and compare
// case-insensitively, SVM base58 keys exactly
func sameAccount(family core.ChainFamily, a, b string) bool {
	if family == core.ChainSVM {
		return a == b
	}
	return strings.EqualFold(a, b)
}
