package signer

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/layer-3/chomp-auth/core"
)

const (
	// CodeUserRejected is the EIP-1193 "user rejected request" code. Solana and
	// Sui wallets that mimic the injected-provider API reuse it.
	CodeUserRejected = 4001

	// CodeUnauthorized is the EIP-1193 code for an account the wallet won't sign for
	CodeUnauthorized = 4100
)

// ProviderError is the error shape wallet providers raise
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("wallet error %d: %s", e.Code, e.Message)
}

// RejectionCodes lists, per chain family, the provider codes meaning the user
// declined the prompt. The codes are wallet conventions rather than a standard,
// so they are configurable.
type RejectionCodes map[core.ChainFamily][]int

// DefaultRejectionCodes recognises 4001 for every family
func DefaultRejectionCodes() RejectionCodes {
	return RejectionCodes{
		core.ChainEVM: {CodeUserRejected},
		core.ChainSVM: {CodeUserRejected},
		core.ChainSui: {CodeUserRejected},
	}
}

func (r RejectionCodes) rejected(family core.ChainFamily, err error) bool {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		return false
	}
	if slices.Contains(r[family], pe.Code) {
		return true
	}
	// Wallet-standard Sui wallets signal rejection by message only
	return family == core.ChainSui && strings.Contains(strings.ToLower(pe.Message), "rejected")
}

// classify normalises any provider failure into a wallet AuthError
func classify(family core.ChainFamily, codes RejectionCodes, err error) error {
	if err == nil {
		return nil
	}
	var ae *core.AuthError
	if errors.As(err, &ae) {
		return err
	}
	if codes.rejected(family, err) {
		return core.NewAuthError(core.KindWallet, core.ErrUserRejected.Error(),
			fmt.Errorf("%w: %w", core.ErrUserRejected, err))
	}
	return core.NewAuthError(core.KindWallet, err.Error(), err)
}

func noWallet(family core.ChainFamily) error {
	return core.NewAuthError(core.KindWallet, fmt.Sprintf("no %s wallet detected", family), core.ErrNoWallet)
}

func notConnected() error {
	return core.NewAuthError(core.KindWallet, core.ErrWalletNotConnected.Error(), core.ErrWalletNotConnected)
}
