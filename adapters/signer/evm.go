package signer

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/chomp-auth/core"
	"github.com/layer-3/chomp-auth/ports"
)

// EVMProvider is the injected Ethereum wallet API (EIP-1193 shaped)
type EVMProvider interface {
	// Accounts returns the connected accounts; empty means not connected
	Accounts(ctx context.Context) ([]string, error)
	// PersonalSign signs an EIP-191 personal message with the given account
	PersonalSign(ctx context.Context, message, address string) (string, error)
}

// EVMSigner signs challenges with an Ethereum wallet
type EVMSigner struct {
	provider EVMProvider
	codes    RejectionCodes
}

// NewEVMSigner creates a signer over provider; a nil provider means no wallet
func NewEVMSigner(provider EVMProvider, codes RejectionCodes) *EVMSigner {
	if codes == nil {
		codes = DefaultRejectionCodes()
	}
	return &EVMSigner{provider: provider, codes: codes}
}

var _ ports.Signer = (*EVMSigner)(nil)

func (s *EVMSigner) Family() core.ChainFamily {
	return core.ChainEVM
}

// Identifier returns the first connected account, checksummed
func (s *EVMSigner) Identifier(ctx context.Context) (string, error) {
	if s.provider == nil {
		return "", noWallet(core.ChainEVM)
	}
	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		return "", classify(core.ChainEVM, s.codes, err)
	}
	if len(accounts) == 0 {
		return "", notConnected()
	}
	if !common.IsHexAddress(accounts[0]) {
		return "", core.NewAuthError(core.KindWallet, fmt.Sprintf("wallet returned invalid address %q", accounts[0]), nil)
	}
	return common.HexToAddress(accounts[0]).Hex(), nil
}

// Sign returns a 0x-prefixed 65 byte signature with v in {27, 28}
func (s *EVMSigner) Sign(ctx context.Context, message string) (string, error) {
	address, err := s.Identifier(ctx)
	if err != nil {
		return "", err
	}

	raw, err := s.provider.PersonalSign(ctx, message, address)
	if err != nil {
		return "", classify(core.ChainEVM, s.codes, err)
	}

	sig, err := hexutil.Decode(raw)
	if err != nil || len(sig) != 65 {
		return "", core.NewAuthError(core.KindWallet, "wallet returned a malformed signature", err)
	}
	// Some wallets return the raw recovery id
	if sig[64] < 27 {
		sig[64] += 27
	}
	return hexutil.Encode(sig), nil
}
