package signer

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/chomp-auth/core"
)

// ApproveFunc asks the user whether to sign message. Returning false is
// reported to the signer as a user rejection.
type ApproveFunc func(ctx context.Context, family core.ChainFamily, message string) bool

func approved(ctx context.Context, approve ApproveFunc, family core.ChainFamily, message string) error {
	if approve == nil || approve(ctx, family, message) {
		return nil
	}
	return &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
}

// EVMKeyWallet is an EVMProvider backed by a local secp256k1 key
type EVMKeyWallet struct {
	key     *ecdsa.PrivateKey
	approve ApproveFunc
}

// NewEVMKeyWallet loads a hex private key (with or without 0x)
func NewEVMKeyWallet(hexKey string, approve ApproveFunc) (*EVMKeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid evm private key: %w", err)
	}
	return &EVMKeyWallet{key: key, approve: approve}, nil
}

// NewEVMKeyWalletFromKey wraps an existing key
func NewEVMKeyWalletFromKey(key *ecdsa.PrivateKey, approve ApproveFunc) *EVMKeyWallet {
	return &EVMKeyWallet{key: key, approve: approve}
}

func (w *EVMKeyWallet) Accounts(ctx context.Context) ([]string, error) {
	return []string{crypto.PubkeyToAddress(w.key.PublicKey).Hex()}, nil
}

func (w *EVMKeyWallet) PersonalSign(ctx context.Context, message, address string) (string, error) {
	own := crypto.PubkeyToAddress(w.key.PublicKey).Hex()
	if !strings.EqualFold(own, address) {
		return "", &ProviderError{Code: CodeUnauthorized, Message: "account not authorized"}
	}
	if err := approved(ctx, w.approve, core.ChainEVM, message); err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

// SVMKeyWallet is an SVMProvider backed by a local ed25519 key
type SVMKeyWallet struct {
	key     ed25519.PrivateKey
	approve ApproveFunc
}

// NewSVMKeyWallet wraps an ed25519 private key
func NewSVMKeyWallet(key ed25519.PrivateKey, approve ApproveFunc) *SVMKeyWallet {
	return &SVMKeyWallet{key: key, approve: approve}
}

func (w *SVMKeyWallet) PublicKey(ctx context.Context) ([]byte, error) {
	return w.key.Public().(ed25519.PublicKey), nil
}

func (w *SVMKeyWallet) SignMessage(ctx context.Context, message []byte) ([]byte, error) {
	if err := approved(ctx, w.approve, core.ChainSVM, string(message)); err != nil {
		return nil, err
	}
	return ed25519.Sign(w.key, message), nil
}

// SuiKeyWallet is a SuiProvider backed by a local ed25519 key
type SuiKeyWallet struct {
	key     ed25519.PrivateKey
	approve ApproveFunc
}

// NewSuiKeyWallet wraps an ed25519 private key
func NewSuiKeyWallet(key ed25519.PrivateKey, approve ApproveFunc) *SuiKeyWallet {
	return &SuiKeyWallet{key: key, approve: approve}
}

func (w *SuiKeyWallet) CurrentAccount(ctx context.Context) (*SuiAccount, error) {
	pub := w.key.Public().(ed25519.PublicKey)
	return &SuiAccount{Address: SuiAddress(pub), PublicKey: pub}, nil
}

func (w *SuiKeyWallet) SignPersonalMessage(ctx context.Context, message []byte) (SuiSignedMessage, error) {
	if err := approved(ctx, w.approve, core.ChainSui, string(message)); err != nil {
		return SuiSignedMessage{}, err
	}

	digest := SuiPersonalMessageDigest(message)
	sig := ed25519.Sign(w.key, digest[:])
	pub := w.key.Public().(ed25519.PublicKey)

	serialized := make([]byte, 0, 1+len(sig)+len(pub))
	serialized = append(serialized, suiFlagEd25519)
	serialized = append(serialized, sig...)
	serialized = append(serialized, pub...)

	return SuiSignedMessage{
		Bytes:     base64.StdEncoding.EncodeToString(message),
		Signature: base64.StdEncoding.EncodeToString(serialized),
	}, nil
}

// ParseEd25519Key accepts a 32 byte seed or 64 byte key, hex or base58 encoded
func ParseEd25519Key(encoded string) (ed25519.PrivateKey, error) {
	encoded = strings.TrimSpace(encoded)
	raw, err := hexutil.Decode(ensure0x(encoded))
	if err != nil {
		if raw, err = decodeBase58(encoded); err != nil {
			return nil, fmt.Errorf("invalid ed25519 key: not hex or base58")
		}
	}

	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, fmt.Errorf("invalid ed25519 key length %d", len(raw))
}

func ensure0x(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s
	}
	return "0x" + s
}
