package signer

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

const suiFlagEd25519 = 0x00

// suiIntentPersonalMessage is the intent prefix (scope, version, app id) Sui
// wallets prepend to personal messages before hashing
var suiIntentPersonalMessage = []byte{3, 0, 0}

// ErrSignatureMismatch is returned when a signature does not match the identifier
var ErrSignatureMismatch = errors.New("signature does not match identifier")

// SuiAddress derives the 0x address of an ed25519 public key
func SuiAddress(pub ed25519.PublicKey) string {
	h := blake2b.Sum256(append([]byte{suiFlagEd25519}, pub...))
	return "0x" + hex.EncodeToString(h[:])
}

// SuiPersonalMessageDigest hashes intent || bcs(vector<u8> message)
func SuiPersonalMessageDigest(message []byte) [32]byte {
	buf := make([]byte, 0, len(suiIntentPersonalMessage)+binaryUvarintLen(len(message))+len(message))
	buf = append(buf, suiIntentPersonalMessage...)
	buf = appendULEB128(buf, uint64(len(message)))
	buf = append(buf, message...)
	return blake2b.Sum256(buf)
}

// VerifyEVM checks an EIP-191 personal_sign signature against an address
func VerifyEVM(message, signature, address string) error {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != 65 {
		return fmt.Errorf("malformed evm signature: %w", ErrSignatureMismatch)
	}
	sig = append([]byte(nil), sig...)
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("recover evm signer: %w", ErrSignatureMismatch)
	}
	if crypto.PubkeyToAddress(*pub) != common.HexToAddress(address) {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifySVM checks a hex ed25519 signature against a base58 public key
func VerifySVM(message, signature, identifier string) error {
	pub, err := base58.Decode(identifier)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("malformed svm public key: %w", ErrSignatureMismatch)
	}
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("malformed svm signature: %w", ErrSignatureMismatch)
	}
	if !ed25519.Verify(pub, []byte(message), sig) {
		return ErrSignatureMismatch
	}
	return nil
}

// VerifySui checks a serialized Sui ed25519 personal message signature
func VerifySui(message, signature, address string) error {
	raw, err := base64.StdEncoding.DecodeString(signature)
	if err != nil || len(raw) != 1+ed25519.SignatureSize+ed25519.PublicKeySize || raw[0] != suiFlagEd25519 {
		return fmt.Errorf("malformed sui signature: %w", ErrSignatureMismatch)
	}
	sig := raw[1 : 1+ed25519.SignatureSize]
	pub := ed25519.PublicKey(raw[1+ed25519.SignatureSize:])

	if !strings.EqualFold(SuiAddress(pub), address) {
		return ErrSignatureMismatch
	}
	digest := SuiPersonalMessageDigest([]byte(message))
	if !ed25519.Verify(pub, digest[:], sig) {
		return ErrSignatureMismatch
	}
	return nil
}

func appendULEB128(buf []byte, v uint64) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(buf, b)
		}
		buf = append(buf, b|0x80)
	}
}

func binaryUvarintLen(n int) int {
	l := 1
	for n >= 0x80 {
		n >>= 7
		l++
	}
	return l
}

func decodeBase58(s string) ([]byte, error) {
	return base58.Decode(s)
}
