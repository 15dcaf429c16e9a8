package crypto

import (
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Signer signs round receipts with the operator's secp256k1 key. Anyone holding
// the operator address can check a receipt with RecoverSigner.
type Signer struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

// NewSigner loads a signer from a hex private key (with or without 0x).
func NewSigner(privateKeyHex string) (*Signer, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")
	if privateKeyHex == "" {
		return nil, fmt.Errorf("private key is empty")
	}

	privateKey, err := ethcrypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}

	return newSigner(privateKey)
}

// NewEphemeralSigner creates a signer with a throwaway key. Receipts signed by
// it are only checkable while the process lives and knows the address.
func NewEphemeralSigner() (*Signer, error) {
	privateKey, err := ethcrypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return newSigner(privateKey)
}

func newSigner(privateKey *ecdsa.PrivateKey) (*Signer, error) {
	publicKey, ok := privateKey.Public().(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("failed to get public key")
	}

	return &Signer{
		privateKey: privateKey,
		address:    ethcrypto.PubkeyToAddress(*publicKey),
	}, nil
}

// Address returns the signer's public address.
func (s *Signer) Address() common.Address {
	return s.address
}

// Sign returns a 0x-prefixed 65 byte signature over keccak256(payload).
func (s *Signer) Sign(payload []byte) (string, error) {
	digest := ethcrypto.Keccak256Hash(payload)

	sig, err := ethcrypto.Sign(digest.Bytes(), s.privateKey)
	if err != nil {
		return "", fmt.Errorf("failed to sign payload: %w", err)
	}

	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverSigner returns the address that produced signature over payload.
func RecoverSigner(payload []byte, signature string) (common.Address, error) {
	sig, err := hex.DecodeString(strings.TrimPrefix(signature, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != ethcrypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", ethcrypto.SignatureLength, len(sig))
	}

	digest := ethcrypto.Keccak256Hash(payload)
	sigPublicKey, err := ethcrypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to recover public key: %w", err)
	}

	return ethcrypto.PubkeyToAddress(*sigPublicKey), nil
}

// VerifySignature reports whether signature over payload was made by expected.
func VerifySignature(payload []byte, signature string, expected common.Address) bool {
	recovered, err := RecoverSigner(payload, signature)
	if err != nil {
		return false
	}
	return recovered == expected
}
