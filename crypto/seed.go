package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
)

const (
	// ServerSeedBytes is the entropy of an operator secret (256 bits).
	ServerSeedBytes = 32

	// ClientSeedBytes is the entropy of a generated client seed.
	ClientSeedBytes = 16
)

// GenerateServerSeed creates a new operator secret and the public hash that
// commits to it. The secret is the hex string; the hash is SHA-256 over that
// string, so players can check it with any sha256 tool.
func GenerateServerSeed() (seed string, hash string, err error) {
	bytes := make([]byte, ServerSeedBytes)
	if _, err = rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to read server seed entropy: %w", err)
	}

	seed = hex.EncodeToString(bytes)
	hash = HashSeed(seed)

	return seed, hash, nil
}

// GenerateClientSeed creates a random client seed for players that did not
// supply one.
func GenerateClientSeed() (string, error) {
	bytes := make([]byte, ClientSeedBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to read client seed entropy: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// HashSeed returns the public commitment for a secret seed.
func HashSeed(seed string) string {
	h := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(h[:])
}

// VerifySeed reports whether seed hashes to the published hash.
func VerifySeed(seed, hash string) bool {
	computed := HashSeed(seed)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
