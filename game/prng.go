package game

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
)

// sliceScale maps a 32-bit slice onto [0, 1).
const sliceScale = 1 << 32

// Keyer computes the keyed MAC that drives a round. The active commitment
// implements it without ever handing out its secret; a revealed secret
// implements it through SecretKey.
type Keyer interface {
	MAC(message []byte) []byte
}

// SecretKey is a revealed secret seed used as the HMAC key.
type SecretKey string

// MAC returns HMAC-SHA256(key = secret, message).
func (k SecretKey) MAC(message []byte) []byte {
	return HMAC([]byte(k), message)
}

// HMAC returns HMAC-SHA256(key, message).
func HMAC(key, message []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(message)
	return h.Sum(nil)
}

// RoundMessage is the HMAC message for a round: clientSeed + ":" + sequence.
func RoundMessage(clientSeed string, sequence uint64) []byte {
	return []byte(clientSeed + ":" + strconv.FormatUint(sequence, 10))
}

// Digest computes the round digest, the sole source of randomness.
func Digest(key Keyer, clientSeed string, sequence uint64) []byte {
	return key.MAC(RoundMessage(clientSeed, sequence))
}

// Uniform reads the first 8 hex characters (32 bits) of digest as an unsigned
// integer and scales it into [0, 1). digest must hold at least 4 bytes.
func Uniform(digest []byte) float64 {
	return float64(binary.BigEndian.Uint32(digest[:4])) / sliceScale
}

// Slice returns the index-th independent uniform float derived from digest:
// the first 32 bits of SHA-256(hex(digest) + ":" + index). It is pure, so any
// slice can be recomputed on its own.
func Slice(digest []byte, index int) float64 {
	h := sha256.Sum256([]byte(hex.EncodeToString(digest) + ":" + strconv.Itoa(index)))
	return Uniform(h[:])
}

// Slices returns slices 0..n-1 of digest.
func Slices(digest []byte, n int) []float64 {
	if n <= 0 {
		return nil
	}
	floats := make([]float64, n)
	for i := range floats {
		floats[i] = Slice(digest, i)
	}
	return floats
}
