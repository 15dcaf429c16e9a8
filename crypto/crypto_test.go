package crypto

import (
	"strings"
	"testing"
)

func TestGenerateServerSeed(t *testing.T) {
	seed1, hash1, err := GenerateServerSeed()
	if err != nil {
		t.Fatalf("GenerateServerSeed failed: %v", err)
	}
	seed2, _, err := GenerateServerSeed()
	if err != nil {
		t.Fatalf("GenerateServerSeed failed: %v", err)
	}

	if seed1 == seed2 {
		t.Error("GenerateServerSeed() produced duplicate seeds")
	}
	if len(seed1) != 64 {
		t.Errorf("seed length = %d, want 64", len(seed1))
	}
	if hash1 != HashSeed(seed1) {
		t.Errorf("hash does not commit to seed")
	}
	if !VerifySeed(seed1, hash1) {
		t.Errorf("VerifySeed rejected a fresh commitment")
	}
}

func TestVerifySeedRejectsPerturbation(t *testing.T) {
	seed, hash, err := GenerateServerSeed()
	if err != nil {
		t.Fatal(err)
	}

	tampered := []byte(seed)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}

	if VerifySeed(string(tampered), hash) {
		t.Errorf("VerifySeed accepted a perturbed seed")
	}
}

func TestHashSeedKnownVector(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := HashSeed("abc"); got != want {
		t.Errorf("HashSeed(abc) = %s, want %s", got, want)
	}
}

func TestGenerateClientSeed(t *testing.T) {
	seed, err := GenerateClientSeed()
	if err != nil {
		t.Fatal(err)
	}
	if len(seed) != 32 {
		t.Errorf("client seed length = %d, want 32", len(seed))
	}
}

func TestSignerRoundTrip(t *testing.T) {
	signer, err := NewEphemeralSigner()
	if err != nil {
		t.Fatalf("NewEphemeralSigner failed: %v", err)
	}

	payload := []byte("commitment|0|abc")
	sig, err := signer.Sign(payload)
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 2+65*2 {
		t.Fatalf("unexpected signature format: %s", sig)
	}

	recovered, err := RecoverSigner(payload, sig)
	if err != nil {
		t.Fatalf("RecoverSigner failed: %v", err)
	}
	if recovered != signer.Address() {
		t.Errorf("recovered %s, want %s", recovered.Hex(), signer.Address().Hex())
	}

	if VerifySignature([]byte("commitment|1|abc"), sig, signer.Address()) {
		t.Errorf("signature verified over a different payload")
	}
}

func TestNewSignerFromHex(t *testing.T) {
	// well-known throwaway key used across go-ethereum tests
	const key = "0xb71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

	s1, err := NewSigner(key)
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	s2, err := NewSigner(strings.TrimPrefix(key, "0x"))
	if err != nil {
		t.Fatalf("NewSigner failed: %v", err)
	}
	if s1.Address() != s2.Address() {
		t.Errorf("0x prefix changed the derived address")
	}

	if _, err := NewSigner(""); err == nil {
		t.Errorf("expected error for empty key")
	}
	if _, err := NewSigner("zz"); err == nil {
		t.Errorf("expected error for malformed key")
	}
}
