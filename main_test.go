package main

import "testing"

func TestNewSignerRequiresKeyForDurableStore(t *testing.T) {
	if _, err := newSigner("", true); err == nil {
		t.Fatal("expected an error without SERVER_PRIVATE_KEY when rounds are persisted")
	}

	signer, err := newSigner("", false)
	if err != nil || signer == nil {
		t.Fatalf("in-memory store should fall back to an ephemeral key: %v", err)
	}

	const key = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"
	a, err := newSigner(key, true)
	if err != nil {
		t.Fatalf("newSigner failed: %v", err)
	}
	b, err := newSigner(key, true)
	if err != nil {
		t.Fatalf("newSigner failed: %v", err)
	}
	if a.Address() != b.Address() {
		t.Errorf("a configured key must survive restarts: %s vs %s", a.Address().Hex(), b.Address().Hex())
	}
}
