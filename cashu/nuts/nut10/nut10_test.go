package nut10

import "testing"

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	tags := [][]string{{"sigflag", "SIG_ALL"}, {"n_sigs", "2"}}

	serialized, err := Serialize(P2PK, "abc123", "02deadbeef", tags)
	if err != nil {
		t.Fatalf("error serializing secret: %v", err)
	}

	secret, err := DeserializeSecret(serialized)
	if err != nil {
		t.Fatalf("error deserializing secret: %v", err)
	}

	if secret.Kind != P2PK {
		t.Fatalf("expected kind %v but got %v", P2PK, secret.Kind)
	}
	if secret.Nonce != "abc123" {
		t.Fatalf("expected nonce abc123 but got %s", secret.Nonce)
	}
	if secret.Data != "02deadbeef" {
		t.Fatalf("expected data 02deadbeef but got %s", secret.Data)
	}
	if len(secret.Tags) != 2 {
		t.Fatalf("expected 2 tags but got %d", len(secret.Tags))
	}
}

func TestDeserializeSecretRejectsOpaqueSecret(t *testing.T) {
	_, err := DeserializeSecret("just a plain random secret, not a well-known one")
	if err == nil {
		t.Fatal("expected an opaque random secret to fail deserialization")
	}
}

func TestDeserializeSecretAcceptsUnknownKind(t *testing.T) {
	serialized, err := Serialize(Kind("BOGUS"), "nonce", "data", nil)
	if err != nil {
		t.Fatalf("error serializing secret: %v", err)
	}

	secret, err := DeserializeSecret(serialized)
	if err != nil {
		t.Fatalf("unexpected error deserializing secret with unknown kind: %v", err)
	}
	if secret.Kind != Kind("BOGUS") {
		t.Fatalf("expected kind to round-trip even if unrecognized, got %v", secret.Kind)
	}
}
