package nut11

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut10"
)

func sign(t *testing.T, priv *btcec.PrivateKey, hash []byte) string {
	t.Helper()
	sig := ecdsa.Sign(priv, hash)
	return hex.EncodeToString(sig.Serialize())
}

func TestParseP2PKTags(t *testing.T) {
	priv1, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	priv2, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	pub1 := hex.EncodeToString(priv1.PubKey().SerializeCompressed())
	pub2 := hex.EncodeToString(priv2.PubKey().SerializeCompressed())

	tags := [][]string{
		{"locktime", "21000000"},
		{"pubkeys", pub1, pub2},
		{"n_sigs", "2"},
		{"sigflag", "SIG_ALL"},
	}

	parsed, err := ParseP2PKTags(tags)
	if err != nil {
		t.Fatalf("unexpected error parsing tags: %v", err)
	}
	if parsed.Locktime != 21000000 {
		t.Fatalf("expected locktime 21000000 but got %d", parsed.Locktime)
	}
	if parsed.NSigs != 2 {
		t.Fatalf("expected n_sigs 2 but got %d", parsed.NSigs)
	}
	if parsed.SigFlag != "SIG_ALL" {
		t.Fatalf("expected sigflag SIG_ALL but got %s", parsed.SigFlag)
	}
	if len(parsed.Pubkeys) != 2 {
		t.Fatalf("expected 2 additional pubkeys but got %d", len(parsed.Pubkeys))
	}
}

func TestParseP2PKTagsInvalidLocktime(t *testing.T) {
	_, err := ParseP2PKTags([][]string{{"locktime", "not-a-number"}})
	if err == nil {
		t.Fatal("expected error parsing invalid locktime tag")
	}
}

func TestIsSecretP2PK(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	pub := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	secret, err := nut10.Serialize(nut10.P2PK, "nonce1234", pub, nil)
	if err != nil {
		t.Fatalf("error serializing secret: %v", err)
	}

	if !IsSecretP2PK(cashu.Proof{Secret: secret}) {
		t.Fatal("expected secret to be recognized as P2PK")
	}
	if IsSecretP2PK(cashu.Proof{Secret: "just a random opaque secret"}) {
		t.Fatal("expected opaque secret to not be recognized as P2PK")
	}
}

func TestIsSigAll(t *testing.T) {
	secretSigAll := nut10.WellKnownSecret{Kind: nut10.P2PK, Tags: [][]string{{"sigflag", "SIG_ALL"}}}
	if !IsSigAll(secretSigAll) {
		t.Fatal("expected SIG_ALL secret to report true")
	}

	secretDefault := nut10.WellKnownSecret{Kind: nut10.P2PK}
	if IsSigAll(secretDefault) {
		t.Fatal("expected secret without sigflag tag to default to SIG_INPUTS, not SIG_ALL")
	}
}

func TestProofsSigAll(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	pub := hex.EncodeToString(priv.PubKey().SerializeCompressed())

	sigAllSecret, err := nut10.Serialize(nut10.P2PK, "nonce1", pub, [][]string{{"sigflag", "SIG_ALL"}})
	if err != nil {
		t.Fatalf("error serializing secret: %v", err)
	}
	plainSecret, err := nut10.Serialize(nut10.P2PK, "nonce2", pub, nil)
	if err != nil {
		t.Fatalf("error serializing secret: %v", err)
	}

	if ProofsSigAll(cashu.Proofs{{Secret: plainSecret}}) {
		t.Fatal("expected no SIG_ALL proof among plain secrets")
	}
	if !ProofsSigAll(cashu.Proofs{{Secret: plainSecret}, {Secret: sigAllSecret}}) {
		t.Fatal("expected SIG_ALL proof to be detected")
	}
}

func TestPublicKeys(t *testing.T) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	extra, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	pub := hex.EncodeToString(priv.PubKey().SerializeCompressed())
	extraPub := hex.EncodeToString(extra.PubKey().SerializeCompressed())

	secret := nut10.WellKnownSecret{
		Kind: nut10.P2PK,
		Data: pub,
		Tags: [][]string{{"pubkeys", extraPub}},
	}

	keys, err := PublicKeys(secret)
	if err != nil {
		t.Fatalf("unexpected error getting public keys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 public keys but got %d", len(keys))
	}
	if hex.EncodeToString(keys[0].SerializeCompressed()) != pub {
		t.Fatal("expected primary key to be secret.Data")
	}
}

func TestHasValidSignatures(t *testing.T) {
	priv1, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	priv2, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}
	other, err := btcec.NewPrivateKey()
	if err != nil {
		t.Fatalf("error generating key: %v", err)
	}

	hash := sha256.Sum256([]byte("the secret being spent"))
	keys := []*btcec.PublicKey{priv1.PubKey(), priv2.PubKey()}

	witnessOneValid := P2PKWitness{Signatures: []string{sign(t, priv1, hash[:])}}
	if !HasValidSignatures(hash[:], witnessOneValid, 1, keys) {
		t.Fatal("expected 1 valid signature to satisfy a requirement of 1")
	}
	if HasValidSignatures(hash[:], witnessOneValid, 2, keys) {
		t.Fatal("expected 1 valid signature to not satisfy a requirement of 2")
	}

	witnessBothValid := P2PKWitness{Signatures: []string{sign(t, priv1, hash[:]), sign(t, priv2, hash[:])}}
	if !HasValidSignatures(hash[:], witnessBothValid, 2, keys) {
		t.Fatal("expected both signatures to satisfy a requirement of 2")
	}

	witnessWrongKey := P2PKWitness{Signatures: []string{sign(t, other, hash[:])}}
	if HasValidSignatures(hash[:], witnessWrongKey, 1, keys) {
		t.Fatal("expected signature from an unrelated key to not count")
	}

	witnessDuplicate := P2PKWitness{Signatures: []string{sign(t, priv1, hash[:]), sign(t, priv1, hash[:])}}
	if HasValidSignatures(hash[:], witnessDuplicate, 2, keys) {
		t.Fatal("expected the same key signing twice to not count as two distinct signatures")
	}
}
