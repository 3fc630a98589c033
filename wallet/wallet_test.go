package wallet

import (
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/crypto"
	"github.com/gonuts-mint/gonuts/wallet/storage"
)

func testMintKeyset(t *testing.T) *crypto.MintKeyset {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(32)
	if err != nil {
		t.Fatalf("error generating seed: %v", err)
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("error deriving master key: %v", err)
	}
	keyset, err := crypto.GenerateKeyset(master, 0, 0)
	if err != nil {
		t.Fatalf("error generating keyset: %v", err)
	}
	return keyset
}

// walletKeyset builds the wallet-facing (public-keys-only) view of a
// mint keyset, the way GetMintCurrentKeyset does from a /v1/keys response.
func walletKeyset(mintKeyset *crypto.MintKeyset) *crypto.Keyset {
	keyset := &crypto.Keyset{Id: mintKeyset.Id, Unit: mintKeyset.Unit}
	for amount, pub := range mintKeyset.DerivePublic() {
		pubBytes, _ := hex.DecodeString(pub)
		keyset.KeyPairs = append(keyset.KeyPairs, crypto.KeyPair{Amount: amount, PublicKey: pubBytes})
	}
	return keyset
}

// signBlindedMessages mints blindedMessages against mintKeyset, mimicking
// what the mint's MintTokens/Swap handlers do server-side.
func signBlindedMessages(t *testing.T, mintKeyset *crypto.MintKeyset, messages cashu.BlindedMessages) cashu.BlindedSignatures {
	t.Helper()
	signatures := make(cashu.BlindedSignatures, len(messages))
	for i, msg := range messages {
		kp, ok := mintKeyset.Keys[msg.Amount]
		if !ok {
			t.Fatalf("no key for amount %d in keyset", msg.Amount)
		}
		B_bytes, err := hex.DecodeString(msg.B_)
		if err != nil {
			t.Fatalf("error decoding B_: %v", err)
		}
		B_, err := secp256k1.ParsePubKey(B_bytes)
		if err != nil {
			t.Fatalf("error parsing B_: %v", err)
		}
		C_ := crypto.SignBlindedMessage(B_, kp.PrivateKey)
		signatures[i] = cashu.BlindedSignature{
			Amount: msg.Amount,
			C_:     hex.EncodeToString(C_.SerializeCompressed()),
			Id:     mintKeyset.Id,
		}
	}
	return signatures
}

func newTestWallet(t *testing.T) *Wallet {
	t.Helper()
	db, err := storage.InitBolt(t.TempDir())
	if err != nil {
		t.Fatalf("error initializing wallet storage: %v", err)
	}
	return &Wallet{db: db, MintURL: "http://127.0.0.1:3338"}
}

func TestConstructProofs(t *testing.T) {
	w := newTestWallet(t)
	mintKeyset := testMintKeyset(t)
	keyset := walletKeyset(mintKeyset)

	var amount uint64 = 2400
	blindedMessages, secrets, rs, err := cashu.CreateBlindedMessages(amount, mintKeyset.Id)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}

	signatures := signBlindedMessages(t, mintKeyset, blindedMessages)

	proofs, err := w.ConstructProofs(signatures, secrets, rs, keyset)
	if err != nil {
		t.Fatalf("error constructing proofs: %v", err)
	}

	if proofs.Amount() != amount {
		t.Fatalf("expected proofs to total %d but got %d", amount, proofs.Amount())
	}

	for _, proof := range proofs {
		kp, ok := mintKeyset.Keys[proof.Amount]
		if !ok {
			t.Fatalf("no mint key for amount %d", proof.Amount)
		}
		Cbytes, err := hex.DecodeString(proof.C)
		if err != nil {
			t.Fatalf("error decoding proof C: %v", err)
		}
		C, err := secp256k1.ParsePubKey(Cbytes)
		if err != nil {
			t.Fatalf("error parsing proof C: %v", err)
		}
		if !crypto.Verify(proof.Secret, kp.PrivateKey, C) {
			t.Fatalf("proof for amount %d did not verify against the mint's key", proof.Amount)
		}
	}
}

func TestStoreProofsAndGetBalance(t *testing.T) {
	w := newTestWallet(t)
	mintKeyset := testMintKeyset(t)
	keyset := walletKeyset(mintKeyset)

	if w.GetBalance() != 0 {
		t.Fatalf("expected a fresh wallet to have balance 0 but got %d", w.GetBalance())
	}

	var amount uint64 = 6000
	blindedMessages, secrets, rs, err := cashu.CreateBlindedMessages(amount, mintKeyset.Id)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}
	signatures := signBlindedMessages(t, mintKeyset, blindedMessages)

	proofs, err := w.ConstructProofs(signatures, secrets, rs, keyset)
	if err != nil {
		t.Fatalf("error constructing proofs: %v", err)
	}

	if err := w.StoreProofs(proofs); err != nil {
		t.Fatalf("error storing proofs: %v", err)
	}

	if w.GetBalance() != amount {
		t.Fatalf("expected balance %d after storing proofs but got %d", amount, w.GetBalance())
	}

	reloaded := &Wallet{db: w.db, MintURL: w.MintURL}
	reloaded.proofs = reloaded.db.GetProofs()
	if reloaded.GetBalance() != amount {
		t.Fatalf("expected reloaded wallet to see persisted balance %d but got %d", amount, reloaded.GetBalance())
	}
}

func TestSendInsufficientFunds(t *testing.T) {
	w := newTestWallet(t)

	_, err := w.Send(1000)
	if err == nil {
		t.Fatal("expected error sending more than the wallet's balance")
	}
}

func TestSendExactBalanceNoMintRoundTrip(t *testing.T) {
	w := newTestWallet(t)
	mintKeyset := testMintKeyset(t)
	keyset := walletKeyset(mintKeyset)

	var amount uint64 = 128
	blindedMessages, secrets, rs, err := cashu.CreateBlindedMessages(amount, mintKeyset.Id)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}
	signatures := signBlindedMessages(t, mintKeyset, blindedMessages)
	proofs, err := w.ConstructProofs(signatures, secrets, rs, keyset)
	if err != nil {
		t.Fatalf("error constructing proofs: %v", err)
	}
	if err := w.StoreProofs(proofs); err != nil {
		t.Fatalf("error storing proofs: %v", err)
	}

	// sending the wallet's entire balance takes the early-return path in
	// Send that never needs to reach the mint for a swap.
	token, err := w.Send(amount)
	if err != nil {
		t.Fatalf("error sending exact balance: %v", err)
	}
	if token.Proofs.Amount() != amount {
		t.Fatalf("expected token worth %d but got %d", amount, token.Proofs.Amount())
	}
	if w.GetBalance() != 0 {
		t.Fatalf("expected balance 0 after sending it all but got %d", w.GetBalance())
	}
}

func TestSetWalletPath(t *testing.T) {
	path := setWalletPath()
	if filepath.Base(path) != "wallet" {
		t.Fatalf("expected wallet path to end in 'wallet' but got %s", path)
	}
}
