// Package testutils provides shared fixtures for mint package tests: a
// mock-lightning-backed test mint, blinded message helpers, and proof
// construction, the same helpers a docker-based integration suite would
// need but built on mint/lightning's MockClient so tests run without an
// external bitcoind/lnd.
package testutils

import (
	"encoding/hex"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/crypto"
	"github.com/gonuts-mint/gonuts/mint"
	"github.com/gonuts-mint/gonuts/mint/lightning"
)

const (
	BOLT11_METHOD = "bolt11"
	SAT_UNIT      = "sat"
)

// CreateTestMint builds a Mint backed by a fresh sqlite file at path and
// a lightning.MockClient, mirroring mint.LoadMint's bootstrap.
func CreateTestMint(path, dbMigrationPath string, inputFeePpk uint, limits mint.MintLimits) (*mint.Mint, *lightning.MockClient, error) {
	mockClient := lightning.NewMockClient()

	testMint, err := mint.LoadMint(mint.Config{
		MintPath:        path,
		DBMigrationPath: dbMigrationPath,
		InputFeePpk:     inputFeePpk,
		LightningClient: mockClient,
		Limits:          limits,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("error creating test mint: %v", err)
	}

	return testMint, mockClient, nil
}

// CreateBlindedMessages prepares amount's worth of blinded outputs bound
// to keyset, returning the messages alongside the secrets and blinding
// factors needed to construct proofs once signatures come back.
func CreateBlindedMessages(amount uint64, keyset crypto.MintKeyset) (cashu.BlindedMessages, [][]byte, []*secp256k1.PrivateKey, error) {
	return cashu.CreateBlindedMessages(amount, keyset.Id)
}

// ConstructProofs finalizes blind signatures into spendable proofs the
// way wallet.Wallet.ConstructProofs does, but against a mint-side
// MintKeyset rather than the wallet's public-key-only view.
func ConstructProofs(signatures cashu.BlindedSignatures, secrets [][]byte, rs []*secp256k1.PrivateKey,
	keyset *crypto.MintKeyset) (cashu.Proofs, error) {

	if len(signatures) != len(secrets) || len(signatures) != len(rs) {
		return nil, fmt.Errorf("lengths do not match")
	}

	proofs := make(cashu.Proofs, len(signatures))
	for i, sig := range signatures {
		kp, ok := keyset.Keys[sig.Amount]
		if !ok {
			return nil, fmt.Errorf("no key for amount %d in keyset", sig.Amount)
		}

		C_bytes, err := hex.DecodeString(sig.C_)
		if err != nil {
			return nil, err
		}
		C_, err := secp256k1.ParsePubKey(C_bytes)
		if err != nil {
			return nil, err
		}

		C := crypto.UnblindSignature(C_, rs[i], kp.PrivateKey.PubKey())

		proofs[i] = cashu.Proof{
			Amount: sig.Amount,
			Id:     sig.Id,
			Secret: string(secrets[i]),
			C:      hex.EncodeToString(C.SerializeCompressed()),
		}
	}

	return proofs, nil
}

// GetValidProofsForAmount mints amount sats at testMint via its mock
// lightning backend (settling the invoice immediately) and returns the
// resulting spendable proofs.
func GetValidProofsForAmount(amount uint64, testMint *mint.Mint, mockClient *lightning.MockClient) (cashu.Proofs, error) {
	quote, err := testMint.RequestMintQuote(BOLT11_METHOD, amount, SAT_UNIT)
	if err != nil {
		return nil, fmt.Errorf("error requesting mint quote: %v", err)
	}

	if err := mockClient.SettleInvoice(quote.PaymentHash); err != nil {
		return nil, fmt.Errorf("error settling invoice: %v", err)
	}

	keyset := testMint.GetActiveKeyset()
	blindedMessages, secrets, rs, err := CreateBlindedMessages(amount, keyset)
	if err != nil {
		return nil, err
	}

	signatures, err := testMint.MintTokens(BOLT11_METHOD, quote.Id, blindedMessages)
	if err != nil {
		return nil, fmt.Errorf("error minting tokens: %v", err)
	}

	return ConstructProofs(signatures, secrets, rs, &keyset)
}
