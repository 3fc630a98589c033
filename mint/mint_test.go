package mint_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut04"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut05"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut07"
	"github.com/gonuts-mint/gonuts/crypto"
	"github.com/gonuts-mint/gonuts/mint"
	"github.com/gonuts-mint/gonuts/mint/lightning"
	"github.com/gonuts-mint/gonuts/testutils"
)

const dbMigrationPath = "./storage/sqlite/migrations"

func newTestMint(t *testing.T, name string, inputFeePpk uint, limits mint.MintLimits) (*mint.Mint, *lightning.MockClient) {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	testMint, mockClient, err := testutils.CreateTestMint(path, dbMigrationPath, inputFeePpk, limits)
	if err != nil {
		t.Fatalf("error creating test mint: %v", err)
	}
	return testMint, mockClient
}

func TestRequestMintQuote(t *testing.T) {
	testMint, _ := newTestMint(t, "requestmintquote", 0, mint.MintLimits{})

	var mintAmount uint64 = 10000
	_, err := testMint.RequestMintQuote(testutils.BOLT11_METHOD, mintAmount, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}

	_, err = testMint.RequestMintQuote("strike", mintAmount, testutils.SAT_UNIT)
	if !errors.Is(err, cashu.PaymentMethodNotSupportedErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.PaymentMethodNotSupportedErr, err)
	}

	_, err = testMint.RequestMintQuote(testutils.BOLT11_METHOD, mintAmount, "eth")
	if !errors.Is(err, cashu.UnitNotSupportedErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.UnitNotSupportedErr, err)
	}
}

func TestMintQuoteState(t *testing.T) {
	testMint, mockClient := newTestMint(t, "mintquotestate", 0, mint.MintLimits{})

	var mintAmount uint64 = 42000
	mintQuoteResponse, err := testMint.RequestMintQuote(testutils.BOLT11_METHOD, mintAmount, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}

	keyset := testMint.GetActiveKeyset()

	_, err = testMint.GetMintQuoteState("strike", mintQuoteResponse.Id)
	if !errors.Is(err, cashu.PaymentMethodNotSupportedErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.PaymentMethodNotSupportedErr, err)
	}

	_, err = testMint.GetMintQuoteState(testutils.BOLT11_METHOD, "mintquote1234")
	if !errors.Is(err, cashu.QuoteNotExistErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.QuoteNotExistErr, err)
	}

	quoteStateResponse, err := testMint.GetMintQuoteState(testutils.BOLT11_METHOD, mintQuoteResponse.Id)
	if err != nil {
		t.Fatalf("unexpected error getting quote state: %v", err)
	}
	if quoteStateResponse.State != nut04.Unpaid {
		t.Fatalf("expected quote state '%v' but got '%v' instead", nut04.Unpaid.String(), quoteStateResponse.State.String())
	}

	if err := mockClient.SettleInvoice(mintQuoteResponse.PaymentHash); err != nil {
		t.Fatalf("error settling invoice: %v", err)
	}

	quoteStateResponse, err = testMint.GetMintQuoteState(testutils.BOLT11_METHOD, mintQuoteResponse.Id)
	if err != nil {
		t.Fatalf("unexpected error getting quote state: %v", err)
	}
	if quoteStateResponse.State != nut04.Paid {
		t.Fatalf("expected quote state '%v' but got '%v' instead", nut04.Paid.String(), quoteStateResponse.State.String())
	}

	blindedMessages, _, _, err := testutils.CreateBlindedMessages(mintAmount, keyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}

	_, err = testMint.MintTokens(testutils.BOLT11_METHOD, mintQuoteResponse.Id, blindedMessages)
	if err != nil {
		t.Fatalf("got unexpected error minting tokens: %v", err)
	}

	quoteStateResponse, err = testMint.GetMintQuoteState(testutils.BOLT11_METHOD, mintQuoteResponse.Id)
	if err != nil {
		t.Fatalf("unexpected error getting quote state: %v", err)
	}
	if quoteStateResponse.State != nut04.Issued {
		t.Fatalf("expected quote state '%v' but got '%v' instead", nut04.Issued.String(), quoteStateResponse.State.String())
	}
}

func TestMintTokens(t *testing.T) {
	testMint, mockClient := newTestMint(t, "minttokens", 0, mint.MintLimits{})

	var mintAmount uint64 = 42000
	mintQuoteResponse, err := testMint.RequestMintQuote(testutils.BOLT11_METHOD, mintAmount, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}

	keyset := testMint.GetActiveKeyset()
	blindedMessages, _, _, err := testutils.CreateBlindedMessages(mintAmount, keyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}

	_, err = testMint.MintTokens(testutils.BOLT11_METHOD, mintQuoteResponse.Id, blindedMessages)
	if !errors.Is(err, cashu.MintQuoteRequestNotPaid) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.MintQuoteRequestNotPaid, err)
	}

	_, err = testMint.MintTokens(testutils.BOLT11_METHOD, "mintquote1234", blindedMessages)
	if !errors.Is(err, cashu.QuoteNotExistErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.QuoteNotExistErr, err)
	}

	if err := mockClient.SettleInvoice(mintQuoteResponse.PaymentHash); err != nil {
		t.Fatalf("error settling invoice: %v", err)
	}

	overBlindedMessages, _, _, err := testutils.CreateBlindedMessages(mintAmount+100, keyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}
	_, err = testMint.MintTokens(testutils.BOLT11_METHOD, mintQuoteResponse.Id, overBlindedMessages)
	if !errors.Is(err, cashu.OutputsOverQuoteAmountErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.OutputsOverQuoteAmountErr, err)
	}

	invalidKeyset := crypto.MintKeyset{Id: "0192384aa"}
	invalidKeysetMessages, _, _, err := testutils.CreateBlindedMessages(mintAmount, invalidKeyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}
	_, err = testMint.MintTokens(testutils.BOLT11_METHOD, mintQuoteResponse.Id, invalidKeysetMessages)
	if !errors.Is(err, cashu.UnknownKeysetErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.UnknownKeysetErr, err)
	}

	_, err = testMint.MintTokens(testutils.BOLT11_METHOD, mintQuoteResponse.Id, blindedMessages)
	if err != nil {
		t.Fatalf("got unexpected error minting tokens: %v", err)
	}

	_, err = testMint.MintTokens(testutils.BOLT11_METHOD, mintQuoteResponse.Id, blindedMessages)
	if !errors.Is(err, cashu.MintQuoteAlreadyIssued) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.MintQuoteAlreadyIssued, err)
	}

	mintQuoteResponse, err = testMint.RequestMintQuote(testutils.BOLT11_METHOD, mintAmount, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}
	if err := mockClient.SettleInvoice(mintQuoteResponse.PaymentHash); err != nil {
		t.Fatalf("error settling invoice: %v", err)
	}

	_, err = testMint.MintTokens(testutils.BOLT11_METHOD, mintQuoteResponse.Id, blindedMessages)
	if !errors.Is(err, cashu.BlindedMessageAlreadySigned) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.BlindedMessageAlreadySigned, err)
	}
}

func TestSwap(t *testing.T) {
	testMint, mockClient := newTestMint(t, "swap", 0, mint.MintLimits{})

	var amount uint64 = 10000
	proofs, err := testutils.GetValidProofsForAmount(amount, testMint, mockClient)
	if err != nil {
		t.Fatalf("error generating valid proofs: %v", err)
	}

	keyset := testMint.GetActiveKeyset()
	newBlindedMessages, _, _, err := testutils.CreateBlindedMessages(amount, keyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}
	overBlindedMessages, _, _, err := testutils.CreateBlindedMessages(amount+200, keyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}

	_, err = testMint.Swap(proofs, overBlindedMessages)
	if !errors.Is(err, cashu.InsufficientProofsAmount) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.InsufficientProofsAmount, err)
	}

	proofsLen := len(proofs)
	duplicateProofs := make(cashu.Proofs, proofsLen)
	copy(duplicateProofs, proofs)
	duplicateProofs[proofsLen-2] = duplicateProofs[proofsLen-1]
	_, err = testMint.Swap(duplicateProofs, newBlindedMessages)
	if !errors.Is(err, cashu.DuplicateProofs) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.DuplicateProofs, err)
	}

	_, err = testMint.Swap(proofs, newBlindedMessages)
	if err != nil {
		t.Fatalf("got unexpected error in swap: %v", err)
	}

	_, err = testMint.Swap(proofs, newBlindedMessages)
	if !errors.Is(err, cashu.ProofAlreadyUsedErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.ProofAlreadyUsedErr, err)
	}
}

func TestSwapWithFees(t *testing.T) {
	mintFees, mockClient := newTestMint(t, "swapfees", 100, mint.MintLimits{})

	var amount uint64 = 5000
	proofs, err := testutils.GetValidProofsForAmount(amount, mintFees, mockClient)
	if err != nil {
		t.Fatalf("error generating valid proofs: %v", err)
	}

	keyset := mintFees.GetActiveKeyset()
	fees := mintFees.TransactionFees(proofs)

	invalidAmtBlindedMessages, _, _, err := testutils.CreateBlindedMessages(amount, keyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}
	validAmtBlindedMessages, _, _, err := testutils.CreateBlindedMessages(amount-uint64(fees), keyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}

	_, err = mintFees.Swap(proofs, invalidAmtBlindedMessages)
	if !errors.Is(err, cashu.InsufficientProofsAmount) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.InsufficientProofsAmount, err)
	}

	_, err = mintFees.Swap(proofs, validAmtBlindedMessages)
	if err != nil {
		t.Fatalf("got unexpected error in swap: %v", err)
	}
}

func TestRequestMeltQuote(t *testing.T) {
	testMint, mockClient := newTestMint(t, "requestmeltquote", 0, mint.MintLimits{})

	invoice, err := mockClient.CreateInvoice(10000)
	if err != nil {
		t.Fatalf("error creating invoice: %v", err)
	}

	_, err = testMint.RequestMeltQuote("strike", invoice.PaymentRequest, testutils.SAT_UNIT)
	if !errors.Is(err, cashu.PaymentMethodNotSupportedErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.PaymentMethodNotSupportedErr, err)
	}

	_, err = testMint.RequestMeltQuote(testutils.BOLT11_METHOD, invoice.PaymentRequest, "eth")
	if !errors.Is(err, cashu.UnitNotSupportedErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.UnitNotSupportedErr, err)
	}

	_, err = testMint.RequestMeltQuote(testutils.BOLT11_METHOD, "invoice1111", testutils.SAT_UNIT)
	if err == nil {
		t.Fatal("expected error but got nil")
	}

	_, err = testMint.RequestMeltQuote(testutils.BOLT11_METHOD, invoice.PaymentRequest, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("got unexpected error in melt request: %v", err)
	}
}

func TestMeltTokens(t *testing.T) {
	testMint, mockClient := newTestMint(t, "melttokens", 0, mint.MintLimits{})

	underProofs, err := testutils.GetValidProofsForAmount(1000, testMint, mockClient)
	if err != nil {
		t.Fatalf("error generating valid proofs: %v", err)
	}

	invoice, err := mockClient.CreateInvoice(6000)
	if err != nil {
		t.Fatalf("error creating invoice: %v", err)
	}

	meltQuote, err := testMint.RequestMeltQuote(testutils.BOLT11_METHOD, invoice.PaymentRequest, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("got unexpected error in melt request: %v", err)
	}

	_, err = testMint.MeltTokens(context.Background(), testutils.BOLT11_METHOD, meltQuote.Id, underProofs)
	if !errors.Is(err, cashu.InsufficientProofsAmount) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.InsufficientProofsAmount, err)
	}

	validProofs, err := testutils.GetValidProofsForAmount(6500, testMint, mockClient)
	if err != nil {
		t.Fatalf("error generating valid proofs: %v", err)
	}
	validSecret := validProofs[0].Secret

	validProofs[0].Secret = "some invalid secret"
	_, err = testMint.MeltTokens(context.Background(), testutils.BOLT11_METHOD, meltQuote.Id, validProofs)
	if !errors.Is(err, cashu.InvalidProofErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.InvalidProofErr, err)
	}
	validProofs[0].Secret = validSecret

	proofsLen := len(validProofs)
	duplicateProofs := make(cashu.Proofs, proofsLen)
	copy(duplicateProofs, validProofs)
	duplicateProofs[proofsLen-2] = duplicateProofs[proofsLen-1]
	_, err = testMint.MeltTokens(context.Background(), testutils.BOLT11_METHOD, meltQuote.Id, duplicateProofs)
	if !errors.Is(err, cashu.DuplicateProofs) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.DuplicateProofs, err)
	}

	melt, err := testMint.MeltTokens(context.Background(), testutils.BOLT11_METHOD, meltQuote.Id, validProofs)
	if err != nil {
		t.Fatalf("got unexpected error in melt: %v", err)
	}
	if melt.State != nut05.Paid {
		t.Fatal("got unexpected unpaid melt quote")
	}

	_, err = testMint.MeltTokens(context.Background(), testutils.BOLT11_METHOD, meltQuote.Id, validProofs)
	if !errors.Is(err, cashu.MeltQuoteAlreadyPaid) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.MeltQuoteAlreadyPaid, err)
	}

	newQuote, err := testMint.RequestMeltQuote(testutils.BOLT11_METHOD, invoice.PaymentRequest, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("got unexpected error in melt request: %v", err)
	}
	_, err = testMint.MeltTokens(context.Background(), testutils.BOLT11_METHOD, newQuote.Id, validProofs)
	if !errors.Is(err, cashu.ProofAlreadyUsedErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.ProofAlreadyUsedErr, err)
	}
}

func TestProofsStateCheck(t *testing.T) {
	testMint, mockClient := newTestMint(t, "proofstate", 0, mint.MintLimits{})

	validProofs, err := testutils.GetValidProofsForAmount(5000, testMint, mockClient)
	if err != nil {
		t.Fatalf("error generating valid proofs: %v", err)
	}

	Ys := make([]string, len(validProofs))
	for i, proof := range validProofs {
		y, err := cashu.ProofY(proof)
		if err != nil {
			t.Fatalf("error hashing proof to curve: %v", err)
		}
		Ys[i] = y
	}

	proofStates, err := testMint.ProofsStateCheck(Ys)
	if err != nil {
		t.Fatalf("unexpected error checking proof states: %v", err)
	}
	for _, proofState := range proofStates {
		if proofState.State != nut07.Unspent {
			t.Fatalf("expected proof state '%v' but got '%v'", nut07.Unspent.String(), proofState.State.String())
		}
	}

	numProofs := len(validProofs) / 2
	proofsToSpend := cashu.Proofs(validProofs[:numProofs])
	spentYs := Ys[:numProofs]

	keyset := testMint.GetActiveKeyset()
	blindedMessages, _, _, err := testutils.CreateBlindedMessages(proofsToSpend.Amount(), keyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}
	_, err = testMint.Swap(proofsToSpend, blindedMessages)
	if err != nil {
		t.Fatalf("unexpected error in swap: %v", err)
	}

	proofStates, err = testMint.ProofsStateCheck(spentYs)
	if err != nil {
		t.Fatalf("unexpected error checking proof states: %v", err)
	}
	for _, proofState := range proofStates {
		if proofState.State != nut07.Spent {
			t.Fatalf("expected proof state '%v' but got '%v'", nut07.Spent.String(), proofState.State.String())
		}
	}
}

func TestMintLimits(t *testing.T) {
	limits := mint.MintLimits{
		MaxBalance:      15000,
		MintingSettings: mint.MintMeltLimit{MaxAmount: 10000},
		MeltingSettings: mint.MintMeltLimit{MaxAmount: 10000},
	}
	limitsMint, mockClient := newTestMint(t, "limits", 100, limits)

	_, err := limitsMint.RequestMintQuote(testutils.BOLT11_METHOD, 20000, testutils.SAT_UNIT)
	if !errors.Is(err, cashu.MintAmountExceededErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.MintAmountExceededErr, err)
	}

	mintQuoteResponse, err := limitsMint.RequestMintQuote(testutils.BOLT11_METHOD, 9500, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("error requesting mint quote: %v", err)
	}

	keyset := limitsMint.GetActiveKeyset()
	blindedMessages, secrets, rs, err := testutils.CreateBlindedMessages(9500, keyset)
	if err != nil {
		t.Fatalf("error creating blinded messages: %v", err)
	}

	if err := mockClient.SettleInvoice(mintQuoteResponse.PaymentHash); err != nil {
		t.Fatalf("error settling invoice: %v", err)
	}
	signatures, err := limitsMint.MintTokens(testutils.BOLT11_METHOD, mintQuoteResponse.Id, blindedMessages)
	if err != nil {
		t.Fatalf("got unexpected error minting tokens: %v", err)
	}

	_, err = limitsMint.RequestMintQuote(testutils.BOLT11_METHOD, 9000, testutils.SAT_UNIT)
	if !errors.Is(err, cashu.MintingDisabled) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.MintingDisabled, err)
	}

	overLimitInvoice, err := mockClient.CreateInvoice(15000)
	if err != nil {
		t.Fatalf("error creating invoice: %v", err)
	}
	_, err = limitsMint.RequestMeltQuote(testutils.BOLT11_METHOD, overLimitInvoice.PaymentRequest, testutils.SAT_UNIT)
	if !errors.Is(err, cashu.MeltAmountExceededErr) {
		t.Fatalf("expected error '%v' but got '%v' instead", cashu.MeltAmountExceededErr, err)
	}

	validProofs, err := testutils.ConstructProofs(signatures, secrets, rs, &keyset)
	if err != nil {
		t.Fatalf("error constructing proofs: %v", err)
	}

	withinLimitInvoice, err := mockClient.CreateInvoice(8000)
	if err != nil {
		t.Fatalf("error creating invoice: %v", err)
	}
	meltQuote, err := limitsMint.RequestMeltQuote(testutils.BOLT11_METHOD, withinLimitInvoice.PaymentRequest, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("got unexpected error in melt request: %v", err)
	}
	_, err = limitsMint.MeltTokens(context.Background(), testutils.BOLT11_METHOD, meltQuote.Id, validProofs)
	if err != nil {
		t.Fatalf("got unexpected error in melt: %v", err)
	}

	_, err = limitsMint.RequestMintQuote(testutils.BOLT11_METHOD, 9000, testutils.SAT_UNIT)
	if err != nil {
		t.Fatalf("got unexpected error requesting mint quote: %v", err)
	}
}
