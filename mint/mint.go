package mint

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut04"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut05"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut06"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut07"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut10"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut11"
	"github.com/gonuts-mint/gonuts/crypto"
	"github.com/gonuts-mint/gonuts/mint/lightning"
	"github.com/gonuts-mint/gonuts/mint/storage"
	"github.com/gonuts-mint/gonuts/mint/storage/sqlite"
	decodepay "github.com/nbd-wtf/ln-decodepay"
	"github.com/tyler-smith/go-bip39"
)

// protocol constants the mint currently speaks. A second payment method
// or unit would get its own constant plus a branch everywhere these two
// are checked.
const (
	QuoteExpiryMins = 10
	BOLT11_METHOD   = "bolt11"
	SAT_UNIT        = "sat"
)

// Mint is the ledger: it owns the signing keysets, talks to a Lightning
// backend to settle quotes, and persists everything through storage.MintDB.
type Mint struct {
	db              storage.MintDB
	lightningClient lightning.Client
	mintInfo        nut06.MintInfo
	limits          MintLimits

	activeKeysets map[string]crypto.MintKeyset // keysets currently signing new outputs
	keysets       map[string]crypto.MintKeyset // every keyset, active or retired

	// quoteLocks serializes the paid-check -> sign -> mark-issued sequence
	// in MintTokens per mint quote id, so two concurrent requests racing
	// against the same just-paid invoice can't both sign and both succeed.
	quoteLocks keyedMutex
}

// keyedMutex hands out a *sync.Mutex per key, creating it on first use.
// Entries are never removed; the number of distinct keys over a mint's
// lifetime is bounded by the number of quotes it ever issues, which is
// small enough that this isn't worth garbage collecting.
type keyedMutex struct {
	locks sync.Map
}

func (km *keyedMutex) Lock(key string) func() {
	value, _ := km.locks.LoadOrStore(key, &sync.Mutex{})
	mu := value.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func LoadMint(config Config) (*Mint, error) {
	path := config.MintPath
	if len(path) == 0 {
		path = mintPath()
	}

	db, err := sqlite.InitSQLite(path, config.DBMigrationPath)
	if err != nil {
		log.Fatalf("error starting mint: %v", err)
	}

	seed, err := loadOrCreateSeed(db, config)
	if err != nil {
		return nil, err
	}

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, err
	}

	activeKeyset, err := crypto.GenerateKeyset(master, config.DerivationPathIdx, config.InputFeePpk)
	if err != nil {
		return nil, err
	}

	mint := &Mint{
		db:            db,
		activeKeysets: map[string]crypto.MintKeyset{activeKeyset.Id: *activeKeyset},
		limits:        config.Limits,
	}

	mintKeysets, activeAlreadyStored, err := mint.loadStoredKeysets(activeKeyset.Id)
	if err != nil {
		return nil, err
	}

	if !activeAlreadyStored {
		if err := mint.persistActiveKeyset(*activeKeyset, seed); err != nil {
			return nil, err
		}
	}

	mint.keysets = mintKeysets
	mint.keysets[activeKeyset.Id] = *activeKeyset

	if config.LightningClient == nil {
		return nil, errors.New("invalid lightning client")
	}
	mint.lightningClient = config.LightningClient

	if err := mint.SetMintInfo(config.MintInfo); err != nil {
		return nil, fmt.Errorf("error setting mint info: %v", err)
	}

	mint.retireStaleKeysets(activeKeyset.Id)

	return mint, nil
}

// loadOrCreateSeed returns the mint's master seed, generating and persisting
// one (from a configured mnemonic or from fresh entropy) the first time the
// mint starts against an empty database.
func loadOrCreateSeed(db storage.MintDB, config Config) ([]byte, error) {
	seed, err := db.GetSeed()
	if err == nil {
		return seed, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	if config.Mnemonic != "" {
		if !bip39.IsMnemonicValid(config.Mnemonic) {
			return nil, errors.New("invalid mint seed mnemonic")
		}
		seed = bip39.NewSeed(config.Mnemonic, "")
	} else {
		for {
			seed, err = hdkeychain.GenerateSeed(32)
			if err == nil {
				break
			}
		}
	}

	if err := db.SaveSeed(seed); err != nil {
		return nil, err
	}
	return seed, nil
}

// loadStoredKeysets rebuilds every persisted keyset from its stored seed
// and derivation params. It reports whether activeId was already among them.
func (m *Mint) loadStoredKeysets(activeId string) (map[string]crypto.MintKeyset, bool, error) {
	dbKeysets, err := m.db.GetKeysets()
	if err != nil {
		return nil, false, fmt.Errorf("error reading keysets from db: %v", err)
	}

	found := false
	keysets := make(map[string]crypto.MintKeyset, len(dbKeysets))
	for _, dbkeyset := range dbKeysets {
		seed, err := hex.DecodeString(dbkeyset.Seed)
		if err != nil {
			return nil, false, err
		}

		master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			return nil, false, err
		}

		if dbkeyset.Id == activeId {
			found = true
		}

		keyset, err := crypto.GenerateKeyset(master, dbkeyset.DerivationPathIdx, dbkeyset.InputFeePpk)
		if err != nil {
			return nil, false, err
		}
		keysets[keyset.Id] = *keyset
	}
	return keysets, found, nil
}

func (m *Mint) persistActiveKeyset(activeKeyset crypto.MintKeyset, seed []byte) error {
	dbKeyset := storage.DBKeyset{
		Id:                activeKeyset.Id,
		Unit:              activeKeyset.Unit,
		Active:            true,
		Seed:              hex.EncodeToString(seed),
		DerivationPathIdx: activeKeyset.DerivationPathIdx,
		InputFeePpk:       activeKeyset.InputFeePpk,
	}
	if err := m.db.SaveKeyset(dbKeyset); err != nil {
		return fmt.Errorf("error saving new active keyset: %v", err)
	}
	return nil
}

// retireStaleKeysets flips every keyset that isn't the given active one
// over to inactive, both in memory and in storage.
func (m *Mint) retireStaleKeysets(activeId string) {
	for id, keyset := range m.keysets {
		if id == activeId || !keyset.Active {
			continue
		}
		keyset.Active = false
		m.db.UpdateKeysetActive(id, false)
		m.keysets[id] = keyset
	}
}

// mintPath returns the mint's path at $HOME/.gonuts/mint
func mintPath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}

	path := filepath.Join(homedir, ".gonuts", "mint")
	if err := os.MkdirAll(path, 0700); err != nil {
		log.Fatal(err)
	}
	return path
}

// RequestMintQuote processes a request to mint tokens and returns a mint
// quote or an error, per NUT-04: https://github.com/cashubtc/nuts/blob/main/04.md
func (m *Mint) RequestMintQuote(method string, amount uint64, unit string) (storage.MintQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MintQuote{}, cashu.PaymentMethodNotSupportedErr
	}
	if unit != SAT_UNIT {
		return storage.MintQuote{}, cashu.UnitNotSupportedErr
	}

	if err := m.checkMintLimits(amount); err != nil {
		return storage.MintQuote{}, err
	}

	invoice, err := m.requestInvoice(amount)
	if err != nil {
		msg := fmt.Sprintf("error generating payment request: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(msg, cashu.LightningBackendErrCode)
	}

	quoteId, err := cashu.GenerateRandomQuoteId()
	if err != nil {
		return storage.MintQuote{}, err
	}

	mintQuote := storage.MintQuote{
		Id:             quoteId,
		Amount:         amount,
		PaymentRequest: invoice.PaymentRequest,
		PaymentHash:    invoice.PaymentHash,
		State:          nut04.Unpaid,
		Expiry:         invoice.Expiry,
	}

	if err := m.db.SaveMintQuote(mintQuote); err != nil {
		msg := fmt.Sprintf("error saving mint quote to db: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	return mintQuote, nil
}

// checkMintLimits rejects a mint request that would exceed the configured
// per-request amount cap or push the mint's total balance past its max.
func (m *Mint) checkMintLimits(amount uint64) error {
	if max := m.limits.MintingSettings.MaxAmount; max > 0 && amount > max {
		return cashu.MintAmountExceededErr
	}
	if m.limits.MaxBalance > 0 {
		balance, err := m.db.GetBalance()
		if err != nil {
			return err
		}
		if balance+amount > m.limits.MaxBalance {
			return cashu.MintingDisabled
		}
	}
	return nil
}

// GetMintQuoteState returns the state of a mint quote, polling the
// Lightning backend for a still-unpaid quote in case it has since settled.
func (m *Mint) GetMintQuoteState(method, quoteId string) (storage.MintQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MintQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	mintQuote, err := m.db.GetMintQuote(quoteId)
	if err != nil {
		return storage.MintQuote{}, cashu.QuoteNotExistErr
	}

	if mintQuote.State != nut04.Unpaid {
		return mintQuote, nil
	}

	status, err := m.lightningClient.InvoiceStatus(mintQuote.PaymentHash)
	if err != nil {
		msg := fmt.Sprintf("error getting invoice status: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(msg, cashu.LightningBackendErrCode)
	}
	if !status.Settled {
		return mintQuote, nil
	}

	mintQuote.State = nut04.Paid
	if err := m.db.UpdateMintQuoteState(mintQuote.Id, mintQuote.State); err != nil {
		msg := fmt.Sprintf("error getting quote state: %v", err)
		return storage.MintQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	return mintQuote, nil
}

// MintTokens checks whether the mint quote with id has been paid and, if
// so, signs blindedMessages and returns the resulting BlindedSignatures.
//
// The paid-check, signing, and issued-marking steps below run under a
// per-quote lock: without it, two requests racing against the same quote
// id could both observe an unpaid-then-settled invoice, both sign their
// own set of blinded messages, and both succeed in marking the quote
// issued — minting twice against a single paid invoice.
func (m *Mint) MintTokens(method, id string, blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	if method != BOLT11_METHOD {
		return nil, cashu.PaymentMethodNotSupportedErr
	}

	unlock := m.quoteLocks.Lock(id)
	defer unlock()

	mintQuote, err := m.db.GetMintQuote(id)
	if err != nil {
		return nil, cashu.QuoteNotExistErr
	}

	paid, err := m.mintQuoteIsPaid(mintQuote)
	if err != nil {
		return nil, err
	}
	if !paid {
		return nil, cashu.MintQuoteRequestNotPaid
	}
	if mintQuote.State == nut04.Issued {
		return nil, cashu.MintQuoteAlreadyIssued
	}

	outputAmount, err := sumAndValidateOutputs(blindedMessages)
	if err != nil {
		return nil, err
	}
	if outputAmount > mintQuote.Amount {
		return nil, cashu.OutputsOverQuoteAmountErr
	}

	if err := m.rejectAlreadySignedOutputs(blindedMessages); err != nil {
		return nil, err
	}

	blindedSignatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		return nil, err
	}

	if err := m.db.UpdateMintQuoteState(mintQuote.Id, nut04.Issued); err != nil {
		msg := fmt.Sprintf("error getting quote state: %v", err)
		return nil, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	return blindedSignatures, nil
}

// mintQuoteIsPaid reports whether a mint quote's invoice is settled,
// consulting the Lightning backend only when the quote's own state
// hasn't already recorded payment.
func (m *Mint) mintQuoteIsPaid(mintQuote storage.MintQuote) (bool, error) {
	if mintQuote.State != nut04.Unpaid {
		return true, nil
	}
	status, err := m.lightningClient.InvoiceStatus(mintQuote.PaymentHash)
	if err != nil {
		msg := fmt.Sprintf("error getting invoice status: %v", err)
		return false, cashu.BuildCashuError(msg, cashu.LightningBackendErrCode)
	}
	return status.Settled, nil
}

// sumAndValidateOutputs totals the amounts requested across blindedMessages
// and rejects a total that overflowed past any single output's amount.
func sumAndValidateOutputs(blindedMessages cashu.BlindedMessages) (uint64, error) {
	var total uint64
	for _, bm := range blindedMessages {
		total += bm.Amount
	}
	for _, bm := range blindedMessages {
		if total < bm.Amount {
			return 0, cashu.InvalidBlindedMessageAmount
		}
	}
	return total, nil
}

func blindedMessageIds(blindedMessages cashu.BlindedMessages) []string {
	ids := make([]string, len(blindedMessages))
	for i, bm := range blindedMessages {
		ids[i] = bm.B_
	}
	return ids
}

func (m *Mint) rejectAlreadySignedOutputs(blindedMessages cashu.BlindedMessages) error {
	sigs, err := m.db.GetBlindSignatures(blindedMessageIds(blindedMessages))
	if err != nil {
		msg := fmt.Sprintf("could not get signatures from db: %v", err)
		return cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	if len(sigs) > 0 {
		return cashu.BlindedMessageAlreadySigned
	}
	return nil
}

// Swap processes a request to exchange a set of valid proofs for freshly
// signed blindedMessages of equal (minus fees) value, invalidating the
// proofs spent as input.
func (m *Mint) Swap(proofs cashu.Proofs, blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	Ys, proofsAmount, err := hashProofsToY(proofs)
	if err != nil {
		return nil, err
	}

	outputAmount, err := sumAndValidateOutputs(blindedMessages)
	if err != nil {
		return nil, err
	}

	fees := m.TransactionFees(proofs)
	if proofsAmount-uint64(fees) < outputAmount {
		return nil, cashu.InsufficientProofsAmount
	}

	if err := m.verifyProofs(proofs, Ys); err != nil {
		return nil, err
	}

	if err := m.rejectAlreadySignedOutputs(blindedMessages); err != nil {
		return nil, err
	}

	if nut11.ProofsSigAll(proofs) {
		if err := verifyP2PKBlindedMessages(proofs, blindedMessages); err != nil {
			return nil, err
		}
	}

	blindedSignatures, err := m.signBlindedMessages(blindedMessages)
	if err != nil {
		return nil, err
	}

	if err := m.db.SaveProofs(proofs); err != nil {
		msg := fmt.Sprintf("error invalidating proofs. Could not save proofs to db: %v", err)
		return nil, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	return blindedSignatures, nil
}

// hashProofsToY converts each proof's secret to its Y curve point (hex
// encoded, as stored) and returns the proofs' total amount alongside it.
func hashProofsToY(proofs cashu.Proofs) ([]string, uint64, error) {
	Ys := make([]string, len(proofs))
	var total uint64
	for i, proof := range proofs {
		total += proof.Amount

		Y, err := crypto.HashToCurve([]byte(proof.Secret))
		if err != nil {
			return nil, 0, cashu.InvalidProofErr
		}
		Ys[i] = hex.EncodeToString(Y.SerializeCompressed())
	}
	return Ys, total, nil
}

// RequestMeltQuote processes a wallet's request for the mint to pay a
// Lightning invoice on its behalf, returning a MeltQuote.
func (m *Mint) RequestMeltQuote(method, request, unit string) (storage.MeltQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}
	if unit != SAT_UNIT {
		return storage.MeltQuote{}, cashu.UnitNotSupportedErr
	}

	bolt11, err := decodepay.Decodepay(request)
	if err != nil {
		msg := fmt.Sprintf("invalid invoice: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.StandardErrCode)
	}
	if bolt11.MSatoshi == 0 {
		return storage.MeltQuote{}, cashu.BuildCashuError("invoice has no amount", cashu.StandardErrCode)
	}
	satAmount := uint64(bolt11.MSatoshi) / 1000

	if max := m.limits.MeltingSettings.MaxAmount; max > 0 && satAmount > max {
		return storage.MeltQuote{}, cashu.MeltAmountExceededErr
	}

	quoteId, err := cashu.GenerateRandomQuoteId()
	if err != nil {
		return storage.MeltQuote{}, cashu.StandardErr
	}

	meltQuote := storage.MeltQuote{
		Id:             quoteId,
		InvoiceRequest: request,
		PaymentHash:    bolt11.PaymentHash,
		Amount:         satAmount,
		FeeReserve:     m.lightningClient.FeeReserve(satAmount),
		State:          nut05.Unpaid,
		Expiry:         uint64(time.Now().Add(time.Minute * QuoteExpiryMins).Unix()),
	}

	// a mint quote with the same invoice means this melt can be settled
	// internally without going out to the Lightning network, so no fee applies
	if mintQuote, err := m.db.GetMintQuoteByPaymentHash(bolt11.PaymentHash); err == nil {
		meltQuote.InvoiceRequest = mintQuote.PaymentRequest
		meltQuote.PaymentHash = mintQuote.PaymentHash
		meltQuote.FeeReserve = 0
	}

	if err := m.db.SaveMeltQuote(meltQuote); err != nil {
		msg := fmt.Sprintf("error saving melt quote to db: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	return meltQuote, nil
}

// GetMeltQuoteState returns the state of a melt quote, resolving a
// pending quote against the backend's current view of the payment.
func (m *Mint) GetMeltQuoteState(ctx context.Context, method, quoteId string) (storage.MeltQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	meltQuote, err := m.db.GetMeltQuote(quoteId)
	if err != nil {
		return storage.MeltQuote{}, cashu.QuoteNotExistErr
	}

	if meltQuote.State != nut05.Pending {
		return meltQuote, nil
	}

	paymentStatus, statusErr := m.lightningClient.OutgoingPaymentStatus(ctx, meltQuote.PaymentHash)
	switch {
	case paymentStatus.PaymentStatus == lightning.Pending:
		return meltQuote, nil

	case paymentStatus.PaymentStatus == lightning.Succeeded:
		return m.markMeltQuotePaid(meltQuote, paymentStatus.Preimage)

	case statusErr != nil && paymentStatus.PaymentStatus == lightning.Failed && strings.Contains(statusErr.Error(), "payment failed"):
		if err := m.markMeltQuoteUnpaid(&meltQuote); err != nil {
			return storage.MeltQuote{}, err
		}
	}

	return meltQuote, nil
}

// markMeltQuotePaid reclaims the quote's pending proofs as spent and
// records the quote as paid with the given preimage.
func (m *Mint) markMeltQuotePaid(meltQuote storage.MeltQuote, preimage string) (storage.MeltQuote, error) {
	proofs, err := m.removePendingProofsForQuote(meltQuote.Id)
	if err != nil {
		msg := fmt.Sprintf("error removing pending proofs for quote: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	if err := m.db.SaveProofs(proofs); err != nil {
		msg := fmt.Sprintf("error invalidating proofs. Could not save proofs to db: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	meltQuote.State = nut05.Paid
	meltQuote.Preimage = preimage
	if err := m.db.UpdateMeltQuote(meltQuote.Id, preimage, nut05.Paid); err != nil {
		msg := fmt.Sprintf("error updating melt quote state: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	return meltQuote, nil
}

// markMeltQuoteUnpaid records a failed payment attempt and frees its
// proofs back out of the pending set.
func (m *Mint) markMeltQuoteUnpaid(meltQuote *storage.MeltQuote) error {
	meltQuote.State = nut05.Unpaid
	if err := m.db.UpdateMeltQuote(meltQuote.Id, "", meltQuote.State); err != nil {
		msg := fmt.Sprintf("error updating melt quote state: %v", err)
		return cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	if _, err := m.removePendingProofsForQuote(meltQuote.Id); err != nil {
		msg := fmt.Sprintf("error removing pending proofs for quote: %v", err)
		return cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	return nil
}

func (m *Mint) removePendingProofsForQuote(quoteId string) (cashu.Proofs, error) {
	dbproofs, err := m.db.GetPendingProofsByQuote(quoteId)
	if err != nil {
		return nil, err
	}

	proofs := make(cashu.Proofs, len(dbproofs))
	Ys := make([]string, len(dbproofs))
	for i, dbproof := range dbproofs {
		Ys[i] = dbproof.Y
		proofs[i] = cashu.Proof{
			Amount: dbproof.Amount,
			Id:     dbproof.Id,
			Secret: dbproof.Secret,
			C:      dbproof.C,
		}
	}

	if err := m.db.RemovePendingProofs(Ys); err != nil {
		return nil, err
	}
	return proofs, nil
}

// MeltTokens verifies the proofs offered to cover a melt quote and
// attempts the Lightning payment, settling internally first if a
// matching mint quote shares the same invoice.
func (m *Mint) MeltTokens(ctx context.Context, method, quoteId string, proofs cashu.Proofs) (storage.MeltQuote, error) {
	if method != BOLT11_METHOD {
		return storage.MeltQuote{}, cashu.PaymentMethodNotSupportedErr
	}

	Ys, proofsAmount, err := hashProofsToY(proofs)
	if err != nil {
		return storage.MeltQuote{}, err
	}

	meltQuote, err := m.db.GetMeltQuote(quoteId)
	if err != nil {
		return storage.MeltQuote{}, cashu.QuoteNotExistErr
	}
	switch meltQuote.State {
	case nut05.Paid:
		return storage.MeltQuote{}, cashu.MeltQuoteAlreadyPaid
	case nut05.Pending:
		return storage.MeltQuote{}, cashu.MeltQuotePending
	}

	if err := m.verifyProofs(proofs, Ys); err != nil {
		return storage.MeltQuote{}, err
	}

	fees := m.TransactionFees(proofs)
	if proofsAmount < meltQuote.Amount+meltQuote.FeeReserve+uint64(fees) {
		return storage.MeltQuote{}, cashu.InsufficientProofsAmount
	}

	if nut11.ProofsSigAll(proofs) {
		return storage.MeltQuote{}, nut11.SigAllOnlySwap
	}

	if err := m.db.AddPendingProofs(proofs, meltQuote.Id); err != nil {
		msg := fmt.Sprintf("error setting proofs as pending in db: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	meltQuote.State = nut05.Pending
	if err := m.db.UpdateMeltQuote(meltQuote.Id, "", nut05.Pending); err != nil {
		msg := fmt.Sprintf("error updating melt quote state: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	if mintQuote, err := m.db.GetMintQuoteByPaymentHash(meltQuote.PaymentHash); err == nil {
		return m.settleMeltInternally(mintQuote, meltQuote, Ys, proofs)
	}
	return m.payMeltExternally(ctx, meltQuote, Ys, proofs)
}

// settleMeltInternally resolves a melt quote against a matching mint
// quote on the same invoice without touching the Lightning backend.
func (m *Mint) settleMeltInternally(
	mintQuote storage.MintQuote,
	meltQuote storage.MeltQuote,
	Ys []string,
	proofs cashu.Proofs,
) (storage.MeltQuote, error) {
	meltQuote, err := m.settleQuotesInternally(mintQuote, meltQuote)
	if err != nil {
		return storage.MeltQuote{}, err
	}
	if err := m.db.RemovePendingProofs(Ys); err != nil {
		msg := fmt.Sprintf("error removing pending proofs: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	if err := m.db.SaveProofs(proofs); err != nil {
		msg := fmt.Sprintf("error invalidating proofs. Could not save proofs to db: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	return meltQuote, nil
}

// payMeltExternally asks the Lightning backend to pay the quote's invoice
// and reconciles the quote/proof state with the outcome.
func (m *Mint) payMeltExternally(
	ctx context.Context,
	meltQuote storage.MeltQuote,
	Ys []string,
	proofs cashu.Proofs,
) (storage.MeltQuote, error) {
	resp, sendErr := m.lightningClient.SendPayment(ctx, meltQuote.InvoiceRequest, meltQuote.Amount)
	if sendErr != nil {
		// a "payment error" in the response means the payment definitely
		// failed, so the quote can be marked unpaid right away
		if strings.Contains(sendErr.Error(), "payment error") {
			meltQuote.State = nut05.Unpaid
			if err := m.db.UpdateMeltQuote(meltQuote.Id, "", meltQuote.State); err != nil {
				msg := fmt.Sprintf("error updating melt quote state: %v", err)
				return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
			}
			if err := m.db.RemovePendingProofs(Ys); err != nil {
				msg := fmt.Sprintf("error removing proofs from pending: %v", err)
				return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
			}
			return meltQuote, nil
		}
		// any other send failure needs a follow-up status check before
		// we know whether the payment actually went through
		resp.PaymentStatus = lightning.Failed
	}

	switch resp.PaymentStatus {
	case lightning.Succeeded:
		if err := m.settleProofs(Ys, proofs); err != nil {
			return storage.MeltQuote{}, err
		}
		meltQuote.State = nut05.Paid
		meltQuote.Preimage = resp.Preimage
		if err := m.db.UpdateMeltQuote(meltQuote.Id, resp.Preimage, nut05.Paid); err != nil {
			msg := fmt.Sprintf("error updating melt quote state: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
		}
		return meltQuote, nil

	case lightning.Pending:
		return meltQuote, nil

	case lightning.Failed:
		return m.resolveFailedSend(ctx, meltQuote, Ys, proofs)
	}

	return meltQuote, nil
}

// resolveFailedSend double-checks a send that came back as failed by
// asking the backend directly for the payment's outgoing status, since
// a transport error from SendPayment doesn't always mean the payment
// never landed.
func (m *Mint) resolveFailedSend(
	ctx context.Context,
	meltQuote storage.MeltQuote,
	Ys []string,
	proofs cashu.Proofs,
) (storage.MeltQuote, error) {
	paymentStatus, err := m.lightningClient.OutgoingPaymentStatus(ctx, meltQuote.PaymentHash)
	if paymentStatus.PaymentStatus == lightning.Pending {
		return meltQuote, nil
	}
	if err != nil {
		meltQuote.State = nut05.Unpaid
		if err := m.db.UpdateMeltQuote(meltQuote.Id, "", meltQuote.State); err != nil {
			msg := fmt.Sprintf("error updating melt quote state: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
		}
		if err := m.db.RemovePendingProofs(Ys); err != nil {
			msg := fmt.Sprintf("error removing proofs from pending: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
		}
	}

	if paymentStatus.PaymentStatus == lightning.Succeeded {
		if err := m.settleProofs(Ys, proofs); err != nil {
			return storage.MeltQuote{}, err
		}
		meltQuote.State = nut05.Paid
		meltQuote.Preimage = paymentStatus.Preimage
		if err := m.db.UpdateMeltQuote(meltQuote.Id, paymentStatus.Preimage, nut05.Paid); err != nil {
			msg := fmt.Sprintf("error updating melt quote state: %v", err)
			return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
		}
	}

	return meltQuote, nil
}

// settleQuotesInternally resolves a mint quote and melt quote that share
// the same invoice against each other, without any Lightning payment.
func (m *Mint) settleQuotesInternally(
	mintQuote storage.MintQuote,
	meltQuote storage.MeltQuote,
) (storage.MeltQuote, error) {
	invoice, err := m.lightningClient.InvoiceStatus(mintQuote.PaymentHash)
	if err != nil {
		msg := fmt.Sprintf("error getting invoice status from lightning backend: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.LightningBackendErrCode)
	}

	meltQuote.State = nut05.Paid
	meltQuote.Preimage = invoice.Preimage
	if err := m.db.UpdateMeltQuote(meltQuote.Id, meltQuote.Preimage, meltQuote.State); err != nil {
		msg := fmt.Sprintf("error updating melt quote state: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	mintQuote.State = nut04.Paid
	if err := m.db.UpdateMintQuoteState(mintQuote.Id, mintQuote.State); err != nil {
		msg := fmt.Sprintf("error updating mint quote state: %v", err)
		return storage.MeltQuote{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	return meltQuote, nil
}

// settleProofs moves proofs from pending to spent.
func (m *Mint) settleProofs(Ys []string, proofs cashu.Proofs) error {
	if err := m.db.RemovePendingProofs(Ys); err != nil {
		msg := fmt.Sprintf("error removing pending proofs: %v", err)
		return cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	if err := m.db.SaveProofs(proofs); err != nil {
		msg := fmt.Sprintf("error invalidating proofs. Could not save proofs to db: %v", err)
		return cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	return nil
}

func (m *Mint) ProofsStateCheck(Ys []string) ([]nut07.ProofState, error) {
	usedProofs, err := m.db.GetProofsUsed(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		msg := fmt.Sprintf("could not get used proofs from db: %v", err)
		return nil, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	states := make([]nut07.ProofState, len(Ys))
	for i, y := range Ys {
		state := nut07.Unspent
		if slices.ContainsFunc(usedProofs, func(p storage.DBProof) bool { return p.Y == y }) {
			state = nut07.Spent
		}
		states[i] = nut07.ProofState{Y: y, State: state}
	}

	return states, nil
}

func (m *Mint) RestoreSignatures(blindedMessages cashu.BlindedMessages) (cashu.BlindedMessages, cashu.BlindedSignatures, error) {
	outputs := make(cashu.BlindedMessages, 0, len(blindedMessages))
	signatures := make(cashu.BlindedSignatures, 0, len(blindedMessages))

	for _, bm := range blindedMessages {
		sig, err := m.db.GetBlindSignature(bm.B_)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			continue
		case err != nil:
			msg := fmt.Sprintf("could not get signature from db: %v", err)
			return nil, nil, cashu.BuildCashuError(msg, cashu.DBErrCode)
		}

		outputs = append(outputs, bm)
		signatures = append(signatures, sig)
	}

	return outputs, signatures, nil
}

// verifyProofs checks that proofs are unspent, not already pending,
// free of duplicates, minted under a keyset this mint knows, correctly
// signed, and (for P2PK-locked secrets) carry a valid spending witness.
func (m *Mint) verifyProofs(proofs cashu.Proofs, Ys []string) error {
	if len(proofs) == 0 {
		return cashu.NoProofsProvided
	}

	pendingProofs, err := m.db.GetPendingProofs(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		msg := fmt.Sprintf("could not get pending proofs from db: %v", err)
		return cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	if len(pendingProofs) != 0 {
		return cashu.ProofPendingErr
	}

	usedProofs, err := m.db.GetProofsUsed(Ys)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		msg := fmt.Sprintf("could not get used proofs from db: %v", err)
		return cashu.BuildCashuError(msg, cashu.DBErrCode)
	}
	if len(usedProofs) != 0 {
		return cashu.ProofAlreadyUsedErr
	}

	if cashu.CheckDuplicateProofs(proofs) {
		return cashu.DuplicateProofs
	}

	for _, proof := range proofs {
		if err := m.verifySingleProof(proof); err != nil {
			return err
		}
	}
	return nil
}

func (m *Mint) verifySingleProof(proof cashu.Proof) error {
	keyset, ok := m.keysets[proof.Id]
	if !ok {
		return cashu.UnknownKeysetErr
	}
	key, ok := keyset.Keys[proof.Amount]
	if !ok {
		return cashu.InvalidProofErr
	}

	if nut11.IsSecretP2PK(proof) {
		if err := verifyP2PKLockedProof(proof); err != nil {
			return err
		}
	}

	Cbytes, err := hex.DecodeString(proof.C)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}
	C, err := secp256k1.ParsePubKey(Cbytes)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}

	if !crypto.Verify(proof.Secret, key.PrivateKey, C) {
		return cashu.InvalidProofErr
	}
	return nil
}

// verifyP2PKLockedProof checks a single P2PK-locked proof's witness
// signatures against its well-known secret's lock conditions (NUT-11).
func verifyP2PKLockedProof(proof cashu.Proof) error {
	secret, err := nut10.DeserializeSecret(proof.Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}

	var witness nut11.P2PKWitness
	if err := json.Unmarshal([]byte(proof.Witness), &witness); err != nil {
		witness.Signatures = []string{}
	}

	tags, err := nut11.ParseP2PKTags(secret.Tags)
	if err != nil {
		return err
	}

	hash := sha256.Sum256([]byte(proof.Secret))

	// an expired locktime with no refund key means anyone can spend
	if tags.Locktime > 0 && time.Now().Local().Unix() > tags.Locktime {
		if len(tags.Refund) == 0 {
			return nil
		}
		if len(witness.Signatures) < 1 {
			return nut11.InvalidWitness
		}
		if !nut11.HasValidSignatures(hash[:], witness, 1, tags.Refund) {
			return nut11.NotEnoughSignaturesErr
		}
		return nil
	}

	pubkey, err := nut11.ParsePublicKey(secret.Data)
	if err != nil {
		return err
	}
	keys := []*btcec.PublicKey{pubkey}
	signaturesRequired := 1
	if tags.NSigs > 0 {
		if len(tags.Pubkeys) == 0 {
			return nut11.EmptyPubkeysErr
		}
		signaturesRequired = tags.NSigs
		keys = append(keys, tags.Pubkeys...)
	}

	if len(witness.Signatures) < 1 {
		return nut11.InvalidWitness
	}
	if !nut11.HasValidSignatures(hash[:], witness, signaturesRequired, keys) {
		return nut11.NotEnoughSignaturesErr
	}
	return nil
}

// verifyP2PKBlindedMessages checks, for a SIG_ALL swap, that every input
// proof agrees on the same lock conditions and that the outputs carry a
// witness satisfying them.
func verifyP2PKBlindedMessages(proofs cashu.Proofs, blindedMessages cashu.BlindedMessages) error {
	refSecret, err := nut10.DeserializeSecret(proofs[0].Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}
	refKeys, err := nut11.PublicKeys(refSecret)
	if err != nil {
		return err
	}
	refTags, err := nut11.ParseP2PKTags(refSecret.Tags)
	if err != nil {
		return err
	}
	signaturesRequired := 1
	if refTags.NSigs > 0 {
		signaturesRequired = refTags.NSigs
	}

	for _, proof := range proofs {
		if err := checkSigAllConditionsMatch(proof, refKeys, signaturesRequired); err != nil {
			return err
		}
	}

	for _, bm := range blindedMessages {
		B_bytes, err := hex.DecodeString(bm.B_)
		if err != nil {
			return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
		}
		hash := sha256.Sum256(B_bytes)

		var witness nut11.P2PKWitness
		if err := json.Unmarshal([]byte(bm.Witness), &witness); err != nil || len(witness.Signatures) < 1 {
			return nut11.InvalidWitness
		}
		if !nut11.HasValidSignatures(hash[:], witness, signaturesRequired, refKeys) {
			return nut11.NotEnoughSignaturesErr
		}
	}

	return nil
}

// checkSigAllConditionsMatch verifies one proof's SIG_ALL secret agrees
// with the reference key set and signature threshold shared by the swap.
func checkSigAllConditionsMatch(proof cashu.Proof, refKeys []*btcec.PublicKey, signaturesRequired int) error {
	secret, err := nut10.DeserializeSecret(proof.Secret)
	if err != nil {
		return cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}
	if !nut11.IsSigAll(secret) {
		return nut11.AllSigAllFlagsErr
	}

	tags, err := nut11.ParseP2PKTags(secret.Tags)
	if err != nil {
		return err
	}
	required := 1
	if tags.NSigs > 0 {
		required = tags.NSigs
	}
	if required != signaturesRequired {
		return nut11.NSigsMustBeEqualErr
	}

	keys, err := nut11.PublicKeys(secret)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(refKeys, keys) {
		return nut11.SigAllKeysMustBeEqualErr
	}

	return nil
}

// signBlindedMessages signs each blinded message with its keyset's
// private key for the requested amount, recording the signature so a
// later restore or replay request can find it.
func (m *Mint) signBlindedMessages(blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	blindedSignatures := make(cashu.BlindedSignatures, len(blindedMessages))

	for i, msg := range blindedMessages {
		sig, err := m.signOne(msg)
		if err != nil {
			return nil, err
		}
		blindedSignatures[i] = sig

		if err := m.db.SaveBlindSignature(msg.B_, sig); err != nil {
			dbMsg := fmt.Sprintf("error saving signatures: %v", err)
			return nil, cashu.BuildCashuError(dbMsg, cashu.DBErrCode)
		}
	}

	return blindedSignatures, nil
}

func (m *Mint) signOne(msg cashu.BlindedMessage) (cashu.BlindedSignature, error) {
	if _, ok := m.keysets[msg.Id]; !ok {
		return cashu.BlindedSignature{}, cashu.UnknownKeysetErr
	}
	keyset, ok := m.activeKeysets[msg.Id]
	if !ok {
		return cashu.BlindedSignature{}, cashu.InactiveKeysetSignatureRequest
	}
	key, ok := keyset.Keys[msg.Amount]
	if !ok {
		return cashu.BlindedSignature{}, cashu.InvalidBlindedMessageAmount
	}

	B_bytes, err := hex.DecodeString(msg.B_)
	if err != nil {
		return cashu.BlindedSignature{}, cashu.StandardErr
	}
	B_, err := btcec.ParsePubKey(B_bytes)
	if err != nil {
		return cashu.BlindedSignature{}, cashu.BuildCashuError(err.Error(), cashu.StandardErrCode)
	}

	C_ := crypto.SignBlindedMessage(B_, key.PrivateKey)
	e, s := crypto.GenerateDLEQ(key.PrivateKey, B_, C_)

	return cashu.BlindedSignature{
		Amount: msg.Amount,
		C_:     hex.EncodeToString(C_.SerializeCompressed()),
		Id:     keyset.Id,
		DLEQ: &cashu.DLEQProof{
			E: hex.EncodeToString(e.Serialize()),
			S: hex.EncodeToString(s.Serialize()),
		},
	}, nil
}

// requestInvoice requests an invoice from the Lightning backend for amount.
func (m *Mint) requestInvoice(amount uint64) (*lightning.Invoice, error) {
	invoice, err := m.lightningClient.CreateInvoice(amount)
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (m *Mint) TransactionFees(inputs cashu.Proofs) uint {
	var ppk uint
	for _, proof := range inputs {
		// an unknown keyset id adds no fee here; verifyProofs rejects it
		ppk += m.keysets[proof.Id].InputFeePpk
	}
	return (ppk + 999) / 1000
}

// ActiveKeysets returns the keysets currently signing new outputs,
// keyed by keyset id.
func (m *Mint) ActiveKeysets() map[string]crypto.MintKeyset {
	return m.activeKeysets
}

// Keysets returns every keyset the mint knows about, active or
// retired, keyed by keyset id.
func (m *Mint) Keysets() map[string]crypto.MintKeyset {
	return m.keysets
}

func (m *Mint) GetActiveKeyset() crypto.MintKeyset {
	for _, keyset := range m.activeKeysets {
		return keyset
	}
	return crypto.MintKeyset{}
}

func (m *Mint) SetMintInfo(mintInfo MintInfo) error {
	nuts := nut06.NutsMap{
		4: nut06.NutSetting{
			Methods: []nut06.MethodSetting{
				{
					Method:    BOLT11_METHOD,
					Unit:      SAT_UNIT,
					MinAmount: m.limits.MintingSettings.MinAmount,
					MaxAmount: m.limits.MintingSettings.MaxAmount,
				},
			},
			Disabled: false,
		},
		5: nut06.NutSetting{
			Methods: []nut06.MethodSetting{
				{
					Method:    BOLT11_METHOD,
					Unit:      SAT_UNIT,
					MinAmount: m.limits.MeltingSettings.MinAmount,
					MaxAmount: m.limits.MeltingSettings.MaxAmount,
				},
			},
			Disabled: false,
		},
		7:  map[string]bool{"supported": true},
		8:  map[string]bool{"supported": false},
		9:  map[string]bool{"supported": true},
		10: map[string]bool{"supported": true},
		11: map[string]bool{"supported": true},
		12: map[string]bool{"supported": true},
	}

	m.mintInfo = nut06.MintInfo{
		Name:            mintInfo.Name,
		Version:         "gonuts/0.2.0",
		Description:     mintInfo.Description,
		LongDescription: mintInfo.LongDescription,
		Contact:         mintInfo.Contact,
		Motd:            mintInfo.Motd,
		Nuts:            nuts,
	}
	return nil
}

func (m *Mint) RetrieveMintInfo() (nut06.MintInfo, error) {
	seed, err := m.db.GetSeed()
	if err != nil {
		return nut06.MintInfo{}, err
	}
	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nut06.MintInfo{}, err
	}
	publicKey, err := master.ECPubKey()
	if err != nil {
		return nut06.MintInfo{}, err
	}

	mintBalance, err := m.db.GetBalance()
	if err != nil {
		msg := fmt.Sprintf("error getting mint balance: %v", err)
		return nut06.MintInfo{}, cashu.BuildCashuError(msg, cashu.DBErrCode)
	}

	mintingDisabled := m.limits.MaxBalance > 0 && mintBalance >= m.limits.MaxBalance

	mint4 := m.mintInfo.Nuts[4].(nut06.NutSetting)
	mint4.Disabled = mintingDisabled
	m.mintInfo.Nuts[4] = mint4
	m.mintInfo.Pubkey = hex.EncodeToString(publicKey.SerializeCompressed())

	return m.mintInfo, nil
}
