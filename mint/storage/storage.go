// Package storage defines the persistence contract a Mint depends on.
// The sqlite subpackage is the production implementation; anything
// satisfying MintDB (an in-memory fake for tests, a different SQL
// engine) can stand in for it.
package storage

import (
	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut04"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut05"
)

// DBKeyset is a keyset row: enough to re-derive its keys (Seed +
// DerivationPathIdx) without storing the private scalars themselves.
type DBKeyset struct {
	Id                string
	Unit              string
	Active            bool
	Seed              string
	DerivationPathIdx uint32
	InputFeePpk       uint
}

// MintQuote is a mint-quote row (NUT-04).
type MintQuote struct {
	Id             string
	Amount         uint64
	PaymentRequest string
	PaymentHash    string
	State          nut04.State
	Expiry         uint64
}

// MeltQuote is a melt-quote row (NUT-05).
type MeltQuote struct {
	Id             string
	InvoiceRequest string
	PaymentHash    string
	Amount         uint64
	FeeReserve     uint64
	State          nut05.State
	Expiry         uint64
	Preimage       string
}

// DBProof is a proof row as recorded in the used or pending tables. Y is
// the hex-encoded hash-to-curve point of Secret, stored so lookups don't
// need to recompute it.
type DBProof struct {
	Y       string
	Amount  uint64
	Id      string
	Secret  string
	C       string
	Witness string
}

// MintDB is the full persistence surface a Mint needs: keysets, quotes,
// used/pending proofs, blind signatures (for NUT-09 restore), the
// mint's seed, and its running balance.
type MintDB interface {
	GetSeed() ([]byte, error)
	SaveSeed(seed []byte) error

	SaveKeyset(keyset DBKeyset) error
	GetKeysets() ([]DBKeyset, error)
	UpdateKeysetActive(id string, active bool) error

	SaveMintQuote(quote MintQuote) error
	GetMintQuote(id string) (MintQuote, error)
	GetMintQuoteByPaymentHash(paymentHash string) (MintQuote, error)
	UpdateMintQuoteState(id string, state nut04.State) error

	SaveMeltQuote(quote MeltQuote) error
	GetMeltQuote(id string) (MeltQuote, error)
	UpdateMeltQuote(id, preimage string, state nut05.State) error

	SaveProofs(proofs cashu.Proofs) error
	GetProofsUsed(Ys []string) ([]DBProof, error)

	AddPendingProofs(proofs cashu.Proofs, quoteId string) error
	GetPendingProofs(Ys []string) ([]DBProof, error)
	GetPendingProofsByQuote(quoteId string) ([]DBProof, error)
	RemovePendingProofs(Ys []string) error

	SaveBlindSignature(B_ string, signature cashu.BlindedSignature) error
	GetBlindSignature(B_ string) (cashu.BlindedSignature, error)
	GetBlindSignatures(B_s []string) ([]cashu.BlindedSignature, error)

	GetBalance() (uint64, error)
}
