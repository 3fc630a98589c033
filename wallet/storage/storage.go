package storage

import (
	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/crypto"
	"github.com/gonuts-mint/gonuts/mint/lightning"
)

type DB interface {
	SaveProof(cashu.Proof) error
	GetProofsByKeysetId(string) cashu.Proofs
	GetProofs() cashu.Proofs
	DeleteProof(string) error
	SaveKeyset(*crypto.Keyset) error
	GetKeysets() []crypto.Keyset
	SaveInvoice(lightning.Invoice) error
	GetInvoice(string) *lightning.Invoice
	GetInvoices() []lightning.Invoice
}
