package storage

import (
	"encoding/json"
	"fmt"

	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/crypto"
	"github.com/gonuts-mint/gonuts/mint/lightning"
	bolt "go.etcd.io/bbolt"
)

var (
	proofsBucket   = []byte("proofs")
	keysetsBucket  = []byte("keysets")
	invoicesBucket = []byte("invoices")
)

// BoltDB is the wallet's on-disk store: a single bbolt file holding
// unspent proofs, known mint keysets, and lightning invoices the wallet
// has created or paid.
type BoltDB struct {
	db *bolt.DB
}

// InitBolt opens (creating if necessary) the wallet's bbolt file at
// path/wallet.db and ensures its buckets exist.
func InitBolt(path string) (*BoltDB, error) {
	db, err := bolt.Open(path+"/wallet.db", 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("error opening wallet db: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{proofsBucket, keysetsBucket, invoicesBucket} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error setting up wallet db: %v", err)
	}

	return &BoltDB{db: db}, nil
}

func (b *BoltDB) SaveProof(proof cashu.Proof) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		jsonProof, err := json.Marshal(proof)
		if err != nil {
			return err
		}
		return tx.Bucket(proofsBucket).Put([]byte(proof.Secret), jsonProof)
	})
}

func (b *BoltDB) GetProofsByKeysetId(id string) cashu.Proofs {
	proofs := cashu.Proofs{}
	for _, proof := range b.GetProofs() {
		if proof.Id == id {
			proofs = append(proofs, proof)
		}
	}
	return proofs
}

func (b *BoltDB) GetProofs() cashu.Proofs {
	proofs := cashu.Proofs{}

	b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(proofsBucket).ForEach(func(k, v []byte) error {
			var proof cashu.Proof
			if err := json.Unmarshal(v, &proof); err != nil {
				return err
			}
			proofs = append(proofs, proof)
			return nil
		})
	})

	return proofs
}

func (b *BoltDB) DeleteProof(secret string) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(proofsBucket).Delete([]byte(secret))
	})
}

func (b *BoltDB) SaveKeyset(keyset *crypto.Keyset) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		jsonKeyset, err := json.Marshal(keyset)
		if err != nil {
			return err
		}
		return tx.Bucket(keysetsBucket).Put([]byte(keyset.Id), jsonKeyset)
	})
}

func (b *BoltDB) GetKeysets() []crypto.Keyset {
	keysets := []crypto.Keyset{}

	b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(keysetsBucket).ForEach(func(k, v []byte) error {
			var keyset crypto.Keyset
			if err := json.Unmarshal(v, &keyset); err != nil {
				return err
			}
			keysets = append(keysets, keyset)
			return nil
		})
	})

	return keysets
}

func (b *BoltDB) SaveInvoice(invoice lightning.Invoice) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		jsonInvoice, err := json.Marshal(invoice)
		if err != nil {
			return err
		}
		return tx.Bucket(invoicesBucket).Put([]byte(invoice.PaymentRequest), jsonInvoice)
	})
}

func (b *BoltDB) GetInvoice(paymentRequest string) *lightning.Invoice {
	var invoice *lightning.Invoice

	b.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(invoicesBucket).Get([]byte(paymentRequest))
		if v == nil {
			return nil
		}
		var inv lightning.Invoice
		if err := json.Unmarshal(v, &inv); err != nil {
			return err
		}
		invoice = &inv
		return nil
	})

	return invoice
}

func (b *BoltDB) GetInvoices() []lightning.Invoice {
	invoices := []lightning.Invoice{}

	b.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(invoicesBucket).ForEach(func(k, v []byte) error {
			var invoice lightning.Invoice
			if err := json.Unmarshal(v, &invoice); err != nil {
				return err
			}
			invoices = append(invoices, invoice)
			return nil
		})
	})

	return invoices
}
