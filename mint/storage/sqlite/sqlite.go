// Package sqlite is the production MintDB implementation, backed by
// mattn/go-sqlite3 with schema migrations run through golang-migrate.
package sqlite

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	sqlite3migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/mattn/go-sqlite3"

	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut04"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut05"
	"github.com/gonuts-mint/gonuts/mint/storage"
)

const dbFile = "mint.sqlite3"

// SQLiteDB is the sqlite-backed storage.MintDB.
type SQLiteDB struct {
	db *sql.DB
}

// InitSQLite opens (creating if needed) the mint's sqlite database at
// path and runs any pending migrations found under migrationsPath. If
// migrationsPath is empty, the directory mint/storage/sqlite/migrations,
// relative to the working directory, is used.
func InitSQLite(path, migrationsPath string) (*SQLiteDB, error) {
	dbPath := filepath.Join(path, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("error opening db: %v", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("error connecting to db: %v", err)
	}

	if migrationsPath == "" {
		migrationsPath = "mint/storage/sqlite/migrations"
	}

	driver, err := sqlite3migrate.WithInstance(db, &sqlite3migrate.Config{})
	if err != nil {
		return nil, fmt.Errorf("error creating migration driver: %v", err)
	}
	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("error loading migrations: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return nil, fmt.Errorf("error running migrations: %v", err)
	}

	return &SQLiteDB{db: db}, nil
}

func (s *SQLiteDB) GetSeed() ([]byte, error) {
	var hexSeed string
	row := s.db.QueryRow(`SELECT seed FROM seed LIMIT 1`)
	if err := row.Scan(&hexSeed); err != nil {
		return nil, err
	}
	return hex.DecodeString(hexSeed)
}

func (s *SQLiteDB) SaveSeed(seed []byte) error {
	_, err := s.db.Exec(`INSERT INTO seed (seed) VALUES (?)`, hex.EncodeToString(seed))
	return err
}

func (s *SQLiteDB) SaveKeyset(keyset storage.DBKeyset) error {
	_, err := s.db.Exec(
		`INSERT INTO keysets (id, unit, active, seed, derivation_path_idx, input_fee_ppk)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		keyset.Id, keyset.Unit, keyset.Active, keyset.Seed, keyset.DerivationPathIdx, keyset.InputFeePpk,
	)
	return err
}

func (s *SQLiteDB) GetKeysets() ([]storage.DBKeyset, error) {
	rows, err := s.db.Query(`SELECT id, unit, active, seed, derivation_path_idx, input_fee_ppk FROM keysets`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keysets []storage.DBKeyset
	for rows.Next() {
		var k storage.DBKeyset
		if err := rows.Scan(&k.Id, &k.Unit, &k.Active, &k.Seed, &k.DerivationPathIdx, &k.InputFeePpk); err != nil {
			return nil, err
		}
		keysets = append(keysets, k)
	}
	return keysets, rows.Err()
}

func (s *SQLiteDB) UpdateKeysetActive(id string, active bool) error {
	_, err := s.db.Exec(`UPDATE keysets SET active = ? WHERE id = ?`, active, id)
	return err
}

func (s *SQLiteDB) SaveMintQuote(quote storage.MintQuote) error {
	_, err := s.db.Exec(
		`INSERT INTO mint_quotes (id, amount, payment_request, payment_hash, state, expiry)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		quote.Id, quote.Amount, quote.PaymentRequest, quote.PaymentHash, int(quote.State), quote.Expiry,
	)
	return err
}

func (s *SQLiteDB) GetMintQuote(id string) (storage.MintQuote, error) {
	row := s.db.QueryRow(
		`SELECT id, amount, payment_request, payment_hash, state, expiry FROM mint_quotes WHERE id = ?`, id)
	return scanMintQuote(row)
}

func (s *SQLiteDB) GetMintQuoteByPaymentHash(paymentHash string) (storage.MintQuote, error) {
	row := s.db.QueryRow(
		`SELECT id, amount, payment_request, payment_hash, state, expiry FROM mint_quotes WHERE payment_hash = ?`, paymentHash)
	return scanMintQuote(row)
}

func scanMintQuote(row *sql.Row) (storage.MintQuote, error) {
	var q storage.MintQuote
	var state int
	if err := row.Scan(&q.Id, &q.Amount, &q.PaymentRequest, &q.PaymentHash, &state, &q.Expiry); err != nil {
		return storage.MintQuote{}, err
	}
	q.State = nut04.State(state)
	return q, nil
}

func (s *SQLiteDB) UpdateMintQuoteState(id string, state nut04.State) error {
	_, err := s.db.Exec(`UPDATE mint_quotes SET state = ? WHERE id = ?`, int(state), id)
	return err
}

func (s *SQLiteDB) SaveMeltQuote(quote storage.MeltQuote) error {
	_, err := s.db.Exec(
		`INSERT INTO melt_quotes (id, invoice_request, payment_hash, amount, fee_reserve, state, expiry, preimage)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		quote.Id, quote.InvoiceRequest, quote.PaymentHash, quote.Amount, quote.FeeReserve, int(quote.State), quote.Expiry, quote.Preimage,
	)
	return err
}

func (s *SQLiteDB) GetMeltQuote(id string) (storage.MeltQuote, error) {
	row := s.db.QueryRow(
		`SELECT id, invoice_request, payment_hash, amount, fee_reserve, state, expiry, preimage
		 FROM melt_quotes WHERE id = ?`, id)

	var q storage.MeltQuote
	var state int
	if err := row.Scan(&q.Id, &q.InvoiceRequest, &q.PaymentHash, &q.Amount, &q.FeeReserve, &state, &q.Expiry, &q.Preimage); err != nil {
		return storage.MeltQuote{}, err
	}
	q.State = nut05.State(state)
	return q, nil
}

func (s *SQLiteDB) UpdateMeltQuote(id, preimage string, state nut05.State) error {
	_, err := s.db.Exec(`UPDATE melt_quotes SET state = ?, preimage = ? WHERE id = ?`, int(state), preimage, id)
	return err
}

func (s *SQLiteDB) SaveProofs(proofs cashu.Proofs) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, p := range proofs {
		y, err := proofY(p)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO proofs_used (y, amount, keyset_id, secret, c, witness) VALUES (?, ?, ?, ?, ?, ?)`,
			y, p.Amount, p.Id, p.Secret, p.C, p.Witness,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteDB) GetProofsUsed(Ys []string) ([]storage.DBProof, error) {
	return s.queryProofsByY(`SELECT y, amount, keyset_id, secret, c, witness FROM proofs_used WHERE y IN (%s)`, Ys)
}

func (s *SQLiteDB) AddPendingProofs(proofs cashu.Proofs, quoteId string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	for _, p := range proofs {
		y, err := proofY(p)
		if err != nil {
			tx.Rollback()
			return err
		}
		if _, err := tx.Exec(
			`INSERT INTO proofs_pending (y, amount, keyset_id, secret, c, witness, quote_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			y, p.Amount, p.Id, p.Secret, p.C, p.Witness, quoteId,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteDB) GetPendingProofs(Ys []string) ([]storage.DBProof, error) {
	return s.queryProofsByY(`SELECT y, amount, keyset_id, secret, c, witness FROM proofs_pending WHERE y IN (%s)`, Ys)
}

func (s *SQLiteDB) GetPendingProofsByQuote(quoteId string) ([]storage.DBProof, error) {
	rows, err := s.db.Query(
		`SELECT y, amount, keyset_id, secret, c, witness FROM proofs_pending WHERE quote_id = ?`, quoteId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProofs(rows)
}

func (s *SQLiteDB) RemovePendingProofs(Ys []string) error {
	if len(Ys) == 0 {
		return nil
	}
	placeholders, args := inClause(Ys)
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM proofs_pending WHERE y IN (%s)`, placeholders), args...)
	return err
}

func (s *SQLiteDB) SaveBlindSignature(B_ string, signature cashu.BlindedSignature) error {
	var e, sVal string
	if signature.DLEQ != nil {
		e, sVal = signature.DLEQ.E, signature.DLEQ.S
	}
	_, err := s.db.Exec(
		`INSERT INTO blind_signatures (b_, amount, keyset_id, c_, dleq_e, dleq_s) VALUES (?, ?, ?, ?, ?, ?)`,
		B_, signature.Amount, signature.Id, signature.C_, e, sVal,
	)
	return err
}

func (s *SQLiteDB) GetBlindSignature(B_ string) (cashu.BlindedSignature, error) {
	row := s.db.QueryRow(`SELECT amount, keyset_id, c_, dleq_e, dleq_s FROM blind_signatures WHERE b_ = ?`, B_)
	var sig cashu.BlindedSignature
	var e, sVal string
	if err := row.Scan(&sig.Amount, &sig.Id, &sig.C_, &e, &sVal); err != nil {
		return cashu.BlindedSignature{}, err
	}
	if e != "" {
		sig.DLEQ = &cashu.DLEQProof{E: e, S: sVal}
	}
	return sig, nil
}

func (s *SQLiteDB) GetBlindSignatures(B_s []string) ([]cashu.BlindedSignature, error) {
	if len(B_s) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(B_s)
	rows, err := s.db.Query(
		fmt.Sprintf(`SELECT amount, keyset_id, c_, dleq_e, dleq_s FROM blind_signatures WHERE b_ IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sigs []cashu.BlindedSignature
	for rows.Next() {
		var sig cashu.BlindedSignature
		var e, sVal string
		if err := rows.Scan(&sig.Amount, &sig.Id, &sig.C_, &e, &sVal); err != nil {
			return nil, err
		}
		if e != "" {
			sig.DLEQ = &cashu.DLEQProof{E: e, S: sVal}
		}
		sigs = append(sigs, sig)
	}
	return sigs, rows.Err()
}

func (s *SQLiteDB) GetBalance() (uint64, error) {
	var issued, redeemed sql.NullInt64
	if err := s.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM blind_signatures`).Scan(&issued); err != nil {
		return 0, err
	}
	if err := s.db.QueryRow(`SELECT COALESCE(SUM(amount), 0) FROM proofs_used`).Scan(&redeemed); err != nil {
		return 0, err
	}
	if redeemed.Int64 > issued.Int64 {
		return 0, nil
	}
	return uint64(issued.Int64 - redeemed.Int64), nil
}

func (s *SQLiteDB) queryProofsByY(query string, Ys []string) ([]storage.DBProof, error) {
	if len(Ys) == 0 {
		return nil, nil
	}
	placeholders, args := inClause(Ys)
	rows, err := s.db.Query(fmt.Sprintf(query, placeholders), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanProofs(rows)
}

func scanProofs(rows *sql.Rows) ([]storage.DBProof, error) {
	var proofs []storage.DBProof
	for rows.Next() {
		var p storage.DBProof
		if err := rows.Scan(&p.Y, &p.Amount, &p.Id, &p.Secret, &p.C, &p.Witness); err != nil {
			return nil, err
		}
		proofs = append(proofs, p)
	}
	return proofs, rows.Err()
}

func inClause(values []string) (string, []interface{}) {
	placeholders := make([]string, len(values))
	args := make([]interface{}, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		args[i] = v
	}
	return strings.Join(placeholders, ","), args
}

func proofY(p cashu.Proof) (string, error) {
	return cashu.ProofY(p)
}
