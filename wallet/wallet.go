package wallet

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sort"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut01"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut03"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut04"
	"github.com/gonuts-mint/gonuts/crypto"
	"github.com/gonuts-mint/gonuts/mint/lightning"
	"github.com/gonuts-mint/gonuts/wallet/storage"
)

const MINT_URL = "MINT_URL"

// Wallet holds a user's unspent proofs and talks NUT-00/03/04 HTTP to a
// single mint (MintURL) to mint, swap, send, and receive ecash.
type Wallet struct {
	db storage.DB

	MintURL string

	keyset  *crypto.Keyset
	keysets []crypto.Keyset

	proofs cashu.Proofs
}

func setWalletPath() string {
	homedir, err := os.UserHomeDir()
	if err != nil {
		log.Fatal(err)
	}

	path := filepath.Join(homedir, ".gonuts", "wallet")
	if err := os.MkdirAll(path, 0700); err != nil {
		log.Fatal(err)
	}
	return path
}

func InitStorage(path string) (storage.DB, error) {
	// bolt db atm
	return storage.InitBolt(path)
}

func LoadWallet() (*Wallet, error) {
	db, err := InitStorage(setWalletPath())
	if err != nil {
		return nil, fmt.Errorf("InitStorage: %v", err)
	}

	wallet := &Wallet{
		db:      db,
		keysets: db.GetKeysets(),
		proofs:  db.GetProofs(),
		MintURL: os.Getenv(MINT_URL),
	}
	if wallet.MintURL == "" {
		wallet.MintURL = "http://127.0.0.1:3338"
	}

	return wallet, nil
}

// GetMintCurrentKeyset fetches mintURL's active signing keyset over
// NUT-01 and derives its keyset id client-side.
func GetMintCurrentKeyset(mintURL string) (*crypto.Keyset, error) {
	resp, err := http.Get(mintURL + "/v1/keys")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var keysRes nut01.GetKeysResponse
	if err := json.NewDecoder(resp.Body).Decode(&keysRes); err != nil {
		return nil, fmt.Errorf("json.Decode: %v", err)
	}
	if len(keysRes.Keysets) == 0 {
		return nil, errors.New("mint returned no keysets")
	}

	keyset := &crypto.Keyset{MintURL: mintURL}
	for amount, pubkey := range keysRes.Keysets[0].Keys {
		pubkeyBytes, err := hex.DecodeString(pubkey)
		if err != nil {
			return nil, err
		}
		keyset.KeyPairs = append(keyset.KeyPairs, crypto.KeyPair{Amount: amount, PublicKey: pubkeyBytes})
	}
	keyset.Id = crypto.DeriveKeysetId(keyset.KeyPairs)

	return keyset, nil
}

func (w *Wallet) GetBalance() uint64 {
	var balance uint64
	for _, proof := range w.proofs {
		balance += proof.Amount
	}
	return balance
}

func (w *Wallet) CheckQuotePaid(quoteId string) bool {
	var res nut04.PostMintQuoteBolt11Response
	if err := w.getJSON("/v1/mint/quote/bolt11/"+quoteId, &res); err != nil {
		return false
	}
	return res.Paid
}

func (w *Wallet) RequestMint(amount uint64) (nut04.PostMintQuoteBolt11Response, error) {
	var res nut04.PostMintQuoteBolt11Response
	req := nut04.PostMintQuoteBolt11Request{Amount: amount, Unit: "sat"}
	err := w.postJSON("/v1/mint/quote/bolt11", req, &res)
	return res, err
}

func (w *Wallet) MintTokens(quoteId string, blindedMessages cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	var res nut04.PostMintBolt11Response
	req := nut04.PostMintBolt11Request{Quote: quoteId, Outputs: blindedMessages}
	if err := w.postJSON("/v1/mint/bolt11", req, &res); err != nil {
		return nil, err
	}
	return res.Signatures, nil
}

// Send selects enough of the wallet's stored proofs to cover amount and
// returns a token for exactly that amount. If the selected proofs add
// up to more than amount, the excess is swapped for change that stays
// in the wallet.
func (w *Wallet) Send(amount uint64) (*cashu.Token, error) {
	if amount > w.GetBalance() {
		return nil, errors.New("insufficient funds")
	}

	selected, selectedAmount := selectProofs(w.db.GetProofs(), amount)
	if selectedAmount == amount {
		for _, proof := range selected {
			w.db.DeleteProof(proof.Secret)
		}
		w.proofs = w.db.GetProofs()
		token := cashu.NewToken(selected, w.MintURL, "sat")
		return &token, nil
	}

	mintKeyset, err := GetMintCurrentKeyset(w.MintURL)
	if err != nil {
		return nil, fmt.Errorf("error getting mint keyset: %v", err)
	}

	sendMessages, sendSecrets, sendRs, err := cashu.CreateBlindedMessages(amount, mintKeyset.Id)
	if err != nil {
		return nil, err
	}
	changeMessages, changeSecrets, changeRs, err := cashu.CreateBlindedMessages(selectedAmount-amount, mintKeyset.Id)
	if err != nil {
		return nil, err
	}

	outputs, secrets, rs := mergeSortedByAmount(sendMessages, sendSecrets, sendRs, changeMessages, changeSecrets, changeRs)

	var swapResponse nut03.PostSwapResponse
	swapReq := nut03.PostSwapRequest{Inputs: selected, Outputs: outputs}
	if err := w.postJSON("/v1/swap", swapReq, &swapResponse); err != nil {
		return nil, err
	}

	for _, proof := range selected {
		w.db.DeleteProof(proof.Secret)
	}

	proofs, err := w.ConstructProofs(swapResponse.Signatures, secrets, rs, mintKeyset)
	if err != nil {
		return nil, fmt.Errorf("wallet.ConstructProofs: %v", err)
	}

	proofsToSend, change := splitByAmounts(proofs, sendMessages)
	for _, proof := range change {
		w.db.SaveProof(proof)
	}
	w.proofs = w.db.GetProofs()

	token := cashu.NewToken(proofsToSend, w.MintURL, "sat")
	return &token, nil
}

// selectProofs greedily accumulates proofs until their total reaches or
// exceeds amount, returning the proofs chosen and their combined total.
func selectProofs(proofs cashu.Proofs, amount uint64) (cashu.Proofs, uint64) {
	selected := cashu.Proofs{}
	var total uint64
	for _, proof := range proofs {
		selected = append(selected, proof)
		total += proof.Amount
		if total >= amount {
			break
		}
	}
	return selected, total
}

// mergeSortedByAmount concatenates two parallel (message, secret, r)
// triples and returns them resorted together, ascending by blinded
// message amount.
func mergeSortedByAmount(
	aMsgs cashu.BlindedMessages, aSecrets [][]byte, aRs []*secp256k1.PrivateKey,
	bMsgs cashu.BlindedMessages, bSecrets [][]byte, bRs []*secp256k1.PrivateKey,
) (cashu.BlindedMessages, [][]byte, []*secp256k1.PrivateKey) {
	msgs := make(cashu.BlindedMessages, 0, len(aMsgs)+len(bMsgs))
	secrets := make([][]byte, 0, len(aSecrets)+len(bSecrets))
	rs := make([]*secp256k1.PrivateKey, 0, len(aRs)+len(bRs))

	msgs = append(append(msgs, aMsgs...), bMsgs...)
	secrets = append(append(secrets, aSecrets...), bSecrets...)
	rs = append(append(rs, aRs...), bRs...)

	order := make([]int, len(msgs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return msgs[order[i]].Amount < msgs[order[j]].Amount
	})

	sortedMsgs := make(cashu.BlindedMessages, len(msgs))
	sortedSecrets := make([][]byte, len(secrets))
	sortedRs := make([]*secp256k1.PrivateKey, len(rs))
	for newIdx, oldIdx := range order {
		sortedMsgs[newIdx] = msgs[oldIdx]
		sortedSecrets[newIdx] = secrets[oldIdx]
		sortedRs[newIdx] = rs[oldIdx]
	}

	return sortedMsgs, sortedSecrets, sortedRs
}

// splitByAmounts pulls one proof matching each of want's amounts out of
// proofs (the "to send" half) and returns the rest as change.
func splitByAmounts(proofs cashu.Proofs, want cashu.BlindedMessages) (toSend, change cashu.Proofs) {
	remaining := make(cashu.Proofs, len(proofs))
	copy(remaining, proofs)

	toSend = make(cashu.Proofs, 0, len(want))
	for _, w := range want {
		for i, proof := range remaining {
			if proof.Amount == w.Amount {
				toSend = append(toSend, proof)
				remaining = append(remaining[:i], remaining[i+1:]...)
				break
			}
		}
	}

	return toSend, remaining
}

// Receive redeems a token received out of band: it swaps the token's
// proofs at their issuing mint for fresh proofs bound to this wallet,
// so a proof the sender kept a copy of can never be replayed against
// this wallet's balance, then stores the new proofs and returns the
// amount received.
func (w *Wallet) Receive(token cashu.Token) (uint64, error) {
	amount := token.Proofs.Amount()
	if amount == 0 {
		return 0, errors.New("token has no value")
	}

	mintKeyset, err := GetMintCurrentKeyset(token.Mint)
	if err != nil {
		return 0, fmt.Errorf("error getting mint keyset: %v", err)
	}

	blindedMessages, secrets, rs, err := cashu.CreateBlindedMessages(amount, mintKeyset.Id)
	if err != nil {
		return 0, err
	}

	var swapResponse nut03.PostSwapResponse
	swapReq := nut03.PostSwapRequest{Inputs: token.Proofs, Outputs: blindedMessages}
	if err := postJSONTo(token.Mint, "/v1/swap", swapReq, &swapResponse); err != nil {
		return 0, err
	}

	proofs, err := w.ConstructProofs(swapResponse.Signatures, secrets, rs, mintKeyset)
	if err != nil {
		return 0, fmt.Errorf("wallet.ConstructProofs: %v", err)
	}

	if err := w.StoreProofs(proofs); err != nil {
		return 0, fmt.Errorf("error storing proofs: %v", err)
	}

	return amount, nil
}

// ConstructProofs unblinds each signature with its matching private
// nonce r and mint public key, producing spendable proofs over secrets.
func (w *Wallet) ConstructProofs(
	blindedSignatures cashu.BlindedSignatures,
	secrets [][]byte,
	rs []*secp256k1.PrivateKey,
	keyset *crypto.Keyset,
) (cashu.Proofs, error) {
	if len(blindedSignatures) != len(secrets) || len(blindedSignatures) != len(rs) {
		return nil, errors.New("lengths do not match")
	}

	proofs := make(cashu.Proofs, len(blindedSignatures))
	for i, sig := range blindedSignatures {
		C_bytes, err := hex.DecodeString(sig.C_)
		if err != nil {
			return nil, err
		}
		C_, err := secp256k1.ParsePubKey(C_bytes)
		if err != nil {
			return nil, err
		}

		mintPubKey, err := amountPublicKey(keyset, sig.Amount)
		if err != nil {
			return nil, err
		}

		C := crypto.UnblindSignature(C_, rs[i], mintPubKey)
		proofs[i] = cashu.Proof{
			Amount: sig.Amount,
			Secret: string(secrets[i]),
			C:      hex.EncodeToString(C.SerializeCompressed()),
			Id:     sig.Id,
		}
	}

	return proofs, nil
}

func amountPublicKey(keyset *crypto.Keyset, amount uint64) (*secp256k1.PublicKey, error) {
	for _, kp := range keyset.KeyPairs {
		if kp.Amount == amount {
			return secp256k1.ParsePubKey(kp.PublicKey)
		}
	}
	return nil, fmt.Errorf("keyset %s has no key for amount %d", keyset.Id, amount)
}

func (w *Wallet) StoreProofs(proofs cashu.Proofs) error {
	for _, proof := range proofs {
		if err := w.db.SaveProof(proof); err != nil {
			return err
		}
	}
	w.proofs = append(w.proofs, proofs...)
	return nil
}

func (w *Wallet) SaveInvoice(invoice lightning.Invoice) error {
	return w.db.SaveInvoice(invoice)
}

func (w *Wallet) GetInvoice(pr string) *lightning.Invoice {
	return w.db.GetInvoice(pr)
}

func (w *Wallet) getJSON(path string, out any) error {
	resp, err := http.Get(w.MintURL + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

func (w *Wallet) postJSON(path string, body, out any) error {
	return postJSONTo(w.MintURL, path, body, out)
}

// postJSONTo posts body as JSON to baseURL+path and decodes the
// response into out, the shared plumbing behind every NUT HTTP call
// a wallet makes (to its own mint, or a token's issuing mint).
func postJSONTo(baseURL, path string, body, out any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("json.Marshal: %v", err)
	}

	resp, err := http.Post(baseURL+path, "application/json", bytes.NewBuffer(encoded))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("json.Decode: %v", err)
	}
	return nil
}
