package cashu

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/gonuts-mint/gonuts/crypto"
)

// DLEQProof is the NUT-12 discrete-log-equality proof a mint attaches to a
// blinded signature so a wallet (or a later verifier) can confirm it was
// produced by the claimed keyset without trusting the mint after the fact.
type DLEQProof struct {
	E string `json:"e"`
	S string `json:"s"`
}

// BlindedMessage is the wallet's blinded output: an amount paired with a
// blinded curve point B_. Witness carries an optional P2PK signature over
// B_ when the request is locked (NUT-11 SIG_ALL).
type BlindedMessage struct {
	Amount  uint64 `json:"amount"`
	B_      string `json:"B_"`
	Id      string `json:"id,omitempty"`
	Witness string `json:"witness,omitempty"`
}

// BlindedMessages is a request's full set of outputs.
type BlindedMessages []BlindedMessage

// BlindedSignature is the mint's response to a single blinded message: its
// scalar-multiplied (still blinded) point C_, the issuing keyset id, and
// an optional DLEQ proof.
type BlindedSignature struct {
	Amount uint64     `json:"amount"`
	C_     string     `json:"C_"`
	Id     string     `json:"id,omitempty"`
	DLEQ   *DLEQProof `json:"dleq,omitempty"`
}

type BlindedSignatures []BlindedSignature

// Proof is an unblinded (secret, C) pair redeemable at the mint. Script is
// reserved for P2SH-style spend conditions (spec.md Open Question (c));
// this implementation resolves it to NUT-11 P2PK secrets carried opaquely
// in Secret/Witness, so Script itself round-trips unused.
type Proof struct {
	Amount  uint64 `json:"amount"`
	Id      string `json:"id"`
	Secret  string `json:"secret"`
	C       string `json:"C"`
	Witness string `json:"witness,omitempty"`
	Script  *P2SHScript `json:"script,omitempty"`
}

// P2SHScript is an opaque, unspecified reservation for P2SH-style spend
// conditions (spec.md §9 Open Question (c)). It round-trips verbatim.
type P2SHScript struct {
	Script    string `json:"script,omitempty"`
	Signature string `json:"signature,omitempty"`
}

type Proofs []Proof

// Amount sums the denominations of a proof set.
func (proofs Proofs) Amount() uint64 {
	var total uint64
	for _, p := range proofs {
		total += p.Amount
	}
	return total
}

// Token is the wallet-facing envelope exchanged out of band between
// wallets, or pasted into a mint's redeem endpoint.
type Token struct {
	Mint   string `json:"mint,omitempty"`
	Unit   string `json:"unit,omitempty"`
	Proofs Proofs `json:"proofs"`
}

const (
	TokenPrefixV3 = "cashuA"
	TokenPrefixV4 = "cashuB"
)

// NewToken builds a Token value from a proof set, the mint it was issued
// by, and its unit.
func NewToken(proofs Proofs, mintURL string, unit string) Token {
	return Token{Mint: mintURL, Unit: unit, Proofs: proofs}
}

// Serialize renders a Token into the wire format fixed by spec.md §6:
// "cashuA" followed by the base64url-no-pad encoding of the token's JSON.
func (t Token) Serialize() (string, error) {
	j, err := json.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("error marshaling token: %v", err)
	}
	return TokenPrefixV3 + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(j), nil
}

// ParseToken parses a token previously produced by Serialize (or by any
// interoperating implementation emitting the same "cashuA" envelope).
func ParseToken(token string) (Token, error) {
	if len(token) < len(TokenPrefixV3) || token[:len(TokenPrefixV3)] != TokenPrefixV3 {
		return Token{}, InvalidTokenFormatErr
	}

	encoded := token[len(TokenPrefixV3):]
	j, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		return Token{}, InvalidTokenFormatErr
	}

	var t Token
	if err := json.Unmarshal(j, &t); err != nil {
		return Token{}, InvalidTokenFormatErr
	}
	return t, nil
}

// SerializeTokenV4 renders the NUT-00 CBOR-encoded "cashuB" envelope. Not
// the default wire shape (spec.md Open Question (a) pins the JSON "cashuA"
// format for interop), but a supplemented, opt-in compact encoding.
func (t Token) SerializeTokenV4() (string, error) {
	b, err := cbor.Marshal(t)
	if err != nil {
		return "", fmt.Errorf("error cbor-encoding token: %v", err)
	}
	return TokenPrefixV4 + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b), nil
}

// ParseTokenV4 parses the CBOR "cashuB" envelope produced by
// SerializeTokenV4.
func ParseTokenV4(token string) (Token, error) {
	if len(token) < len(TokenPrefixV4) || token[:len(TokenPrefixV4)] != TokenPrefixV4 {
		return Token{}, InvalidTokenFormatErr
	}

	encoded := token[len(TokenPrefixV4):]
	b, err := base64.URLEncoding.WithPadding(base64.NoPadding).DecodeString(encoded)
	if err != nil {
		return Token{}, InvalidTokenFormatErr
	}

	var t Token
	if err := cbor.Unmarshal(b, &t); err != nil {
		return Token{}, InvalidTokenFormatErr
	}
	return t, nil
}

// CreateBlindedMessages prepares a full set of blinded outputs for amount,
// decomposed per AmountSplit, each bound to a fresh 16-byte secret and
// blinding factor (spec.md §4.7 prepare_outputs). It returns the messages
// alongside the secrets and blinding factors the caller must retain to
// finalize proofs once signatures come back.
func CreateBlindedMessages(amount uint64, keysetId string) (BlindedMessages, [][]byte, []*secp256k1.PrivateKey, error) {
	chunks := AmountSplit(amount)

	messages := make(BlindedMessages, len(chunks))
	secrets := make([][]byte, len(chunks))
	rs := make([]*secp256k1.PrivateKey, len(chunks))

	for i, amt := range chunks {
		secretBytes := make([]byte, 16)
		if _, err := rand.Read(secretBytes); err != nil {
			return nil, nil, nil, fmt.Errorf("error generating secret: %v", err)
		}
		secret := []byte(base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(secretBytes))

		B_, r, err := crypto.BlindMessage(secret, nil)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("error blinding message: %v", err)
		}

		messages[i] = BlindedMessage{
			Amount: amt,
			B_:     hex.EncodeToString(B_.SerializeCompressed()),
			Id:     keysetId,
		}
		secrets[i] = secret
		rs[i] = r
	}

	return messages, secrets, rs, nil
}

// ProofY returns the hex-encoded hash-to-curve point of proof's secret,
// the value proofs are indexed by in the mint's used/pending tables so
// a spend check never needs the secret itself.
func ProofY(proof Proof) (string, error) {
	Y, err := crypto.HashToCurve([]byte(proof.Secret))
	if err != nil {
		return "", fmt.Errorf("error hashing secret to curve: %v", err)
	}
	return hex.EncodeToString(Y.SerializeCompressed()), nil
}

// CheckDuplicateProofs reports whether proofs contains two entries with
// the same secret (spec.md §4.5 split step 2 duplicate check).
func CheckDuplicateProofs(proofs Proofs) bool {
	seen := make(map[string]bool, len(proofs))
	for _, p := range proofs {
		if seen[p.Secret] {
			return true
		}
		seen[p.Secret] = true
	}
	return false
}
