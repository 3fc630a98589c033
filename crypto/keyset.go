package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// NumDenominations is the size of the canonical power-of-two denomination
// set {2^0 .. 2^63} every keyset must cover.
const NumDenominations = 64

// KeyPair is one denomination's keypair as seen by the wallet: the amount
// it is good for and the mint's compressed public key bytes.
type KeyPair struct {
	Amount    uint64
	PublicKey []byte
}

// MintPrivateKey bundles the amount with the mint's private scalar for it.
type MintPrivateKey struct {
	Amount     uint64
	PrivateKey *secp256k1.PrivateKey
}

// MintKeyset is the mint-side bundle: a dense map from denomination to
// keypair, plus the keyset id and the fee this keyset charges per input.
type MintKeyset struct {
	Id                string
	Unit              string
	Active            bool
	DerivationPathIdx uint32
	InputFeePpk       uint
	Keys              map[uint64]MintPrivateKey
}

// Keyset is the wallet-facing view: public keys only.
type Keyset struct {
	Id       string
	MintURL  string
	Unit     string
	KeyPairs []KeyPair
}

// GenerateKeyset derives the 64 denomination keypairs for a mint from its
// BIP32 master key and a derivation path index, per the scheme in
// spec.md §4.3: scalar_i = SHA-256(seed || path || ascii(i)) mod n, for
// each i in 0..63, denomination 2^i.
func GenerateKeyset(master *hdkeychain.ExtendedKey, derivationPathIdx uint32, inputFeePpk uint) (*MintKeyset, error) {
	seed := []byte(master.String())
	path := make([]byte, 4)
	binary.BigEndian.PutUint32(path, derivationPathIdx)

	keys := make(map[uint64]MintPrivateKey, NumDenominations)
	pubkeys := make([][]byte, NumDenominations)

	for i := 0; i < NumDenominations; i++ {
		amount := uint64(1) << uint(i)

		scalar, err := deriveScalar(seed, path, i)
		if err != nil {
			return nil, err
		}

		privKey := secp256k1.PrivKeyFromBytes(scalar)
		keys[amount] = MintPrivateKey{Amount: amount, PrivateKey: privKey}
		pubkeys[i] = privKey.PubKey().SerializeCompressed()
	}

	return &MintKeyset{
		Id:                keysetId(pubkeys),
		Unit:              "sat",
		Active:            true,
		DerivationPathIdx: derivationPathIdx,
		InputFeePpk:       inputFeePpk,
		Keys:              keys,
	}, nil
}

// deriveScalar computes SHA-256(seed || path || ascii(i)) as a scalar,
// returning an error in the negligible-probability cases where the digest
// is zero or not below the curve order.
func deriveScalar(seed, path []byte, i int) ([]byte, error) {
	h := sha256.New()
	h.Write(seed)
	h.Write(path)
	h.Write([]byte(fmt.Sprintf("%d", i)))
	digest := h.Sum(nil)

	var scalar secp256k1.ModNScalar
	overflow := scalar.SetByteSlice(digest)
	if overflow || scalar.IsZero() {
		return nil, errors.New("crypto: derived zero or overflowing scalar, master secret must be replaced")
	}

	scalarBytes := scalar.Bytes()
	return scalarBytes[:], nil
}

// keysetId is the pure function of a keyset's public keys described in
// spec.md §3/§4.3: the first twelve base64url (no padding) characters of
// SHA-256 over the 64 compressed public keys, concatenated in ascending
// denomination order.
func keysetId(pubkeysAscending [][]byte) string {
	h := sha256.New()
	for _, pk := range pubkeysAscending {
		h.Write(pk)
	}
	digest := h.Sum(nil)
	encoded := base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(digest)
	if len(encoded) > 12 {
		encoded = encoded[:12]
	}
	return encoded
}

// DerivePublic returns the amount->hex-pubkey mapping the /v1/keys
// endpoint serves.
func (k MintKeyset) DerivePublic() map[uint64]string {
	pubs := make(map[uint64]string, len(k.Keys))
	for amount, kp := range k.Keys {
		pubs[amount] = hex.EncodeToString(kp.PrivateKey.PubKey().SerializeCompressed())
	}
	return pubs
}

// DeriveKeysetId recomputes a keyset id from a wallet's view of the
// public keys, sorted ascending by denomination, matching keysetId above.
func DeriveKeysetId(keypairs []KeyPair) string {
	sorted := make([]KeyPair, len(keypairs))
	copy(sorted, keypairs)
	for i := 0; i < len(sorted)-1; i++ {
		for j := i + 1; j < len(sorted); j++ {
			if sorted[i].Amount > sorted[j].Amount {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}

	pubkeys := make([][]byte, len(sorted))
	for i, kp := range sorted {
		pubkeys[i] = kp.PublicKey
	}
	return keysetId(pubkeys)
}
