// Package nut11 implements NUT-11 pay-to-pubkey (P2PK) spending
// conditions: a proof whose secret commits to one or more public keys,
// redeemable only by a matching witness signature over the secret.
package nut11

import (
	"encoding/hex"
	"strconv"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/gonuts-mint/gonuts/cashu"
	"github.com/gonuts-mint/gonuts/cashu/nuts/nut10"
)

var (
	InvalidWitness           = cashu.BuildCashuError("invalid witness", cashu.StandardErrCode)
	NotEnoughSignaturesErr   = cashu.BuildCashuError("not enough valid signatures provided", cashu.StandardErrCode)
	EmptyPubkeysErr          = cashu.BuildCashuError("n_sigs tag present but no additional pubkeys listed", cashu.StandardErrCode)
	SigAllOnlySwap           = cashu.BuildCashuError("can only spend SIG_ALL proofs in a swap, not a melt", cashu.StandardErrCode)
	AllSigAllFlagsErr        = cashu.BuildCashuError("all inputs must have the SIG_ALL flag", cashu.StandardErrCode)
	SigAllKeysMustBeEqualErr = cashu.BuildCashuError("pubkeys must be equal across all inputs for SIG_ALL", cashu.StandardErrCode)
	NSigsMustBeEqualErr      = cashu.BuildCashuError("n_sigs must be equal across all inputs for SIG_ALL", cashu.StandardErrCode)
)

// P2PKWitness is the witness attached to a P2PK-locked proof or blinded
// message: one DER-encoded, hex-serialized signature per required key.
type P2PKWitness struct {
	Signatures []string `json:"signatures"`
}

// P2PKTags is the decoded set of NUT-11 tags from a well-known secret.
type P2PKTags struct {
	Locktime int64
	Refund   []*btcec.PublicKey
	NSigs    int
	Pubkeys  []*btcec.PublicKey
	SigFlag  string
}

// ParseP2PKTags decodes the [][]string tag list of a P2PK well-known
// secret into its typed fields. Unknown tags are ignored.
func ParseP2PKTags(tags [][]string) (P2PKTags, error) {
	var parsed P2PKTags
	parsed.SigFlag = "SIG_INPUTS"

	for _, tag := range tags {
		if len(tag) == 0 {
			continue
		}
		switch tag[0] {
		case "locktime":
			if len(tag) < 2 {
				continue
			}
			lt, err := strconv.ParseInt(tag[1], 10, 64)
			if err != nil {
				return P2PKTags{}, cashu.BuildCashuError("invalid locktime tag: "+err.Error(), cashu.StandardErrCode)
			}
			parsed.Locktime = lt
		case "refund":
			for _, pk := range tag[1:] {
				key, err := ParsePublicKey(pk)
				if err != nil {
					return P2PKTags{}, err
				}
				parsed.Refund = append(parsed.Refund, key)
			}
		case "n_sigs":
			if len(tag) < 2 {
				continue
			}
			n, err := strconv.Atoi(tag[1])
			if err != nil {
				return P2PKTags{}, cashu.BuildCashuError("invalid n_sigs tag: "+err.Error(), cashu.StandardErrCode)
			}
			parsed.NSigs = n
		case "pubkeys":
			for _, pk := range tag[1:] {
				key, err := ParsePublicKey(pk)
				if err != nil {
					return P2PKTags{}, err
				}
				parsed.Pubkeys = append(parsed.Pubkeys, key)
			}
		case "sigflag":
			if len(tag) > 1 {
				parsed.SigFlag = tag[1]
			}
		}
	}

	return parsed, nil
}

// ParsePublicKey parses a hex-encoded compressed secp256k1 public key.
func ParsePublicKey(data string) (*btcec.PublicKey, error) {
	b, err := hex.DecodeString(data)
	if err != nil {
		return nil, cashu.BuildCashuError("invalid pubkey hex: "+err.Error(), cashu.StandardErrCode)
	}
	key, err := btcec.ParsePubKey(b)
	if err != nil {
		return nil, cashu.BuildCashuError("invalid pubkey: "+err.Error(), cashu.StandardErrCode)
	}
	return key, nil
}

// IsSecretP2PK reports whether proof's secret is a well-known P2PK
// secret (as opposed to an opaque random one).
func IsSecretP2PK(proof cashu.Proof) bool {
	secret, err := nut10.DeserializeSecret(proof.Secret)
	if err != nil {
		return false
	}
	return secret.Kind == nut10.P2PK
}

// IsSigAll reports whether secret carries the SIG_ALL sigflag tag.
func IsSigAll(secret nut10.WellKnownSecret) bool {
	tags, err := ParseP2PKTags(secret.Tags)
	if err != nil {
		return false
	}
	return tags.SigFlag == "SIG_ALL"
}

// ProofsSigAll reports whether any proof in the set carries a SIG_ALL
// P2PK secret, meaning the blinded message outputs themselves must
// carry a witness too.
func ProofsSigAll(proofs cashu.Proofs) bool {
	for _, proof := range proofs {
		secret, err := nut10.DeserializeSecret(proof.Secret)
		if err != nil {
			continue
		}
		if secret.Kind == nut10.P2PK && IsSigAll(secret) {
			return true
		}
	}
	return false
}

// PublicKeys returns the primary pubkey (secret.Data) followed by any
// additional pubkeys listed in the secret's tags.
func PublicKeys(secret nut10.WellKnownSecret) ([]*btcec.PublicKey, error) {
	primary, err := ParsePublicKey(secret.Data)
	if err != nil {
		return nil, err
	}
	keys := []*btcec.PublicKey{primary}

	tags, err := ParseP2PKTags(secret.Tags)
	if err != nil {
		return nil, err
	}
	keys = append(keys, tags.Pubkeys...)
	return keys, nil
}

// HasValidSignatures reports whether witness contains at least
// required valid, distinct signatures over hash from the given keys.
func HasValidSignatures(hash []byte, witness P2PKWitness, required int, keys []*btcec.PublicKey) bool {
	if len(keys) == 0 {
		return false
	}

	usedKeys := make(map[int]bool, len(keys))
	valid := 0
	for _, sigHex := range witness.Signatures {
		sigBytes, err := hex.DecodeString(sigHex)
		if err != nil {
			continue
		}
		sig, err := ecdsa.ParseDERSignature(sigBytes)
		if err != nil {
			continue
		}
		for i, key := range keys {
			if usedKeys[i] {
				continue
			}
			if sig.Verify(hash, key) {
				usedKeys[i] = true
				valid++
				break
			}
		}
		if valid >= required {
			return true
		}
	}
	return valid >= required
}
