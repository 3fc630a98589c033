// Package crypto implements the BDHKE (blind Diffie-Hellman key exchange)
// primitives a Cashu mint and wallet need: hash-to-curve, the four blind
// signature steps, DLEQ proofs and per-amount keyset derivation.
package crypto

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// HashToCurve deterministically maps an arbitrary message to a valid
// secp256k1 point. It must stay bitwise-identical across implementations:
// candidate x-coordinates are tried as 0x02 || sha256^i(message) until one
// decodes to a point on the curve, which happens with overwhelming
// probability within a handful of attempts.
func HashToCurve(message []byte) (*secp256k1.PublicKey, error) {
	hash := sha256.Sum256(message)
	for {
		candidate := make([]byte, 33)
		candidate[0] = 0x02
		copy(candidate[1:], hash[:])

		point, err := secp256k1.ParsePubKey(candidate)
		if err == nil {
			return point, nil
		}
		hash = sha256.Sum256(hash[:])
	}
}

// addPoints returns p1 + p2 in affine form.
func addPoints(p1, p2 *secp256k1.PublicKey) *secp256k1.PublicKey {
	var j1, j2, sum secp256k1.JacobianPoint
	p1.AsJacobian(&j1)
	p2.AsJacobian(&j2)
	secp256k1.AddNonConst(&j1, &j2, &sum)
	sum.ToAffine()
	return secp256k1.NewPublicKey(&sum.X, &sum.Y)
}

// negatePoint returns -p in affine form.
func negatePoint(p *secp256k1.PublicKey) *secp256k1.PublicKey {
	var j secp256k1.JacobianPoint
	p.AsJacobian(&j)
	j.ToAffine()
	j.Y.Negate(1)
	j.Y.Normalize()
	return secp256k1.NewPublicKey(&j.X, &j.Y)
}

// scalarMult returns k*p in affine form.
func scalarMult(k *secp256k1.PrivateKey, p *secp256k1.PublicKey) *secp256k1.PublicKey {
	var point, result secp256k1.JacobianPoint
	p.AsJacobian(&point)
	secp256k1.ScalarMultNonConst(&k.Key, &point, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}
