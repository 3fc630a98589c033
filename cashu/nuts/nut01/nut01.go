// Package nut01 implements the NUT-01 mint public key exchange: the
// response shape a wallet parses to learn a mint's active signing keys,
// one set per supported unit/keyset.
package nut01

// Keyset is a single keyset's public keys, indexed by amount (as a
// decimal string key in the wire JSON, decoded into a map at the call
// site that needs typed amounts).
type Keyset struct {
	Id   string            `json:"id"`
	Unit string            `json:"unit"`
	Keys map[uint64]string `json:"keys"`
}

// GetKeysResponse is the body of GET /v1/keys (and /v1/keys/{id}).
type GetKeysResponse struct {
	Keysets []Keyset `json:"keysets"`
}
