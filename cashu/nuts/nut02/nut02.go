// Package nut02 implements the NUT-02 keyset id exchange: the endpoint a
// wallet uses to discover every keyset a mint has ever signed with
// (active or retired), so it can validate proofs carrying an old id.
package nut02

// Keyset is a keyset's metadata without its public keys (those live
// behind nut01's per-id lookup).
type Keyset struct {
	Id          string `json:"id"`
	Unit        string `json:"unit"`
	Active      bool   `json:"active"`
	InputFeePpk uint   `json:"input_fee_ppk"`
}

// GetKeysetsResponse is the body of GET /v1/keysets.
type GetKeysetsResponse struct {
	Keysets []Keyset `json:"keysets"`
}
