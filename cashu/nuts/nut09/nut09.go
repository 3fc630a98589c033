// Package nut09 implements the NUT-09 signature restore endpoint: a
// wallet that lost its local database can resubmit the same blinded
// messages it once sent and recover any signatures the mint already
// issued for them, without double-spending the underlying proofs.
package nut09

import "github.com/gonuts-mint/gonuts/cashu"

// PostRestoreRequest is the body of POST /v1/restore.
type PostRestoreRequest struct {
	Outputs cashu.BlindedMessages `json:"outputs"`
}

// PostRestoreResponse echoes back only the subset of Outputs the mint
// had previously signed, paired with their signatures.
type PostRestoreResponse struct {
	Outputs    cashu.BlindedMessages   `json:"outputs"`
	Signatures cashu.BlindedSignatures `json:"signatures"`
}
