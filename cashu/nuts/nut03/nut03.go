// Package nut03 implements the NUT-03 swap: exchanging a set of proofs
// for a freshly blinded set of outputs of the caller's choosing, the
// primitive underlying both token splitting and send-amount selection.
package nut03

import "github.com/gonuts-mint/gonuts/cashu"

// PostSwapRequest is the body of POST /v1/swap.
type PostSwapRequest struct {
	Inputs  cashu.Proofs         `json:"inputs"`
	Outputs cashu.BlindedMessages `json:"outputs"`
}

// PostSwapResponse is the mint's response: one blind signature per
// requested output, in the same order.
type PostSwapResponse struct {
	Signatures cashu.BlindedSignatures `json:"signatures"`
}
