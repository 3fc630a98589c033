// Package nut04 implements the NUT-04 mint quote flow: a wallet requests
// an invoice for an amount, waits for it to be paid, then redeems the
// quote for blind signatures over its chosen outputs.
package nut04

import "github.com/gonuts-mint/gonuts/cashu"

// State is a mint quote's lifecycle stage.
type State int

const (
	Unpaid State = iota
	Paid
	Issued
)

func (s State) String() string {
	switch s {
	case Unpaid:
		return "UNPAID"
	case Paid:
		return "PAID"
	case Issued:
		return "ISSUED"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *State) UnmarshalJSON(b []byte) error {
	switch string(b) {
	case `"UNPAID"`:
		*s = Unpaid
	case `"PAID"`:
		*s = Paid
	case `"ISSUED"`:
		*s = Issued
	}
	return nil
}

// PostMintQuoteBolt11Request is the body of POST /v1/mint/quote/bolt11.
type PostMintQuoteBolt11Request struct {
	Amount uint64 `json:"amount"`
	Unit   string `json:"unit"`
}

// PostMintQuoteBolt11Response is returned both by the initial quote
// request and by the quote-state polling endpoint.
type PostMintQuoteBolt11Response struct {
	Quote   string `json:"quote"`
	Request string `json:"request"`
	State   State  `json:"state"`
	// Paid is deprecated in favor of State but kept for wallets that
	// have not upgraded past it yet.
	Paid   bool   `json:"paid"`
	Expiry uint64 `json:"expiry"`
}

// PostMintBolt11Request is the body of POST /v1/mint/bolt11: redeem a
// paid quote for signatures over the given outputs.
type PostMintBolt11Request struct {
	Quote   string                `json:"quote"`
	Outputs cashu.BlindedMessages `json:"outputs"`
}

// PostMintBolt11Response is the mint's response to a mint redemption.
type PostMintBolt11Response struct {
	Signatures cashu.BlindedSignatures `json:"signatures"`
}
