// Package nut05 implements the NUT-05 melt quote flow: a wallet asks
// the mint to pay an arbitrary lightning invoice out of a proof set, the
// mirror image of NUT-04.
package nut05

import "github.com/gonuts-mint/gonuts/cashu"

// State is a melt quote's lifecycle stage.
type State int

const (
	Unpaid State = iota
	Pending
	Paid
)

func (s State) String() string {
	switch s {
	case Unpaid:
		return "UNPAID"
	case Pending:
		return "PENDING"
	case Paid:
		return "PAID"
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
	case `"PENDING"`:
		*s = Pending
	case `"PAID"`:
		*s = Paid
	}
	return nil
}

// PostMeltQuoteBolt11Request is the body of POST /v1/melt/quote/bolt11.
type PostMeltQuoteBolt11Request struct {
	Request string `json:"request"`
	Unit    string `json:"unit"`
}

// PostMeltQuoteBolt11Response is returned by the quote request, the
// quote-state poll, and the melt redemption itself.
type PostMeltQuoteBolt11Response struct {
	Quote      string `json:"quote"`
	Amount     uint64 `json:"amount"`
	FeeReserve uint64 `json:"fee_reserve"`
	State      State  `json:"state"`
	// Paid is deprecated in favor of State but kept for wallets that
	// have not upgraded past it yet.
	Paid     bool   `json:"paid"`
	Expiry   uint64 `json:"expiry"`
	Preimage string `json:"payment_preimage,omitempty"`
}

// PostMeltBolt11Request is the body of POST /v1/melt/bolt11: redeem the
// quote by handing over inputs that cover amount + fee reserve.
type PostMeltBolt11Request struct {
	Quote  string       `json:"quote"`
	Inputs cashu.Proofs `json:"inputs"`
}
