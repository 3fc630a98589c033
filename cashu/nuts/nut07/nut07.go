// Package nut07 implements the NUT-07 spendable check: given a proof's Y
// value, report whether the mint still considers it unspent.
package nut07

// State is whether a proof has been redeemed.
type State int

const (
	Unspent State = iota
	Pending
	Spent
)

func (s State) String() string {
	switch s {
	case Unspent:
		return "UNSPENT"
	case Pending:
		return "PENDING"
	case Spent:
		return "SPENT"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// ProofState is a single proof's check result, keyed by its Y value
// (the hash-to-curve point of its secret, hex-encoded).
type ProofState struct {
	Y     string `json:"Y"`
	State State  `json:"state"`
}

// PostCheckStateRequest is the body of POST /v1/checkstate.
type PostCheckStateRequest struct {
	Ys []string `json:"Ys"`
}

// PostCheckStateResponse is the mint's response, one ProofState per
// requested Y in the same order.
type PostCheckStateResponse struct {
	States []ProofState `json:"states"`
}
