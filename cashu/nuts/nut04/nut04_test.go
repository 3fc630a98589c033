package nut04

import (
	"encoding/json"
	"testing"
)

func TestStateMarshalJSON(t *testing.T) {
	cases := map[State]string{
		Unpaid: `"UNPAID"`,
		Paid:   `"PAID"`,
		Issued: `"ISSUED"`,
	}
	for state, want := range cases {
		b, err := json.Marshal(state)
		if err != nil {
			t.Fatalf("error marshaling state %v: %v", state, err)
		}
		if string(b) != want {
			t.Fatalf("expected %s but got %s", want, string(b))
		}
	}
}

func TestStateUnmarshalJSON(t *testing.T) {
	cases := map[string]State{
		`"UNPAID"`: Unpaid,
		`"PAID"`:   Paid,
		`"ISSUED"`: Issued,
	}
	for raw, want := range cases {
		var state State
		if err := json.Unmarshal([]byte(raw), &state); err != nil {
			t.Fatalf("error unmarshaling %s: %v", raw, err)
		}
		if state != want {
			t.Fatalf("expected %v but got %v", want, state)
		}
	}
}

func TestPostMintQuoteBolt11ResponseRoundTrip(t *testing.T) {
	resp := PostMintQuoteBolt11Response{
		Quote:   "quote123",
		Request: "lnbc1...",
		State:   Paid,
		Paid:    true,
		Expiry:  1234567890,
	}

	b, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("error marshaling response: %v", err)
	}

	var decoded PostMintQuoteBolt11Response
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("error unmarshaling response: %v", err)
	}
	if decoded != resp {
		t.Fatalf("expected %+v but got %+v", resp, decoded)
	}
}
