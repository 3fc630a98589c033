// Package nut10 implements the NUT-10 well-known secret format: a
// proof's Secret field is ordinarily an opaque random string, but can
// instead carry a structured spending condition (kind, nonce, data,
// tags) that NUT-11 (P2PK) and others build on.
package nut10

import (
	"encoding/json"
	"fmt"
)

type Kind string

const (
	P2PK     Kind = "P2PK"
	HTLC     Kind = "HTLC"
	AnyoneCanSpend Kind = ""
)

// SecretData is the second element of a well-known secret's JSON array.
type SecretData struct {
	Nonce string     `json:"nonce"`
	Data  string     `json:"data"`
	Tags  [][]string `json:"tags,omitempty"`
}

// WellKnownSecret is a proof secret decoded from its wire representation
// `[kind, {nonce, data, tags}]`.
type WellKnownSecret struct {
	Kind Kind
	Nonce string
	Data  string
	Tags  [][]string
}

// DeserializeSecret parses a proof's Secret field as a well-known
// secret. Callers should treat a non-nil error as "this is a plain
// random secret, not a spending condition" rather than a hard failure.
func DeserializeSecret(secret string) (WellKnownSecret, error) {
	var raw [2]json.RawMessage
	if err := json.Unmarshal([]byte(secret), &raw); err != nil {
		return WellKnownSecret{}, fmt.Errorf("secret is not a well-known secret: %v", err)
	}

	var kind Kind
	if err := json.Unmarshal(raw[0], &kind); err != nil {
		return WellKnownSecret{}, fmt.Errorf("invalid secret kind: %v", err)
	}

	var data SecretData
	if err := json.Unmarshal(raw[1], &data); err != nil {
		return WellKnownSecret{}, fmt.Errorf("invalid secret data: %v", err)
	}

	return WellKnownSecret{
		Kind:  kind,
		Nonce: data.Nonce,
		Data:  data.Data,
		Tags:  data.Tags,
	}, nil
}

// Serialize renders a well-known secret back to its wire form.
func Serialize(kind Kind, nonce, data string, tags [][]string) (string, error) {
	arr := [2]interface{}{kind, SecretData{Nonce: nonce, Data: data, Tags: tags}}
	b, err := json.Marshal(arr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
