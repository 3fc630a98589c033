// Package nut06 implements the NUT-06 mint information document: the
// single GET /v1/info endpoint a wallet uses to discover a mint's
// identity, contact info, and supported NUT feature set.
package nut06

// MethodSetting describes one payment method/unit pair a mint supports
// for minting or melting, with optional amount bounds.
type MethodSetting struct {
	Method    string `json:"method"`
	Unit      string `json:"unit"`
	MinAmount uint64 `json:"min_amount,omitempty"`
	MaxAmount uint64 `json:"max_amount,omitempty"`
}

// NutSetting is the settings block for a method-bearing NUT (currently
// NUT-04 and NUT-05).
type NutSetting struct {
	Methods  []MethodSetting `json:"methods"`
	Disabled bool            `json:"disabled"`
}

// NutsMap indexes NUT number to its settings. Method-bearing NUTs carry
// a NutSetting; boolean-capability NUTs (7, 8, 9, 10, 11, 12) carry a
// {"supported": bool} map instead.
type NutsMap map[int]interface{}

// ContactInfo is a single contact channel published in mint info.
type ContactInfo struct {
	Method string `json:"method"`
	Info   string `json:"info"`
}

// MintInfo is the body of GET /v1/info.
type MintInfo struct {
	Name            string        `json:"name"`
	Pubkey          string        `json:"pubkey"`
	Version         string        `json:"version"`
	Description     string        `json:"description,omitempty"`
	LongDescription string        `json:"description_long,omitempty"`
	Contact         []ContactInfo `json:"contact,omitempty"`
	Motd            string        `json:"motd,omitempty"`
	Nuts            NutsMap       `json:"nuts"`
}
