package cashu

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// Error codes group the kinds from spec.md §7 so HTTP handlers can decide
// which errors are safe to show verbatim versus which must be collapsed
// into a generic message before reaching a client.
const (
	StandardErrCode         = 10000
	DBErrCode               = 10001
	LightningBackendErrCode = 10002
	KeysetErrCode           = 10003
)

// Error is the taxonomy-tagged error returned by every fallible operation
// in the crypto/ledger layers (spec.md §9: "no exception-style nonlocal
// exit is permitted"). It implements error and marshals to the JSON error
// body the HTTP surface returns.
type Error struct {
	Detail string `json:"detail"`
	Code   int    `json:"code"`
}

func (e *Error) Error() string {
	return e.Detail
}

// BuildCashuError wraps a message with an error code.
func BuildCashuError(msg string, code int) *Error {
	return &Error{Detail: msg, Code: code}
}

// Sentinel errors covering spec.md §7's taxonomy. Handlers compare against
// these with errors.Is; BuildCashuError is used for errors whose detail
// carries dynamic context (an underlying I/O or db failure).
var (
	// InvalidInput
	StandardErr              = &Error{Detail: "standard error", Code: StandardErrCode}
	EmptyBodyErr              = &Error{Detail: "request body is empty", Code: StandardErrCode}
	InvalidTokenFormatErr     = &Error{Detail: "invalid token format", Code: StandardErrCode}
	PaymentMethodNotSupportedErr = &Error{Detail: "payment method not supported", Code: StandardErrCode}
	UnitNotSupportedErr       = &Error{Detail: "unit not supported", Code: StandardErrCode}

	// InvalidProof / ProofAlreadySpent / SplitAmountMismatch / AmountMismatch
	InvalidProofErr              = &Error{Detail: "invalid proof", Code: StandardErrCode}
	ProofAlreadyUsedErr          = &Error{Detail: "proof already used", Code: StandardErrCode}
	ProofPendingErr              = &Error{Detail: "proof is pending for another operation", Code: StandardErrCode}
	DuplicateProofs              = &Error{Detail: "duplicate proofs", Code: StandardErrCode}
	NoProofsProvided             = &Error{Detail: "no proofs provided", Code: StandardErrCode}
	InsufficientProofsAmount     = &Error{Detail: "amount in proofs is insufficient", Code: StandardErrCode}
	InvalidBlindedMessageAmount  = &Error{Detail: "invalid amount in blinded message", Code: StandardErrCode}
	OutputsOverQuoteAmountErr    = &Error{Detail: "sum of outputs is greater than quote amount", Code: StandardErrCode}
	BlindedMessageAlreadySigned  = &Error{Detail: "blinded message already signed", Code: StandardErrCode}
	UnknownKeysetErr             = &Error{Detail: "unknown keyset", Code: KeysetErrCode}
	InactiveKeysetSignatureRequest = &Error{Detail: "keyset is not active, cannot sign new outputs", Code: KeysetErrCode}
	KeysetNotExistErr            = &Error{Detail: "keyset does not exist", Code: KeysetErrCode}

	// InvoiceNotFound / InvoiceNotPaid / InvoiceConsumed
	QuoteNotExistErr        = &Error{Detail: "quote does not exist", Code: StandardErrCode}
	MintQuoteRequestNotPaid = &Error{Detail: "quote has not been paid", Code: StandardErrCode}
	MintQuoteAlreadyIssued  = &Error{Detail: "quote has already been issued", Code: StandardErrCode}
	MeltQuoteAlreadyPaid    = &Error{Detail: "melt quote already paid", Code: StandardErrCode}
	MeltQuotePending        = &Error{Detail: "melt quote is pending", Code: StandardErrCode}

	// PaymentFailed
	PaymentFailedErr = &Error{Detail: "payment failed", Code: LightningBackendErrCode}

	// limits
	MintAmountExceededErr = &Error{Detail: "amount exceeds the mint's configured limit", Code: StandardErrCode}
	MeltAmountExceededErr = &Error{Detail: "amount exceeds the melt's configured limit", Code: StandardErrCode}
	MintingDisabled       = &Error{Detail: "minting is currently disabled", Code: StandardErrCode}

	InvoiceErrCode = LightningBackendErrCode
	DBErrorCode    = DBErrCode
)

// GenerateRandomQuoteId returns a URL-safe random id for a mint or melt
// quote, sized so collisions are negligible over a mint's lifetime.
func GenerateRandomQuoteId() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("error generating quote id: %v", err)
	}
	return base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(b), nil
}
