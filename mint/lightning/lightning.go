// Package lightning abstracts the payment backend a Mint settles
// invoices through. Concrete backends (CLN over REST, LND over gRPC, a
// scripted Mock for tests, Strike's REST API) all satisfy Client.
package lightning

import "context"

// PaymentState is the outcome of an outgoing lightning payment attempt.
type PaymentState int

const (
	Pending PaymentState = iota
	Succeeded
	Failed
)

func (p PaymentState) String() string {
	switch p {
	case Pending:
		return "PENDING"
	case Succeeded:
		return "SUCCEEDED"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Invoice is a bolt11 invoice as tracked by the mint: the request text
// plus whatever the backend currently knows about its settlement.
type Invoice struct {
	PaymentRequest string
	PaymentHash    string
	Preimage       string
	Amount         uint64
	Settled        bool
	Expiry         uint64
}

// PaymentStatus is the result of sending or polling an outgoing payment.
type PaymentStatus struct {
	Preimage      string
	PaymentStatus PaymentState
}

// InvoiceSubscriptionClient streams updates for a single invoice until
// it settles or the subscription errors out.
type InvoiceSubscriptionClient interface {
	Recv() (Invoice, error)
}

// Client is the capability set a Mint needs from a lightning backend:
// create and track incoming invoices, send and track outgoing payments,
// and estimate the fee reserve a melt quote should hold back.
type Client interface {
	ConnectionStatus() error
	CreateInvoice(amount uint64) (Invoice, error)
	InvoiceStatus(paymentHash string) (Invoice, error)
	SendPayment(ctx context.Context, request string, maxFee uint64) (PaymentStatus, error)
	OutgoingPaymentStatus(ctx context.Context, paymentHash string) (PaymentStatus, error)
	FeeReserve(amount uint64) uint64
	SubscribeInvoice(ctx context.Context, paymentHash string) (InvoiceSubscriptionClient, error)
}
