package lightning

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
)

// MockClient is an in-memory lightning backend for tests and local
// development: invoices stay unpaid until SettleInvoice is called,
// payments succeed unless scripted otherwise via FailNextPayment.
type MockClient struct {
	mu              sync.Mutex
	invoices        map[string]Invoice
	failNextPayment bool
}

func NewMockClient() *MockClient {
	return &MockClient{invoices: make(map[string]Invoice)}
}

func (m *MockClient) ConnectionStatus() error { return nil }

func (m *MockClient) CreateInvoice(amount uint64) (Invoice, error) {
	hashBytes := make([]byte, 32)
	if _, err := rand.Read(hashBytes); err != nil {
		return Invoice{}, err
	}
	hash := hex.EncodeToString(hashBytes)

	invoice := Invoice{
		PaymentRequest: "lnbcrt" + hash[:16],
		PaymentHash:    hash,
		Amount:         amount,
		Expiry:         3600,
	}

	m.mu.Lock()
	m.invoices[hash] = invoice
	m.mu.Unlock()

	return invoice, nil
}

// SettleInvoice marks a previously-created invoice as paid, simulating
// the wallet behind it actually sending the lightning payment.
func (m *MockClient) SettleInvoice(paymentHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	invoice, ok := m.invoices[paymentHash]
	if !ok {
		return fmt.Errorf("unknown invoice: %s", paymentHash)
	}
	invoice.Settled = true
	preimageBytes := make([]byte, 32)
	rand.Read(preimageBytes)
	invoice.Preimage = hex.EncodeToString(preimageBytes)
	m.invoices[paymentHash] = invoice
	return nil
}

func (m *MockClient) InvoiceStatus(paymentHash string) (Invoice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	invoice, ok := m.invoices[paymentHash]
	if !ok {
		return Invoice{}, errors.New("invoice not found")
	}
	return invoice, nil
}

// FailNextPayment scripts the next SendPayment call to fail, so melt
// error handling can be exercised deterministically.
func (m *MockClient) FailNextPayment() {
	m.mu.Lock()
	m.failNextPayment = true
	m.mu.Unlock()
}

func (m *MockClient) SendPayment(ctx context.Context, request string, maxFee uint64) (PaymentStatus, error) {
	m.mu.Lock()
	fail := m.failNextPayment
	m.failNextPayment = false
	m.mu.Unlock()

	if fail {
		return PaymentStatus{PaymentStatus: Failed}, errors.New("payment error: mock payment failed")
	}

	preimageBytes := make([]byte, 32)
	rand.Read(preimageBytes)
	return PaymentStatus{
		Preimage:      hex.EncodeToString(preimageBytes),
		PaymentStatus: Succeeded,
	}, nil
}

func (m *MockClient) OutgoingPaymentStatus(ctx context.Context, paymentHash string) (PaymentStatus, error) {
	return PaymentStatus{PaymentStatus: Succeeded}, nil
}

func (m *MockClient) FeeReserve(amount uint64) uint64 {
	fee := amount / 100
	if fee < 1 {
		fee = 1
	}
	return fee
}

func (m *MockClient) SubscribeInvoice(ctx context.Context, paymentHash string) (InvoiceSubscriptionClient, error) {
	return &mockInvoiceSub{client: m, paymentHash: paymentHash}, nil
}

type mockInvoiceSub struct {
	client      *MockClient
	paymentHash string
}

func (s *mockInvoiceSub) Recv() (Invoice, error) {
	return s.client.InvoiceStatus(s.paymentHash)
}
