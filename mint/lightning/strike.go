package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StrikeRestConfig configures a backend that settles through Strike's
// REST API instead of a node the mint itself runs.
type StrikeRestConfig struct {
	BaseURL string
	ApiKey  string
}

// StrikeRestClient implements Client against Strike's invoice/payment
// REST endpoints.
type StrikeRestClient struct {
	config StrikeRestConfig
	client *http.Client
}

func SetupStrikeRestClient(config StrikeRestConfig) (*StrikeRestClient, error) {
	return &StrikeRestClient{config: config, client: &http.Client{Timeout: 30 * time.Second}}, nil
}

func (s *StrikeRestClient) newRequest(ctx context.Context, method, path string, body interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, s.config.BaseURL+path, &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.config.ApiKey)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (s *StrikeRestClient) ConnectionStatus() error {
	req, err := s.newRequest(context.Background(), http.MethodGet, "/v1/accounts/profile", nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("failed to connect to strike: %s", resp.Status)
	}
	return nil
}

func (s *StrikeRestClient) CreateInvoice(amount uint64) (Invoice, error) {
	invoiceReq := map[string]interface{}{
		"amount":      map[string]string{"currency": "BTC", "amount": fmt.Sprintf("%.8f", float64(amount)/1e8)},
		"description": "Cashu Lightning Invoice",
	}
	req, err := s.newRequest(context.Background(), http.MethodPost, "/v1/invoices", invoiceReq)
	if err != nil {
		return Invoice{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Invoice{}, err
	}
	defer resp.Body.Close()

	var created struct {
		InvoiceId string `json:"invoiceId"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &created); err != nil {
		return Invoice{}, fmt.Errorf("error parsing invoice response: %v", err)
	}

	quoteReq := map[string]interface{}{"descriptionHash": ""}
	qreq, err := s.newRequest(context.Background(), http.MethodPost, "/v1/invoices/"+created.InvoiceId+"/quote", quoteReq)
	if err != nil {
		return Invoice{}, err
	}
	qresp, err := s.client.Do(qreq)
	if err != nil {
		return Invoice{}, err
	}
	defer qresp.Body.Close()

	var quote struct {
		LnInvoice string `json:"lnInvoice"`
		Expiration string `json:"expiration"`
	}
	qbody, _ := io.ReadAll(qresp.Body)
	if err := json.Unmarshal(qbody, &quote); err != nil {
		return Invoice{}, fmt.Errorf("error parsing quote response: %v", err)
	}

	return Invoice{
		PaymentRequest: quote.LnInvoice,
		PaymentHash:    created.InvoiceId,
		Amount:         amount,
		Expiry:         InvoiceExpiryTimeCLN,
	}, nil
}

func (s *StrikeRestClient) InvoiceStatus(paymentHash string) (Invoice, error) {
	req, err := s.newRequest(context.Background(), http.MethodGet, "/v1/invoices/"+paymentHash, nil)
	if err != nil {
		return Invoice{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Invoice{}, err
	}
	defer resp.Body.Close()

	var invoiceResp struct {
		State string `json:"state"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &invoiceResp); err != nil {
		return Invoice{}, fmt.Errorf("error parsing invoice status: %v", err)
	}

	return Invoice{
		PaymentHash: paymentHash,
		Settled:     invoiceResp.State == "PAID",
	}, nil
}

func (s *StrikeRestClient) SendPayment(ctx context.Context, request string, maxFee uint64) (PaymentStatus, error) {
	payReq := map[string]interface{}{"lnInvoice": request, "sourceCurrency": "BTC"}
	req, err := s.newRequest(ctx, http.MethodPost, "/v1/payment-quotes/lightning", payReq)
	if err != nil {
		return PaymentStatus{}, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return PaymentStatus{}, err
	}
	defer resp.Body.Close()

	var quote struct {
		PaymentQuoteId string `json:"paymentQuoteId"`
	}
	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &quote); err != nil {
		return PaymentStatus{PaymentStatus: Failed}, fmt.Errorf("error parsing payment quote: %v", err)
	}

	executeReq, err := s.newRequest(ctx, http.MethodPatch, "/v1/payment-quotes/"+quote.PaymentQuoteId+"/execute", nil)
	if err != nil {
		return PaymentStatus{}, err
	}
	execResp, err := s.client.Do(executeReq)
	if err != nil {
		return PaymentStatus{}, err
	}
	defer execResp.Body.Close()

	var result struct {
		State      string `json:"state"`
		PaymentId  string `json:"paymentId"`
		Preimage   string `json:"lightningNetworkPreimage"`
	}
	execBody, _ := io.ReadAll(execResp.Body)
	if err := json.Unmarshal(execBody, &result); err != nil {
		return PaymentStatus{PaymentStatus: Failed}, fmt.Errorf("error parsing payment execution: %v", err)
	}

	switch result.State {
	case "COMPLETED":
		return PaymentStatus{Preimage: result.Preimage, PaymentStatus: Succeeded}, nil
	case "PENDING":
		return PaymentStatus{PaymentStatus: Pending}, nil
	default:
		return PaymentStatus{PaymentStatus: Failed}, fmt.Errorf("payment error: strike payment state %s", result.State)
	}
}

func (s *StrikeRestClient) OutgoingPaymentStatus(ctx context.Context, paymentHash string) (PaymentStatus, error) {
	return PaymentStatus{PaymentStatus: Pending}, nil
}

func (s *StrikeRestClient) FeeReserve(amount uint64) uint64 {
	fee := amount / 100
	if fee < 1 {
		fee = 1
	}
	return fee
}

func (s *StrikeRestClient) SubscribeInvoice(ctx context.Context, paymentHash string) (InvoiceSubscriptionClient, error) {
	return &strikeInvoiceSub{client: s, paymentHash: paymentHash}, nil
}

type strikeInvoiceSub struct {
	client      *StrikeRestClient
	paymentHash string
}

func (s *strikeInvoiceSub) Recv() (Invoice, error) {
	for {
		invoice, err := s.client.InvoiceStatus(s.paymentHash)
		if err != nil {
			return Invoice{}, err
		}
		if invoice.Settled {
			return invoice, nil
		}
		time.Sleep(3 * time.Second)
	}
}
