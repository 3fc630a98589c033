package lightning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"
)

const (
	InvoiceExpiryTimeCLN = 3600 // 1 hour
	FeePercentCLN        = 0.01
)

// CLNConfig holds configuration for the CLN backend.
type CLNConfig struct {
	RestURL string
	Rune    string
}

// CLNClient talks to a core-lightning node over its clnrest HTTP API.
type CLNClient struct {
	config CLNConfig
	http   *http.Client
	logger *slog.Logger
}

var invoiceLabelSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// SetupCLNClient builds a CLNClient sharing a single HTTP client across
// requests. A nil logger falls back to slog.Default().
func SetupCLNClient(config CLNConfig, logger *slog.Logger) (*CLNClient, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return &CLNClient{
		config: config,
		http:   &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}, nil
}

// clnError is set on most clnrest error responses.
type clnError struct {
	Error string `json:"error,omitempty"`
}

// call issues a rune-authenticated POST against the node's REST API,
// decoding the JSON body into out on a 200/201 response.
func (cln *CLNClient) call(endpoint string, payload, out any) ([]byte, error) {
	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshaling clnrest request: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, cln.config.RestURL+endpoint, bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Rune", cln.config.Rune)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	cln.logger.Debug("clnrest request", "endpoint", endpoint, "body", string(encoded))

	resp, err := cln.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	cln.logger.Debug("clnrest response", "endpoint", endpoint, "status", resp.StatusCode, "body", string(raw))

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return raw, fmt.Errorf("clnrest %s: %s: %s", endpoint, resp.Status, string(raw))
	}

	if out == nil {
		return raw, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return raw, fmt.Errorf("decoding clnrest %s response: %w", endpoint, err)
	}
	return raw, nil
}

// ConnectionStatus checks that the configured node answers getinfo.
func (cln *CLNClient) ConnectionStatus() error {
	_, err := cln.call("/v1/getinfo", map[string]string{}, nil)
	return err
}

func newInvoiceLabel() string {
	suffix := invoiceLabelSource.Intn(900000) + 100000
	return fmt.Sprintf("cashu-%d-%d", time.Now().Unix(), suffix)
}

func (cln *CLNClient) CreateInvoice(amount uint64) (Invoice, error) {
	reqBody := map[string]any{
		"amount_msat": fmt.Sprintf("%dmsat", amount*1000),
		"label":       newInvoiceLabel(),
		"description": "Cashu Lightning Invoice",
		"expiry":      InvoiceExpiryTimeCLN,
	}

	var resp struct {
		clnError
		Bolt11      string `json:"bolt11"`
		PaymentHash string `json:"payment_hash"`
	}
	if _, err := cln.call("/v1/invoice", reqBody, &resp); err != nil {
		return Invoice{}, err
	}
	if resp.Error != "" {
		return Invoice{}, fmt.Errorf("clnrest invoice error: %s", resp.Error)
	}

	return Invoice{
		PaymentRequest: resp.Bolt11,
		PaymentHash:    resp.PaymentHash,
		Amount:         amount,
		Expiry:         InvoiceExpiryTimeCLN,
	}, nil
}

func (cln *CLNClient) InvoiceStatus(hash string) (Invoice, error) {
	var resp struct {
		Invoices []struct {
			Bolt11      string `json:"bolt11"`
			PaymentHash string `json:"payment_hash"`
			AmountMsat  uint64 `json:"amount_msat"`
			Status      string `json:"status"`
			ExpiresAt   int64  `json:"expires_at"`
		} `json:"invoices"`
	}
	if _, err := cln.call("/v1/listinvoices", map[string]string{"payment_hash": hash}, &resp); err != nil {
		return Invoice{}, err
	}
	if len(resp.Invoices) == 0 {
		return Invoice{}, fmt.Errorf("clnrest: invoice %s not found", hash)
	}

	found := resp.Invoices[0]
	return Invoice{
		PaymentHash:    found.PaymentHash,
		PaymentRequest: found.Bolt11,
		Settled:        found.Status == "paid",
		Amount:         found.AmountMsat / 1000,
		Expiry:         uint64(found.ExpiresAt),
	}, nil
}

// payResult is the shape common to both /v1/pay and its MPP retry below.
type payResult struct {
	Status   string `json:"status"`
	Preimage string `json:"payment_preimage,omitempty"`
}

func (r payResult) toPaymentStatus() PaymentStatus {
	var status PaymentState
	switch r.Status {
	case "complete":
		status = Succeeded
	case "failed":
		status = Failed
	default:
		status = Pending
	}
	return PaymentStatus{Preimage: r.Preimage, PaymentStatus: status}
}

func (cln *CLNClient) SendPayment(ctx context.Context, request string, maxFee uint64) (PaymentStatus, error) {
	var resp payResult
	if _, err := cln.call("/v1/pay", map[string]any{"bolt11": request}, &resp); err != nil {
		return PaymentStatus{}, err
	}
	return resp.toPaymentStatus(), nil
}

type payAttempt struct {
	Status     string `json:"status"`
	FailReason string `json:"failreason,omitempty"`
}

// PayPartialAmount sends a multi-part payment of amountMsat towards request,
// retrying once on a WIRE_MPP_TIMEOUT with the failed route excluded.
func (cln *CLNClient) PayPartialAmount(
	ctx context.Context,
	request string,
	amountMsat uint64,
	maxFee uint64,
) (PaymentStatus, error) {
	reqBody := map[string]any{
		"bolt11":        request,
		"partial_msat":  fmt.Sprintf("%dmsat", amountMsat),
		"maxfee":        fmt.Sprintf("%dmsat", maxFee*1000),
		"maxfeepercent": 0.5,
		"retry_for":     60,
	}

	var resp struct {
		payResult
		Attempts []payAttempt `json:"attempts"`
	}
	if _, err := cln.call("/v1/pay", reqBody, &resp); err != nil {
		return PaymentStatus{}, err
	}

	if mppTimedOut(resp.Attempts) {
		reqBody["exclude"] = []string{"last_failed_route"}
		if _, err := cln.call("/v1/pay", reqBody, &resp); err != nil {
			return PaymentStatus{}, fmt.Errorf("retrying after mpp timeout: %w", err)
		}
	}

	return resp.payResult.toPaymentStatus(), nil
}

func mppTimedOut(attempts []payAttempt) bool {
	for _, attempt := range attempts {
		if attempt.Status == "failed" && attempt.FailReason == "WIRE_MPP_TIMEOUT" {
			return true
		}
	}
	return false
}

func (cln *CLNClient) OutgoingPaymentStatus(ctx context.Context, paymentHash string) (PaymentStatus, error) {
	var resp struct {
		Pays []struct {
			PaymentHash string `json:"payment_hash"`
			Status      string `json:"status"`
			Preimage    string `json:"preimage,omitempty"`
		} `json:"pays"`
	}
	if _, err := cln.call("/v1/listpays", map[string]string{"payment_hash": paymentHash}, &resp); err != nil {
		return PaymentStatus{}, err
	}

	for _, pay := range resp.Pays {
		if pay.PaymentHash != paymentHash {
			continue
		}
		switch pay.Status {
		case "complete":
			return PaymentStatus{PaymentStatus: Succeeded, Preimage: pay.Preimage}, nil
		case "failed":
			return PaymentStatus{PaymentStatus: Failed}, nil
		default:
			return PaymentStatus{PaymentStatus: Pending}, nil
		}
	}

	// an outgoing payment clnrest has no record of is treated as failed
	// rather than pending, since CLN only keeps settled/attempted pays.
	return PaymentStatus{PaymentStatus: Failed}, nil
}

func (cln *CLNClient) FeeReserve(amount uint64) uint64 {
	return uint64(float64(amount) * FeePercentCLN)
}

func (cln *CLNClient) SubscribeInvoice(ctx context.Context, paymentHash string) (InvoiceSubscriptionClient, error) {
	return &clnInvoiceSub{
		client:      cln,
		paymentHash: paymentHash,
		interval:    3 * time.Second,
	}, nil
}

// clnInvoiceSub polls listinvoices until the invoice settles, errors, or
// a 5 minute deadline passes.
type clnInvoiceSub struct {
	client      *CLNClient
	paymentHash string
	interval    time.Duration
}

func (sub *clnInvoiceSub) Recv() (Invoice, error) {
	deadline := time.After(5 * time.Minute)
	ticker := time.NewTicker(sub.interval)
	defer ticker.Stop()

	for {
		invoice, err := sub.client.InvoiceStatus(sub.paymentHash)
		if err != nil {
			return Invoice{}, err
		}
		if invoice.Settled {
			return invoice, nil
		}

		select {
		case <-deadline:
			return Invoice{}, fmt.Errorf("clnrest: subscription for %s timed out", sub.paymentHash)
		case <-ticker.C:
		}
	}
}
