package lightning

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/lightningnetwork/lnd/lnrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"gopkg.in/macaroon.v2"
)

// LNDConfig holds the connection details for an LND node's gRPC
// interface: its host, TLS certificate, and a macaroon scoped to
// invoice/payment permissions.
type LNDConfig struct {
	Host         string
	TLSCertPath  string
	MacaroonPath string
}

// LNDClient talks to an LND node over gRPC, authenticated with TLS plus
// a macaroon, following the standard lnd client bootstrap.
type LNDClient struct {
	conn   *grpc.ClientConn
	client lnrpc.LightningClient
}

// SetupLndClient dials an LND node and returns a ready LNDClient.
func SetupLndClient(config LNDConfig) (*LNDClient, error) {
	creds, err := credentials.NewClientTLSFromFile(config.TLSCertPath, "")
	if err != nil {
		cert, readErr := os.ReadFile(config.TLSCertPath)
		if readErr != nil {
			return nil, fmt.Errorf("error reading tls cert: %v", readErr)
		}
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(cert)
		creds = credentials.NewTLS(&tls.Config{RootCAs: pool})
	}

	macBytes, err := os.ReadFile(config.MacaroonPath)
	if err != nil {
		return nil, fmt.Errorf("error reading macaroon: %v", err)
	}
	mac := &macaroon.Macaroon{}
	if err := mac.UnmarshalBinary(macBytes); err != nil {
		return nil, fmt.Errorf("error unmarshaling macaroon: %v", err)
	}

	conn, err := grpc.Dial(config.Host,
		grpc.WithTransportCredentials(creds),
		grpc.WithPerRPCCredentials(macaroonCreds{mac: macBytes}),
	)
	if err != nil {
		return nil, fmt.Errorf("error connecting to lnd: %v", err)
	}

	return &LNDClient{conn: conn, client: lnrpc.NewLightningClient(conn)}, nil
}

// macaroonCreds implements grpc.PerRPCCredentials by sending the raw
// macaroon hex in the request metadata, the standard lnd auth scheme.
type macaroonCreds struct {
	mac []byte
}

func (m macaroonCreds) GetRequestMetadata(ctx context.Context, uri ...string) (map[string]string, error) {
	return map[string]string{"macaroon": hex.EncodeToString(m.mac)}, nil
}

func (m macaroonCreds) RequireTransportSecurity() bool { return true }

func (l *LNDClient) ConnectionStatus() error {
	_, err := l.client.GetInfo(context.Background(), &lnrpc.GetInfoRequest{})
	return err
}

func (l *LNDClient) CreateInvoice(amount uint64) (Invoice, error) {
	resp, err := l.client.AddInvoice(context.Background(), &lnrpc.Invoice{
		Value:  int64(amount),
		Expiry: InvoiceExpiryTimeCLN,
	})
	if err != nil {
		return Invoice{}, err
	}

	return Invoice{
		PaymentRequest: resp.PaymentRequest,
		PaymentHash:    hex.EncodeToString(resp.RHash),
		Amount:         amount,
		Expiry:         InvoiceExpiryTimeCLN,
	}, nil
}

func (l *LNDClient) InvoiceStatus(paymentHash string) (Invoice, error) {
	hashBytes, err := hex.DecodeString(paymentHash)
	if err != nil {
		return Invoice{}, err
	}

	resp, err := l.client.LookupInvoice(context.Background(), &lnrpc.PaymentHash{RHash: hashBytes})
	if err != nil {
		return Invoice{}, err
	}

	return Invoice{
		PaymentRequest: resp.PaymentRequest,
		PaymentHash:    paymentHash,
		Preimage:       hex.EncodeToString(resp.RPreimage),
		Amount:         uint64(resp.Value),
		Settled:        resp.State == lnrpc.Invoice_SETTLED,
		Expiry:         uint64(resp.Expiry),
	}, nil
}

func (l *LNDClient) SendPayment(ctx context.Context, request string, maxFee uint64) (PaymentStatus, error) {
	resp, err := l.client.SendPaymentSync(ctx, &lnrpc.SendRequest{
		PaymentRequest: request,
		FeeLimit:       &lnrpc.FeeLimit{Limit: &lnrpc.FeeLimit_Fixed{Fixed: int64(maxFee)}},
	})
	if err != nil {
		return PaymentStatus{PaymentStatus: Failed}, err
	}
	if resp.PaymentError != "" {
		return PaymentStatus{PaymentStatus: Failed}, fmt.Errorf("payment error: %s", resp.PaymentError)
	}

	return PaymentStatus{
		Preimage:      hex.EncodeToString(resp.PaymentPreimage),
		PaymentStatus: Succeeded,
	}, nil
}

func (l *LNDClient) OutgoingPaymentStatus(ctx context.Context, paymentHash string) (PaymentStatus, error) {
	hashBytes, err := hex.DecodeString(paymentHash)
	if err != nil {
		return PaymentStatus{}, err
	}

	stream, err := l.client.TrackPaymentV2(ctx, &lnrpc.TrackPaymentRequest{PaymentHash: hashBytes})
	if err != nil {
		return PaymentStatus{}, err
	}

	update, err := stream.Recv()
	if err != nil {
		return PaymentStatus{}, err
	}

	switch update.Status {
	case lnrpc.Payment_SUCCEEDED:
		return PaymentStatus{Preimage: update.PaymentPreimage, PaymentStatus: Succeeded}, nil
	case lnrpc.Payment_FAILED:
		return PaymentStatus{PaymentStatus: Failed}, fmt.Errorf("payment failed: %s", update.FailureReason)
	default:
		return PaymentStatus{PaymentStatus: Pending}, nil
	}
}

func (l *LNDClient) FeeReserve(amount uint64) uint64 {
	fee := amount / 100
	if fee < 1 {
		fee = 1
	}
	return fee
}

func (l *LNDClient) SubscribeInvoice(ctx context.Context, paymentHash string) (InvoiceSubscriptionClient, error) {
	hashBytes, err := hex.DecodeString(paymentHash)
	if err != nil {
		return nil, err
	}

	stream, err := l.client.SubscribeInvoices(ctx, &lnrpc.InvoiceSubscription{})
	if err != nil {
		return nil, err
	}

	return &lndInvoiceSub{stream: stream, paymentHash: hashBytes}, nil
}

type lndInvoiceSub struct {
	stream      lnrpc.Lightning_SubscribeInvoicesClient
	paymentHash []byte
}

func (s *lndInvoiceSub) Recv() (Invoice, error) {
	for {
		update, err := s.stream.Recv()
		if err != nil {
			return Invoice{}, err
		}
		if hex.EncodeToString(update.RHash) != hex.EncodeToString(s.paymentHash) {
			continue
		}
		return Invoice{
			PaymentRequest: update.PaymentRequest,
			PaymentHash:    hex.EncodeToString(update.RHash),
			Preimage:       hex.EncodeToString(update.RPreimage),
			Amount:         uint64(update.Value),
			Settled:        update.State == lnrpc.Invoice_SETTLED,
			Expiry:         uint64(update.Expiry),
		}, nil
	}
}
