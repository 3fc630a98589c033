package lightning

import (
	"context"
	"testing"
)

func TestMockClientCreateAndSettleInvoice(t *testing.T) {
	client := NewMockClient()

	invoice, err := client.CreateInvoice(5000)
	if err != nil {
		t.Fatalf("error creating invoice: %v", err)
	}
	if invoice.Amount != 5000 {
		t.Fatalf("expected invoice amount 5000 but got %d", invoice.Amount)
	}

	status, err := client.InvoiceStatus(invoice.PaymentHash)
	if err != nil {
		t.Fatalf("error getting invoice status: %v", err)
	}
	if status.Settled {
		t.Fatal("expected a freshly created invoice to be unsettled")
	}

	if err := client.SettleInvoice(invoice.PaymentHash); err != nil {
		t.Fatalf("error settling invoice: %v", err)
	}

	status, err = client.InvoiceStatus(invoice.PaymentHash)
	if err != nil {
		t.Fatalf("error getting invoice status: %v", err)
	}
	if !status.Settled {
		t.Fatal("expected invoice to be settled")
	}
	if status.Preimage == "" {
		t.Fatal("expected a preimage to be set once settled")
	}
}

func TestMockClientSettleUnknownInvoice(t *testing.T) {
	client := NewMockClient()
	if err := client.SettleInvoice("nonexistent"); err == nil {
		t.Fatal("expected error settling an invoice that was never created")
	}
}

func TestMockClientSendPayment(t *testing.T) {
	client := NewMockClient()

	status, err := client.SendPayment(context.Background(), "lnbcrt1...", 100)
	if err != nil {
		t.Fatalf("unexpected error sending payment: %v", err)
	}
	if status.PaymentStatus != Succeeded {
		t.Fatalf("expected payment to succeed but got status %v", status.PaymentStatus)
	}
	if status.Preimage == "" {
		t.Fatal("expected a preimage on a successful payment")
	}
}

func TestMockClientFailNextPayment(t *testing.T) {
	client := NewMockClient()
	client.FailNextPayment()

	status, err := client.SendPayment(context.Background(), "lnbcrt1...", 100)
	if err == nil {
		t.Fatal("expected the scripted failure to surface as an error")
	}
	if status.PaymentStatus != Failed {
		t.Fatalf("expected payment status Failed but got %v", status.PaymentStatus)
	}

	// the scripted failure only applies to the next call
	status, err = client.SendPayment(context.Background(), "lnbcrt1...", 100)
	if err != nil {
		t.Fatalf("expected the payment after the scripted failure to succeed, got: %v", err)
	}
	if status.PaymentStatus != Succeeded {
		t.Fatalf("expected payment to succeed but got status %v", status.PaymentStatus)
	}
}

func TestMockClientFeeReserve(t *testing.T) {
	client := NewMockClient()

	if fee := client.FeeReserve(10000); fee != 100 {
		t.Fatalf("expected fee reserve of 100 for amount 10000 but got %d", fee)
	}
	if fee := client.FeeReserve(50); fee != 1 {
		t.Fatalf("expected minimum fee reserve of 1 but got %d", fee)
	}
}

func TestMockClientSubscribeInvoice(t *testing.T) {
	client := NewMockClient()
	invoice, err := client.CreateInvoice(1000)
	if err != nil {
		t.Fatalf("error creating invoice: %v", err)
	}

	sub, err := client.SubscribeInvoice(context.Background(), invoice.PaymentHash)
	if err != nil {
		t.Fatalf("error subscribing to invoice: %v", err)
	}

	if err := client.SettleInvoice(invoice.PaymentHash); err != nil {
		t.Fatalf("error settling invoice: %v", err)
	}

	update, err := sub.Recv()
	if err != nil {
		t.Fatalf("error receiving invoice update: %v", err)
	}
	if !update.Settled {
		t.Fatal("expected subscription to reflect the settled invoice")
	}
}
