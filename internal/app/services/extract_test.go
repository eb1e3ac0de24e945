package services

import (
	"errors"
	"testing"
)

func TestExtractPaymentEventFirstNonEmptyPathWins(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"order_id": "ORD1",
		"status":   "",
		"payment":  map[string]any{"status": "confirmed"},
	}
	event, err := ExtractPaymentEvent(payload)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if event.Status != "confirmed" {
		t.Fatalf("unexpected status: got=%q want=%q", event.Status, "confirmed")
	}
}

func TestExtractPaymentEventPathPriorityNotValueContent(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"order_id":       "ORD1",
		"payment_status": "pending",
		"payment":        map[string]any{"status": "paid"},
	}
	event, err := ExtractPaymentEvent(payload)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if event.Status != "pending" {
		t.Fatalf("higher-priority path must win: got=%q", event.Status)
	}
}

func TestExtractPaymentEventMissingOrderIDIsTerminal(t *testing.T) {
	t.Parallel()

	_, err := ExtractPaymentEvent(map[string]any{"status": "paid"})
	if !errors.Is(err, ErrMissingOrderID) {
		t.Fatalf("expected ErrMissingOrderID, got %v", err)
	}

	_, err = ExtractPaymentEvent(map[string]any{"order_id": "", "status": "paid"})
	if !errors.Is(err, ErrMissingOrderID) {
		t.Fatalf("empty order id must be terminal, got %v", err)
	}
}

func TestExtractPaymentEventCurrencyDefault(t *testing.T) {
	t.Parallel()

	event, err := ExtractPaymentEvent(map[string]any{"order_id": "ORD1"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if event.Currency != DefaultCurrency {
		t.Fatalf("unexpected currency: got=%q want=%q", event.Currency, DefaultCurrency)
	}

	event, err = ExtractPaymentEvent(map[string]any{"order_id": "ORD1", "currency": "EUR"})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if event.Currency != "EUR" {
		t.Fatalf("explicit currency must win: got=%q", event.Currency)
	}
}

func TestExtractPaymentEventNestedAliases(t *testing.T) {
	t.Parallel()

	payload := map[string]any{
		"payment": map[string]any{
			"order_id":       "ORD9",
			"transaction_id": "TXN7",
			"amount":         "42.00",
			"currency":       "USD",
		},
	}
	event, err := ExtractPaymentEvent(payload)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if event.OrderID != "ORD9" || event.TransactionID != "TXN7" || event.Amount != "42.00" || event.Currency != "USD" {
		t.Fatalf("unexpected event: %+v", event)
	}
}
