package services

import (
	"encoding/json"
	"testing"
)

func TestCanonicalStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		value any
		want  string
	}{
		{"numeric paid", json.Number("3"), "paid"},
		{"numeric confirmed", json.Number("2"), "confirmed"},
		{"numeric pending one", json.Number("1"), "pending"},
		{"numeric pending zero", json.Number("0"), "pending"},
		{"numeric string paid", "3", "paid"},
		{"gateway approval code", "00", "paid"},
		{"gateway approval code short", "0", "paid"},
		{"approved keyword", "Transaction Approved", "paid"},
		{"confirm keyword", "Confirmed by bank", "confirmed"},
		{"paid keyword", "PAID", "paid"},
		{"pending keyword", "Pending settlement", "pending"},
		{"cancel keyword", "Order Cancelled", "cancelled"},
		{"fail keyword", "payment failed", "failed"},
		{"passthrough", "xyz", "xyz"},
		{"passthrough lowercases", "XYZ", "xyz"},
		{"float status", float64(3), "paid"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := CanonicalStatus(tc.value); got != tc.want {
				t.Fatalf("CanonicalStatus(%v): got=%q want=%q", tc.value, got, tc.want)
			}
		})
	}
}

func TestMapOrderStatus(t *testing.T) {
	t.Parallel()

	cases := map[string]OrderStatus{
		"paid":      OrderStatusSucceeded,
		"confirmed": OrderStatusSucceeded,
		"pending":   OrderStatusPending,
		"cancelled": OrderStatusCancelled,
		"failed":    OrderStatusFailed,
		"refunded":  OrderStatusRefunded,
		"xyz":       OrderStatusPending,
		"":          OrderStatusPending,
	}
	for canonical, want := range cases {
		if got := MapOrderStatus(canonical); got != want {
			t.Fatalf("MapOrderStatus(%q): got=%q want=%q", canonical, got, want)
		}
	}
}
