package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingOrderID indicates the payload carries no resolvable order id.
var ErrMissingOrderID = errors.New("missing order id")

// DefaultCurrency is applied when no currency field resolves.
const DefaultCurrency = "RON"

// PaymentEvent is the canonical business view of one provider notification.
type PaymentEvent struct {
	OrderID       string
	Status        string
	TransactionID string
	Amount        string
	Currency      string
}

// fieldPaths maps each canonical field to its candidate payload locations,
// highest priority first. Providers disagree on where these live; priority
// is path order, never value content.
var fieldPaths = map[string][]string{
	"orderId":       {"order_id", "orderId", "order.id", "invoice_id", "payment.order_id"},
	"status":        {"status", "payment_status", "payment.status", "payment.message", "payment.code"},
	"transactionId": {"transaction_id", "transactionId", "txn_id", "payment.transaction_id"},
	"amount":        {"amount", "total", "payment.amount"},
	"currency":      {"currency", "payment.currency"},
	"timestamp":     {"timestamp", "ts", "payment.date"},
}

// ExtractPaymentEvent resolves canonical business fields from the decoded
// payload. An unresolvable orderId is terminal before any further work.
func ExtractPaymentEvent(payload map[string]any) (PaymentEvent, error) {
	event := PaymentEvent{
		OrderID:       extractField(payload, "orderId"),
		Status:        extractField(payload, "status"),
		TransactionID: extractField(payload, "transactionId"),
		Amount:        extractField(payload, "amount"),
		Currency:      extractField(payload, "currency"),
	}
	if event.OrderID == "" {
		return PaymentEvent{}, ErrMissingOrderID
	}
	if event.Currency == "" {
		event.Currency = DefaultCurrency
	}
	return event, nil
}

func extractField(payload map[string]any, field string) string {
	for _, path := range fieldPaths[field] {
		if value, ok := resolvePath(payload, path); ok {
			return value
		}
	}
	return ""
}

// extractRawField resolves a canonical field without flattening its type,
// for rules that distinguish numeric from string values.
func extractRawField(payload map[string]any, field string) (any, bool) {
	for _, path := range fieldPaths[field] {
		if value, ok := resolveRawPath(payload, path); ok {
			return value, true
		}
	}
	return nil, false
}

func resolveRawPath(payload map[string]any, path string) (any, bool) {
	var current any = payload
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}
	if _, ok := stringifyValue(current); !ok {
		return nil, false
	}
	return current, true
}

// resolvePath walks a dotted path through nested maps and reports the value
// found there, if it is defined, non-null and non-empty.
func resolvePath(payload map[string]any, path string) (string, bool) {
	var current any = payload
	for _, segment := range strings.Split(path, ".") {
		node, ok := current.(map[string]any)
		if !ok {
			return "", false
		}
		current, ok = node[segment]
		if !ok {
			return "", false
		}
	}
	return stringifyValue(current)
}

func stringifyValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	case json.Number:
		return v.String(), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case bool:
		return strconv.FormatBool(v), true
	default:
		return fmt.Sprintf("%v", v), true
	}
}
