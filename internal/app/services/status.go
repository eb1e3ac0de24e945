package services

import (
	"encoding/json"
	"strconv"
	"strings"
)

// OrderStatus is the internal order state applied downstream.
type OrderStatus string

const (
	OrderStatusSucceeded OrderStatus = "SUCCEEDED"
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusFailed    OrderStatus = "FAILED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// canonicalToOrderStatus is the fixed second-stage mapping. Anything a
// provider sends that lands outside it stays PENDING until a later
// notification settles it.
var canonicalToOrderStatus = map[string]OrderStatus{
	"confirmed": OrderStatusSucceeded,
	"paid":      OrderStatusSucceeded,
	"pending":   OrderStatusPending,
	"cancelled": OrderStatusCancelled,
	"failed":    OrderStatusFailed,
	"refunded":  OrderStatusRefunded,
}

// CanonicalStatus maps a provider status value to the provider-agnostic
// vocabulary, first rule to match wins. Numeric payloads use the gateway
// code table; strings check the "00"/"0" approval codes before numeric
// parsing, then fall back to case-insensitive keyword matching. Unknown
// values pass through lowercased.
func CanonicalStatus(value any) string {
	switch v := value.(type) {
	case json.Number:
		if n, err := v.Int64(); err == nil {
			if status, ok := numericStatus(n); ok {
				return status
			}
		}
		return canonicalFromString(v.String())
	case float64:
		if status, ok := numericStatus(int64(v)); ok {
			return status
		}
		return canonicalFromString(strconv.FormatFloat(v, 'f', -1, 64))
	case int:
		if status, ok := numericStatus(int64(v)); ok {
			return status
		}
		return canonicalFromString(strconv.Itoa(v))
	case string:
		return canonicalFromString(v)
	default:
		text, ok := stringifyValue(value)
		if !ok {
			return ""
		}
		return canonicalFromString(text)
	}
}

// MapOrderStatus resolves the internal order state for a canonical status.
func MapOrderStatus(canonical string) OrderStatus {
	if status, ok := canonicalToOrderStatus[canonical]; ok {
		return status
	}
	return OrderStatusPending
}

func numericStatus(n int64) (string, bool) {
	switch n {
	case 3:
		return "paid", true
	case 2:
		return "confirmed", true
	case 1, 0:
		return "pending", true
	default:
		return "", false
	}
}

func canonicalFromString(value string) string {
	trimmed := strings.TrimSpace(value)
	lowered := strings.ToLower(trimmed)

	// Gateway approval codes predate the numeric table and win for strings.
	if trimmed == "00" || trimmed == "0" {
		return "paid"
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		if status, ok := numericStatus(n); ok {
			return status
		}
		return lowered
	}

	switch {
	case strings.Contains(lowered, "approved"):
		return "paid"
	case strings.Contains(lowered, "confirm"):
		return "confirmed"
	case strings.Contains(lowered, "paid"):
		return "paid"
	case strings.Contains(lowered, "pending"):
		return "pending"
	case strings.Contains(lowered, "cancel"):
		return "cancelled"
	case strings.Contains(lowered, "fail"):
		return "failed"
	default:
		return lowered
	}
}
