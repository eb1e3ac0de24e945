// Package orders calls the external order-management service that owns
// order state transitions and duplicate-delivery detection.
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/paybridge/ipn/internal/app/ports"
)

// APIKeyHeader authenticates this gateway to the order service.
const APIKeyHeader = "X-Internal-Api-Key"

const defaultTimeout = 10 * time.Second

// Client applies order status updates over HTTP. It performs no local
// retries; the provider's redelivery is the only retry path.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type updateRequest struct {
	OrderID       string         `json:"orderId"`
	Status        string         `json:"status"`
	TransactionID string         `json:"transactionId,omitempty"`
	Amount        string         `json:"amount,omitempty"`
	Currency      string         `json:"currency"`
	RawData       map[string]any `json:"rawData"`
}

type updateResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Order   json.RawMessage `json:"order"`
	Errors  []string        `json:"errors"`
}

// NewClient constructs an order service client with a bounded call timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// UpdateStatus applies one state transition. Success requires both a 2xx
// response and an explicit success flag in the body; anything else is a
// downstream failure with the service's own reason attached.
func (c *Client) UpdateStatus(ctx context.Context, update ports.OrderStatusUpdate) (ports.OrderUpdateResult, error) {
	if c.baseURL == "" {
		return ports.OrderUpdateResult{}, fmt.Errorf("order service not configured")
	}

	raw, err := json.Marshal(updateRequest{
		OrderID:       update.OrderID,
		Status:        update.Status,
		TransactionID: update.TransactionID,
		Amount:        update.Amount,
		Currency:      update.Currency,
		RawData:       update.RawData,
	})
	if err != nil {
		return ports.OrderUpdateResult{}, fmt.Errorf("encode update: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/internal/orders/status", bytes.NewReader(raw))
	if err != nil {
		return ports.OrderUpdateResult{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ports.OrderUpdateResult{}, fmt.Errorf("order service unreachable: %w", err)
	}
	defer resp.Body.Close()

	var parsed updateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return ports.OrderUpdateResult{}, fmt.Errorf("decode order service response (status=%s): %w", resp.Status, err)
	}

	if resp.StatusCode >= http.StatusMultipleChoices || !parsed.Success {
		return ports.OrderUpdateResult{Success: false, Message: failureReason(parsed, resp.Status)}, nil
	}
	return ports.OrderUpdateResult{Success: true, Message: parsed.Message}, nil
}

func failureReason(parsed updateResponse, status string) string {
	if len(parsed.Errors) > 0 {
		return strings.Join(parsed.Errors, "; ")
	}
	if strings.TrimSpace(parsed.Message) != "" {
		return parsed.Message
	}
	return fmt.Sprintf("order service rejected update (status=%s)", status)
}

var _ ports.OrderService = (*Client)(nil)
