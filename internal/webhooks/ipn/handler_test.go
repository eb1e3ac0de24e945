package ipn

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/paybridge/ipn/internal/app/ports"
	"github.com/paybridge/ipn/internal/app/services"
)

const testSecret = "test-webhook-secret"

type captureAuditor struct {
	mu       sync.Mutex
	webhooks []ports.WebhookLogRecord
	errors   []ports.ErrorLogRecord
}

func (c *captureAuditor) RecordWebhook(record ports.WebhookLogRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.webhooks = append(c.webhooks, record)
}

func (c *captureAuditor) RecordError(record ports.ErrorLogRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, record)
}

type stubOrderService struct {
	mu      sync.Mutex
	calls   []ports.OrderStatusUpdate
	result  ports.OrderUpdateResult
	callErr error
}

func (s *stubOrderService) UpdateStatus(_ context.Context, update ports.OrderStatusUpdate) (ports.OrderUpdateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, update)
	return s.result, s.callErr
}

func newTestHandler(orders *stubOrderService, audit *captureAuditor) *Handler {
	authenticator := services.NewAuthenticator(services.AuthenticatorConfig{
		AllowedIPs: []string{"203.0.113.0/24"},
		Secret:     testSecret,
	})
	pipeline := services.NewPipeline(authenticator, orders, audit, "payment_ipn")
	return NewHandler(pipeline, "ipn-gateway", "test")
}

func signedForm(t *testing.T, fields map[string]string) string {
	t.Helper()
	payload := make(map[string]any, len(fields))
	for key, value := range fields {
		payload[key] = value
	}
	values := url.Values{}
	for key, value := range fields {
		values.Set(key, value)
	}
	values.Set(services.SignatureField, services.SignPayload(payload, testSecret))
	return values.Encode()
}

func postIPN(t *testing.T, handler *Handler, body, contentType, clientIP string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ipn", strings.NewReader(body))
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Real-IP", clientIP)
	rec := httptest.NewRecorder()
	if err := handler.Handle(rec, req); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	var parsed Response
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, parsed
}

func TestHandleAcceptedPayment(t *testing.T) {
	t.Parallel()

	orders := &stubOrderService{result: ports.OrderUpdateResult{Success: true, Message: "order updated"}}
	audit := &captureAuditor{}
	handler := newTestHandler(orders, audit)

	body := signedForm(t, map[string]string{
		"orderId":  "ORD1",
		"status":   "3",
		"amount":   "19.99",
		"currency": "RON",
	})
	rec, resp := postIPN(t, handler, body, "application/x-www-form-urlencoded", "203.0.113.5")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if !resp.Success || resp.OrderID != "ORD1" || resp.Error != "" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if len(orders.calls) != 1 {
		t.Fatalf("order service called %d times, want 1", len(orders.calls))
	}
	if orders.calls[0].Status != string(services.OrderStatusSucceeded) {
		t.Fatalf("status %q not mapped to %q", orders.calls[0].Status, services.OrderStatusSucceeded)
	}
	if len(audit.webhooks) != 1 || !audit.webhooks[0].Success {
		t.Fatalf("expected one success audit entry, got %+v", audit.webhooks)
	}
	if audit.webhooks[0].Status != string(services.OrderStatusSucceeded) {
		t.Fatalf("audit entry carries status %q", audit.webhooks[0].Status)
	}
}

func TestHandleRejectsUnknownSource(t *testing.T) {
	t.Parallel()

	orders := &stubOrderService{result: ports.OrderUpdateResult{Success: true}}
	audit := &captureAuditor{}
	handler := newTestHandler(orders, audit)

	body := signedForm(t, map[string]string{
		"orderId": "ORD1",
		"status":  "3",
	})
	rec, resp := postIPN(t, handler, body, "application/x-www-form-urlencoded", "198.51.100.7")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if resp.Success || resp.Error != "unauthorized" || !strings.Contains(resp.Details, "ip") {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if len(orders.calls) != 0 {
		t.Fatal("order service must not be called for an unauthorized delivery")
	}
	if len(audit.webhooks) != 1 || audit.webhooks[0].Success {
		t.Fatalf("expected one failure audit entry, got %+v", audit.webhooks)
	}
	if audit.webhooks[0].ErrorCode == nil || *audit.webhooks[0].ErrorCode != "ip" {
		t.Fatalf("failure entry should name the failed check, got %+v", audit.webhooks[0].ErrorCode)
	}
}

func TestHandleRejectsTamperedSignature(t *testing.T) {
	t.Parallel()

	orders := &stubOrderService{result: ports.OrderUpdateResult{Success: true}}
	handler := newTestHandler(orders, &captureAuditor{})

	body := signedForm(t, map[string]string{
		"orderId": "ORD1",
		"status":  "3",
		"amount":  "19.99",
	})
	tampered := strings.Replace(body, "19.99", "190.99", 1)
	rec, resp := postIPN(t, handler, tampered, "application/x-www-form-urlencoded", "203.0.113.5")

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(resp.Details, "signature") {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestHandleMalformedBody(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(&stubOrderService{}, &captureAuditor{})

	rec, resp := postIPN(t, handler, "{not-json", "application/json", "203.0.113.5")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Error != "malformed_payload" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestHandleMissingOrderID(t *testing.T) {
	t.Parallel()

	handler := newTestHandler(&stubOrderService{}, &captureAuditor{})

	rec, resp := postIPN(t, handler, `{"status":"3"}`, "application/json", "203.0.113.5")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp.Error != "missing_order_id" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
}

func TestHandleDownstreamFailureStaysHTTP200(t *testing.T) {
	t.Parallel()

	orders := &stubOrderService{result: ports.OrderUpdateResult{Success: false, Message: "order not found"}}
	audit := &captureAuditor{}
	handler := newTestHandler(orders, audit)

	body := signedForm(t, map[string]string{
		"orderId": "ORD1",
		"status":  "3",
	})
	rec, resp := postIPN(t, handler, body, "application/x-www-form-urlencoded", "203.0.113.5")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: a downstream failure must not trigger provider redelivery", rec.Code)
	}
	if resp.Success || resp.Error != "downstream_error" || resp.OrderID != "ORD1" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if len(audit.webhooks) != 1 || audit.webhooks[0].Success {
		t.Fatalf("expected one failure audit entry, got %+v", audit.webhooks)
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()

	handler := NewHandler(nil, "ipn-gateway", "1.2.3")
	req := httptest.NewRequest(http.MethodGet, "/webhooks/ipn/health", nil)
	rec := httptest.NewRecorder()
	if err := handler.Health(rec, req); err != nil {
		t.Fatalf("Health: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var parsed HealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if parsed.Status != "healthy" || parsed.Service != "ipn-gateway" || parsed.Version != "1.2.3" {
		t.Fatalf("unexpected health body %+v", parsed)
	}
}

type failingBody struct{}

func (failingBody) Read([]byte) (int, error) { return 0, errors.New("connection reset by peer") }

func TestHandleUnreadableBodyIsAudited(t *testing.T) {
	t.Parallel()

	orders := &stubOrderService{}
	audit := &captureAuditor{}
	handler := newTestHandler(orders, audit)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ipn", failingBody{})
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Real-IP", "203.0.113.5")
	rec := httptest.NewRecorder()
	if err := handler.Handle(rec, req); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error != "malformed_payload" {
		t.Fatalf("unexpected envelope %+v", resp)
	}
	if len(audit.errors) != 1 || audit.errors[0].ErrorType != "parse_error" {
		t.Fatalf("read failure must leave an error entry, got %+v", audit.errors)
	}
	if len(audit.webhooks) != 1 || audit.webhooks[0].Success {
		t.Fatalf("read failure must leave a failed delivery record, got %+v", audit.webhooks)
	}
	if audit.webhooks[0].ClientIP == nil || *audit.webhooks[0].ClientIP != "203.0.113.5" {
		t.Fatalf("delivery record should carry the client address, got %+v", audit.webhooks[0].ClientIP)
	}
	if len(orders.calls) != 0 {
		t.Fatal("order service must not be called for an unreadable body")
	}
}

func TestHandleIgnoresProxyHeadersWhenUntrusted(t *testing.T) {
	t.Parallel()

	orders := &stubOrderService{result: ports.OrderUpdateResult{Success: true}}
	handler := newTestHandler(orders, &captureAuditor{}).WithProxyHeaders(false)

	body := signedForm(t, map[string]string{
		"orderId": "ORD1",
		"status":  "3",
	})
	req := httptest.NewRequest(http.MethodPost, "/webhooks/ipn", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("X-Real-IP", "203.0.113.5")
	req.RemoteAddr = "198.51.100.7:4444"
	rec := httptest.NewRecorder()
	if err := handler.Handle(rec, req); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401: a forged header must not bypass the allowlist", rec.Code)
	}
	if len(orders.calls) != 0 {
		t.Fatal("order service must not be called")
	}
}

func TestClientIPPrecedence(t *testing.T) {
	t.Parallel()

	trusting := NewHandler(nil, "ipn-gateway", "test")

	req := httptest.NewRequest(http.MethodPost, "/webhooks/ipn", nil)
	req.RemoteAddr = "10.0.0.1:4444"
	if got := trusting.clientIP(req); got != "10.0.0.1" {
		t.Fatalf("socket peer fallback: got %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := trusting.clientIP(req); got != "203.0.113.9" {
		t.Fatalf("forwarded-for should win over socket peer: got %q", got)
	}

	req.Header.Set("X-Real-IP", "203.0.113.5")
	if got := trusting.clientIP(req); got != "203.0.113.5" {
		t.Fatalf("real-ip should win over forwarded-for: got %q", got)
	}

	direct := NewHandler(nil, "ipn-gateway", "test").WithProxyHeaders(false)
	if got := direct.clientIP(req); got != "10.0.0.1" {
		t.Fatalf("untrusted headers must be ignored: got %q", got)
	}
}
