package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/paybridge/ipn/internal/app/ports"
)

var (
	// ErrUnauthorized indicates a failed IP, timestamp or signature check.
	ErrUnauthorized = errors.New("webhook authentication failed")
	// ErrUnexpected indicates an uncaught processing failure.
	ErrUnexpected = errors.New("unexpected processing failure")
)

// rawPreviewLimit caps how much of an unreadable body is kept in the
// error log.
const rawPreviewLimit = 4000

// Auditor records webhook outcomes and pipeline errors without blocking
// the caller.
type Auditor interface {
	RecordWebhook(record ports.WebhookLogRecord)
	RecordError(record ports.ErrorLogRecord)
}

// WebhookRequest is the transport-agnostic pipeline input.
type WebhookRequest struct {
	Body        []byte
	ContentType string
	ClientIP    string
	UserAgent   string
}

// Result is the pipeline outcome surfaced to the HTTP layer.
type Result struct {
	Success     bool
	OrderID     string
	Status      OrderStatus
	Message     string
	FailedCheck FailedCheck
}

// PipelineErrorKind classifies pipeline failures for transport-specific
// mapping.
type PipelineErrorKind string

const (
	PipelineErrorUnknown        PipelineErrorKind = "unknown"
	PipelineErrorMalformed      PipelineErrorKind = "malformed_payload"
	PipelineErrorMissingOrderID PipelineErrorKind = "missing_order_id"
	PipelineErrorUnauthorized   PipelineErrorKind = "unauthorized"
	PipelineErrorUnexpected     PipelineErrorKind = "unexpected"
)

// ClassifyPipelineError classifies a returned pipeline error.
func ClassifyPipelineError(err error) PipelineErrorKind {
	switch {
	case err == nil:
		return PipelineErrorUnknown
	case errors.Is(err, ErrMalformedPayload):
		return PipelineErrorMalformed
	case errors.Is(err, ErrMissingOrderID):
		return PipelineErrorMissingOrderID
	case errors.Is(err, ErrUnauthorized):
		return PipelineErrorUnauthorized
	case errors.Is(err, ErrUnexpected):
		return PipelineErrorUnexpected
	default:
		return PipelineErrorUnknown
	}
}

// Pipeline processes one provider notification end to end: decode,
// extract, authenticate, normalize, apply downstream, audit. A single
// delivery is synchronous; only the auditor is shared across deliveries.
type Pipeline struct {
	authenticator *Authenticator
	orders        ports.OrderService
	audit         Auditor
	webhookType   string
	now           func() time.Time
}

// NewPipeline constructs the webhook pipeline.
func NewPipeline(authenticator *Authenticator, orders ports.OrderService, audit Auditor, webhookType string) *Pipeline {
	if strings.TrimSpace(webhookType) == "" {
		webhookType = "payment_ipn"
	}
	return &Pipeline{
		authenticator: authenticator,
		orders:        orders,
		audit:         audit,
		webhookType:   webhookType,
		now:           time.Now,
	}
}

// WithClock overrides the pipeline's time source.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	if now != nil {
		p.now = now
	}
	return p
}

// Process runs the pipeline for one delivery. Terminal failures are
// audit-logged before returning; a downstream failure is captured in the
// result rather than returned as an error.
func (p *Pipeline) Process(ctx context.Context, req WebhookRequest) (result Result, err error) {
	started := p.now()
	defer func() {
		if recovered := recover(); recovered != nil {
			stack := string(debug.Stack())
			p.recordError("unexpected_error", fmt.Sprintf("panic: %v", recovered), &stack, map[string]any{
				"client_ip": req.ClientIP,
			}, ports.SeverityCritical)
			result = Result{}
			err = ErrUnexpected
		}
	}()

	payload, decodeErr := DecodePayload(req.Body, req.ContentType)
	if decodeErr != nil {
		preview := rawPreview(req.Body)
		p.recordError("parse_error", decodeErr.Error(), nil, map[string]any{
			"content_type": req.ContentType,
			"raw_preview":  preview,
			"client_ip":    req.ClientIP,
		}, ports.SeverityMedium)
		p.recordOutcome(req, started, PaymentEvent{}, "", preview, false, "parse_error", "request body could not be decoded")
		return Result{}, decodeErr
	}

	event, extractErr := ExtractPaymentEvent(payload)
	if extractErr != nil {
		p.recordOutcome(req, started, event, "", marshalPayload(payload), false, "missing_field_error", "no order id in payload")
		return Result{}, extractErr
	}

	if verdict := p.authenticator.Authenticate(payload, req.ClientIP); !verdict.Valid {
		p.recordOutcome(req, started, event, "", marshalPayload(payload), false, string(verdict.FailedCheck), verdict.Reason)
		return Result{FailedCheck: verdict.FailedCheck, Message: verdict.Reason},
			fmt.Errorf("%w: %s check: %s", ErrUnauthorized, verdict.FailedCheck, verdict.Reason)
	}

	rawStatus, _ := extractRawField(payload, "status")
	status := MapOrderStatus(CanonicalStatus(rawStatus))

	outcome, updateErr := p.orders.UpdateStatus(ctx, ports.OrderStatusUpdate{
		OrderID:       event.OrderID,
		Status:        string(status),
		TransactionID: event.TransactionID,
		Amount:        event.Amount,
		Currency:      event.Currency,
		RawData:       payload,
	})
	if updateErr != nil {
		p.recordOutcome(req, started, event, status, marshalPayload(payload), false, "downstream_error", updateErr.Error())
		return Result{OrderID: event.OrderID, Status: status, Message: updateErr.Error()}, nil
	}
	if !outcome.Success {
		message := outcome.Message
		if message == "" {
			message = "order service reported failure"
		}
		p.recordOutcome(req, started, event, status, marshalPayload(payload), false, "downstream_error", message)
		return Result{OrderID: event.OrderID, Status: status, Message: message}, nil
	}

	p.recordOutcome(req, started, event, status, marshalPayload(payload), true, "", "")
	return Result{Success: true, OrderID: event.OrderID, Status: status, Message: outcome.Message}, nil
}

// RecordReadFailure audit-logs a delivery whose body could not be read off
// the wire. Whatever bytes did arrive are kept as the preview so the
// delivery is still traceable.
func (p *Pipeline) RecordReadFailure(req WebhookRequest, cause error) {
	started := p.now()
	preview := rawPreview(req.Body)
	p.recordError("parse_error", fmt.Sprintf("request body read failed: %v", cause), nil, map[string]any{
		"content_type": req.ContentType,
		"raw_preview":  preview,
		"client_ip":    req.ClientIP,
	}, ports.SeverityMedium)
	p.recordOutcome(req, started, PaymentEvent{}, "", preview, false, "parse_error", "request body could not be read")
}

func rawPreview(body []byte) string {
	if len(body) > rawPreviewLimit {
		body = body[:rawPreviewLimit]
	}
	return string(body)
}

func (p *Pipeline) recordOutcome(req WebhookRequest, started time.Time, event PaymentEvent, status OrderStatus, rawPayload string, success bool, errorCode, errorMessage string) {
	if p.audit == nil {
		return
	}
	record := ports.WebhookLogRecord{
		ID:               uuid.NewString(),
		OrderID:          event.OrderID,
		WebhookType:      p.webhookType,
		Status:           string(status),
		RawPayload:       rawPayload,
		ProcessedAt:      p.now(),
		Success:          success,
		ProcessingTimeMS: p.now().Sub(started).Milliseconds(),
	}
	if status == "" {
		record.Status = event.Status
	}
	if event.TransactionID != "" {
		record.TransactionID = &event.TransactionID
	}
	if event.Amount != "" {
		record.Amount = &event.Amount
	}
	if event.Currency != "" {
		record.Currency = &event.Currency
	}
	if errorCode != "" {
		record.ErrorCode = &errorCode
	}
	if errorMessage != "" {
		record.ErrorMessage = &errorMessage
	}
	if req.ClientIP != "" {
		clientIP := req.ClientIP
		record.ClientIP = &clientIP
	}
	if req.UserAgent != "" {
		userAgent := req.UserAgent
		record.UserAgent = &userAgent
	}
	p.audit.RecordWebhook(record)
}

func (p *Pipeline) recordError(errorType, message string, stack *string, context map[string]any, severity ports.Severity) {
	if p.audit == nil {
		return
	}
	p.audit.RecordError(ports.ErrorLogRecord{
		ID:        uuid.NewString(),
		ErrorType: errorType,
		Message:   message,
		Stack:     stack,
		Context:   marshalPayload(context),
		Severity:  severity,
		CreatedAt: p.now(),
	})
}

func marshalPayload(payload map[string]any) string {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(raw)
}
