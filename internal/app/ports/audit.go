package ports

import (
	"context"
	"time"
)

// Severity classifies error log entries.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// WebhookLogRecord is one webhook delivery outcome append request.
type WebhookLogRecord struct {
	ID               string
	OrderID          string
	WebhookType      string
	Status           string
	TransactionID    *string
	Amount           *string
	Currency         *string
	ErrorCode        *string
	ErrorMessage     *string
	RawPayload       string
	ClientIP         *string
	UserAgent        *string
	ProcessedAt      time.Time
	Success          bool
	ProcessingTimeMS int64
}

// ErrorLogRecord is one pipeline error append request.
type ErrorLogRecord struct {
	ID        string
	ErrorType string
	Message   string
	Stack     *string
	Context   string
	Severity  Severity
	CreatedAt time.Time
}

// AuditStore is the minimal storage contract needed by the audit logger.
type AuditStore interface {
	InsertWebhookLogs(ctx context.Context, records []WebhookLogRecord) error
	InsertErrorLogs(ctx context.Context, records []ErrorLogRecord) error
	Close() error
}

// AuditStoreFactory creates flush-scoped audit stores.
type AuditStoreFactory interface {
	Open() (AuditStore, error)
}
