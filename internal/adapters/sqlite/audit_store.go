package sqlite

import (
	"context"
	"database/sql"

	"github.com/paybridge/ipn/internal/app/ports"
	"github.com/paybridge/ipn/internal/db"
)

type auditDatabase interface {
	InsertWebhookLogs(ctx context.Context, rows []db.WebhookLogRow) error
	InsertErrorLogs(ctx context.Context, rows []db.ErrorLogRow) error
}

type auditStore struct {
	db      auditDatabase
	closeFn func() error
}

func newAuditStore(database auditDatabase, closeFn func() error) *auditStore {
	return &auditStore{db: database, closeFn: closeFn}
}

func (s *auditStore) InsertWebhookLogs(ctx context.Context, records []ports.WebhookLogRecord) error {
	rows := make([]db.WebhookLogRow, 0, len(records))
	for _, record := range records {
		success := int64(0)
		if record.Success {
			success = 1
		}
		rows = append(rows, db.WebhookLogRow{
			ID:               record.ID,
			OrderID:          record.OrderID,
			WebhookType:      record.WebhookType,
			Status:           record.Status,
			TransactionID:    nullString(record.TransactionID),
			Amount:           nullString(record.Amount),
			Currency:         nullString(record.Currency),
			ErrorCode:        nullString(record.ErrorCode),
			ErrorMessage:     nullString(record.ErrorMessage),
			RawPayload:       record.RawPayload,
			ClientIP:         nullString(record.ClientIP),
			UserAgent:        nullString(record.UserAgent),
			ProcessedAt:      db.FormatTime(record.ProcessedAt),
			Success:          success,
			ProcessingTimeMS: record.ProcessingTimeMS,
		})
	}
	return s.db.InsertWebhookLogs(ctx, rows)
}

func (s *auditStore) InsertErrorLogs(ctx context.Context, records []ports.ErrorLogRecord) error {
	rows := make([]db.ErrorLogRow, 0, len(records))
	for _, record := range records {
		rows = append(rows, db.ErrorLogRow{
			ID:        record.ID,
			ErrorType: record.ErrorType,
			Message:   record.Message,
			Stack:     nullString(record.Stack),
			Context:   record.Context,
			Severity:  string(record.Severity),
			CreatedAt: db.FormatTime(record.CreatedAt),
		})
	}
	return s.db.InsertErrorLogs(ctx, rows)
}

func (s *auditStore) Close() error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn()
}

func nullString(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}

var _ ports.AuditStore = (*auditStore)(nil)
