package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// WebhookLogRow is one persisted webhook delivery record.
type WebhookLogRow struct {
	ID               string
	OrderID          string
	WebhookType      string
	Status           string
	TransactionID    sql.NullString
	Amount           sql.NullString
	Currency         sql.NullString
	ErrorCode        sql.NullString
	ErrorMessage     sql.NullString
	RawPayload       string
	ClientIP         sql.NullString
	UserAgent        sql.NullString
	ProcessedAt      string
	Success          int64
	ProcessingTimeMS int64
}

// ErrorLogRow is one persisted pipeline error record.
type ErrorLogRow struct {
	ID        string
	ErrorType string
	Message   string
	Stack     sql.NullString
	Context   string
	Severity  string
	CreatedAt string
}

// InsertWebhookLogs bulk-appends delivery records in one transaction so a
// failed batch leaves no partial rows behind.
func (c *Database) InsertWebhookLogs(ctx context.Context, rows []WebhookLogRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin webhook log batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO webhook_logs (
			id, order_id, webhook_type, status, transaction_id, amount,
			currency, error_code, error_message, raw_payload, client_ip,
			user_agent, processed_at, success, processing_time_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare webhook log insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ID, row.OrderID, row.WebhookType, row.Status,
			row.TransactionID, row.Amount, row.Currency, row.ErrorCode,
			row.ErrorMessage, row.RawPayload, row.ClientIP, row.UserAgent,
			row.ProcessedAt, row.Success, row.ProcessingTimeMS,
		); err != nil {
			return fmt.Errorf("insert webhook log %s: %w", row.ID, err)
		}
	}
	return tx.Commit()
}

// InsertErrorLogs bulk-appends error records in one transaction.
func (c *Database) InsertErrorLogs(ctx context.Context, rows []ErrorLogRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin error log batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO error_logs (
			id, error_type, message, stack, context, severity, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare error log insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if _, err := stmt.ExecContext(ctx,
			row.ID, row.ErrorType, row.Message, row.Stack,
			row.Context, row.Severity, row.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert error log %s: %w", row.ID, err)
		}
	}
	return tx.Commit()
}

// CountWebhookLogs reports the number of delivery records.
func (c *Database) CountWebhookLogs(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM webhook_logs`).Scan(&count)
	return count, err
}

// CountErrorLogs reports the number of error records.
func (c *Database) CountErrorLogs(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM error_logs`).Scan(&count)
	return count, err
}

// ListWebhookLogsByOrder returns delivery records for one order, newest
// first.
func (c *Database) ListWebhookLogsByOrder(ctx context.Context, orderID string) ([]WebhookLogRow, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT id, order_id, webhook_type, status, transaction_id, amount,
			currency, error_code, error_message, raw_payload, client_ip,
			user_agent, processed_at, success, processing_time_ms
		FROM webhook_logs
		WHERE order_id = ?
		ORDER BY processed_at DESC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []WebhookLogRow
	for rows.Next() {
		var row WebhookLogRow
		if err := rows.Scan(
			&row.ID, &row.OrderID, &row.WebhookType, &row.Status,
			&row.TransactionID, &row.Amount, &row.Currency, &row.ErrorCode,
			&row.ErrorMessage, &row.RawPayload, &row.ClientIP, &row.UserAgent,
			&row.ProcessedAt, &row.Success, &row.ProcessingTimeMS,
		); err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

// FormatTime renders timestamps the way the audit tables store them.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
