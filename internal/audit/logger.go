// Package audit buffers webhook outcomes and pipeline errors in memory and
// persists them in bulk, so the request path never waits on storage.
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/paybridge/ipn/internal/app/ports"
)

const (
	// DefaultBufferSize is the per-buffer flush threshold.
	DefaultBufferSize = 100
	// DefaultFlushInterval is the periodic flush cadence.
	DefaultFlushInterval = 30 * time.Second
)

// Config sizes the logger's buffers and flush cadence.
type Config struct {
	BufferSize    int
	FlushInterval time.Duration
}

// Logger is a process-wide asynchronous audit recorder. Appends are O(1)
// under a mutex; a single background task drains both buffers on a timer,
// when a buffer reaches capacity, or immediately for critical errors.
// Entries are cleared only after successful persistence.
type Logger struct {
	factory       ports.AuditStoreFactory
	bufferSize    int
	flushInterval time.Duration

	mu       sync.Mutex
	webhooks []ports.WebhookLogRecord
	errors   []ports.ErrorLogRecord

	kickWebhooks chan struct{}
	kickErrors   chan struct{}
	stop         chan struct{}
	done         chan struct{}
	startOnce    sync.Once
	closeOnce    sync.Once

	appended     atomic.Int64
	flushBatches atomic.Int64
	flushErrors  atomic.Int64
}

// NewLogger constructs an audit logger. The flush task does not run until
// Start is called; short-lived hosts may skip Start and drain with Flush
// or Close instead.
func NewLogger(factory ports.AuditStoreFactory, cfg Config) *Logger {
	size := cfg.BufferSize
	if size <= 0 {
		size = DefaultBufferSize
	}
	if size > 2000 {
		size = 2000
	}
	interval := cfg.FlushInterval
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	return &Logger{
		factory:       factory,
		bufferSize:    size,
		flushInterval: interval,
		webhooks:      make([]ports.WebhookLogRecord, 0, size),
		errors:        make([]ports.ErrorLogRecord, 0, size),
		kickWebhooks:  make(chan struct{}, 1),
		kickErrors:    make(chan struct{}, 1),
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the background flush task. Safe to call once.
func (l *Logger) Start() *Logger {
	l.startOnce.Do(func() {
		go l.run()
	})
	return l
}

// RecordWebhook appends one delivery outcome. Never blocks on I/O.
func (l *Logger) RecordWebhook(record ports.WebhookLogRecord) {
	l.mu.Lock()
	l.webhooks = append(l.webhooks, record)
	full := len(l.webhooks) >= l.bufferSize
	l.mu.Unlock()
	l.appended.Add(1)

	if full {
		l.kick(l.kickWebhooks)
	}
}

// RecordError appends one pipeline error. Critical severity forces an
// immediate flush of the error buffer, bypassing the timer.
func (l *Logger) RecordError(record ports.ErrorLogRecord) {
	l.mu.Lock()
	l.errors = append(l.errors, record)
	full := len(l.errors) >= l.bufferSize
	l.mu.Unlock()
	l.appended.Add(1)

	if full || record.Severity == ports.SeverityCritical {
		l.kick(l.kickErrors)
	}
}

// Flush synchronously drains both buffers. Entries stay buffered when
// persistence fails.
func (l *Logger) Flush(ctx context.Context) error {
	webhookErr := l.flushWebhooks(ctx)
	errorErr := l.flushErrorEntries(ctx)
	if webhookErr != nil {
		return webhookErr
	}
	return errorErr
}

// Close stops the flush task and drains whatever is still buffered.
func (l *Logger) Close(ctx context.Context) error {
	l.closeOnce.Do(func() {
		close(l.stop)
	})
	l.startOnce.Do(func() {
		close(l.done)
	})
	select {
	case <-l.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return l.Flush(ctx)
}

// Pending reports how many entries are currently buffered.
func (l *Logger) Pending() (webhooks, errors int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.webhooks), len(l.errors)
}

func (l *Logger) kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (l *Logger) run() {
	defer close(l.done)

	ticker := time.NewTicker(l.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.flushBoth()
		case <-l.kickWebhooks:
			if err := l.flushWebhooks(context.Background()); err != nil {
				slog.Error("audit_webhook_flush_failed", "error", err)
			}
		case <-l.kickErrors:
			if err := l.flushErrorEntries(context.Background()); err != nil {
				slog.Error("audit_error_flush_failed", "error", err)
			}
		case <-l.stop:
			return
		}
	}
}

func (l *Logger) flushBoth() {
	if err := l.flushWebhooks(context.Background()); err != nil {
		slog.Error("audit_webhook_flush_failed", "error", err)
	}
	if err := l.flushErrorEntries(context.Background()); err != nil {
		slog.Error("audit_error_flush_failed", "error", err)
	}
}

func (l *Logger) flushWebhooks(ctx context.Context) error {
	l.mu.Lock()
	if len(l.webhooks) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := l.webhooks
	l.webhooks = make([]ports.WebhookLogRecord, 0, l.bufferSize)
	l.mu.Unlock()

	err := l.persist(ctx, func(store ports.AuditStore) error {
		return store.InsertWebhookLogs(ctx, batch)
	})
	if err != nil {
		l.flushErrors.Add(1)
		l.mu.Lock()
		l.webhooks = append(batch, l.webhooks...)
		l.mu.Unlock()
		return err
	}
	l.flushBatches.Add(1)
	return nil
}

func (l *Logger) flushErrorEntries(ctx context.Context) error {
	l.mu.Lock()
	if len(l.errors) == 0 {
		l.mu.Unlock()
		return nil
	}
	batch := l.errors
	l.errors = make([]ports.ErrorLogRecord, 0, l.bufferSize)
	l.mu.Unlock()

	err := l.persist(ctx, func(store ports.AuditStore) error {
		return store.InsertErrorLogs(ctx, batch)
	})
	if err != nil {
		l.flushErrors.Add(1)
		l.mu.Lock()
		l.errors = append(batch, l.errors...)
		l.mu.Unlock()
		return err
	}
	l.flushBatches.Add(1)
	return nil
}

func (l *Logger) persist(ctx context.Context, write func(ports.AuditStore) error) error {
	store, err := l.factory.Open()
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()
	return write(store)
}
