// Package audit appends immutable who/what/when records for every mutation.
// Logging is best-effort: a failing audit write must never abort the business
// operation that triggered it.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/shared"
)

// Sink persists audit entries. store.Store satisfies it; in-transaction
// callers hand the transaction surface to NewEntry + AppendAudit directly.
type Sink interface {
	AppendAudit(ctx context.Context, e models.AuditEntry) error
	ListAudit(ctx context.Context) ([]models.AuditEntry, error)
}

// NewEntry stamps identity and time on an audit record.
func NewEntry(action models.AuditAction, entityType models.AuditEntityType, entityID string, details map[string]any) models.AuditEntry {
	return models.AuditEntry{
		ID:         shared.NewID("aud"),
		At:         time.Now().UTC(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
	}
}

// Logger is the caller-facing audit service.
type Logger struct {
	sink   Sink
	logger *slog.Logger
	origin string
}

// NewLogger constructs a Logger. origin tags entries with the writing client,
// empty is fine.
func NewLogger(sink Sink, logger *slog.Logger, origin string) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{sink: sink, logger: logger, origin: origin}
}

// Log appends an entry and always succeeds from the caller's perspective.
// Persistence failures go to the diagnostic log only.
func (l *Logger) Log(ctx context.Context, action models.AuditAction, entityType models.AuditEntityType, entityID string, details map[string]any) models.AuditEntry {
	entry := NewEntry(action, entityType, entityID, details)
	entry.OriginClient = l.origin
	if l.sink == nil {
		return entry
	}
	if err := l.sink.AppendAudit(ctx, entry); err != nil {
		l.logger.Warn("audit append failed",
			slog.String("action", string(action)),
			slog.String("entity_type", string(entityType)),
			slog.String("entity_id", entityID),
			slog.Any("error", err))
	}
	return entry
}

// GetLog returns entries oldest to newest, at most the retention cap.
func (l *Logger) GetLog(ctx context.Context) ([]models.AuditEntry, error) {
	return l.sink.ListAudit(ctx)
}
