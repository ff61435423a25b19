package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/store"
)

// AuditTrimHandler drops the oldest audit entries beyond the cap. Appends
// already enforce the cap inline; the periodic pass covers imported datasets.
type AuditTrimHandler struct {
	store  store.Store
	logger *slog.Logger
}

// NewAuditTrimHandler builds the handler.
func NewAuditTrimHandler(st store.Store, logger *slog.Logger) *AuditTrimHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditTrimHandler{store: st, logger: logger}
}

// Handle processes TaskAuditTrim tasks.
func (h *AuditTrimHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := h.store.TrimAudit(ctx, models.MaxAuditEntries); err != nil {
		return err
	}
	h.logger.Info("audit trim complete", slog.Int("cap", models.MaxAuditEntries))
	return nil
}
