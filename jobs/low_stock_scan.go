package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/stocklane/stocklane/internal/analytics"
)

// LowStockScanHandler reports products at or under their reorder threshold.
type LowStockScanHandler struct {
	analytics *analytics.Service
	logger    *slog.Logger
}

// NewLowStockScanHandler builds the handler.
func NewLowStockScanHandler(svc *analytics.Service, logger *slog.Logger) *LowStockScanHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LowStockScanHandler{analytics: svc, logger: logger}
}

// Handle processes TaskLowStockScan tasks.
func (h *LowStockScanHandler) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	low, err := h.analytics.LowStockProducts(ctx)
	if err != nil {
		return err
	}
	out, err := h.analytics.OutOfStockProducts(ctx)
	if err != nil {
		return err
	}
	for _, p := range out {
		h.logger.Warn("product out of stock",
			slog.String("product_id", p.ID),
			slog.String("name", p.Name),
			slog.String("sku", p.SKU))
	}
	for _, p := range low {
		h.logger.Warn("product low on stock",
			slog.String("product_id", p.ID),
			slog.String("name", p.Name),
			slog.Int("quantity", p.Quantity),
			slog.Int("threshold", p.LowStockThreshold))
	}
	h.logger.Info("low stock scan complete",
		slog.Int("low", len(low)),
		slog.Int("out", len(out)))
	return nil
}
