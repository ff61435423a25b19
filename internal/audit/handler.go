package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stocklane/stocklane/internal/platform/httpx"
)

// Handler exposes the audit trail.
type Handler struct {
	logger *slog.Logger
	audit  *Logger
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, auditLog *Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, audit: auditLog}
}

// MountRoutes registers audit routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.GetLog(r.Context())
	if err != nil {
		h.logger.Error("list audit log", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}
