package ledger

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stocklane/stocklane/internal/models"
	"github.com/stocklane/stocklane/internal/platform/httpx"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/validate"
)

// Handler serves the manual stock adjustment endpoint.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/adjust", h.handleAdjust)
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var in validate.StockAdjustmentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", "request body is not valid JSON")
		return
	}
	if res := validate.StockAdjustment(in); !res.Valid {
		httpx.RespondError(w, &shared.ValidationError{Fields: res.Errors})
		return
	}
	var (
		product models.Product
		err     error
	)
	if in.Delta != nil {
		product, err = h.service.AdjustBy(r.Context(), in.ProductID, *in.Delta, "Manual:"+in.Reason)
	} else {
		product, err = h.service.Adjust(r.Context(), in.ProductID, *in.Quantity, "Manual:"+in.Reason)
	}
	if err != nil {
		if errors.Is(err, ErrNegativeQuantity) {
			httpx.RespondError(w, shared.NewValidationError("quantity", "must not be negative"))
			return
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}
