package analytics

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/stocklane/stocklane/internal/platform/httpx"
)

const (
	defaultTopLimit       = 10
	defaultTrendingWindow = 7
	defaultTrendingUnits  = 5
)

// Handler serves the read-only analytics endpoints.
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

// MountRoutes registers analytics routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/low-stock", h.handleLowStock)
	r.Get("/out-of-stock", h.handleOutOfStock)
	r.Get("/top-selling", h.handleTopSelling)
	r.Get("/trending", h.handleTrending)
	r.Get("/profit-series", h.handleProfitSeries)
}

// queryInt reads an integer query parameter, falling back on absence or junk.
func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func (h *Handler) handleLowStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.LowStockProducts(r.Context())
	if err != nil {
		h.logger.Error("low stock report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) handleOutOfStock(w http.ResponseWriter, r *http.Request) {
	products, err := h.service.OutOfStockProducts(r.Context())
	if err != nil {
		h.logger.Error("out of stock report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, products)
}

func (h *Handler) handleTopSelling(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultTopLimit)
	summaries, err := h.service.TopSellingProducts(r.Context(), limit)
	if err != nil {
		h.logger.Error("top selling report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleTrending(w http.ResponseWriter, r *http.Request) {
	window := queryInt(r, "windowDays", defaultTrendingWindow)
	minUnits := queryInt(r, "minUnits", defaultTrendingUnits)
	summaries, err := h.service.TrendingProducts(r.Context(), window, minUnits)
	if err != nil {
		h.logger.Error("trending report", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaries)
}

func (h *Handler) handleProfitSeries(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.ProfitSeriesAll(r.Context())
	if err != nil {
		h.logger.Error("profit series", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, points)
}
