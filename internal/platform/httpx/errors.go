package httpx

import (
	"errors"
	"net/http"

	"github.com/stocklane/stocklane/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var (
		verr  *shared.ValidationError
		nferr *shared.NotFoundError
		serr  *shared.InsufficientStockError
	)
	switch {
	case errors.As(err, &verr):
		ProblemFields(w, http.StatusBadRequest, "Validation Failed", verr.Error(), verr.Fields)
	case errors.As(err, &nferr), errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.As(err, &serr):
		ProblemFields(w, http.StatusConflict, "Insufficient Stock", serr.Error(), map[string]string{
			"productId":   serr.ProductID,
			"productName": serr.ProductName,
		})
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
