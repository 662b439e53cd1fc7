package controller

import (
	"context"
	"errors"
	"net/http"

	inErrors "github.com/pratama/storefront/internal/errors"
	inHttp "github.com/pratama/storefront/internal/http"
)

// writeError maps the engine error taxonomy onto HTTP semantics. Validation
// and integrity failures disable submit client-side; transient failures carry
// an explicit retry affordance and are never auto-retried for submissions;
// gateway-ambiguous outcomes stay pending until authoritative status is known.
func writeError(c context.Context, w http.ResponseWriter, err error) {
	statusCode := http.StatusInternalServerError
	body := map[string]interface{}{
		"status":  "failed",
		"message": err.Error(),
	}

	switch {
	case errors.Is(err, inErrors.ErrValidation):
		statusCode = http.StatusBadRequest
		body["retryable"] = false
	case errors.Is(err, inErrors.ErrIntegrity):
		statusCode = http.StatusUnprocessableEntity
		body["retryable"] = false
	case errors.Is(err, inErrors.ErrItemNotFound),
		errors.Is(err, inErrors.ErrOrderNotFound):
		statusCode = http.StatusNotFound
	case errors.Is(err, inErrors.ErrSubmissionInFlight),
		errors.Is(err, inErrors.ErrOrderNotCancelable):
		statusCode = http.StatusConflict
	case errors.Is(err, inErrors.ErrServerRejection):
		statusCode = http.StatusUnprocessableEntity
	case errors.Is(err, inErrors.ErrGatewayAmbiguous):
		statusCode = http.StatusAccepted
		body["status"] = "pending"
	case errors.Is(err, inErrors.ErrTransient):
		statusCode = http.StatusBadGateway
		body["retryable"] = true
	}

	body["statusCode"] = statusCode
	inHttp.WriteJsonResponse(c, w, map[string]string{}, body)
}
