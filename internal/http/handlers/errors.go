package handlers

import (
	"errors"
	"log/slog"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/companion-api/internal/service"
)

// genericErrorMessage is shown for unexpected failures. Internal details stay in the logs.
const genericErrorMessage = "Something went wrong, please try again later."

// toHTTPError maps a service error to a Huma status error.
func toHTTPError(logger *slog.Logger, op string, err error) error {
	var cfgErr *service.ConfigurationError
	switch {
	case errors.As(err, &cfgErr):
		if errors.Is(cfgErr.Kind, service.ErrMissingLimits) {
			logger.Error(op+" failed", "error", err)
			return huma.Error500InternalServerError(genericErrorMessage)
		}
		return huma.Error400BadRequest(cfgErr.Error())
	case errors.Is(err, service.ErrInvalidArgument):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, service.ErrDuplicatePayment):
		return huma.Error409Conflict("payment already applied")
	case errors.Is(err, service.ErrTrialNotEligible):
		return huma.Error403Forbidden(err.Error())
	default:
		logger.Error(op+" failed", "error", err)
		return huma.Error500InternalServerError(genericErrorMessage)
	}
}
