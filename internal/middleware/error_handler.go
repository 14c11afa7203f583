package middleware

import (
	"shard-exchange/internal/domain"
	"shard-exchange/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var statusByErr = []struct {
	err  error
	code int
}{
	{domain.ErrNotFound, fiber.StatusNotFound},
	{domain.ErrNotAuthorized, fiber.StatusForbidden},
	{domain.ErrOfferAlreadyResolved, fiber.StatusConflict},
	{domain.ErrAlreadyInitialized, fiber.StatusConflict},
	{domain.ErrOfferNotEligibleForAlternative, fiber.StatusConflict},
	{domain.ErrOfferExpired, fiber.StatusConflict},
	{domain.ErrIssuerExists, fiber.StatusConflict},
	{domain.ErrInsufficientBalance, fiber.StatusBadRequest},
	{domain.ErrInsufficientAvailableShares, fiber.StatusBadRequest},
	{domain.ErrInvalidInput, fiber.StatusBadRequest},
	{domain.ErrInvalidAmount, fiber.StatusBadRequest},
	{domain.ErrInvalidPrice, fiber.StatusBadRequest},
	{domain.ErrSameHolder, fiber.StatusBadRequest},
}

// ErrorHandler is the global error handler. Domain errors become 4xx with their message;
// anything unrecognised is logged and hidden behind a 500.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return response.Error(c, fe.Message, fe.Code, nil)
	}

	for _, m := range statusByErr {
		if errors.Is(err, m.err) {
			return response.Error(c, err.Error(), m.code, nil)
		}
	}

	log.Error().Err(err).Str("trace_id", GetTraceID(c)).Str("path", c.Path()).Msg("unhandled error")
	return response.Error(c, "Internal Server Error", fiber.StatusInternalServerError, nil)
}
