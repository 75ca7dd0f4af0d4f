package controller

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"kvtogether_backend/internals/features/campaigns/campaigns/service"
	"kvtogether_backend/internals/features/campaigns/funding"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	helper "kvtogether_backend/internals/helpers"
	"kvtogether_backend/internals/logging"
)

// RejectionDetails is returned alongside a declined donation so the client
// can offer the maximum the campaign still accepts.
type RejectionDetails struct {
	Requested   int64 `json:"requested"`
	MaxAccepted int64 `json:"max_accepted"`
	Minimum     int64 `json:"minimum,omitempty"`
}

func rejectionCode(err error) string {
	switch {
	case errors.Is(err, funding.ErrExceedsMaximum):
		return "EXCEEDS_MAXIMUM"
	case errors.Is(err, funding.ErrAlreadyFunded):
		return "ALREADY_FUNDED"
	case errors.Is(err, funding.ErrCeilingReached):
		return "CEILING_REACHED"
	case errors.Is(err, funding.ErrBelowMinimum):
		return "BELOW_MINIMUM"
	case errors.Is(err, funding.ErrCampaignEnded):
		return "CAMPAIGN_ENDED"
	case errors.Is(err, funding.ErrInvalidAmount):
		return "INVALID_AMOUNT"
	default:
		return "DONATION_REJECTED"
	}
}

// WriteError maps ledger and lifecycle errors to the JSON envelope.
func WriteError(c *fiber.Ctx, err error) error {
	var (
		rej *funding.RejectionError
		fe  *fiber.Error
	)
	switch {
	case errors.As(err, &rej):
		return helper.JsonErrorWithData(c, fiber.StatusBadRequest, rejectionCode(err), rej.Error(), RejectionDetails{
			Requested:   rej.Requested,
			MaxAccepted: rej.MaxAccepted,
			Minimum:     rej.Minimum,
		})
	case errors.As(err, &fe):
		return helper.JsonError(c, fe.Code, fe.Message)
	case errors.Is(err, funding.ErrInvalidAmount):
		return helper.JsonErrorWithData(c, fiber.StatusBadRequest, "INVALID_AMOUNT", err.Error(), nil)
	case errors.Is(err, funding.ErrTargetTooLarge):
		return helper.JsonValidationError(c, map[string][]string{"target_amount": {"lte"}})
	case errors.Is(err, service.ErrCampaignNotFound):
		return helper.JsonError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		return helper.JsonError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrEndDatePassed):
		return helper.JsonValidationError(c, map[string][]string{"end_date": {"future"}})
	case errors.Is(err, funding.ErrInvalidState),
		errors.Is(err, lifecycle.ErrInvalidTransition),
		errors.Is(err, service.ErrNotEditable),
		errors.Is(err, service.ErrNotCancelled),
		errors.Is(err, service.ErrStatusChanged),
		errors.Is(err, funding.ErrConcurrencyConflict),
		errors.Is(err, funding.ErrDuplicateReconciliation):
		return helper.JsonError(c, fiber.StatusConflict, err.Error())
	default:
		logging.Ctx(c.UserContext()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
		return helper.JsonError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
