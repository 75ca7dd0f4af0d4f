package controller

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"kvtogether_backend/internals/features/wallets/dto"
	"kvtogether_backend/internals/features/wallets/service"
	helper "kvtogether_backend/internals/helpers"
	"kvtogether_backend/internals/logging"
)

type WalletController struct {
	Wallets *service.WalletService
}

func NewWalletController(wallets *service.WalletService) *WalletController {
	return &WalletController{Wallets: wallets}
}

// GET /api/u/wallet?limit=
func (h *WalletController) Mine(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	sum, err := h.Wallets.Get(c.UserContext(), userID, limit)
	if err != nil {
		logging.Ctx(c.UserContext()).Error().Err(err).Msg("load wallet")
		return helper.JsonError(c, fiber.StatusInternalServerError, "failed to load wallet")
	}
	return helper.JsonOK(c, "ok", sum)
}

// POST /api/a/wallets/:user_id/top-up
// The reference makes the top-up safe to resubmit.
func (h *WalletController) TopUp(c *fiber.Ctx) error {
	userID, err := helper.ParseUUIDParam(c, "user_id")
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	var req dto.TopUpRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid payload")
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if err := helper.Validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}

	row, created, err := h.Wallets.Credit(c.UserContext(), service.Movement{
		UserID:      userID,
		Amount:      req.Amount,
		Reference:   "topup:" + req.Reference,
		Description: req.Description,
	})
	switch {
	case errors.Is(err, service.ErrReferenceMismatch):
		return helper.JsonError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrReferenceRequired):
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	case err != nil:
		logging.Ctx(c.UserContext()).Error().Err(err).Str("user_id", userID.String()).Msg("wallet top-up")
		return helper.JsonError(c, fiber.StatusInternalServerError, "failed to top up wallet")
	}
	if !created {
		return helper.JsonOK(c, "top-up already applied", row)
	}
	return helper.JsonCreated(c, "wallet topped up", row)
}
