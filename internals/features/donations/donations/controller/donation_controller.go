package controller

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	campaignCtl "kvtogether_backend/internals/features/campaigns/campaigns/controller"
	"kvtogether_backend/internals/features/donations/donations/dto"
	"kvtogether_backend/internals/features/donations/donations/model"
	"kvtogether_backend/internals/features/donations/donations/service"
	walletsvc "kvtogether_backend/internals/features/wallets/service"
	helper "kvtogether_backend/internals/helpers"
	"kvtogether_backend/internals/logging"
)

type DonationController struct {
	Donations *service.DonationService
}

func NewDonationController(donations *service.DonationService) *DonationController {
	return &DonationController{Donations: donations}
}

var donationSorts = map[string]string{
	"created_at": "created_at",
	"amount":     "amount",
	"paid_at":    "paid_at",
}

func writeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrDonationNotFound):
		return helper.JsonError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, walletsvc.ErrInsufficientBalance):
		return helper.JsonErrorWithData(c, fiber.StatusBadRequest, "INSUFFICIENT_BALANCE", err.Error(), nil)
	case errors.Is(err, service.ErrWalletNeedsAccount):
		return helper.JsonError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, service.ErrUnknownMethod),
		errors.Is(err, service.ErrWrongPaymentMethod):
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrDonationNotPending):
		return helper.JsonError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrGatewayUnavailable):
		return helper.JsonError(c, fiber.StatusServiceUnavailable, err.Error())
	default:
		return campaignCtl.WriteError(c, err)
	}
}

func (h *DonationController) create(c *fiber.Ctx, donorID *uuid.UUID) error {
	campaignID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req dto.CreateDonationRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := helper.Validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	res, err := h.Donations.CreateDonation(c.UserContext(), req.ToInput(campaignID, donorID))
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonCreated(c, "donation created", dto.NewCreateDonationResponse(res))
}

func (h *DonationController) list(c *fiber.Ctx, f service.ListFilter, private bool) error {
	p := helper.ResolvePaging(c, 20, 100)
	f.Order = p.OrderClause(donationSorts, "created_at")
	f.Limit, f.Offset = p.Limit, p.Offset
	rows, total, err := h.Donations.List(c.UserContext(), f)
	if err != nil {
		return writeError(c, err)
	}
	items := dto.NewDonationResponses(rows, private)
	return helper.JsonList(c, "ok", items, helper.BuildPagination(total, p, items))
}

/* ================= Public ================= */

// POST /api/public/campaigns/:id/donations
// Guests may pay by Midtrans or bank transfer only; the service refuses
// wallet payments without a donor.
func (h *DonationController) GuestCreate(c *fiber.Ctx) error {
	return h.create(c, nil)
}

// GET /api/public/campaigns/:id/donations
func (h *DonationController) CampaignDonations(c *fiber.Ctx) error {
	campaignID, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	return h.list(c, service.ListFilter{CampaignID: &campaignID, Status: model.DonationStatusCompleted}, false)
}

// GET /api/public/donations/by-order/:order_id
func (h *DonationController) GetByOrder(c *fiber.Ctx) error {
	orderID := strings.TrimSpace(c.Params("order_id"))
	if orderID == "" {
		return helper.JsonError(c, fiber.StatusBadRequest, "order_id is required")
	}
	d, err := h.Donations.GetByOrderID(c.UserContext(), orderID)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.NewDonationResponse(&d, false))
}

// POST /api/public/donations/midtrans/webhook
// Midtrans redelivers anything but 200. Settled business outcomes answer 200;
// a notification that could not be stored or applied answers 5xx.
func (h *DonationController) MidtransWebhook(c *fiber.Ctx) error {
	raw := append([]byte(nil), c.Body()...)

	headers := map[string]string{}
	c.Request().Header.VisitAll(func(k, v []byte) {
		headers[string(k)] = string(v)
	})

	var form map[string]string
	if strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEApplicationForm) {
		form = map[string]string{}
		c.Request().PostArgs().VisitAll(func(k, v []byte) {
			form[string(k)] = string(v)
		})
	}

	n, err := service.ParseNotification(raw, form)
	if err != nil {
		logging.Ctx(c.UserContext()).Warn().Err(err).Msg("unreadable payment notification")
		return helper.JsonError(c, fiber.StatusBadRequest, err.Error())
	}

	res, err := h.Donations.HandleNotification(c.UserContext(), raw, headers, n)
	switch {
	case errors.Is(err, service.ErrInvalidSignature):
		return helper.JsonError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrNotApplied):
		status := fiber.StatusInternalServerError
		if errors.Is(err, service.ErrGatewayUnavailable) {
			status = fiber.StatusServiceUnavailable
		}
		return helper.JsonError(c, status, "notification not applied, please retry")
	case err != nil:
		return helper.JsonOK(c, "notification recorded with warning: "+err.Error(), res)
	}
	return helper.JsonOK(c, "notification processed", res)
}

/* ================= User ================= */

// POST /api/u/campaigns/:id/donations
func (h *DonationController) UserCreate(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return writeError(c, err)
	}
	return h.create(c, &userID)
}

// GET /api/u/donations
func (h *DonationController) Mine(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return writeError(c, err)
	}
	return h.list(c, service.ListFilter{DonorID: &userID, Status: model.DonationStatus(c.Query("status"))}, true)
}

/* ================= Admin ================= */

// GET /api/a/donations?campaign_id=&donor_id=&status=&method=
func (h *DonationController) AdminList(c *fiber.Ctx) error {
	f := service.ListFilter{
		Status: model.DonationStatus(strings.TrimSpace(c.Query("status"))),
		Method: model.PaymentMethod(strings.TrimSpace(c.Query("method"))),
	}
	for key, dst := range map[string]**uuid.UUID{"campaign_id": &f.CampaignID, "donor_id": &f.DonorID} {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, key+" is not a valid UUID")
		}
		*dst = &id
	}
	return h.list(c, f, true)
}

// GET /api/a/donations/reviews
func (h *DonationController) Reviews(c *fiber.Ctx) error {
	return h.list(c, service.ListFilter{Status: model.DonationStatusNeedsReview}, true)
}

// GET /api/a/donations/:id
func (h *DonationController) AdminGet(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	d, err := h.Donations.Get(c.UserContext(), id)
	if err != nil {
		return writeError(c, err)
	}
	return helper.JsonOK(c, "ok", dto.NewDonationResponse(&d, true))
}

// POST /api/a/donations/:id/verify-bank-transfer
func (h *DonationController) VerifyBankTransfer(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	var req dto.VerifyBankTransferRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := helper.Validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	res, err := h.Donations.VerifyBankTransfer(c.UserContext(), id, req.ReceivedAmount)
	if err != nil {
		return writeError(c, err)
	}
	msg := "donation completed"
	switch {
	case res.Duplicate:
		msg = "donation was already completed"
	case res.NeedsReview:
		msg = "transfer recorded for manual review"
	}
	return helper.JsonUpdated(c, msg, dto.NewCompleteDonationResponse(res))
}
