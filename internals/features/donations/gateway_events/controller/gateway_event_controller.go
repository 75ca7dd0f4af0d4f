package controller

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"kvtogether_backend/internals/features/donations/gateway_events/model"
	"kvtogether_backend/internals/features/donations/gateway_events/service"
	helper "kvtogether_backend/internals/helpers"
)

type GatewayEventController struct {
	Events *service.GatewayEventService
}

func NewGatewayEventController(events *service.GatewayEventService) *GatewayEventController {
	return &GatewayEventController{Events: events}
}

// GET /api/a/payment-gateway-events?status=&donation_id=&order_id=
func (h *GatewayEventController) List(c *fiber.Ctx) error {
	p := helper.ResolvePaging(c, 20, 200)
	f := service.ListFilter{
		Status:     strings.TrimSpace(c.Query("status")),
		ExternalID: strings.TrimSpace(c.Query("order_id")),
		Limit:      p.Limit,
		Offset:     p.Offset,
	}
	if raw := strings.TrimSpace(c.Query("donation_id")); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "donation_id is not a valid UUID")
		}
		f.DonationID = &id
	}

	rows, total, err := h.Events.List(c.UserContext(), f)
	if err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "failed to list gateway events")
	}
	if rows == nil {
		rows = []model.GatewayEvent{}
	}
	return helper.JsonList(c, "ok", rows, helper.BuildPagination(total, p, rows))
}

// GET /api/a/payment-gateway-events/:id
func (h *GatewayEventController) Get(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return helper.FromFiberError(c, err)
	}
	ev, err := h.Events.Get(c.UserContext(), id)
	if errors.Is(err, service.ErrEventNotFound) {
		return helper.JsonError(c, fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return helper.JsonError(c, fiber.StatusInternalServerError, "failed to load gateway event")
	}
	return helper.JsonOK(c, "ok", ev)
}
