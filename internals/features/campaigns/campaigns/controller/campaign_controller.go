package controller

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"kvtogether_backend/internals/constants"
	"kvtogether_backend/internals/features/campaigns/campaigns/dto"
	"kvtogether_backend/internals/features/campaigns/campaigns/model"
	"kvtogether_backend/internals/features/campaigns/campaigns/service"
	"kvtogether_backend/internals/features/campaigns/lifecycle"
	helper "kvtogether_backend/internals/helpers"
)

type CampaignController struct {
	Campaigns *service.CampaignService
}

func NewCampaignController(campaigns *service.CampaignService) *CampaignController {
	return &CampaignController{Campaigns: campaigns}
}

var publicStatuses = []lifecycle.State{lifecycle.Active, lifecycle.Completed, lifecycle.EndedPartial}

var campaignSorts = map[string]string{
	"created_at":     "created_at",
	"end_date":       "end_date",
	"target_amount":  "target_amount",
	"current_amount": "current_amount",
}

/* ================= Helpers ================= */

func actorFrom(c *fiber.Ctx) (service.Actor, error) {
	id, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return service.Actor{}, err
	}
	return service.Actor{ID: id, Admin: constants.IsAdmin(helper.GetUserRole(c))}, nil
}

func parseStatuses(raw string) ([]lifecycle.State, error) {
	var out []lifecycle.State
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		st, err := lifecycle.ParseState(part)
		if err != nil {
			return nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		out = append(out, st)
	}
	return out, nil
}

func (h *CampaignController) list(c *fiber.Ctx, allowed []lifecycle.State, organizer *uuid.UUID) error {
	p := helper.ResolvePaging(c, 20, 100)

	statuses, err := parseStatuses(c.Query("status"))
	if err != nil {
		return WriteError(c, err)
	}
	if len(statuses) == 0 {
		statuses = allowed
	} else if allowed != nil {
		for _, st := range statuses {
			if !containsState(allowed, st) {
				return helper.JsonError(c, fiber.StatusBadRequest, "status filter not allowed here")
			}
		}
	}

	rows, total, err := h.Campaigns.List(c.UserContext(), service.ListFilter{
		Statuses:    statuses,
		OrganizerID: organizer,
		Query:       strings.TrimSpace(c.Query("q")),
		Order:       p.OrderClause(campaignSorts, "created_at"),
		Limit:       p.Limit,
		Offset:      p.Offset,
	})
	if err != nil {
		return WriteError(c, err)
	}
	items := dto.NewCampaignResponses(rows)
	return helper.JsonList(c, "ok", items, helper.BuildPagination(total, p, items))
}

func containsState(list []lifecycle.State, st lifecycle.State) bool {
	for _, s := range list {
		if s == st {
			return true
		}
	}
	return false
}

/* ================= Public ================= */

// GET /api/public/campaigns
func (h *CampaignController) PublicList(c *fiber.Ctx) error {
	return h.list(c, publicStatuses, nil)
}

// GET /api/public/campaigns/:id
func (h *CampaignController) PublicGet(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	m, err := h.Campaigns.Get(c.UserContext(), id)
	if err != nil {
		return WriteError(c, err)
	}
	if !containsState(publicStatuses, m.Status) {
		return helper.JsonError(c, fiber.StatusNotFound, service.ErrCampaignNotFound.Error())
	}
	return helper.JsonOK(c, "ok", dto.NewCampaignResponse(&m))
}

// GET /api/public/campaigns/:id/funding?amount=
func (h *CampaignController) Funding(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var requested *int64
	if raw := strings.TrimSpace(c.Query("amount")); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "amount must be an integer")
		}
		requested = &n
	}
	sum, err := h.Campaigns.FundingSummary(c.UserContext(), id, requested)
	if err != nil {
		return WriteError(c, err)
	}
	return helper.JsonOK(c, "ok", sum)
}

/* ================= Organizer ================= */

// GET /api/u/campaigns
func (h *CampaignController) Mine(c *fiber.Ctx) error {
	userID, err := helper.GetUserIDFromToken(c)
	if err != nil {
		return WriteError(c, err)
	}
	return h.list(c, nil, &userID)
}

// POST /api/u/campaigns
func (h *CampaignController) Create(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return WriteError(c, err)
	}
	var req dto.CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := helper.Validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	m := req.ToModel()
	if err := h.Campaigns.Create(c.UserContext(), actor.ID, m); err != nil {
		return WriteError(c, err)
	}
	return helper.JsonCreated(c, "campaign created", dto.NewCampaignResponse(m))
}

// PATCH /api/u/campaigns/:id
func (h *CampaignController) Update(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var req dto.UpdateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := helper.Validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	m, err := h.Campaigns.Update(c.UserContext(), actor, id, req.ToUpdates())
	if err != nil {
		return WriteError(c, err)
	}
	return helper.JsonUpdated(c, "campaign updated", dto.NewCampaignResponse(&m))
}

// POST /api/u/campaigns/:id/submit
func (h *CampaignController) Submit(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	m, err := h.Campaigns.Submit(c.UserContext(), actor, id)
	if err != nil {
		return WriteError(c, err)
	}
	return helper.JsonUpdated(c, "campaign submitted for review", dto.NewCampaignResponse(&m))
}

// POST /api/u/campaigns/:id/cancel and /api/a/campaigns/:id/cancel
func (h *CampaignController) Cancel(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return WriteError(c, err)
	}
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var req dto.CancelCampaignRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return helper.JsonError(c, fiber.StatusBadRequest, "invalid payload")
		}
		if err := helper.Validate.Struct(req); err != nil {
			return helper.ValidationError(c, err)
		}
	}
	m, report, err := h.Campaigns.Cancel(c.UserContext(), actor, id, strings.TrimSpace(req.Reason))
	if err != nil {
		return WriteError(c, err)
	}
	return helper.JsonUpdated(c, "campaign cancelled", fiber.Map{
		"campaign": dto.NewCampaignResponse(&m),
		"refunds":  report,
	})
}

/* ================= Admin ================= */

// GET /api/a/campaigns
func (h *CampaignController) AdminList(c *fiber.Ctx) error {
	return h.list(c, nil, nil)
}

// POST /api/a/campaigns/:id/approve
func (h *CampaignController) Approve(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	m, err := h.Campaigns.Approve(c.UserContext(), id)
	if err != nil {
		return WriteError(c, err)
	}
	return helper.JsonUpdated(c, "campaign approved", dto.NewCampaignResponse(&m))
}

// POST /api/a/campaigns/:id/reject
func (h *CampaignController) Reject(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	var req dto.RejectCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return helper.JsonError(c, fiber.StatusBadRequest, "invalid payload")
	}
	if err := helper.Validate.Struct(req); err != nil {
		return helper.ValidationError(c, err)
	}
	m, err := h.Campaigns.Reject(c.UserContext(), id, strings.TrimSpace(req.Reason))
	if err != nil {
		return WriteError(c, err)
	}
	return helper.JsonUpdated(c, "campaign rejected", dto.NewCampaignResponse(&m))
}

// POST /api/a/campaigns/:id/refund
func (h *CampaignController) Refund(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	report, err := h.Campaigns.Refund(c.UserContext(), id)
	if err != nil {
		return WriteError(c, err)
	}
	return helper.JsonOK(c, "refunds applied", report)
}

// POST /api/a/campaigns/expire
func (h *CampaignController) Expire(c *fiber.Ctx) error {
	report, err := h.Campaigns.Expire(c.UserContext(), h.Campaigns.Now())
	if err != nil {
		return WriteError(c, err)
	}
	return helper.JsonOK(c, "expiry sweep finished", report)
}

// GET /api/a/campaigns/:id/ledger
func (h *CampaignController) Ledger(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	p := helper.ResolvePaging(c, 50, 500)
	rows, total, err := h.Campaigns.Ledger(c.UserContext(), id, p.Limit, p.Offset)
	if err != nil {
		return WriteError(c, err)
	}
	if rows == nil {
		rows = []model.CampaignReconciliation{}
	}
	return helper.JsonList(c, "ok", rows, helper.BuildPagination(total, p, rows))
}

// GET /api/a/campaigns/:id/invariant
func (h *CampaignController) Invariant(c *fiber.Ctx) error {
	id, err := helper.ParseUUIDParam(c, "id")
	if err != nil {
		return WriteError(c, err)
	}
	report, err := h.Campaigns.VerifyInvariant(c.UserContext(), id)
	if err != nil {
		return WriteError(c, err)
	}
	return helper.JsonOK(c, "ok", report)
}
