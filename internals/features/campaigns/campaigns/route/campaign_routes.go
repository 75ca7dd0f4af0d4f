package routes

import (
	"github.com/gofiber/fiber/v2"

	campaignCtl "kvtogether_backend/internals/features/campaigns/campaigns/controller"
)

// Mounted under /api/public, no auth.
func CampaignPublicRoutes(r fiber.Router, ctl *campaignCtl.CampaignController) {
	g := r.Group("/campaigns")
	g.Get("/", ctl.PublicList)
	g.Get("/:id", ctl.PublicGet)
	g.Get("/:id/funding", ctl.Funding)
}

// Mounted under /api/u, behind AuthJWT.
func CampaignUserRoutes(r fiber.Router, ctl *campaignCtl.CampaignController) {
	g := r.Group("/campaigns")
	g.Get("/", ctl.Mine)
	g.Post("/", ctl.Create)
	g.Patch("/:id", ctl.Update)
	g.Post("/:id/submit", ctl.Submit)
	g.Post("/:id/cancel", ctl.Cancel)
}

// Mounted under /api/a, behind AuthJWT and the admin role guard.
func CampaignAdminRoutes(r fiber.Router, ctl *campaignCtl.CampaignController) {
	g := r.Group("/campaigns")
	g.Get("/", ctl.AdminList)
	g.Post("/expire", ctl.Expire)
	g.Post("/:id/approve", ctl.Approve)
	g.Post("/:id/reject", ctl.Reject)
	g.Post("/:id/cancel", ctl.Cancel)
	g.Post("/:id/refund", ctl.Refund)
	g.Get("/:id/ledger", ctl.Ledger)
	g.Get("/:id/invariant", ctl.Invariant)
}
