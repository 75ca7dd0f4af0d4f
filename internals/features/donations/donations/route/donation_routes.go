package routes

import (
	"github.com/gofiber/fiber/v2"

	donationCtl "kvtogether_backend/internals/features/donations/donations/controller"
	rateLimiter "kvtogether_backend/internals/middlewares"
)

// Mounted under /api/public, no auth. The notification endpoint is
// authenticated by its signature.
func DonationPublicRoutes(r fiber.Router, ctl *donationCtl.DonationController) {
	r.Get("/campaigns/:id/donations", ctl.CampaignDonations)
	r.Post("/campaigns/:id/donations", rateLimiter.DonationRateLimiter(), ctl.GuestCreate)

	g := r.Group("/donations")
	g.Post("/midtrans/webhook", ctl.MidtransWebhook)
	g.Get("/by-order/:order_id", ctl.GetByOrder)
}

// Mounted under /api/u, behind AuthJWT.
func DonationUserRoutes(r fiber.Router, ctl *donationCtl.DonationController) {
	r.Post("/campaigns/:id/donations", rateLimiter.DonationRateLimiter(), ctl.UserCreate)
	r.Get("/donations", ctl.Mine)
}

// Mounted under /api/a, behind AuthJWT and the admin role guard.
func DonationAdminRoutes(r fiber.Router, ctl *donationCtl.DonationController) {
	g := r.Group("/donations")
	g.Get("/", ctl.AdminList)
	g.Get("/reviews", ctl.Reviews)
	g.Get("/:id", ctl.AdminGet)
	g.Post("/:id/verify-bank-transfer", ctl.VerifyBankTransfer)
}
