package routes

import (
	"github.com/gofiber/fiber/v2"

	eventCtl "kvtogether_backend/internals/features/donations/gateway_events/controller"
)

// Mounted under /api/a.
func GatewayEventAdminRoutes(r fiber.Router, ctl *eventCtl.GatewayEventController) {
	g := r.Group("/payment-gateway-events")
	g.Get("/", ctl.List)
	g.Get("/:id", ctl.Get)
}
