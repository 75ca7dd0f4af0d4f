package details

import (
	"github.com/gofiber/fiber/v2"

	donationCtl "kvtogether_backend/internals/features/donations/donations/controller"
	donationRoute "kvtogether_backend/internals/features/donations/donations/route"
	donationSvc "kvtogether_backend/internals/features/donations/donations/service"
	gatewayCtl "kvtogether_backend/internals/features/donations/gateway_events/controller"
	gatewayRoute "kvtogether_backend/internals/features/donations/gateway_events/route"
)

func DonationPublicRoutes(public fiber.Router, svc *donationSvc.DonationService) {
	donationRoute.DonationPublicRoutes(public, donationCtl.NewDonationController(svc))
}

func DonationUserRoutes(user fiber.Router, svc *donationSvc.DonationService) {
	donationRoute.DonationUserRoutes(user, donationCtl.NewDonationController(svc))
}

func DonationAdminRoutes(admin fiber.Router, svc *donationSvc.DonationService) {
	donationRoute.DonationAdminRoutes(admin, donationCtl.NewDonationController(svc))
	gatewayRoute.GatewayEventAdminRoutes(admin, gatewayCtl.NewGatewayEventController(svc.GatewayEvents))
}
