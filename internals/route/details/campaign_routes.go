package details

import (
	"github.com/gofiber/fiber/v2"

	campaignCtl "kvtogether_backend/internals/features/campaigns/campaigns/controller"
	campaignRoute "kvtogether_backend/internals/features/campaigns/campaigns/route"
	campaignSvc "kvtogether_backend/internals/features/campaigns/campaigns/service"
)

func CampaignPublicRoutes(public fiber.Router, svc *campaignSvc.CampaignService) {
	campaignRoute.CampaignPublicRoutes(public, campaignCtl.NewCampaignController(svc))
}

func CampaignUserRoutes(user fiber.Router, svc *campaignSvc.CampaignService) {
	campaignRoute.CampaignUserRoutes(user, campaignCtl.NewCampaignController(svc))
}

func CampaignAdminRoutes(admin fiber.Router, svc *campaignSvc.CampaignService) {
	campaignRoute.CampaignAdminRoutes(admin, campaignCtl.NewCampaignController(svc))
}
