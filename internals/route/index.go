package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"kvtogether_backend/internals/configs"
	"kvtogether_backend/internals/constants"
	campaignSvc "kvtogether_backend/internals/features/campaigns/campaigns/service"
	donationSvc "kvtogether_backend/internals/features/donations/donations/service"
	walletSvc "kvtogether_backend/internals/features/wallets/service"
	"kvtogether_backend/internals/logging"
	authMiddleware "kvtogether_backend/internals/middlewares/auth"
	routeDetails "kvtogether_backend/internals/route/details"
)

var startTime time.Time

// Deps carries the shared services every route group is built from.
type Deps struct {
	DB        *gorm.DB
	Config    *configs.Config
	Campaigns *campaignSvc.CampaignService
	Donations *donationSvc.DonationService
	Wallets   *walletSvc.WalletService
}

func SetupRoutes(app *fiber.App, d Deps) {
	startTime = time.Now()
	log := logging.WithComponent("routes")

	BaseRoutes(app, d.DB, d.Config.App.Environment)

	jwt := authMiddleware.AuthJWT(authMiddleware.AuthJWTOpts{
		Secret:              d.Config.Auth.JWTSecret,
		AllowCookieFallback: true,
	})

	// ===================== GROUPS =====================
	log.Info().Msg("setting up PUBLIC group")
	public := app.Group("/api/public")

	log.Info().Msg("setting up USER group")
	user := app.Group("/api/u", jwt)

	log.Info().Msg("setting up ADMIN group (auth + role check)")
	admin := app.Group("/api/a",
		jwt,
		authMiddleware.OnlyRoles(constants.RoleErrorAdmin("the admin console"), constants.AdminOnly...),
	)

	// ===================== MOUNT ROUTES =====================
	log.Info().Msg("mounting campaign routes")
	routeDetails.CampaignPublicRoutes(public, d.Campaigns)
	routeDetails.CampaignUserRoutes(user, d.Campaigns)
	routeDetails.CampaignAdminRoutes(admin, d.Campaigns)

	log.Info().Msg("mounting donation routes")
	routeDetails.DonationPublicRoutes(public, d.Donations)
	routeDetails.DonationUserRoutes(user, d.Donations)
	routeDetails.DonationAdminRoutes(admin, d.Donations)

	log.Info().Msg("mounting wallet routes")
	routeDetails.WalletUserRoutes(user, d.Wallets)
	routeDetails.WalletAdminRoutes(admin, d.Wallets)
}
