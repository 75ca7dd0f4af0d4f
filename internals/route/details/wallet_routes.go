package details

import (
	"github.com/gofiber/fiber/v2"

	walletCtl "kvtogether_backend/internals/features/wallets/controller"
	walletRoute "kvtogether_backend/internals/features/wallets/route"
	walletSvc "kvtogether_backend/internals/features/wallets/service"
)

func WalletUserRoutes(user fiber.Router, svc *walletSvc.WalletService) {
	walletRoute.WalletUserRoutes(user, walletCtl.NewWalletController(svc))
}

func WalletAdminRoutes(admin fiber.Router, svc *walletSvc.WalletService) {
	walletRoute.WalletAdminRoutes(admin, walletCtl.NewWalletController(svc))
}
