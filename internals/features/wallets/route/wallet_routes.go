package routes

import (
	"github.com/gofiber/fiber/v2"

	walletCtl "kvtogether_backend/internals/features/wallets/controller"
)

// Mounted under /api/u.
func WalletUserRoutes(r fiber.Router, ctl *walletCtl.WalletController) {
	r.Get("/wallet", ctl.Mine)
}

// Mounted under /api/a.
func WalletAdminRoutes(r fiber.Router, ctl *walletCtl.WalletController) {
	r.Post("/wallets/:user_id/top-up", ctl.TopUp)
}
