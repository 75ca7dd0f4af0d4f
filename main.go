package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"

	"kvtogether_backend/internals/configs"
	database "kvtogether_backend/internals/databases"
	campaignSvc "kvtogether_backend/internals/features/campaigns/campaigns/service"
	donationSvc "kvtogether_backend/internals/features/donations/donations/service"
	gatewaySvc "kvtogether_backend/internals/features/donations/gateway_events/service"
	"kvtogether_backend/internals/features/notifications/dispatcher"
	walletSvc "kvtogether_backend/internals/features/wallets/service"
	helper "kvtogether_backend/internals/helpers"
	"kvtogether_backend/internals/logging"
	middlewares "kvtogether_backend/internals/middlewares"
	requestLogger "kvtogether_backend/internals/middlewares/logger"
	routes "kvtogether_backend/internals/route"
	"kvtogether_backend/internals/seeds"
	"kvtogether_backend/internals/supervisor"
)

func main() {
	configs.LoadEnv()

	cfg, err := configs.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Timestamp: true,
		Output:    os.Stderr,
	})
	if cfg.Auth.JWTSecret == "" {
		logging.Fatal().Msg("JWT_SECRET is required")
	}

	// 🔌 DB connect + pool + warm-up
	if err := database.ConnectDB(cfg.Database); err != nil {
		logging.Fatal().Err(err).Msg("connect database")
	}
	db := database.DB
	database.TunePool(db)
	database.WarmUpQueries(db)
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(context.Background(), db); err != nil {
			logging.Fatal().Err(err).Msg("migrate")
		}
	}
	if seed, _ := strconv.ParseBool(configs.GetEnv("SEED_DEMO", "false")); seed {
		if err := seeds.RunAllSeeds(context.Background(), db, "internals/seeds"); err != nil {
			logging.Fatal().Err(err).Msg("seed demo data")
		}
	}

	// ===================== SERVICES =====================
	events := dispatcher.New(dispatcher.DefaultConfig(), dispatcher.LogNotifier{})
	reconciler := campaignSvc.NewReconciler(db, cfg.Funding.MaxRetries, events)
	wallets := walletSvc.NewWalletService(db)

	campaigns := campaignSvc.NewCampaignService(db, reconciler, wallets, events)
	campaigns.RefundOnExpiry = cfg.Funding.ExpiryPolicy == configs.ExpiryPolicyCancelled
	if fee, err := cfg.PlatformFeePercent(); err == nil {
		campaigns.FeePercent = fee
	}

	// A nil interface, not a nil *MidtransGateway, when Midtrans is not configured.
	var gateway donationSvc.PaymentGateway
	if cfg.Midtrans.ServerKey != "" {
		gateway = donationSvc.NewMidtransGateway(cfg.Midtrans.ServerKey, cfg.Midtrans.UseProduction)
	} else {
		logging.Warn().Msg("⚠️ MIDTRANS_SERVER_KEY not set, Midtrans donations are disabled")
	}
	donations := donationSvc.NewDonationService(db, reconciler, wallets, gateway, gatewaySvc.NewGatewayEventService(db))
	donations.MinDonation = cfg.Funding.MinDonation
	donations.ServerKey = cfg.Midtrans.ServerKey
	donations.VerifyStatus = cfg.Midtrans.VerifyStatus

	// ⏱ background services after DB is ready
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tree := supervisor.NewTree(supervisor.DefaultTreeConfig())
	tree.AddMessagingService(events)
	tree.AddJob(campaignSvc.NewExpirySweeper(campaigns, cfg.Funding.SweepInterval))
	treeDone := tree.ServeBackground(ctx)

	// ===================== HTTP =====================
	app := fiber.New(fiber.Config{
		JSONEncoder:             sonic.Marshal,
		JSONDecoder:             sonic.Unmarshal,
		DisableStartupMessage:   true,
		ErrorHandler:            helper.ErrorHandler,
		ProxyHeader:             fiber.HeaderXForwardedFor,
		EnableTrustedProxyCheck: true,
		TrustedProxies:          []string{"0.0.0.0/0"},
		ReadTimeout:             15 * time.Second,
		WriteTimeout:            30 * time.Second,
		IdleTimeout:             90 * time.Second,
	})

	app.Use(requestLogger.LoggerMiddleware(cfg.App.RequestTimeout))
	app.Use(middlewares.RecoveryMiddleware())
	app.Use(middlewares.CorsMiddleware(cfg.App.CORSOrigins))
	app.Use(middlewares.GlobalRateLimiter(cfg.App.RateLimitMax))
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault}))
	app.Use(etag.New())

	routes.SetupRoutes(app, routes.Deps{
		DB:        db,
		Config:    cfg,
		Campaigns: campaigns,
		Donations: donations,
		Wallets:   wallets,
	})

	go func() {
		addr := fmt.Sprintf("0.0.0.0:%s", cfg.App.Port)
		logging.Info().Str("addr", addr).Msg("✅ listening")
		if err := app.Listen(addr); err != nil {
			logging.Error().Err(err).Msg("server error")
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logging.Error().Err(err).Msg("http shutdown")
	}
	if err := <-treeDone; err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("supervisor stopped")
	}
	_ = events.Close()
	database.Close(db)
}
