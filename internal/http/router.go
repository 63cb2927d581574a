package http

import (
	"time"

	"github.com/ads-hunter/backend/internal/config"
	"github.com/ads-hunter/backend/internal/http/handlers"
	"github.com/ads-hunter/backend/internal/middleware"
	"github.com/ads-hunter/backend/internal/rbac"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	User     *handlers.UserHandler
	Campaign *handlers.CampaignHandler
	Hunt     *handlers.HuntHandler
	Budget   *handlers.BudgetHandler
	Send     *handlers.SendHandler
	Channel  *handlers.ChannelHandler
	Lead     *handlers.LeadHandler
	WS       *handlers.WSHub
}

func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID, Idempotency-Key",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware(rdb, cfg.RateLimitRPM, time.Minute))

	metaHandler := handlers.NewMetaHandler()
	api.Get("/meta/channels", metaHandler.GetChannels)
	api.Get("/meta/skip-reasons", metaHandler.GetSkipReasons)

	protected := api.Group("", middleware.AuthMiddleware(cfg, log))
	allow := middleware.RequirePermission

	protected.Get("/me", h.User.GetMe)

	// Hunts
	protected.Post("/hunts", allow(rbac.PermManageHunts), h.Campaign.CreateCampaign)
	protected.Get("/hunts", h.Campaign.ListCampaigns)
	protected.Post("/hunts/run", allow(rbac.PermRunHunt), h.Hunt.RunDaily)
	protected.Get("/hunts/:id", h.Campaign.GetCampaign)
	protected.Patch("/hunts/:id", allow(rbac.PermManageHunts), h.Campaign.UpdateCampaign)
	protected.Post("/hunts/:id/process", allow(rbac.PermProcessHunt), h.Hunt.ProcessHunt)
	protected.Get("/hunts/:id/history", allow(rbac.PermManageHunts), h.Campaign.GetHistory)

	protected.Get("/leads", h.Lead.ListLeads)

	// Budgets
	protected.Get("/hunts/:id/budgets", allow(rbac.PermViewBudget), h.Budget.ListBudgets)
	protected.Post("/hunts/:id/budgets/:channel/grant", allow(rbac.PermManageBudget), h.Budget.Grant)
	protected.Post("/hunts/:id/budgets/:channel/refund", allow(rbac.PermRefund), h.Budget.Refund)
	protected.Get("/hunts/:id/budgets/:channel/reconcile", allow(rbac.PermViewBudget), h.Budget.Reconcile)

	// Dispatch
	protected.Post("/sends", allow(rbac.PermManualSend), h.Send.ManualSend)
	protected.Get("/jobs/:channel/:id", allow(rbac.PermViewJobs), h.Send.JobStatus)

	// Channel settings
	protected.Get("/channels/settings", h.Channel.ListSettings)
	protected.Put("/channels/:channel/settings", allow(rbac.PermManageHunts), h.Channel.UpdateSettings)

	app.Use("/ws", handlers.WSUpgradeMiddleware())
	app.Get("/ws", websocket.New(h.WS.HandleWS))
}
