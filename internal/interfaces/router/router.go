package router

import (
	healthsvc "shard-exchange/internal/application/health"
	holdingsvc "shard-exchange/internal/application/holdings"
	issuancesvc "shard-exchange/internal/application/issuance"
	"shard-exchange/internal/application/ledger"
	offersvc "shard-exchange/internal/application/offers"
	"shard-exchange/internal/interfaces/handlers/cart"
	"shard-exchange/internal/interfaces/handlers/health"
	"shard-exchange/internal/interfaces/handlers/holdings"
	"shard-exchange/internal/interfaces/handlers/issuance"
	"shard-exchange/internal/interfaces/handlers/offers"
	"shard-exchange/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

// Services is everything the HTTP layer calls into.
type Services struct {
	Ledger   *ledger.Service
	Holdings *holdingsvc.Service
	Offers   *offersvc.Service
	Issuance *issuancesvc.Service

	Health         healthsvc.Deps
	HealthAdminKey string
	AdminKeyHash   string
}

// New builds the Fiber app with global middleware and all routes.
func New(s Services) *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          middleware.ErrorHandler,
	})

	app.Use(middleware.Tracing())
	app.Use(middleware.HealthMarker(s.Health.Redis))
	app.Use(middleware.RouteLogger())

	hh := &health.Handlers{Deps: s.Health, HealthAdminKey: s.HealthAdminKey}
	app.Get("/health/json", hh.JSON)
	app.Get("/health/errors", hh.Errors)
	app.Get("/health/reset", hh.Reset)

	api := app.Group("/api/v1")
	holder := middleware.RequireHolder()

	(&offers.Handlers{Service: s.Offers}).Register(api.Group("/offers", holder))
	(&cart.Handlers{Service: s.Offers}).Register(api.Group("/cart", holder))
	(&holdings.Handlers{Service: s.Holdings, Ledger: s.Ledger, Offers: s.Offers}).Register(api.Group("/holdings", holder))
	(&issuance.Handlers{Service: s.Issuance}).Register(
		api.Group("/issuers", holder),
		api.Group("/admin/issuers", middleware.RequireAdmin(s.AdminKeyHash)),
	)

	return app
}
