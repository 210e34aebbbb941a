package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/deepwater-mud/economy/internal/auction"
	"github.com/deepwater-mud/economy/internal/auth"
	"github.com/deepwater-mud/economy/internal/bank"
	"github.com/deepwater-mud/economy/internal/config"
	"github.com/deepwater-mud/economy/internal/emissions"
	"github.com/deepwater-mud/economy/internal/enforcement"
	"github.com/deepwater-mud/economy/internal/identity"
	"github.com/deepwater-mud/economy/internal/ledger"
	"github.com/deepwater-mud/economy/internal/market"
	"github.com/deepwater-mud/economy/internal/middleware"
	"github.com/deepwater-mud/economy/internal/schema"
	"github.com/deepwater-mud/economy/internal/store"
	"github.com/deepwater-mud/economy/internal/trade"
	"github.com/deepwater-mud/economy/internal/wallet"
	"github.com/deepwater-mud/economy/internal/work"
)

// Deps aggregates the services and shared clients routes are wired to.
type Deps struct {
	Cfg    config.Config
	Logger *slog.Logger
	DB     *pgxpool.Pool
	Cache  *redis.Client

	Store   store.Store
	Ledger  *ledger.Ledger
	Schemas *schema.Validator

	Identity    *identity.Service
	Auth        *auth.Service
	Wallet      *wallet.Service
	Bank        *bank.Service
	Market      *market.Service
	Trade       *trade.Service
	Auction     *auction.Service
	Emissions   *emissions.Service
	Enforcement *enforcement.Service
	Work        *work.Service
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) {
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "UTC",
	}))
	app.Use(middleware.Audit(d.Logger))

	RegisterHealthRoutes(app, d)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Public routes
	RegisterIdentityRoutes(api, identity.NewHandler(d.Identity))
	RegisterAuthRoutes(api, auth.NewHandler(d.Identity, d.Auth), middleware.LoginRateLimit(d.Cache, 5))

	// Admin routes go first: the player group below installs JWT auth on the
	// whole /economy prefix, and these handlers end the chain before it.
	RegisterAdminRoutes(api.Group("/economy"), d)

	jwt := middleware.JWTAuth(d.Auth)
	api.Get("/characters/me", jwt, identity.NewHandler(d.Identity).Me)
	RegisterEconomyRoutes(api.Group("/economy", jwt, middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger)), d)
}

// RegisterAdminRoutes wires operator endpoints guarded by the admin token.
func RegisterAdminRoutes(r fiber.Router, d Deps) {
	guard := middleware.AdminToken(d.Cfg.AdminToken)
	enforce := enforcement.NewHandler(d.Enforcement)

	r.Post("/enforce", guard, enforce.Sweep)
	r.Post("/enforce/encounters/:id/resolve", guard, enforce.Resolve)
	r.Post("/emissions/run", guard, emissions.NewHandler(d.Emissions).Run)
	r.Post("/sweep", guard, func(c *fiber.Ctx) error {
		trades, err := d.Trade.SweepExpired(c.UserContext())
		if err != nil {
			return err
		}
		auctions, err := d.Auction.SweepEnded(c.UserContext())
		if err != nil {
			return err
		}
		return c.Status(http.StatusOK).JSON(fiber.Map{"expiredOffers": trades, "finalizedAuctions": auctions})
	})
	r.Get("/reconcile", guard, func(c *fiber.Ctx) error {
		var report ledger.Report
		err := d.Store.WithTx(c.UserContext(), func(ctx context.Context, tx store.Tx) error {
			var err error
			report, err = d.Ledger.Reconcile(ctx, tx)
			return err
		})
		if err != nil {
			return err
		}
		return c.Status(http.StatusOK).JSON(report)
	})
}
