package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/vizion-gateway/vizion_gateway/internal/bank"
	"github.com/vizion-gateway/vizion_gateway/internal/config"
	"github.com/vizion-gateway/vizion_gateway/internal/ledger"
	"github.com/vizion-gateway/vizion_gateway/internal/middleware"
	"github.com/vizion-gateway/vizion_gateway/internal/money"
	"github.com/vizion-gateway/vizion_gateway/internal/notification"
	"github.com/vizion-gateway/vizion_gateway/internal/wallet"
	"github.com/vizion-gateway/vizion_gateway/internal/withdrawal"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg    config.Config
	DB     *pgxpool.Pool
	Cache  *redis.Client
	Logger *slog.Logger

	// Bank is the payout connector; nil falls back to the static one.
	Bank bank.Connector
}

// Services holds the wired domain services so the caller (main) can hand the
// engine and wallet repository to the settlement scheduler.
type Services struct {
	Engine      *ledger.Engine
	Wallets     wallet.Repository
	Withdrawals *withdrawal.Service
}

// Setup configures middlewares and all application routes, returning the
// wired services.
func Setup(app *fiber.App, d Deps) (Services, error) {
	// Enforce DB/Redis presence outside of dev, even though main also checks.
	if !d.Cfg.IsDev() {
		if d.DB == nil {
			return Services{}, fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return Services{}, fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}

	app.Use(recover.New())
	app.Use(middleware.RequestID())
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(middleware.Audit(d.Logger))
	if d.Cache != nil {
		app.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Logger))
	}

	RegisterHealthRoutes(app, d)

	var walletRepo wallet.Repository
	if d.DB != nil {
		walletRepo = wallet.NewPostgresRepository(d.DB)
	} else {
		walletRepo = wallet.NewMemoryRepository()
	}

	var store ledger.Store
	if d.DB != nil {
		store = ledger.NewPostgresStore(d.DB)
	} else {
		store = ledger.NewInMemory()
	}

	var notifier notification.Notifier
	if d.Cache != nil {
		notifier = notification.NewRedisNotifier(d.Cache, d.Cfg.BalanceEventChannel)
	} else {
		notifier = notification.NewLoggerNotifier(d.Logger)
	}

	engine := ledger.NewEngine(walletRepo, store, notifier, money.NewStaticRates(), ledger.FeeSchedule{
		TransactionPct: d.Cfg.TransactionFeePct,
		PlatformPct:    d.Cfg.PlatformFeePct,
	})

	var withdrawalRepo withdrawal.Repository
	if d.DB != nil {
		withdrawalRepo = withdrawal.NewPostgresRepository(d.DB)
	} else {
		withdrawalRepo = withdrawal.NewMemoryRepository()
	}
	withdrawalSvc := withdrawal.NewService(withdrawalRepo, engine, d.Bank, d.Cfg.PayoutTimeout, d.Logger)

	walletSvc := wallet.NewService(walletRepo, d.Cfg.DefaultReservePct)

	walletHandler := wallet.NewHandler(walletSvc, store)
	ledgerHandler := ledger.NewHandler(engine)
	withdrawalHandler := withdrawal.NewHandler(withdrawalSvc)

	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		reqID, _ := c.Locals("X-Request-ID").(string)
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": reqID,
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	RegisterWalletRoutes(api, walletHandler)
	RegisterLedgerRoutes(api, ledgerHandler)
	RegisterWithdrawalRoutes(api, withdrawalHandler)

	return Services{Engine: engine, Wallets: walletRepo, Withdrawals: withdrawalSvc}, nil
}
