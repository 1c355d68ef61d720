package api

import (
	"net/http"

	"github.com/ayo6706/economy-ledger/internal/api/handler"
	"github.com/ayo6706/economy-ledger/internal/api/middleware"
	"github.com/ayo6706/economy-ledger/internal/api/spec"
	"github.com/ayo6706/economy-ledger/internal/config"
	"github.com/ayo6706/economy-ledger/internal/domain"
	"github.com/ayo6706/economy-ledger/internal/idempotency"
	"github.com/ayo6706/economy-ledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services groups what the HTTP layer calls into.
type Services struct {
	Wallet   *service.WalletService
	Cashouts *service.CashoutService
	Rewards  *service.RewardService
}

type Router struct {
	cfg      *config.Config
	logger   *zap.Logger
	db       handler.Pinger
	redis    redis.Cmdable
	idem     *idempotency.Store
	services Services
}

// NewRouter wires handlers to services. db and redis may be nil.
func NewRouter(cfg *config.Config, logger *zap.Logger, db handler.Pinger, redisClient redis.Cmdable, idem *idempotency.Store, services Services) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{cfg: cfg, logger: logger, db: db, redis: redisClient, idem: idem, services: services}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)

	healthHandler := handler.NewHealthHandler(api.db, api.redis)
	walletHandler := handler.NewWalletHandler(api.services.Wallet)
	cashoutHandler := handler.NewCashoutHandler(api.services.Cashouts)
	rewardHandler := handler.NewRewardHandler(api.services.Rewards)
	internalHandler := handler.NewInternalHandler(api.services.Wallet, api.services.Rewards)

	idem := middleware.IdempotencyMiddleware(api.idem, api.logger)

	// Operational routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Get("/healthz", healthHandler.Live)
		r.Get("/readyz", healthHandler.Ready)
		r.Get("/openapi.yaml", spec.OpenAPIHandler())
		r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		// Wallet
		r.Get("/v1/wallet", walletHandler.GetWallet)
		r.Get("/v1/wallet/transactions", walletHandler.ListTransactions)
		r.With(idem).Post("/v1/wallet/exchange", walletHandler.Exchange)
		r.With(idem).Post("/v1/wallet/transfer", walletHandler.Transfer)

		// Cash-outs
		r.With(idem).Post("/v1/cashouts", cashoutHandler.CreateCashout)
		r.Get("/v1/cashouts", cashoutHandler.ListMyCashouts)
		r.Get("/v1/cashouts/{id}", cashoutHandler.GetCashout)

		// Earning targets
		r.Get("/v1/earning-targets", rewardHandler.EarningTargets)
		r.With(idem).Post("/v1/earning-targets/{tier}/claim", rewardHandler.ClaimEarningTarget)

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))
			r.Get("/cashouts", cashoutHandler.AdminListCashouts)
			r.Post("/cashouts/{id}/approve", cashoutHandler.Approve)
			r.Post("/cashouts/{id}/reject", cashoutHandler.Reject)
		})

		r.Route("/v1/internal", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleService))
			r.Use(idem)
			r.Post("/ledger/credit", internalHandler.Credit)
			r.Post("/ledger/debit", internalHandler.Debit)
			r.Post("/gifts", internalHandler.Gift)
			r.Post("/rewards/daily", internalHandler.DailyReward)
			r.Post("/rewards/referral", internalHandler.Referral)
			r.Post("/rewards/event", internalHandler.EventReward)
		})
	})

	return r
}
