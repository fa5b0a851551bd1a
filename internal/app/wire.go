package app

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liftoff/platform/internal/auth"
	"github.com/liftoff/platform/internal/engine"
	"github.com/liftoff/platform/internal/guard"
	"github.com/liftoff/platform/internal/handler"
	"github.com/liftoff/platform/internal/ledger"
	"github.com/liftoff/platform/internal/repository"
	"github.com/liftoff/platform/internal/service"
)

// RouterDeps holds everything NewRouter needs. Components with a lifecycle
// (engine, broadcaster, guards, reconciler) are constructed and started by the
// caller; NewRouter only assembles services, handlers and routes on top of
// them.
type RouterDeps struct {
	Pool   *pgxpool.Pool
	JWTMgr *auth.JWTManager
	Logger *slog.Logger

	Engine      *engine.Engine
	Ledger      *ledger.Engine
	Broadcaster *engine.Broadcaster
	Seeds       service.CommitSource
	Gateway     service.PaymentGateway
	Tracker     service.IntentTracker

	LoginLimiter    *guard.RateLimiter
	CashoutThrottle *guard.Throttle
	RoundCache      *guard.Cache
	RoundCacheTTL   time.Duration

	BetLimits     service.BetLimits
	PaymentLimits service.PaymentLimits

	CORSAllowedOrigins string
}

// NewRouter assembles the chi.Router with all routes and middleware.
func NewRouter(deps RouterDeps) chi.Router {
	pool := deps.Pool
	logger := deps.Logger

	// Repositories
	userRepo := repository.NewUserRepository()
	roundRepo := repository.NewRoundRepository()
	betRepo := repository.NewBetRepository()
	paymentRepo := repository.NewPaymentRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Services
	authSvc := service.NewAuthService(pool, userRepo, outboxRepo, deps.JWTMgr, deps.LoginLimiter)
	betSvc := service.NewBetService(deps.Engine, deps.Ledger, deps.CashoutThrottle, deps.BetLimits, logger)
	paymentSvc := service.NewPaymentService(pool, userRepo, paymentRepo, deps.Ledger,
		deps.Gateway, deps.Tracker, deps.PaymentLimits, logger)
	roundSvc := service.NewRoundService(deps.Engine, roundRepo, betRepo, deps.Seeds, pool,
		deps.RoundCache, deps.RoundCacheTTL)

	// Handlers
	authHandler := handler.NewAuthHandler(authSvc)
	gameHandler := handler.NewGameHandler(betSvc)
	roundHandler := handler.NewRoundHandler(roundSvc, deps.Broadcaster)
	paymentHandler := handler.NewPaymentHandler(paymentSvc)
	adminHandler := handler.NewAdminHandler(deps.Ledger)

	// Router
	r := chi.NewRouter()

	// Global middleware (order matters)
	r.Use(handler.Recovery(logger))
	r.Use(handler.RequestID)
	r.Use(handler.RequestLogger(logger))
	r.Use(handler.CORSWithOrigins(deps.CORSAllowedOrigins))
	r.Use(handler.JSONContentType)

	r.Get("/health", handler.HealthHandler(pool))

	r.Route("/auth", func(r chi.Router) {
		r.Use(handler.RateLimitByIP(deps.LoginLimiter, "auth"))
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// Public round state
	r.Get("/round/status", roundHandler.Status)
	r.Get("/round/stream", roundHandler.Stream)
	r.Get("/round/history", roundHandler.History)
	r.Get("/round/{roundId}", roundHandler.GetRound)
	r.Get("/commitments/latest", roundHandler.LatestCommitment)
	r.Get("/reveal/{roundId}", roundHandler.Reveal)

	// Player routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticatePlayer(deps.JWTMgr))

		r.Get("/users/me", authHandler.Me)
		r.Post("/bet", gameHandler.PlaceBet)
		r.Post("/cashout", gameHandler.Cashout)
		r.Get("/bets/me", roundHandler.MyBets)

		r.Route("/payments", func(r chi.Router) {
			r.Post("/deposit", paymentHandler.Deposit)
			r.Post("/withdraw", paymentHandler.Withdraw)
			r.Get("/status/{transactionId}", paymentHandler.Status)
			r.Get("/history", paymentHandler.History)
		})
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(auth.AuthenticateAdmin(deps.JWTMgr))
		r.Post("/admin/bets/{betId}/refund", adminHandler.RefundBet)
	})

	return r
}
