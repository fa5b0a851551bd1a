package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/liftoff/platform/internal/app"
	"github.com/liftoff/platform/internal/auth"
	"github.com/liftoff/platform/internal/engine"
	"github.com/liftoff/platform/internal/guard"
	"github.com/liftoff/platform/internal/infra"
	"github.com/liftoff/platform/internal/ledger"
	"github.com/liftoff/platform/internal/provider"
	"github.com/liftoff/platform/internal/reconcile"
	"github.com/liftoff/platform/internal/repository"
	"github.com/liftoff/platform/internal/seedchain"
	"github.com/liftoff/platform/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("connected to postgres")

	if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	jwtMgr := auth.NewJWTManager(cfg.JWTSecret, cfg.PlayerTokenTTL(), cfg.AdminTokenTTL())

	// Repositories
	userRepo := repository.NewUserRepository()
	roundRepo := repository.NewRoundRepository()
	betRepo := repository.NewBetRepository()
	seedRepo := repository.NewSeedCommitRepository()
	paymentRepo := repository.NewPaymentRepository()
	outboxRepo := repository.NewOutboxRepository()

	// Ledger
	ledgerEngine := ledger.NewEngine(pool, userRepo, roundRepo, betRepo, paymentRepo, outboxRepo,
		time.Duration(cfg.MaxRoundAgeSeconds)*time.Second, logger)

	// Seed chain and round engine
	seeds := seedchain.New(pool, seedRepo, cfg.SeedMaster, logger)
	eng := engine.New(engine.Config{
		RoundGap:                cfg.RoundGap(),
		SettlementWindowSeconds: cfg.SettlementWindowSeconds,
		AllowEphemeral:          cfg.AllowEphemeralSeed,
	}, seeds, ledgerEngine, engine.RealClock(), logger)

	broadcaster := engine.NewBroadcaster(eng, cfg.BroadcastInterval(), logger)

	// Guards
	loginLimiter := guard.NewRateLimiter(cfg.LoginRateLimit,
		time.Duration(cfg.LoginRateWindowMS)*time.Millisecond, cfg.MaxRateEntries)
	loginLimiter.Start(time.Minute)
	defer loginLimiter.Stop()

	cashoutThrottle := guard.NewThrottle(
		time.Duration(cfg.CashoutMinIntervalMS)*time.Millisecond,
		time.Duration(cfg.CashoutPruneAgeMS)*time.Millisecond,
		cfg.MaxCashoutEntries)
	cashoutThrottle.Start(time.Minute)
	defer cashoutThrottle.Stop()

	roundCache := guard.NewCache()
	roundCache.Start(time.Minute)
	defer roundCache.Stop()

	gatewayBreaker := guard.NewCircuitBreaker(5, 30*time.Second)

	// Payment gateway and reconciler
	gateway := provider.NewMobileGateway(cfg, gatewayBreaker, logger)
	reconciler := reconcile.New(gateway, ledgerEngine, paymentRepo, pool,
		cfg.PaymentPollAttempts, time.Duration(cfg.PaymentPollIntervalMS)*time.Millisecond,
		16, logger)

	// Background workers
	appCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()

	go consumeLifecycle(appCtx, eng, ledgerEngine, logger)
	go sweepSettlement(appCtx, ledgerEngine, logger)

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start round engine: %w", err)
	}
	broadcaster.Start()

	if err := reconciler.Resume(appCtx); err != nil {
		logger.Error("resume payment reconciliation", "error", err)
	}

	r := app.NewRouter(app.RouterDeps{
		Pool:   pool,
		JWTMgr: jwtMgr,
		Logger: logger,

		Engine:      eng,
		Ledger:      ledgerEngine,
		Broadcaster: broadcaster,
		Seeds:       seeds,
		Gateway:     gateway,
		Tracker:     reconciler,

		LoginLimiter:    loginLimiter,
		CashoutThrottle: cashoutThrottle,
		RoundCache:      roundCache,
		RoundCacheTTL:   time.Duration(cfg.RoundCacheTTLMS) * time.Millisecond,

		BetLimits: service.BetLimits{Min: cfg.MinBetAmount, Max: cfg.MaxBetAmount},
		PaymentLimits: service.PaymentLimits{
			MinDeposit:  cfg.MinDepositAmount,
			MaxDeposit:  cfg.MaxDepositAmount,
			MinWithdraw: cfg.MinWithdrawAmount,
			MaxWithdraw: cfg.MaxWithdrawAmount,
		},

		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // the tick stream is long-lived
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}

	// Stop producing before stopping consumers: broadcaster first, then the
	// engine, then the workers draining its events.
	broadcaster.Stop()
	eng.Dispose()
	cancelWorkers()
	reconciler.Wait()

	logger.Info("server stopped gracefully")
	return nil
}

// consumeLifecycle drains engine events: crash persistence (seed reveal,
// settlement window) happens here so the engine's critical sections stay free
// of I/O.
func consumeLifecycle(ctx context.Context, eng *engine.Engine, led *ledger.Engine, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-eng.Events():
			switch ev.Kind {
			case engine.EventRoundCrashed:
				persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				if err := led.PersistRoundCrash(persistCtx, &ev.Round); err != nil {
					logger.Error("persist round crash",
						"roundId", ev.Round.RoundID, "error", err)
				}
				cancel()
			case engine.EventRoundStarted:
				logger.Info("round started",
					"roundId", ev.Round.RoundID, "commitIdx", ev.Round.CommitIdx)
			}
		}
	}
}

// sweepSettlement periodically marks active bets lost once their round's
// settlement window has closed.
func sweepSettlement(ctx context.Context, led *ledger.Engine, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := led.SweepExpiredBets(sweepCtx)
			cancel()
			if err != nil {
				logger.Error("settlement sweep", "error", err)
			} else if n > 0 {
				logger.Info("settlement sweep marked expired bets lost", "count", n)
			}
		}
	}
}
