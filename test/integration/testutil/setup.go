//go:build integration

package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/liftoff/platform/internal/app"
	"github.com/liftoff/platform/internal/auth"
	"github.com/liftoff/platform/internal/engine"
	"github.com/liftoff/platform/internal/guard"
	"github.com/liftoff/platform/internal/infra"
	"github.com/liftoff/platform/internal/ledger"
	"github.com/liftoff/platform/internal/repository"
	"github.com/liftoff/platform/internal/seedchain"
	"github.com/liftoff/platform/internal/service"
)

const (
	TestJWTSecret  = "integration-test-secret"
	TestSeedMaster = "integration-test-seed-master"
	TestDBHost     = "localhost"
	TestDBPort     = 5433
	TestDBUser     = "liftoff"
	TestDBPass     = "liftoff"
	TestDBName     = "liftoff_test"
)

// TestEnv holds all resources for an integration test: the HTTP server, the
// live round engine behind it, and the shared database pool.
type TestEnv struct {
	Server  *httptest.Server
	Pool    *pgxpool.Pool
	JWTMgr  *auth.JWTManager
	Engine  *engine.Engine
	Ledger  *ledger.Engine
	Gateway *FakeGateway
	t       *testing.T
}

var (
	sharedPool *pgxpool.Pool
	poolOnce   sync.Once
	poolErr    error
)

func testDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBName)
}

func bootstrapDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		TestDBUser, TestDBPass, TestDBHost, TestDBPort, TestDBUser)
}

func ensureTestDB() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	bPool, err := pgxpool.New(ctx, bootstrapDSN())
	if err != nil {
		return fmt.Errorf("connect bootstrap db: %w", err)
	}
	defer bPool.Close()

	var exists bool
	err = bPool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", TestDBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check db exists: %w", err)
	}

	if !exists {
		_, err = bPool.Exec(ctx, fmt.Sprintf("CREATE DATABASE %s", TestDBName))
		if err != nil {
			return fmt.Errorf("create test db: %w", err)
		}
	}
	return nil
}

func getSharedPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	poolOnce.Do(func() {
		if err := ensureTestDB(); err != nil {
			poolErr = err
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		poolCfg, err := pgxpool.ParseConfig(testDSN())
		if err != nil {
			poolErr = fmt.Errorf("parse pool config: %w", err)
			return
		}
		poolCfg.MaxConns = 10
		poolCfg.MinConns = 1

		sharedPool, err = pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			poolErr = fmt.Errorf("create pool: %w", err)
			return
		}

		quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
		if err := infra.RunMigrations(testDSN(), quiet); err != nil {
			poolErr = fmt.Errorf("run migrations: %w", err)
			sharedPool.Close()
			sharedPool = nil
			return
		}
	})

	if poolErr != nil {
		t.Fatalf("failed to initialize test pool: %v", poolErr)
	}
	return sharedPool
}

// NewTestEnv creates a test environment with an httptest.Server backed by the
// real router, a running round engine, and the shared test DB. The payment
// gateway is faked; everything else is real.
func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()

	pool := getSharedPool(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// Clean before wiring so the seed chain and engine start from scratch.
	cleanTables(t, pool)

	jwtMgr := auth.NewJWTManager(TestJWTSecret, 24*time.Hour, 8*time.Hour)

	userRepo := repository.NewUserRepository()
	roundRepo := repository.NewRoundRepository()
	betRepo := repository.NewBetRepository()
	seedRepo := repository.NewSeedCommitRepository()
	paymentRepo := repository.NewPaymentRepository()
	outboxRepo := repository.NewOutboxRepository()

	ledgerEngine := ledger.NewEngine(pool, userRepo, roundRepo, betRepo, paymentRepo, outboxRepo,
		time.Hour, logger)

	seeds := seedchain.New(pool, seedRepo, TestSeedMaster, logger)
	eng := engine.New(engine.Config{
		RoundGap:                200 * time.Millisecond,
		SettlementWindowSeconds: 60,
	}, seeds, ledgerEngine, engine.RealClock(), logger)

	broadcaster := engine.NewBroadcaster(eng, 50*time.Millisecond, logger)

	loginLimiter := guard.NewRateLimiter(1000, time.Minute, 10000)
	cashoutThrottle := guard.NewThrottle(10*time.Millisecond, time.Minute, 10000)
	roundCache := guard.NewCache()

	gateway := NewFakeGateway()

	lifecycleCtx, stopLifecycle := context.WithCancel(context.Background())
	go func() {
		for {
			select {
			case <-lifecycleCtx.Done():
				return
			case ev := <-eng.Events():
				if ev.Kind == engine.EventRoundCrashed {
					persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
					_ = ledgerEngine.PersistRoundCrash(persistCtx, &ev.Round)
					cancel()
				}
			}
		}
	}()

	startCtx, cancelStart := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelStart()
	if err := eng.Start(startCtx); err != nil {
		stopLifecycle()
		t.Fatalf("start round engine: %v", err)
	}
	broadcaster.Start()

	router := app.NewRouter(app.RouterDeps{
		Pool:   pool,
		JWTMgr: jwtMgr,
		Logger: logger,

		Engine:      eng,
		Ledger:      ledgerEngine,
		Broadcaster: broadcaster,
		Seeds:       seeds,
		Gateway:     gateway,
		Tracker:     NopTracker{},

		LoginLimiter:    loginLimiter,
		CashoutThrottle: cashoutThrottle,
		RoundCache:      roundCache,
		RoundCacheTTL:   50 * time.Millisecond,

		BetLimits: service.BetLimits{Min: 100, Max: 1_000_000},
		PaymentLimits: service.PaymentLimits{
			MinDeposit:  100,
			MaxDeposit:  10_000_000,
			MinWithdraw: 100,
			MaxWithdraw: 10_000_000,
		},

		CORSAllowedOrigins: "*",
	})

	server := httptest.NewServer(router)

	env := &TestEnv{
		Server:  server,
		Pool:    pool,
		JWTMgr:  jwtMgr,
		Engine:  eng,
		Ledger:  ledgerEngine,
		Gateway: gateway,
		t:       t,
	}

	t.Cleanup(func() {
		server.Close()
		broadcaster.Stop()
		eng.Dispose()
		stopLifecycle()
		env.CleanAll()
	})

	return env
}
