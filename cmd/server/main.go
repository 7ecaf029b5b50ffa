package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/darkpool-labs/relaygate/internal/chain"
	"github.com/darkpool-labs/relaygate/internal/config"
	"github.com/darkpool-labs/relaygate/internal/handler"
	"github.com/darkpool-labs/relaygate/internal/middleware"
	"github.com/darkpool-labs/relaygate/internal/pkg/logger"
	"github.com/darkpool-labs/relaygate/internal/repository"
	"github.com/darkpool-labs/relaygate/internal/service"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Server.LogLevel)

	// 2. Initialize Persistence (Redis > Memory)
	var redisClient *repository.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = repository.NewRedisClient(cfg)
		if err == nil {
			logger.Info("connected to redis", "addr", cfg.Redis.Addr)
		} else {
			logger.Error("failed to connect to redis, falling back to memory", "error", err)
			redisClient = nil
		}
	}

	var bucketStore repository.BucketStore
	var sponsorshipCache repository.SponsorshipCache
	if redisClient != nil {
		bucketStore = repository.NewRedisBucketStore(redisClient)
		sponsorshipCache = repository.NewRedisSponsorshipCache(redisClient, cfg.Sponsorship.CacheTTL())
	} else {
		bucketStore = repository.NewMemoryBucketStore(nil)
		sponsorshipCache = repository.NewMemorySponsorshipCache(10_000, cfg.Sponsorship.CacheTTL())
	}

	// Match ledger (Postgres, optional)
	var ledger service.Ledger
	if cfg.Database.DSN != "" {
		pg, err := repository.NewPostgresLedger(cfg)
		if err == nil {
			logger.Info("connected to postgres")
			ledger = pg
		} else {
			logger.Error("failed to connect to postgres, match ledger disabled", "error", err)
		}
	}

	// 3. Chain access
	var chainClient *chain.Client
	if cfg.Chain.RPCURL != "" {
		chainClient, err = chain.NewClient(&cfg.Chain)
		if err != nil {
			log.Fatalf("Failed to initialize chain client: %v", err)
		}
	} else {
		logger.Warn("no chain RPC configured, settlement tracking and sponsorship disabled")
	}

	// 4. Core Services
	authorizer := service.NewAuthorizer(&cfg.Auth, nil)
	limiter := service.NewRateLimiter(bucketStore, &cfg.RateLimit)

	var estimator service.GasEstimator
	var checker service.NullifierChecker = disabledNullifierChecker{}
	if chainClient != nil {
		estimator = chainClient
		checker = chainClient
	}

	engine, err := service.NewSponsorshipEngine(&cfg.Sponsorship, estimator, sponsorshipCache)
	if err != nil {
		log.Fatalf("Failed to initialize sponsorship engine: %v", err)
	}

	watcher := service.NewSettlementWatcher(checker, &cfg.Settlement, nil)

	taskTimeout := cfg.Settlement.Deadline() + 30*time.Second
	pool := service.NewWorkerPool(cfg.Settlement.WorkerCount, cfg.Settlement.QueueSize, taskTimeout)

	accounting := service.NewAccountingService(ledger)
	relayerClient := service.NewRelayerClient(&cfg.Relayer)

	proxy := service.NewProxy(
		relayerClient, limiter, engine, watcher, pool, accounting,
		cfg.Telemetry.QuoteSampleRate,
	)

	// 5. Router
	matchHandler := handler.NewExternalMatchHandler(proxy)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.MetricsMiddleware())

	r.GET("/health", handler.HealthCheck)
	if cfg.Telemetry.Enabled {
		r.GET(cfg.Telemetry.Path, gin.WrapH(promhttp.Handler()))
	}

	api := r.Group("/")
	api.Use(middleware.AuthMiddleware(authorizer))
	api.Use(middleware.ThrottleMiddleware(cfg.Auth.QPS, cfg.Auth.Burst))
	matchHandler.RegisterRoutes(api)

	// 6. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("relaygate started", "port", cfg.Server.Port, "relayer", cfg.Relayer.BaseURL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}
	pool.Shutdown(ctx)

	logger.Info("Server exiting")
}

// disabledNullifierChecker stands in when no chain RPC is configured:
// bundles are never observed settled, so credits never apply.
type disabledNullifierChecker struct{}

func (disabledNullifierChecker) NullifierSpent(context.Context, common.Hash) (bool, error) {
	return false, nil
}
