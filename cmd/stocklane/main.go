package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/stocklane/stocklane/internal/analytics"
	"github.com/stocklane/stocklane/internal/app"
	"github.com/stocklane/stocklane/internal/audit"
	"github.com/stocklane/stocklane/internal/backup"
	"github.com/stocklane/stocklane/internal/catalog"
	"github.com/stocklane/stocklane/internal/ledger"
	"github.com/stocklane/stocklane/internal/platform/cache"
	"github.com/stocklane/stocklane/internal/platform/db"
	"github.com/stocklane/stocklane/internal/sales"
	"github.com/stocklane/stocklane/internal/shared"
	"github.com/stocklane/stocklane/internal/store"
	"github.com/stocklane/stocklane/internal/store/localstore"
	"github.com/stocklane/stocklane/internal/store/postgres"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, idempotency and caching disabled", slog.Any("error", err))
		redisClient = nil
	} else {
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	st, cleanup, err := openStore(ctx, cfg, logger, redisClient)
	if err != nil {
		logger.Error("open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	var idem *shared.IdempotencyStore
	if redisClient != nil {
		idem = shared.NewIdempotencyStore(redisClient, cfg.IdempotencyTTL)
	}

	auditLog := audit.NewLogger(st, logger, cfg.OriginClient)
	ledgerService := ledger.NewService(st, logger)
	catalogService := catalog.NewService(st, auditLog, logger)
	salesService := sales.NewService(st, ledgerService, auditLog, idem, logger)
	analyticsService := analytics.NewService(st)
	backupService := backup.NewService(st, auditLog, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CatalogHandler:   catalog.NewHandler(logger, catalogService),
		SalesHandler:     sales.NewHandler(logger, salesService),
		StockHandler:     ledger.NewHandler(logger, ledgerService),
		AnalyticsHandler: analytics.NewHandler(logger, analyticsService),
		AuditHandler:     audit.NewHandler(logger, auditLog),
		BackupHandler:    backup.NewHandler(logger, backupService),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening",
			slog.String("addr", cfg.AppAddr),
			slog.String("backend", cfg.StoreBackend))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}
}

// openStore builds the configured record store binding.
func openStore(ctx context.Context, cfg *app.Config, logger *slog.Logger, redisClient *redis.Client) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case app.BackendPostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, err
		}
		opts := []postgres.Option{}
		if redisClient != nil {
			opts = append(opts, postgres.WithCache(redisClient, cfg.StoreStaleness))
		}
		st := postgres.New(pool, logger, opts...)
		if err := st.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return st, pool.Close, nil
	default:
		st, err := localstore.Open(cfg.StorePath, localstore.WithStaleness(cfg.StoreStaleness))
		if err != nil {
			return nil, nil, err
		}
		return st, func() {}, nil
	}
}
