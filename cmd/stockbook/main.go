package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/stockbook-app/stockbook/internal/app"
	"github.com/stockbook-app/stockbook/internal/invoicing"
	"github.com/stockbook-app/stockbook/internal/observability"
	"github.com/stockbook-app/stockbook/internal/platform/cache"
	"github.com/stockbook-app/stockbook/internal/platform/db"
	"github.com/stockbook-app/stockbook/internal/production"
	"github.com/stockbook-app/stockbook/internal/receiving"
	"github.com/stockbook-app/stockbook/internal/shared"
	"github.com/stockbook-app/stockbook/internal/stock"
	"github.com/stockbook-app/stockbook/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	runner, err := db.Detect(ctx, pool, cfg.StrictTx, logger)
	if err != nil {
		logger.Error("detect transaction support", slog.Any("error", err))
		os.Exit(1)
	}

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, stock cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	metrics := observability.NewMetrics()

	var stockCache *stock.Cache
	if redisClient != nil {
		stockCache = stock.NewCache(redisClient, cfg.StockCacheTTL)
	}
	stockRepo := stock.NewRepository(pool)
	stockService := stock.NewService(stockRepo, stockCache, logger)
	stockService.SetMetrics(metrics)
	stockHandler := stock.NewHandler(logger, stockService)

	productionRepo := production.NewRepository(pool)
	catalog := production.NewCatalog(pool)

	receivingRepo := receiving.NewRepository(pool)

	// production and receiving reference each other through narrow ports, so
	// the services are built first and cross-wired afterwards.
	productionService := production.NewService(productionRepo, runner, stockService, nil, catalog, auditLogger, logger)
	receivingService := receiving.NewService(receivingRepo, runner, stockService, productionService, productionService, auditLogger, logger)
	productionService.SetLinkedItems(receivingService)

	retryClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Warn("jobs client unavailable, ledger retries disabled", slog.Any("error", err))
	}
	defer func() {
		if retryClient != nil {
			if err := retryClient.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}
	}()
	var retry invoicing.RetryEnqueuer
	if retryClient != nil {
		retry = retryClient
	}

	invoiceRepo := invoicing.NewRepository(pool, runner)
	invoiceService := invoicing.NewService(invoiceRepo, stockService, receivingService, retry, auditLogger, logger)
	invoiceHandler := invoicing.NewHandler(logger, invoiceService)

	receivingHandler := receiving.NewHandler(logger, receivingService)
	productionHandler := production.NewHandler(logger, productionService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		InvoiceHandler:      invoiceHandler,
		PurchaseItemHandler: receivingHandler,
		ProductionHandler:   productionHandler,
		StockHandler:        stockHandler,
		JobHandler:          jobHandler,
		Metrics:             metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
