package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/storefront-api/internal/config"
	"github.com/iliyamo/storefront-api/internal/database"
	"github.com/iliyamo/storefront-api/internal/handler"
	"github.com/iliyamo/storefront-api/internal/logger"
	"github.com/iliyamo/storefront-api/internal/metrics"
	"github.com/iliyamo/storefront-api/internal/middleware"
	"github.com/iliyamo/storefront-api/internal/queue"
	"github.com/iliyamo/storefront-api/internal/repository"
	"github.com/iliyamo/storefront-api/internal/router"
	"github.com/iliyamo/storefront-api/internal/service"
)

func main() {
	cfg := config.Load()

	zl, err := logger.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(database.Options{
		User: cfg.DBUser, Pass: cfg.DBPass, Host: cfg.DBHost, Port: cfg.DBPort, Name: cfg.DBName,
	})
	if err != nil {
		zl.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			zl.Fatal("migration failed", zap.Error(err))
		}
		zl.Info("schema migrated")
	}

	rdb := config.NewRedisClient(cfg.Redis)
	if rdb == nil {
		zl.Warn("redis unavailable; rate limiting, response cache and access token revocation disabled",
			zap.String("addr", cfg.Redis.Addr))
	} else {
		defer rdb.Close()
	}

	m := metrics.NewDefault()

	var pub queue.Publisher = queue.NopPublisher{}
	if cfg.AMQP.Enabled {
		ap := queue.NewAMQPPublisher(cfg.AMQP.URL, zl.Named("publisher"))
		defer ap.Close()
		pub = ap
		if cfg.AMQP.ConsumerEnabled {
			go queue.StartOrderConsumer(ctx, cfg.AMQP.URL, zl.Named("consumer"))
		}
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	categories := repository.NewCategoryRepo(db)
	suppliers := repository.NewSupplierRepo(db)
	products := repository.NewProductRepo(db)
	orders := repository.NewOrderRepo(db)

	tokenSvc := service.NewTokenService(cfg.JWT, db, tokens, users,
		service.NewRedisRevocationList(rdb, ""), m, zl.Named("token"))
	authSvc := service.NewAuthService(db, users, tokenSvc, cfg.BcryptCost, m, zl.Named("auth"))
	categorySvc := service.NewCategoryService(db, categories, products, zl.Named("category"))
	supplierSvc := service.NewSupplierService(db, suppliers, products, zl.Named("supplier"))
	productSvc := service.NewProductService(products, categories, suppliers, zl.Named("product"))
	orderSvc := service.NewOrderService(db, orders, products, users, pub, m, zl.Named("order"))

	seedCtx, cancelSeed := context.WithTimeout(ctx, 10*time.Second)
	if err := authSvc.SeedDefaults(seedCtx, cfg.Seed); err != nil {
		zl.Fatal("seeding failed", zap.Error(err))
	}
	cancelSeed()

	if cfg.TokenCleanupInterval > 0 {
		go cleanupTokens(ctx, tokenSvc, cfg.TokenCleanupInterval, cfg.TokenRetention, zl)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handler.NewValidator()
	e.Use(
		echomw.Recover(),
		echomw.RequestID(),
		middleware.RequestLogger(zl.Named("http")),
		middleware.Metrics(m),
		middleware.NewTokenBucket(cfg.RateLimit, rdb, zl.Named("ratelimit")),
	)

	deps := router.Deps{Config: cfg, Redis: rdb, Tokens: tokenSvc, Metrics: m, DB: db, Log: zl}
	router.RegisterRoutes(e, deps)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc, zl), deps)
	router.RegisterCatalog(e,
		handler.NewCategoryHandler(categorySvc, zl),
		handler.NewSupplierHandler(supplierSvc, zl),
		handler.NewProductHandler(productSvc, zl),
		deps)
	router.RegisterOrders(e, handler.NewOrderHandler(orderSvc, zl), deps)

	addr := ":" + cfg.Port
	go func() {
		zl.Info("listening", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zl.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		zl.Error("graceful shutdown failed", zap.Error(err))
	}
}

// cleanupTokens periodically purges refresh tokens that expired or were
// revoked more than retention ago.
func cleanupTokens(ctx context.Context, tokens *service.TokenService, every, retention time.Duration, log *zap.Logger) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := tokens.Cleanup(ctx, retention)
			if err != nil {
				log.Warn("token cleanup failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged refresh tokens", zap.Int64("count", n))
			}
		}
	}
}
