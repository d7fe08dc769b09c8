package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/coupon"
	"storefront/internal/database"
	"storefront/internal/events"
	"storefront/internal/handlers"
	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/orders"
	"storefront/internal/payment"
)

func main() {
	config.Load()
	cfg := config.AppEnv

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		logger.Fatal("mongo unavailable", zap.Error(err))
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(disconnectCtx); err != nil {
			logger.Warn("mongo disconnect", zap.Error(err))
		}
	}()

	db := client.Database(cfg.DBName)
	logger.Info("mongo connected", zap.String("database", db.Name()))
	ensureIndexes(db, logger)

	publisher, closePublisher := newPublisher(cfg, logger)
	defer closePublisher()

	statusCache, closeCache := newStatusCache(cfg, logger)
	defer closeCache()

	gateway, err := payment.NewGateway(cfg.PayHereMerchantID, cfg.PayHereMerchantSecret, cfg.PayHereCheckoutURL, cfg.PayHereCurrency)
	if err != nil {
		logger.Fatal("payment gateway", zap.Error(err))
	}

	productStore := database.NewProductStore(db)
	settingsStore := database.NewSettingsStore(db)

	couponEngine, err := coupon.NewEngine(coupon.EngineDeps{
		Store:  database.NewCouponStore(db),
		Logger: logger.Named("coupon"),
	})
	if err != nil {
		logger.Fatal("coupon engine", zap.Error(err))
	}

	orderService, err := orders.NewService(orders.Deps{
		Catalog:  productStore,
		Stock:    productStore,
		Coupons:  couponEngine,
		Orders:   database.NewOrderStore(db),
		Shipping: settingsStore,
		Gateway:  gateway,
		Events:   publisher,
		Cache:    statusCache,
		Logger:   logger.Named("orders"),
	})
	if err != nil {
		logger.Fatal("order service", zap.Error(err))
	}

	checkoutURLs := handlers.CheckoutURLs{StorefrontURL: cfg.StorefrontURL, APIBaseURL: cfg.PublicBaseURL}

	r := gin.New()
	r.Use(middleware.RequestLogger(logger.Named("http")), gin.Recovery())

	r.GET("/healthz", handlers.Health(func(ctx context.Context) error { return database.Ping(ctx, db) }))

	r.POST("/admin/login", handlers.AdminLogin(database.NewAdminStore(db), cfg.JWTSecret, cfg.AccessTokenTTL))

	r.GET("/products", handlers.GetProducts(productStore))
	r.GET("/products/:id", handlers.GetProduct(productStore))

	r.POST("/orders", handlers.CreateOrder(orderService, cfg.JWTSecret))
	r.GET("/orders/:id", handlers.GetOrder(orderService, cfg.JWTSecret))
	r.GET("/orders/:id/status", handlers.GetOrderStatus(orderService))
	r.POST("/orders/:id/checkout", handlers.Checkout(orderService, checkoutURLs))

	r.POST("/payments/notify", handlers.PaymentNotify(orderService))
	r.GET("/payments/notify", handlers.PaymentNotify(orderService))

	user := r.Group("/user")
	user.Use(middleware.UserAuth(cfg.JWTSecret))
	{
		user.GET("/orders", handlers.GetUserOrders(orderService))
	}

	admin := r.Group("/admin/api")
	admin.Use(middleware.AdminAuth(cfg.JWTSecret))
	{
		admin.GET("/me", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"ok": true})
		})

		admin.GET("/orders", handlers.GetAllOrders(orderService))
		admin.PATCH("/orders/:id", handlers.UpdateOrder(orderService))
		admin.POST("/orders/:id/cancel", handlers.CancelOrder(orderService))

		admin.GET("/coupons", handlers.GetCoupons(couponEngine))
		admin.POST("/coupons", handlers.CreateCoupon(couponEngine))
		admin.POST("/coupons/validate", handlers.ValidateCoupon(couponEngine))

		admin.GET("/shipping", handlers.GetShippingConfig(settingsStore))
		admin.PUT("/shipping", handlers.UpdateShippingConfig(settingsStore))
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func ensureIndexes(db *mongo.Database, logger *zap.Logger) {
	ensure := map[string]func(*mongo.Database, *zap.Logger) error{
		"products": database.EnsureProductIndexes,
		"coupons":  database.EnsureCouponIndexes,
		"orders":   database.EnsureOrderIndexes,
		"admins":   database.EnsureAdminIndexes,
	}
	for name, fn := range ensure {
		if err := fn(db, logger); err != nil {
			logger.Warn("index warning", zap.String("collection", name), zap.Error(err))
		}
	}
}

// newPublisher returns the Kafka producer when brokers are configured and a
// no-op publisher otherwise. The returned func flushes and stops it.
func newPublisher(cfg config.Config, logger *zap.Logger) (events.Publisher, func()) {
	if len(cfg.KafkaBrokers) == 0 {
		logger.Info("kafka disabled, order events are not published")
		return events.Nop{}, func() {}
	}
	producer := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.ServiceName, 1024, logger.Named("events"))
	producer.Start()
	logger.Info("kafka producer started", zap.String("brokers", strings.Join(cfg.KafkaBrokers, ",")))
	return producer, func() {
		producer.Close()
		producer.WaitClosed()
	}
}

// newStatusCache returns the redis status cache when configured and reachable,
// and a no-op cache otherwise. The returned func closes the redis client.
func newStatusCache(cfg config.Config, logger *zap.Logger) (cache.StatusCache, func()) {
	if cfg.RedisAddr == "" {
		logger.Info("redis disabled, order status served from mongo")
		return cache.Nop{}, func() {}
	}
	client := cache.NewRedisClient(cfg.RedisAddr)
	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("redis unreachable, continuing without status cache", zap.Error(err))
		_ = client.Close()
		return cache.Nop{}, func() {}
	}
	statusCache := cache.NewRedisStatusCache(client, cfg.ServiceName)
	return statusCache, func() {
		if err := statusCache.Close(); err != nil {
			logger.Warn("redis close", zap.Error(err))
		}
	}
}
