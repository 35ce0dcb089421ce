package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/gin-gonic/gin"

	"github.com/interbroker/bridge-api/internal/auth"
	"github.com/interbroker/bridge-api/internal/config"
	"github.com/interbroker/bridge-api/internal/database"
	"github.com/interbroker/bridge-api/internal/orders"
	"github.com/interbroker/bridge-api/internal/reconcile"
	"github.com/interbroker/bridge-api/internal/venue"
	"github.com/interbroker/bridge-api/internal/webhook"
	"github.com/interbroker/bridge-api/pkg/middleware"
)

// init configures logging based on environment settings: pretty console
// output outside production, debug level via DEBUG.
func init() {
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main runs the bridge API server: webhook ingestion, order placement
// over the venue gateway session, and scheduled reconciliation, with
// graceful shutdown.
func main() {
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	configDB := config.NewDatabase(db)
	gatewayCfg, err := configDB.EnsureDefault()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load gateway configuration")
	}

	session := venue.NewSession(gatewayCfg.Host, gatewayCfg.Port, gatewayCfg.ClientID)
	if err := session.Connect(); err != nil {
		// The server still starts; orders fail fast with a 503 until a
		// reconnect succeeds.
		zlog.Warn().Err(err).Msg("venue gateway not reachable at startup")
	}
	defer session.Disconnect()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "bridge-dev-secret"
		zlog.Warn().Msg("JWT_SECRET not set, using development secret")
	}

	authService := auth.NewService(jwtSecret)
	authHandlers := auth.NewGinHandlers(authService)
	if apiKey := os.Getenv("API_KEY"); apiKey != "" {
		authService.RegisterAPICredentials(apiKey, os.Getenv("API_SECRET"))
	}

	orderService := orders.NewService(db, session)
	orderHandlers := orders.NewGinHandlers(orderService)

	webhookService := webhook.NewService(db, orderService)
	webhookHandlers := webhook.NewGinHandlers(webhookService)

	engine := reconcile.NewEngine(orderService.GetDB(), session)
	reconcileHandlers := reconcile.NewGinHandlers(engine)

	configHandlers := config.NewGinHandlers(configDB, session)

	poller := reconcile.NewPoller(engine, 5*time.Minute)
	pollerCtx, pollerCancel := context.WithCancel(context.Background())
	defer pollerCancel()
	go poller.Start(pollerCtx)

	router := gin.Default()
	router.Use(middleware.RateLimit())
	setupRoutes(router, jwtSecret, authHandlers, webhookHandlers, orderHandlers, reconcileHandlers, configHandlers)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// setupRoutes configures the API endpoints:
// - Auth routes: public token issuance
// - Webhook route: signal ingestion
// - Order routes: JWT-protected order management
// - Internal routes: administrative triggers, protected by internal
//   network authentication
func setupRoutes(
	router *gin.Engine,
	jwtSecret string,
	authHandlers *auth.GinHandlers,
	webhookHandlers *webhook.GinHandlers,
	orderHandlers *orders.GinHandlers,
	reconcileHandlers *reconcile.GinHandlers,
	configHandlers *config.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		v1.POST("/webhook", webhookHandlers.IngestHandler())

		ordersGroup := v1.Group("/orders")
		ordersGroup.Use(middleware.JWTAuth(jwtSecret))
		{
			ordersGroup.POST("", orderHandlers.CreateOrderHandler())
			ordersGroup.GET("", orderHandlers.ListOrdersHandler())
			ordersGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			ordersGroup.GET("/local/:local_id", orderHandlers.GetOrderByLocalIDHandler())
			ordersGroup.POST("/:order_id/cancel", orderHandlers.CancelOrderHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(jwtSecret))
		{
			internal.POST("/reconcile", reconcileHandlers.RunHandler())
			internal.GET("/connection", configHandlers.ConnectionStatusHandler())
			internal.POST("/connection", configHandlers.ReconnectHandler())
		}
	}
}
