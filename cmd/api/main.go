package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "backoffice/api/swagger" // swagger docs
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/handler"
	"backoffice/internal/httpclient"
	"backoffice/internal/logger"
	"backoffice/internal/middleware"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/internal/session"
	"backoffice/internal/upstream"
	"backoffice/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           Procurement Back Office API
// @version         1.0
// @description     Editing sessions for purchase invoices and inbound deliveries on top of the procurement REST API.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	configFile := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.NewConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logr, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logr.Sync() }()

	secret, err := cfg.JWTSecret()
	if err != nil {
		logr.Fatalw("invalid auth config", "error", err)
	}

	db, err := database.NewConnection(cfg.Database, logr)
	if err != nil {
		logr.Fatalw("database connection failed", "driver", cfg.Database.Driver, "error", err)
	}
	logr.Infow("database connected", "driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up WebSocket Hub
	wsHub := websocket.NewHub(logr.With("component", "websocket"))
	go wsHub.Run(ctx.Done())

	// Upstream REST API
	transport := httpclient.NewRetryClient(httpclient.ClientConfig{
		Timeout:      cfg.Upstream.Timeout,
		RetryMax:     cfg.Upstream.RetryMax,
		RetryWaitMin: cfg.Upstream.RetryWaitMin,
		RetryWaitMax: cfg.Upstream.RetryWaitMax,
	}, logr.With("component", "upstream"))
	api := upstream.NewClient(cfg.Upstream.BaseURL, transport)

	// Repository -> Service -> Handler
	submissionRepo := repository.NewSubmissionRepository(db)
	sessions := session.NewStore(cfg.Session.TTL, cfg.Session.CleanupInterval)

	catalogService := service.NewCatalogService(api, cfg.Catalog.CacheTTL, logr)
	procurementService := service.NewProcurementService(sessions, api, catalogService, submissionRepo, wsHub, logr)
	reportService := service.NewReportService(api, logr)
	auditService := service.NewAuditService(submissionRepo, repository.NewTransactionManager(db))

	procurementHandler := handler.NewProcurementHandler(procurementService)
	catalogHandler := handler.NewCatalogHandler(catalogService)
	reportHandler := handler.NewReportHandler(reportService)
	submissionHandler := handler.NewSubmissionHandler(auditService)

	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logr))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.AllowedOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.HeaderRequestID}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition", middleware.HeaderRequestID}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "sessions": sessions.Count()})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, secret, func(sessionID, userID string) bool {
			sess, err := sessions.Get(sessionID)
			return err == nil && sess.OwnedBy(userID)
		})
	})

	protected := router.Group("", middleware.RequireAuth(secret))
	procurementHandler.RegisterRoutes(protected)
	catalogHandler.RegisterRoutes(protected)
	reportHandler.RegisterRoutes(protected)
	submissionHandler.RegisterRoutes(protected)

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Infow("server listening", "address", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Errorw("graceful shutdown failed", "error", err)
	}
}
