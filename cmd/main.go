package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	echoMiddleware "github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/zap"

	_ "servicehub/docs"
	"servicehub/internal/caching"
	"servicehub/internal/common"
	"servicehub/internal/config"
	"servicehub/internal/handlers"
	"servicehub/internal/jobs/background"
	"servicehub/internal/middleware"
	"servicehub/internal/models"
	"servicehub/internal/repositories"
	"servicehub/internal/services"
	"servicehub/pkg/database"
)

// @title ServiceHub API
// @version 1.0
// @description Local services marketplace: accounts, tokens and moderated service listings.
// @BasePath /v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger, err := newLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IsDevelopment() {
		logger.Warn("running in development mode; token secrets may be generated and verification tokens are returned in responses")
	}

	// Database connection
	pool, err := database.NewPool(ctx, cfg.Database.URL, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("failed to apply migrations", zap.Error(err))
		}
	}

	// Redis: login throttling and email verification tokens
	redisClient, err := caching.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("failed to configure redis", zap.Error(err))
	}
	defer redisClient.Close()
	cacheSvc := caching.NewRedisCacheService(redisClient, logger)
	if err := cacheSvc.Ping(ctx); err != nil {
		logger.Warn("redis unreachable, login throttling disabled until it recovers", zap.Error(err))
	}

	// MinIO: listing images
	minioSvc, err := services.NewMinioService(cfg.Minio.Endpoint, cfg.Minio.AccessKey, cfg.Minio.SecretKey, cfg.Minio.UseSSL, cfg.Minio.Bucket)
	if err != nil {
		logger.Fatal("failed to initialize MinIO service", zap.Error(err))
	}
	if err := minioSvc.EnsureBucketExists(ctx); err != nil {
		logger.Warn("could not ensure image bucket", zap.String("bucket", cfg.Minio.Bucket), zap.Error(err))
	}

	// Repositories
	userRepo := repositories.NewUserRepo(pool)
	listingRepo := repositories.NewListingRepo(pool)

	// Services
	tokenSvc := services.NewTokenService(userRepo, cfg.Token, logger)
	userSvc := services.NewUserService(userRepo, listingRepo, tokenSvc, cacheSvc, cfg.Security, logger)
	listingSvc := services.NewListingService(listingRepo, minioSvc, logger)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc, logger)
	rbacMiddleware := middleware.NewRBACMiddleware(logger)
	versionMiddleware := middleware.NewVersionMiddleware()
	auditMiddleware := middleware.NewAuditMiddleware(logger)

	// Handlers
	authHandlers := handlers.NewAuthHandlers(userSvc, tokenSvc, logger, cfg.IsDevelopment())
	listingHandlers := handlers.NewListingHandlers(listingSvc, logger)
	userHandlers := handlers.NewUserHandlers(userSvc, logger)
	healthHandlers := handlers.NewHealthHandlers(pool, cacheSvc, minioSvc, logger, cfg.App.Version)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		_ = common.RespondError(c, logger, err)
	}

	e.Use(echoMiddleware.RequestLoggerWithConfig(echoMiddleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v echoMiddleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			)
			return nil
		},
	}))
	e.Use(echoMiddleware.Recover())
	e.Use(echoMiddleware.RequestID())
	e.Use(echoMiddleware.CORSWithConfig(echoMiddleware.CORSConfig{
		AllowOrigins: cfg.HTTP.AllowedOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	e.Pre(echoMiddleware.RemoveTrailingSlash())
	e.Use(echoMiddleware.BodyLimit("6M"))

	// API versioning
	e.Use(versionMiddleware.APIVersionResolver())

	// Health and docs
	e.GET("/health", healthHandlers.HealthCheck)
	e.GET("/health/ready", healthHandlers.ReadinessCheck)
	e.GET("/health/live", healthHandlers.LivenessCheck)
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	v1 := e.Group("/v1", versionMiddleware.VersionHeader("v1"))
	requireAuth := authMiddleware.RequireAuth()

	auth := v1.Group("/auth")
	auth.POST("/register", authHandlers.Register)
	auth.POST("/login", authHandlers.Login)
	auth.POST("/refresh", authHandlers.Refresh)
	auth.POST("/verify-email", authHandlers.VerifyEmail)
	auth.POST("/logout", authHandlers.Logout, requireAuth)
	auth.GET("/me", authHandlers.Me, requireAuth)
	auth.DELETE("/me", authHandlers.DeleteMe, requireAuth)
	auth.PUT("/password", authHandlers.ChangePassword, requireAuth)
	auth.POST("/verify-email/request", authHandlers.RequestEmailVerification, requireAuth)

	listings := v1.Group("/services")
	listings.GET("", listingHandlers.ListPublic)
	listings.GET("/categories", listingHandlers.Categories)
	listings.GET("/mine", listingHandlers.ListMine, requireAuth, rbacMiddleware.RequireRole(models.RoleProvider))
	listings.GET("/:id", listingHandlers.Get, authMiddleware.OptionalAuth())
	listings.POST("", listingHandlers.Create, requireAuth, rbacMiddleware.RequireRole(models.RoleProvider))
	listings.PUT("/:id", listingHandlers.Update, requireAuth)
	listings.PATCH("/:id/active", listingHandlers.SetActive, requireAuth)
	listings.POST("/:id/image", listingHandlers.UploadImage, requireAuth)

	v1.GET("/providers/:id", userHandlers.GetProvider)

	admin := v1.Group("/admin", requireAuth, rbacMiddleware.RequireAdmin(), auditMiddleware.AuditRequest())
	admin.GET("/services/pending", listingHandlers.ListPending)
	admin.POST("/services/:id/approve", listingHandlers.Approve)
	admin.POST("/services/:id/reject", listingHandlers.Reject)
	admin.DELETE("/users/:id", userHandlers.DeactivateUser)

	// Background jobs
	var scheduler *background.JobScheduler
	if cfg.Scheduler.Enabled {
		scheduler, err = background.NewJobScheduler(cfg.Scheduler, userRepo, listingSvc, logger)
		if err != nil {
			logger.Fatal("failed to create job scheduler", zap.Error(err))
		}
		scheduler.Start()
	}

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
		logger.Info("starting server", zap.String("addr", addr), zap.String("env", cfg.App.Env))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", zap.Error(err))
	}
	if scheduler != nil {
		if err := scheduler.Stop(); err != nil {
			logger.Error("scheduler shutdown failed", zap.Error(err))
		}
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
