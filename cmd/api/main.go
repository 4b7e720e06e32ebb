package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/Chikiak/HospitalPro/api/swagger"
	"github.com/Chikiak/HospitalPro/internal/handler"
	"github.com/Chikiak/HospitalPro/internal/middleware"
	"github.com/Chikiak/HospitalPro/internal/models"
	"github.com/Chikiak/HospitalPro/internal/repository"
	"github.com/Chikiak/HospitalPro/internal/service"
	"github.com/Chikiak/HospitalPro/pkg/cache"
	"github.com/Chikiak/HospitalPro/pkg/config"
	"github.com/Chikiak/HospitalPro/pkg/database"
	"github.com/Chikiak/HospitalPro/pkg/logger"
	corsmiddleware "github.com/Chikiak/HospitalPro/pkg/middleware/cors"
	reqidmiddleware "github.com/Chikiak/HospitalPro/pkg/middleware/requestid"
)

// @title HospitalPro API
// @version 1.0.0
// @description Appointment scheduling and medical record backend
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching and rate limiting disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	allowedRepo := repository.NewAllowedPersonRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	bookingRepo := repository.NewBookingRepository(db)
	recordRepo := repository.NewMedicalRecordRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	defer cacheRepo.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Slots.CacheTTL, logr, cfg.Slots.CacheEnabled && redisClient != nil)

	authSvc := service.NewAuthService(userRepo, allowedRepo, recordRepo, cacheRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
		RateLimitEnabled:   cfg.RateLimit.Enabled && redisClient != nil,
		RateLimitMax:       cfg.RateLimit.MaxAttempts,
		RateLimitWindow:    cfg.RateLimit.Window,
	})
	templateSvc := service.NewTemplateService(templateRepo, cacheSvc, validate, logr)
	slotSvc := service.NewSlotService(templateRepo, bookingRepo, cacheSvc, cfg.Slots, logr)
	bookingSvc := service.NewBookingService(bookingRepo, templateRepo, userRepo, cacheSvc, metricsSvc, validate, logr)
	recordSvc := service.NewMedicalRecordService(recordRepo, userRepo, validate, logr)
	exportSvc := service.NewExportService(recordRepo, userRepo, logr)

	authHandler := handler.NewAuthHandler(authSvc)
	templateHandler := handler.NewTemplateHandler(templateSvc)
	slotHandler := handler.NewSlotHandler(slotSvc)
	bookingHandler := handler.NewBookingHandler(bookingSvc)
	patientHandler := handler.NewPatientHandler(recordSvc, exportSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.POST("/refresh", authHandler.Refresh)
			auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)
			auth.GET("/me", middleware.JWT(authSvc), authHandler.Me)
		}

		api.GET("/system/metrics",
			middleware.JWT(authSvc),
			middleware.RequireRoles(models.RoleAdmin),
			metricsHandler.Snapshot)

		templates := api.Group("/schedule-templates", middleware.JWT(authSvc))
		{
			templates.GET("", templateHandler.List)
			templates.GET("/:id", templateHandler.Get)
			templates.PUT("",
				middleware.RequireRoles(models.RoleAdmin, models.RoleStaff),
				middleware.Audit(userRepo, models.AuditActionTemplateUpsert, "schedule_templates"),
				templateHandler.Upsert)
		}

		api.GET("/slots", middleware.JWT(authSvc), slotHandler.List)

		bookings := api.Group("/bookings", middleware.JWT(authSvc))
		{
			bookings.POST("", bookingHandler.Create)
			bookings.GET("", bookingHandler.List)
			bookings.GET("/:id", bookingHandler.Get)
			bookings.POST("/:id/cancel", bookingHandler.Cancel)
			bookings.POST("/:id/confirm", middleware.RequireRoles(models.RoleAdmin, models.RoleStaff), bookingHandler.Confirm)
			bookings.POST("/:id/complete", middleware.RequireRoles(models.RoleAdmin, models.RoleStaff), bookingHandler.Complete)
		}

		patients := api.Group("/patients", middleware.JWT(authSvc))
		{
			patients.GET("/export", middleware.RequireRoles(models.RoleAdmin, models.RoleStaff), patientHandler.ExportRosterCSV)
			patients.GET("/export/pdf", middleware.RequireRoles(models.RoleAdmin, models.RoleStaff), patientHandler.ExportRosterPDF)
			patients.GET("/:id/medical-record", middleware.RBAC("ADMIN", "STAFF", "SELF"), patientHandler.GetRecord)
			patients.PATCH("/:id/medical-record", middleware.RBAC("ADMIN", "STAFF", "SELF"), patientHandler.UpdateIntake)
			patients.POST("/:id/medical-record/entries", middleware.RequireRoles(models.RoleAdmin, models.RoleStaff), patientHandler.AddEntry)
			patients.GET("/:id/medical-record/pdf", middleware.RBAC("ADMIN", "STAFF", "SELF"), patientHandler.ExportRecordPDF)
		}
	}

	var sweeper *service.SweeperService
	if cfg.Bookings.SweeperEnabled {
		sweeper = service.NewSweeperService(bookingRepo, cfg.Bookings.SweeperSchedule, logr)
		if err := sweeper.Start(); err != nil {
			logr.Sugar().Fatalw("failed to start booking sweeper", "error", err)
		}
		defer sweeper.Stop()
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
