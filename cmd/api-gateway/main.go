package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/campus-tic/projector-loan-api/api/swagger"
	"github.com/campus-tic/projector-loan-api/internal/handler"
	"github.com/campus-tic/projector-loan-api/internal/middleware"
	"github.com/campus-tic/projector-loan-api/internal/repository"
	"github.com/campus-tic/projector-loan-api/internal/service"
	"github.com/campus-tic/projector-loan-api/pkg/cache"
	"github.com/campus-tic/projector-loan-api/pkg/config"
	"github.com/campus-tic/projector-loan-api/pkg/database"
	"github.com/campus-tic/projector-loan-api/pkg/jobs"
	"github.com/campus-tic/projector-loan-api/pkg/logger"
	corsmiddleware "github.com/campus-tic/projector-loan-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campus-tic/projector-loan-api/pkg/middleware/requestid"
	"github.com/campus-tic/projector-loan-api/pkg/storage"
)

// @title Projector Loan API
// @version 1.0.0
// @description Projector reservation and loan lifecycle service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

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
		logr.Sugar().Fatalw("failed to connect to database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	cacheSvc := service.NewCacheService(nil, metricsSvc, cfg.Dashboard.CacheTTL, logr, false)
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, caching disabled", "error", err)
	} else {
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Dashboard.CacheTTL, logr, true)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	projectorRepo := repository.NewProjectorRepository(db)
	loanRepo := repository.NewLoanRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	notificationSvc := service.NewNotificationService(notificationRepo, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
	}, logr)
	notificationSvc.Start(rootCtx)
	defer notificationSvc.Stop()

	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "projector-loan-api",
	})
	if err := authSvc.EnsureAdmin(rootCtx, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, cfg.Bootstrap.AdminName); err != nil {
		logr.Sugar().Fatalw("failed to seed bootstrap admin", "error", err)
	}

	userSvc := service.NewUserService(userRepo, validate, logr)
	projectorSvc := service.NewProjectorService(projectorRepo, validate, logr)
	loanSvc := service.NewLoanService(loanRepo, projectorRepo, notificationSvc, service.BookingRules{
		HorizonWeeks:  cfg.Booking.HorizonWeeks,
		AllowWeekends: cfg.Booking.AllowWeekends,
		MaxDuration:   cfg.Booking.MaxDuration,
	}, validate, logr)
	commentSvc := service.NewCommentService(commentRepo, loanRepo, validate, logr)

	handlers := handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Projectors:    handler.NewProjectorHandler(projectorSvc),
		Loans:         handler.NewLoanHandler(loanSvc),
		Comments:      handler.NewCommentHandler(commentSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Metrics:       handler.NewMetricsHandler(metricsSvc),
	}

	if cfg.Dashboard.Enabled {
		dashboardSvc := service.NewDashboardService(loanRepo, projectorRepo, commentRepo, cacheSvc, logr, service.DashboardServiceConfig{
			CacheTTL: cfg.Dashboard.CacheTTL,
		})
		handlers.Dashboard = handler.NewDashboardHandler(dashboardSvc)
	}

	if cfg.Reports.Enabled {
		reportRepo := repository.NewReportJobRepository(db)
		fileStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init report storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		worker := service.NewReportWorker(reportRepo, loanRepo, fileStore, cfg.Reports.WorkerRetries, logr)
		reportQueue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Reports.WorkerConcurrency,
			MaxRetries: cfg.Reports.WorkerRetries,
			Logger:     logr,
		})
		reportQueue.Start(rootCtx)
		defer reportQueue.Stop()

		reportSvc := service.NewReportService(reportRepo, loanRepo, reportQueue, fileStore, signer, service.ReportServiceConfig{
			APIPrefix:       cfg.APIPrefix,
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		}, logr)
		reportSvc.RecoverPendingJobs(rootCtx)
		reportSvc.StartCleanup(rootCtx)
		handlers.Reports = handler.NewReportHandler(reportSvc)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, cfg.APIPrefix, authSvc, handlers)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Warnw("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
