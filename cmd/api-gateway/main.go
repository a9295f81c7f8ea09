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

	_ "github.com/noah-isme/phd-portal-api/api/swagger"
	"github.com/noah-isme/phd-portal-api/internal/handler"
	"github.com/noah-isme/phd-portal-api/internal/middleware"
	"github.com/noah-isme/phd-portal-api/internal/models"
	"github.com/noah-isme/phd-portal-api/internal/repository"
	"github.com/noah-isme/phd-portal-api/internal/service"
	"github.com/noah-isme/phd-portal-api/pkg/cache"
	"github.com/noah-isme/phd-portal-api/pkg/config"
	"github.com/noah-isme/phd-portal-api/pkg/database"
	"github.com/noah-isme/phd-portal-api/pkg/jobs"
	"github.com/noah-isme/phd-portal-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/phd-portal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/phd-portal-api/pkg/middleware/requestid"
	"github.com/noah-isme/phd-portal-api/pkg/storage"
)

// rosterDirectory is the roster surface the services consume; both the raw
// repository and its Redis decorator satisfy it.
type rosterDirectory interface {
	GetStudent(ctx context.Context, rollNo string) (*models.Student, error)
	GetStudentByUserID(ctx context.Context, userID string) (*models.Student, error)
	GetStudentDetail(ctx context.Context, rollNo string) (*models.StudentDetail, error)
	GetFacultyByUserID(ctx context.Context, userID string) (*models.Faculty, error)
	IsSupervisorOf(ctx context.Context, facultyCode, rollNo string) (bool, error)
	IsOnDoctoralCommittee(ctx context.Context, facultyCode, rollNo string) (bool, error)
	IsHodOf(ctx context.Context, facultyCode, rollNo string) (bool, error)
	CoordinatesDepartment(ctx context.Context, facultyCode, rollNo string) (bool, error)
	AdordcDepartments(ctx context.Context, facultyCode string) ([]string, error)
	CoordinatedDepartments(ctx context.Context, facultyCode string) ([]string, error)
	HeadedDepartments(ctx context.Context, facultyCode string) ([]string, error)
	RecipientUserIDs(ctx context.Context, role models.Role, rollNo string) ([]string, error)
}

// @title PhD Portal API
// @version 1.0.0
// @description Multi-role workflow backend for PhD program administration
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close() //nolint:errcheck

	validate := validator.New()

	// Repositories.
	instanceRepo := repository.NewFormInstanceRepository(db)
	ledgerRepo := repository.NewGeneralFormRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	userRepo := repository.NewUserRepository(db)
	rosterRepo := repository.NewRosterRepository(db)

	var roster rosterDirectory = rosterRepo
	if cfg.Roster.CacheEnabled {
		roster = repository.NewCachedRoster(rosterRepo, redisClient, cfg.Roster.CacheTTL, logr)
	}

	// Services.
	metricsService := service.NewMetricsService()
	authService := service.NewAuthService(userRepo, validate, logr, cfg.JWT)
	notificationService := service.NewNotificationService(notificationRepo, roster, redisClient, metricsService, logr, jobs.QueueConfig{
		Workers:    cfg.Notifications.WorkerConcurrency,
		BufferSize: cfg.Notifications.WorkerConcurrency * 16,
		MaxRetries: cfg.Notifications.WorkerRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	})
	notificationService.SetUnreadTTL(cfg.Notifications.UnreadCacheTTL)

	creationService := service.NewFormCreationService(instanceRepo, ledgerRepo, roster, metricsService, logr)
	submissionService := service.NewFormSubmissionService(instanceRepo, roster, notificationService, metricsService, logr, cfg.Forms.BulkLimit)
	listingService := service.NewFormListingService(instanceRepo, roster, logr, cfg.Forms)
	adminService := service.NewFormAdminService(instanceRepo, ledgerRepo, roster, logr)

	var archive *storage.LocalStorage
	var signer *storage.SignedURLSigner
	if cfg.Exports.Enabled {
		archive, err = storage.NewLocalStorage(cfg.Exports.Dir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export archive", "error", err)
		}
		signer = storage.NewSignedURLSigner(cfg.Exports.SignSecret, cfg.Exports.SignTTL)
	}
	exportService := service.NewExportService(listingService, archive, signer, logr, cfg.Exports)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notificationService.Start(ctx)
	defer notificationService.Stop()

	if cfg.Exports.Enabled {
		go func() {
			ticker := time.NewTicker(time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					exportService.CleanupArchive()
				}
			}
		}()
	}

	// Handlers.
	authHandler := handler.NewAuthHandler(authService)
	formHandler := handler.NewFormHandler(creationService, submissionService, listingService, exportService)
	adminHandler := handler.NewAdminFormHandler(adminService, validate)
	notificationHandler := handler.NewNotificationHandler(notificationService)
	metricsHandler := handler.NewMetricsHandler(metricsService)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsService))

	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	authHandler.RegisterPublicRoutes(api)
	formHandler.RegisterPublicRoutes(api)

	authed := api.Group("", middleware.JWT(authService))
	authHandler.RegisterRoutes(authed)
	notificationHandler.RegisterRoutes(authed)
	adminHandler.RegisterRoutes(authed)

	workflow := authed.Group("", middleware.RequireWorkflowRole())
	formHandler.RegisterRoutes(workflow)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: r,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}
