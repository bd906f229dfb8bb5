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
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-progress-api/api/swagger"
	"github.com/noah-isme/sma-progress-api/internal/handler"
	internalmiddleware "github.com/noah-isme/sma-progress-api/internal/middleware"
	"github.com/noah-isme/sma-progress-api/internal/repository"
	"github.com/noah-isme/sma-progress-api/internal/router"
	"github.com/noah-isme/sma-progress-api/internal/service"
	"github.com/noah-isme/sma-progress-api/pkg/cache"
	"github.com/noah-isme/sma-progress-api/pkg/config"
	"github.com/noah-isme/sma-progress-api/pkg/database"
	"github.com/noah-isme/sma-progress-api/pkg/events"
	"github.com/noah-isme/sma-progress-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-progress-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-progress-api/pkg/middleware/requestid"
)

// @title SMA Progress API
// @version 1.0.0
// @description Enrollment, intensification and weighted average service for teacher UIs
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 10 * time.Second

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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := service.NewMetricsService()
	validate := validator.New()

	backend := repository.NewBackendClient(cfg.Backend, metrics, logr)
	studentRepo := repository.NewStudentRepository(backend)
	enrollmentRepo := repository.NewEnrollmentRepository(backend)
	assignmentRepo := repository.NewThemeAssignmentRepository(backend)
	remedialRepo := repository.NewRemedialRepository(backend)
	snapshotRepo := repository.NewSnapshotRepository(backend)

	publisher, err := events.Connect(cfg.Events, logr)
	if err != nil {
		logr.Fatal("failed to connect to nats", zap.Error(err))
	}
	defer publisher.Close()
	dispatcher := events.NewDispatcher(publisher, events.DispatcherConfig{
		Workers:    cfg.Events.Workers,
		MaxRetries: cfg.Events.MaxRetries,
		Logger:     logr,
	})
	dispatcher.Start(ctx)

	var cacheRepo service.CacheRepository
	if cfg.Reports.CacheEnabled {
		redisClient, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("report cache disabled: redis unavailable", zap.Error(err))
		} else {
			defer redisClient.Close() //nolint:errcheck
			cacheRepo = repository.NewCacheRepository(redisClient, logr)
		}
	}
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Reports.CacheTTL, logr, cfg.Reports.CacheEnabled)

	commandDeps := service.CommandServiceDeps{Logger: logr}
	if cfg.Journal.Enabled {
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			logr.Fatal("failed to connect to journal database", zap.Error(err))
		}
		defer db.Close() //nolint:errcheck
		if err := database.EnsureJournalSchema(ctx, db); err != nil {
			logr.Fatal("failed to prepare journal schema", zap.Error(err))
		}
		commandDeps.Repo = repository.NewCommandRepository(db)
	}

	locks := service.NewKeyedMutex()
	executor := service.NewSequentialExecutor(metrics, logr)
	snapshots := service.NewSnapshotService(snapshotRepo, cfg.Snapshot.MaxAge, metrics, cacheSvc, dispatcher, logr)
	reconciler := service.NewStatusReconciler(studentRepo, snapshots, dispatcher, metrics, logr)

	commandDeps.Enrollments = enrollmentRepo
	commandDeps.Snapshots = snapshots
	commandDeps.Reconciler = reconciler
	commandDeps.Executor = executor
	commandDeps.Locks = locks
	commandDeps.Events = dispatcher
	commands := service.NewCommandService(commandDeps)

	engine := service.NewThemeAssignmentService(service.ThemeAssignmentServiceDeps{
		Assignments: assignmentRepo,
		Remedials:   remedialRepo,
		Snapshots:   snapshots,
		Reconciler:  reconciler,
		Executor:    executor,
		Journal:     commands,
		Locks:       locks,
		Validator:   validate,
		Logger:      logr,
	})
	commands.AttachEngine(engine)

	enrollment := service.NewEnrollmentService(service.EnrollmentServiceDeps{
		Enrollments: enrollmentRepo,
		Engine:      engine,
		Snapshots:   snapshots,
		Reconciler:  reconciler,
		Executor:    executor,
		Journal:     commands,
		Locks:       locks,
		Validator:   validate,
		Logger:      logr,
	})
	students := service.NewStudentService(service.StudentServiceDeps{
		Students:  studentRepo,
		Engine:    engine,
		Snapshots: snapshots,
		Executor:  executor,
		Journal:   commands,
		Locks:     locks,
		Events:    dispatcher,
		Metrics:   metrics,
		Logger:    logr,
	})
	grades := service.NewGradeService(snapshots, cacheSvc, validate, logr)
	auth := service.NewAuthService(logr, service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret})

	if _, err := snapshots.Current(ctx); err != nil {
		logr.Warn("initial snapshot load failed; will retry on first request", zap.Error(err))
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(metrics))

	router.Register(r, cfg, router.Dependencies{
		StudentHandler:    handler.NewStudentHandler(students, validate),
		EnrollmentHandler: handler.NewEnrollmentHandler(enrollment),
		ThemeHandler:      handler.NewThemeHandler(engine),
		GradeHandler:      handler.NewGradeHandler(grades, validate),
		SnapshotHandler:   handler.NewSnapshotHandler(snapshots),
		CommandHandler:    handler.NewCommandHandler(commands, validate),
		MetricsHandler:    handler.NewMetricsHandler(metrics, snapshots),
		Tokens:            auth,
	})

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "journal", commands.Enabled(), "reportCache", cacheSvc.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	dispatcher.Stop(shutdownCtx)
}
