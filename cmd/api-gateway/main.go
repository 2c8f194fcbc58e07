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
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/noah-isme/campus-events-api/api/swagger"
	"github.com/noah-isme/campus-events-api/internal/handler"
	"github.com/noah-isme/campus-events-api/internal/live"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	"github.com/noah-isme/campus-events-api/internal/service"
	"github.com/noah-isme/campus-events-api/pkg/cache"
	"github.com/noah-isme/campus-events-api/pkg/config"
	"github.com/noah-isme/campus-events-api/pkg/database"
	"github.com/noah-isme/campus-events-api/pkg/docstore"
	"github.com/noah-isme/campus-events-api/pkg/jobs"
	"github.com/noah-isme/campus-events-api/pkg/logger"
	"github.com/noah-isme/campus-events-api/pkg/storage"
)

// readinessProbeID is a well-formed id that never names a document.
const readinessProbeID = "000000000000000000000000"

// @title Campus Events API
// @version 1.0.0
// @description Event publishing, RSVPs, live dashboards and exports for campus organizers and students.
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

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openDocStore(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("document store unavailable", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logr.Warn("document store close failed", zap.Error(err))
		}
	}()

	var db *sqlx.DB
	if cfg.Database.Enabled {
		db, err = database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			logr.Fatal("postgres unavailable", zap.Error(err))
		}
		defer db.Close()
		if err := database.EnsureSchema(ctx, db); err != nil {
			logr.Fatal("postgres schema", zap.Error(err))
		}
	}

	var redisClient redis.UniversalClient
	if cfg.Redis.Enabled {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		} else {
			redisClient = client
			defer client.Close()
		}
	}

	metricsSvc := service.NewMetricsService()
	validate := validator.New()

	var auditRepo *repository.AuditRepository
	if cfg.Audit.Enabled && db != nil {
		auditRepo = repository.NewAuditRepository(db)
	}
	var auditSvc *service.AuditService
	if auditRepo != nil {
		auditSvc = service.NewAuditService(auditRepo, logr)
	} else {
		auditSvc = service.NewAuditService(nil, logr)
	}

	var cacheRepo service.CacheRepository
	if redisClient != nil {
		cacheRepo = repository.NewCacheRepository(redisClient, logr)
	}
	cacheSvc := service.NewCacheService(service.CacheServiceParams{
		Repo:       cacheRepo,
		Metrics:    metricsSvc,
		Logger:     logr,
		DefaultTTL: cfg.Dashboard.CacheTTL,
	})

	dashboardSvc := service.NewDashboardService(service.DashboardServiceParams{
		Store:   store,
		Cache:   cacheSvc,
		Metrics: metricsSvc,
		Logger:  logr,
		Config: service.DashboardServiceConfig{
			CacheTTL:       cfg.Dashboard.CacheTTL,
			TopN:           cfg.Dashboard.TopCategories,
			UpcomingLimit:  cfg.Dashboard.UpcomingLimit,
			CalendarMonths: cfg.Dashboard.CalendarMonths,
		},
	})
	viewCfg := dashboardSvc.ViewConfig()

	authSvc := service.NewAuthService(service.AuthServiceParams{
		Accounts:  repository.NewAccountRepository(store),
		Tokens:    repository.NewTokenRepository(store),
		Audit:     auditSvc,
		Validator: validate,
		Logger:    logr,
		Config: service.AuthConfig{
			AccessTokenSecret:  cfg.JWT.Secret,
			AccessTokenExpiry:  cfg.JWT.Expiration,
			RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
			Issuer:             "campus-events-api",
		},
	})

	eventSvc := service.NewEventService(service.EventServiceParams{
		Repo:       repository.NewEventRepository(store),
		Audit:      auditSvc,
		Dashboards: dashboardSvc,
		Validator:  validate,
		Logger:     logr,
	})

	registrationSvc := service.NewRegistrationService(service.RegistrationServiceParams{
		Repo:       repository.NewRegistrationRepository(store),
		Events:     eventSvc,
		Audit:      auditSvc,
		Dashboards: dashboardSvc,
		Validator:  validate,
		Logger:     logr,
	})

	var liveSvc *service.LiveService
	if cfg.Live.Enabled {
		liveSvc = service.NewLiveService(service.LiveServiceParams{
			Store:       store,
			Auth:        authSvc,
			Metrics:     metricsSvc,
			Logger:      logr,
			ViewConfig:  viewCfg,
			MaxSessions: cfg.Live.MaxSessions,
		})
	}

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		if db == nil {
			logr.Warn("reports require postgres; report endpoints disabled")
		} else {
			var queue *jobs.Queue
			reportSvc, queue, err = setupReports(ctx, cfg, store, db, eventSvc, auditSvc, metricsSvc, validate, viewCfg, logr)
			if err != nil {
				logr.Fatal("reports setup", zap.Error(err))
			}
			defer queue.Stop()
		}
	}

	checks := map[string]handler.ReadinessCheck{
		"docstore": func(ctx context.Context) error {
			_, err := store.Get(ctx, models.CollectionEvents, readinessProbeID)
			if errors.Is(err, docstore.ErrNotFound) {
				return nil
			}
			return err
		},
	}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	r := newRouter(cfg, logr, routerDeps{
		metrics:       metricsSvc,
		checks:        checks,
		audit:         auditSvc,
		auth:          authSvc,
		events:        eventSvc,
		registrations: registrationSvc,
		dashboards:    dashboardSvc,
		live:          liveSvc,
		reports:       reportSvc,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env, "docstore", cfg.DocStore.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if liveSvc != nil {
		liveSvc.Shutdown()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("server forced to shutdown", zap.Error(err))
	}
}

func openDocStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (docstore.Store, error) {
	switch cfg.DocStore.Driver {
	case config.DocStoreMongo:
		store, err := docstore.NewMongoStore(ctx, docstore.MongoConfig{
			URI:            cfg.DocStore.MongoURI,
			Database:       cfg.DocStore.MongoDatabase,
			ConnectTimeout: cfg.DocStore.ConnectTimeout,
		}, logr)
		if err != nil {
			return nil, err
		}
		if err := store.EnsureIndexes(ctx, repository.DocumentIndexes); err != nil {
			_ = store.Close(context.Background())
			return nil, err
		}
		return store, nil
	case config.DocStoreMemory, "":
		logr.Warn("using in-memory document store; data is lost on restart")
		return docstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown document store driver %q", cfg.DocStore.Driver)
	}
}

func setupReports(
	ctx context.Context,
	cfg *config.Config,
	store docstore.Store,
	db *sqlx.DB,
	events *service.EventService,
	audit *service.AuditService,
	metrics *service.MetricsService,
	validate *validator.Validate,
	viewCfg live.ViewConfig,
	logr *zap.Logger,
) (*service.ReportService, *jobs.Queue, error) {
	files, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		return nil, nil, fmt.Errorf("report storage: %w", err)
	}
	reportRepo := repository.NewReportRepository(db)
	exporter := service.NewExportService(service.ExportServiceParams{
		Store:   store,
		Storage: files,
		Signer:  storage.NewDownloadSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL),
		Logger:  logr,
		Config: service.ExportConfig{
			APIPrefix:  cfg.APIPrefix,
			ResultTTL:  cfg.Reports.SignedURLTTL,
			ViewConfig: viewCfg,
		},
	})

	worker := service.NewReportWorker(reportRepo, exporter, metrics, logr)
	queue := jobs.NewQueue("reports", worker.Handle, jobs.QueueConfig{
		Workers:       cfg.Reports.WorkerConcurrency,
		MaxRetries:    cfg.Reports.WorkerRetries,
		RetryDelay:    cfg.Reports.RetryDelay,
		MaxRetryDelay: cfg.Reports.MaxRetryDelay,
		Logger:        logr,
		OnExhausted:   worker.Exhausted,
		OnResult: func(job jobs.Job, err error, took time.Duration) {
			metrics.ObserveJobRun(job.Type, err, took)
		},
	})
	queue.Start(ctx)

	reportSvc := service.NewReportService(service.ReportServiceParams{
		Repo:      reportRepo,
		Events:    events,
		Queue:     queue,
		Exporter:  exporter,
		Audit:     audit,
		Validator: validate,
		Logger:    logr,
		Config: service.ReportServiceConfig{
			ResultTTL:       cfg.Reports.SignedURLTTL,
			CleanupInterval: cfg.Reports.CleanupInterval,
		},
	})
	reportSvc.RecoverPendingJobs(ctx)
	reportSvc.StartCleanup(ctx)
	return reportSvc, queue, nil
}
