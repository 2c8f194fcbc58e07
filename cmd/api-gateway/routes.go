package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/handler"
	"github.com/noah-isme/campus-events-api/internal/middleware"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/service"
	"github.com/noah-isme/campus-events-api/pkg/config"
	"github.com/noah-isme/campus-events-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-events-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-events-api/pkg/middleware/requestid"
)

type routerDeps struct {
	metrics       *service.MetricsService
	checks        map[string]handler.ReadinessCheck
	audit         *service.AuditService
	auth          *service.AuthService
	events        *service.EventService
	registrations *service.RegistrationService
	dashboards    *service.DashboardService
	live          *service.LiveService
	reports       *service.ReportService
}

func newRouter(cfg *config.Config, logr *zap.Logger, deps routerDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr, "/health", "/ready", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.metrics))

	metricsHandler := handler.NewMetricsHandler(deps.metrics, deps.checks)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	authMW := middleware.JWT(deps.auth)
	organizerOnly := middleware.RequireRoles(models.RoleOrganizer)
	studentOnly := middleware.RequireRoles(models.RoleStudent)

	authHandler := handler.NewAuthHandler(deps.auth)
	authGroup := api.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.POST("/refresh", authHandler.Refresh)
	authGroup.POST("/logout", authMW, authHandler.Logout)
	authGroup.POST("/change-password", authMW, authHandler.ChangePassword)
	authGroup.GET("/me", authMW, authHandler.Me)

	protected := api.Group("")
	protected.Use(authMW)

	protected.GET("/metrics/summary", organizerOnly, metricsHandler.Summary)

	eventHandler := handler.NewEventHandler(deps.events)
	registrationHandler := handler.NewRegistrationHandler(deps.registrations)
	events := protected.Group("/events")
	events.GET("", eventHandler.List)
	events.GET("/:id", eventHandler.Get)
	events.POST("", organizerOnly, eventHandler.Create)
	events.PUT("/:id", organizerOnly, eventHandler.Update)
	events.DELETE("/:id", organizerOnly, eventHandler.Delete)
	events.POST("/:id/rsvp", studentOnly, registrationHandler.RSVP)
	events.DELETE("/:id/rsvp", studentOnly, registrationHandler.CancelRSVP)
	events.GET("/:id/registrations", organizerOnly, registrationHandler.ListForEvent)

	registrations := protected.Group("/registrations")
	registrations.GET("/mine", studentOnly, registrationHandler.Mine)
	registrations.PATCH("/:id/status", organizerOnly, registrationHandler.UpdateStatus)

	if cfg.Dashboard.Enabled {
		dashboardHandler := handler.NewDashboardHandler(deps.dashboards)
		dashboard := protected.Group("/dashboard", middleware.WithResponseMeta())
		dashboard.GET("/home", dashboardHandler.Home)
		dashboard.GET("/transactions", dashboardHandler.Transactions)
		dashboard.GET("/reports", dashboardHandler.Reports)
	}

	if deps.live != nil {
		liveHandler := handler.NewLiveHandler(deps.live, handler.LiveHandlerConfig{
			PingInterval:   cfg.Live.PingInterval,
			WriteTimeout:   cfg.Live.WriteTimeout,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
		}, logr)
		api.GET("/live/:view", middleware.JWTWithQuery(deps.auth), liveHandler.Stream)
	}

	if deps.reports != nil {
		reportHandler := handler.NewReportHandler(deps.reports)
		reports := protected.Group("/reports", organizerOnly)
		reports.POST("", reportHandler.GenerateReport)
		reports.GET("", reportHandler.ListReports)
		reports.GET("/:id", reportHandler.ReportStatus)
		api.GET("/export/:token",
			middleware.Audit(deps.audit, models.AuditActionExportDownload, "report"),
			reportHandler.DownloadReport,
		)
	}

	return r
}
