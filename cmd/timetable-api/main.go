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
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/campushq/timetable-api/api/swagger"
	"github.com/campushq/timetable-api/internal/handler"
	"github.com/campushq/timetable-api/internal/middleware"
	"github.com/campushq/timetable-api/internal/models"
	"github.com/campushq/timetable-api/internal/repository"
	"github.com/campushq/timetable-api/internal/service"
	"github.com/campushq/timetable-api/pkg/cache"
	"github.com/campushq/timetable-api/pkg/config"
	"github.com/campushq/timetable-api/pkg/database"
	"github.com/campushq/timetable-api/pkg/jobs"
	"github.com/campushq/timetable-api/pkg/logger"
	corsmiddleware "github.com/campushq/timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/campushq/timetable-api/pkg/middleware/requestid"
)

// @title CampusHQ Timetable API
// @version 1.0.0
// @description Class scheduling, enrollment and calendar service
// @BasePath /
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
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	cacheEnabled := cfg.Calendar.CacheEnabled
	var redisClient *redis.Client
	if cacheEnabled {
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Warn("redis unavailable, calendar cache disabled", zap.Error(err))
			cacheEnabled = false
		} else {
			redisClient = client
			defer client.Close()
		}
	}

	instanceRepo := repository.NewScheduledInstanceRepository(db)
	enrollmentRepo := repository.NewEnrollmentRepository(db)
	classDefRepo := repository.NewClassDefinitionRepository(db)
	availabilityRepo := repository.NewAvailabilityRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Calendar.CacheTTL, logr, cacheEnabled)
	conflictSvc := service.NewConflictService(instanceRepo, enrollmentRepo, logr)
	schedulingSvc := service.NewSchedulingService(instanceRepo, enrollmentRepo, conflictSvc, classDefRepo, db, nil, logr)
	enrollmentSvc := service.NewEnrollmentService(enrollmentRepo, instanceRepo, conflictSvc, classDefRepo, db, nil, logr)
	waitlistSvc := service.NewWaitlistService(enrollmentRepo, instanceRepo, classDefRepo, db, nil, logr)
	capacitySvc := service.NewCapacityService(enrollmentRepo, instanceRepo, classDefRepo, logr)
	querySvc := service.NewScheduleQueryService(instanceRepo, enrollmentRepo, availabilityRepo, cacheSvc, logr)

	dispatcher := service.NewEventDispatcher(jobs.QueueConfig{
		Workers:    cfg.Events.Workers,
		BufferSize: cfg.Events.BufferSize,
		MaxRetries: cfg.Events.MaxRetries,
		RetryDelay: cfg.Events.RetryDelay,
		Logger:     logr,
	}, logr)
	auditSubscriber := func(ctx context.Context, eventType string, payload []byte) error {
		logr.Info("domain event", zap.String("type", eventType), zap.ByteString("payload", payload))
		return nil
	}
	dispatcher.Subscribe(models.EventStudentEnrolled, auditSubscriber)
	dispatcher.Subscribe(models.EventEnrollmentStatusChanged, auditSubscriber)

	timetableSvc := service.NewTimetableService(
		schedulingSvc, enrollmentSvc, waitlistSvc, capacitySvc,
		querySvc, cacheSvc, dispatcher, metricsSvc, logr,
	)
	exportSvc := service.NewExportService(querySvc, logr)
	authCfg := service.AuthConfig{Secret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer}
	if cfg.JWT.Audience != "" {
		authCfg.Audience = []string{cfg.JWT.Audience}
	}
	authSvc := service.NewAuthService(authCfg, logr)

	scheduleHandler := handler.NewScheduleHandler(timetableSvc)
	enrollmentHandler := handler.NewEnrollmentHandler(timetableSvc)
	waitlistHandler := handler.NewWaitlistHandler(timetableSvc)
	calendarHandler := handler.NewCalendarHandler(timetableSvc)
	exportHandler := handler.NewExportHandler(exportSvc)
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

	registerRoutes(r.Group(cfg.APIPrefix), cfg, authSvc,
		scheduleHandler, enrollmentHandler, waitlistHandler, calendarHandler, exportHandler)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatcher.Start(ctx)
	defer dispatcher.Stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func registerRoutes(
	api *gin.RouterGroup,
	cfg *config.Config,
	authSvc *service.AuthService,
	schedules *handler.ScheduleHandler,
	enrollments *handler.EnrollmentHandler,
	waitlists *handler.WaitlistHandler,
	calendars *handler.CalendarHandler,
	exports *handler.ExportHandler,
) {
	auth := api.Group("", middleware.JWT(authSvc))

	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleInstructor)

	scheduleGroup := auth.Group("/schedules")
	{
		scheduleGroup.POST("", staff, schedules.Create)
		scheduleGroup.GET("/:id", schedules.Get)
		scheduleGroup.PATCH("/:id/status", staff, schedules.UpdateStatus)
		scheduleGroup.POST("/:id/cancel", staff, schedules.Cancel)
		scheduleGroup.GET("/:id/capacity", calendars.InstanceCapacity)
		scheduleGroup.GET("/:id/waitlist", staff, waitlists.Queue)
	}

	enrollmentGroup := auth.Group("/enrollments")
	{
		enrollmentGroup.POST("", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), enrollments.Create)
		enrollmentGroup.GET("/:id", enrollments.Get)
		enrollmentGroup.POST("/:id/attendance", staff, enrollments.MarkAttendance)
		enrollmentGroup.POST("/:id/cancel", enrollments.Cancel)
	}

	auth.POST("/waitlists", middleware.RequireRoles(models.RoleAdmin, models.RoleStudent), waitlists.Join)

	studentGroup := auth.Group("/students/:id", middleware.RBAC(string(models.RoleAdmin), string(models.RoleInstructor), "SELF"))
	{
		studentGroup.GET("/calendar", calendars.StudentCalendar)
		if cfg.Exports.Enabled {
			studentGroup.GET("/timetable/export", exports.StudentTimetable)
		}
	}

	instructorGroup := auth.Group("/instructors/:id")
	{
		instructorGroup.GET("/schedule", schedules.ListByInstructor)
		instructorGroup.GET("/calendar", middleware.RBAC(string(models.RoleAdmin), "SELF"), calendars.InstructorCalendar)
		if cfg.Exports.Enabled {
			instructorGroup.GET("/timetable/export", middleware.RBAC(string(models.RoleAdmin), "SELF"), exports.InstructorTimetable)
		}
	}

	auth.GET("/class-definitions/:id/capacity", calendars.ClassDefinitionCapacity)
}
