package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/rollbook/rollbook-api/api/swagger"
	"github.com/rollbook/rollbook-api/internal/handler"
	"github.com/rollbook/rollbook-api/internal/middleware"
	"github.com/rollbook/rollbook-api/internal/repository"
	"github.com/rollbook/rollbook-api/internal/service"
	"github.com/rollbook/rollbook-api/pkg/cache"
	"github.com/rollbook/rollbook-api/pkg/config"
	"github.com/rollbook/rollbook-api/pkg/database"
	"github.com/rollbook/rollbook-api/pkg/logger"
	corsmiddleware "github.com/rollbook/rollbook-api/pkg/middleware/cors"
	reqidmiddleware "github.com/rollbook/rollbook-api/pkg/middleware/requestid"
)

// @title Rollbook API
// @version 1.0.0
// @description Attendance tracking API for small schools.
// @BasePath /api
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metrics := service.NewMetricsService()

	var cacheSvc *service.CacheService
	if cfg.Cache.Enabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("failed to connect to redis", "error", err)
		}
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		defer cacheRepo.Close() //nolint:errcheck
		cacheSvc = service.NewCacheService(cacheRepo, metrics, cfg.Cache.RosterTTL, logr, true)
	} else {
		cacheSvc = service.NewCacheService(nil, metrics, 0, logr, false)
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	attendanceRepo := repository.NewAttendanceRepository(db)
	logRepo := repository.NewLogRepository(db)
	gradeRepo := repository.NewGradeRepository(db)

	authSvc := service.NewAuthService(userRepo, logRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	userSvc := service.NewUserService(userRepo, logRepo, validate, logr)
	studentSvc := service.NewStudentService(studentRepo, logRepo, cacheSvc, validate, logr)
	attendanceSvc := service.NewAttendanceService(attendanceRepo, studentRepo, logRepo, cacheSvc, cfg.Cache.MonthTTL, validate, logr)
	rosterSvc := service.NewRosterService(studentRepo, logRepo, attendanceRepo, cacheSvc, cfg.Cache.RosterTTL, logr)
	gradeSvc := service.NewGradeService(gradeRepo, studentRepo, logRepo, validate, logr)
	logSvc := service.NewLogService(logRepo, logr)
	exportSvc := service.NewExportService(attendanceRepo, cfg.Exports.MaxRangeDays, logr)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	metricsHandler := handler.NewMetricsHandler(metrics)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	handler.RegisterRoutes(r, cfg.APIPrefix, authSvc, handler.Handlers{
		Auth:       handler.NewAuthHandler(authSvc, userSvc),
		Users:      handler.NewUserHandler(userSvc),
		Students:   handler.NewStudentHandler(studentSvc, rosterSvc),
		Attendance: handler.NewAttendanceHandler(attendanceSvc, rosterSvc),
		Grades:     handler.NewGradeHandler(gradeSvc),
		Logs:       handler.NewLogHandler(logSvc),
		Exports:    handler.NewExportHandler(exportSvc),
	})

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
