package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/campus-grievance-api/api/swagger"
	"github.com/noah-isme/campus-grievance-api/internal/handler"
	"github.com/noah-isme/campus-grievance-api/internal/middleware"
	"github.com/noah-isme/campus-grievance-api/internal/models"
	"github.com/noah-isme/campus-grievance-api/internal/repository"
	"github.com/noah-isme/campus-grievance-api/internal/service"
	"github.com/noah-isme/campus-grievance-api/pkg/cache"
	"github.com/noah-isme/campus-grievance-api/pkg/config"
	"github.com/noah-isme/campus-grievance-api/pkg/database"
	"github.com/noah-isme/campus-grievance-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-grievance-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-grievance-api/pkg/middleware/requestid"
)

// @title Campus Grievance API
// @version 1.0.0
// @description Campus grievance ticketing workflow
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
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, listing cache disabled", "error", err)
		redisClient = nil
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	grievanceRepo := repository.NewGrievanceRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	grievanceSvc := service.NewGrievanceService(
		grievanceRepo,
		service.NewAccessPolicy(),
		service.NewStatusWorkflow(cfg.Grievances.LockClosed),
		userRepo,
		cacheRepo,
		metricsSvc,
		cfg.Grievances.CacheTTL,
		validate,
		logr,
	)

	authHandler := handler.NewAuthHandler(authSvc)
	grievanceHandler := handler.NewGrievanceHandler(grievanceSvc, metricsSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", middleware.JWT(authSvc), authHandler.Logout)

	grievances := api.Group("/grievances", middleware.JWT(authSvc))
	grievances.POST("", middleware.RequireRoles(models.RoleStudent, models.RoleFaculty), grievanceHandler.Create)
	grievances.GET("/my", middleware.RequireRoles(models.RoleStudent, models.RoleFaculty), grievanceHandler.ListMine)
	grievances.GET("", middleware.RequireRoles(models.RoleAuthority, models.RoleAdmin), grievanceHandler.List)
	if cfg.Grievances.ExportEnabled {
		grievances.GET("/export", middleware.RequireRoles(models.RoleAdmin), grievanceHandler.Export)
	}
	grievances.GET("/:id", grievanceHandler.Get)
	grievances.PATCH("/:id/status", middleware.RequireRoles(models.RoleAuthority, models.RoleAdmin), grievanceHandler.UpdateStatus)
	grievances.PATCH("/:id/assign", middleware.RequireRoles(models.RoleAdmin), grievanceHandler.Assign)
	grievances.DELETE("/:id", middleware.RequireRoles(models.RoleAdmin), grievanceHandler.Delete)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
