package main

import (
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/dkenges/zhurnal-api/api/swagger"
	"github.com/dkenges/zhurnal-api/internal/handler"
	"github.com/dkenges/zhurnal-api/internal/middleware"
	"github.com/dkenges/zhurnal-api/internal/repository"
	"github.com/dkenges/zhurnal-api/internal/service"
	"github.com/dkenges/zhurnal-api/pkg/cache"
	"github.com/dkenges/zhurnal-api/pkg/config"
	"github.com/dkenges/zhurnal-api/pkg/database"
	"github.com/dkenges/zhurnal-api/pkg/logger"
	corsmiddleware "github.com/dkenges/zhurnal-api/pkg/middleware/cors"
	reqidmiddleware "github.com/dkenges/zhurnal-api/pkg/middleware/requestid"
)

// @title Zhurnal API
// @version 1.0.0
// @description Teacher's gradebook API: classes, rosters, subjects, lesson grid and attendance analytics
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

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	metricsService := service.NewMetricsService()

	var cacheService *service.CacheService
	if cfg.Analytics.CacheEnabled {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Warnw("redis unavailable, attendance cache disabled", "error", err)
		} else {
			cacheRepo := repository.NewCacheRepository(redisClient, logr)
			cacheService = service.NewCacheService(cacheRepo, metricsService, cfg.Analytics.CacheTTL, logr, true)
			defer cacheRepo.Close() //nolint:errcheck
		}
	}

	validate := validator.New()

	userRepo := repository.NewUserRepository(db)
	classRepo := repository.NewClassRepository(db)
	studentRepo := repository.NewStudentRepository(db)
	subjectRepo := repository.NewSubjectRepository(db)
	lessonRepo := repository.NewLessonRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	authService := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "zhurnal-api",
	})
	classService := service.NewClassService(classRepo, studentRepo, subjectRepo, cacheService, validate, logr)
	studentService := service.NewStudentService(studentRepo, classRepo, validate, logr)
	subjectService := service.NewSubjectService(subjectRepo, classRepo, cacheService, validate, logr)
	lessonService := service.NewLessonService(lessonRepo, subjectRepo, classRepo, cacheService, cfg.Gradebook.DefaultMaxScore, validate, logr)
	attendanceService := service.NewAttendanceService(lessonRepo, studentRepo, classRepo, cacheService, logr)
	messageService := service.NewMessageService(messageRepo, classRepo, validate, logr)
	teacherService := service.NewTeacherService(userRepo, validate, logr)

	authHandler := handler.NewAuthHandler(authService)
	classHandler := handler.NewClassHandler(classService)
	studentHandler := handler.NewStudentHandler(studentService)
	subjectHandler := handler.NewSubjectHandler(subjectService)
	lessonHandler := handler.NewLessonHandler(lessonService)
	attendanceHandler := handler.NewAttendanceHandler(attendanceService)
	messageHandler := handler.NewMessageHandler(messageService)
	teacherHandler := handler.NewTeacherHandler(teacherService)
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

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	protected := api.Group("")
	protected.Use(middleware.JWT(authService))

	protected.POST("/auth/logout", authHandler.Logout)
	protected.POST("/auth/change-password", authHandler.ChangePassword)
	protected.GET("/auth/me", authHandler.Me)

	protected.GET("/classes", classHandler.List)
	protected.POST("/classes", classHandler.Create)
	protected.PUT("/classes/:id", classHandler.Update)
	protected.DELETE("/classes/:id", classHandler.Delete)

	protected.GET("/students", studentHandler.ListByClass)
	protected.POST("/students", studentHandler.Create)
	protected.PUT("/students/:id", studentHandler.Update)
	protected.DELETE("/students/:id", studentHandler.Delete)

	protected.GET("/subjects", subjectHandler.ListByClass)
	protected.POST("/subjects", subjectHandler.Create)
	protected.PUT("/subjects/:id", subjectHandler.Update)
	protected.DELETE("/subjects/:id", subjectHandler.Delete)

	protected.GET("/lessons/class/:classId", lessonHandler.ListForClass)
	protected.GET("/lessons/subject/:subjectId", lessonHandler.ListForSubject)
	protected.POST("/lessons", lessonHandler.Create)
	protected.PATCH("/lessons/:id", lessonHandler.Update)

	protected.GET("/attendance/:classId/summary", attendanceHandler.Summary)
	protected.GET("/attendance/:classId/export", attendanceHandler.Export)

	protected.GET("/messages", messageHandler.ListByClass)
	protected.POST("/messages", messageHandler.Send)

	protected.GET("/profile", teacherHandler.Profile)
	protected.PUT("/profile", teacherHandler.UpdateProfile)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
